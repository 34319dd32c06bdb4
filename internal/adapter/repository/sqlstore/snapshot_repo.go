package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/simaogato/pricesnap/internal/domain"
)

// snapshotRepository implements domain.SnapshotRepository
type snapshotRepository struct {
	db *DB
}

// NewSnapshotRepository creates a new price snapshot repository
func NewSnapshotRepository(db *DB) domain.SnapshotRepository {
	return &snapshotRepository{db: db}
}

const insertSnapshot = `
	INSERT INTO price_snapshots (id, provider_id, day, price, currency, source, captured_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
`

// upsertQuery returns the statement enforcing the conflict rules on (provider_id, day):
// history never replaces a row, spot replaces history, and spot replaces spot only under overwrite
func upsertQuery(source domain.SnapshotSource, policy domain.ConflictPolicy) string {
	if source == domain.SnapshotSourceHistory {
		return insertSnapshot + ` ON CONFLICT (provider_id, day) DO NOTHING`
	}
	update := insertSnapshot + `
	ON CONFLICT (provider_id, day) DO UPDATE SET
		price = excluded.price,
		currency = excluded.currency,
		source = excluded.source,
		captured_at = excluded.captured_at
	`
	if policy == domain.ConflictSkip {
		update += ` WHERE price_snapshots.source <> 'spot'`
	}
	return update
}

// Upsert writes a snapshot keyed by (provider id, day) and reports whether a row changed
func (r *snapshotRepository) Upsert(ctx context.Context, snapshot *domain.PriceSnapshot, policy domain.ConflictPolicy) (bool, error) {
	if err := snapshot.Validate(); err != nil {
		return false, fmt.Errorf("invalid snapshot: %w", err)
	}

	result, err := r.db.ExecContext(ctx, upsertQuery(snapshot.Source, policy),
		snapshot.ID.String(),
		snapshot.ProviderID,
		snapshot.Day.String(),
		snapshot.Price.String(),
		snapshot.Currency,
		string(snapshot.Source),
		formatTime(snapshot.CapturedAt),
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert price snapshot: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

// ExistingDays returns the days in [from, to] that already have a snapshot for providerID
func (r *snapshotRepository) ExistingDays(ctx context.Context, providerID string, from, to domain.Day) (map[domain.Day]bool, error) {
	query := `
		SELECT day
		FROM price_snapshots
		WHERE provider_id = $1 AND day >= $2 AND day <= $3
	`

	rows, err := r.db.QueryContext(ctx, query, providerID, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query existing days: %w", err)
	}
	defer rows.Close()

	days := make(map[domain.Day]bool)
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return nil, fmt.Errorf("failed to scan day: %w", err)
		}
		days[domain.Day(day)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating existing days: %w", err)
	}

	return days, nil
}

// LatestOnOrBefore retrieves the most recent snapshot with day <= day
func (r *snapshotRepository) LatestOnOrBefore(ctx context.Context, providerID string, day domain.Day) (*domain.PriceSnapshot, error) {
	query := `
		SELECT id, provider_id, day, price, currency, source, captured_at
		FROM price_snapshots
		WHERE provider_id = $1 AND day <= $2
		ORDER BY day DESC
		LIMIT 1
	`

	snapshot, err := scanSnapshot(r.db.QueryRowContext(ctx, query, providerID, day.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no snapshot for %s on or before %s: %w", providerID, day, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}

	return snapshot, nil
}

// List retrieves the snapshots of providerID in [from, to] ordered by day.
// Empty bounds are open.
func (r *snapshotRepository) List(ctx context.Context, providerID string, from, to domain.Day) ([]*domain.PriceSnapshot, error) {
	query := `
		SELECT id, provider_id, day, price, currency, source, captured_at
		FROM price_snapshots
		WHERE provider_id = $1 AND ($2 = '' OR day >= $2) AND ($3 = '' OR day <= $3)
		ORDER BY day ASC
	`

	rows, err := r.db.QueryContext(ctx, query, providerID, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]*domain.PriceSnapshot, 0)
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	return snapshots, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row rowScanner) (*domain.PriceSnapshot, error) {
	var snapshot domain.PriceSnapshot
	var day, priceStr, source, capturedAt string

	if err := row.Scan(
		&snapshot.ID,
		&snapshot.ProviderID,
		&day,
		&priceStr,
		&snapshot.Currency,
		&source,
		&capturedAt,
	); err != nil {
		return nil, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse price: %w", err)
	}
	captured, err := parseTime(capturedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse captured_at: %w", err)
	}

	snapshot.Day = domain.Day(day)
	snapshot.Price = price
	snapshot.Source = domain.SnapshotSource(source)
	snapshot.CapturedAt = captured
	return &snapshot, nil
}
