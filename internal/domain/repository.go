package domain

import (
	"context"
)

// LedgerRepository persists imported ledger transactions for audit
type LedgerRepository interface {
	// Save inserts the transactions, ignoring those whose dedup hash is already stored.
	// It returns the number of rows actually inserted.
	Save(ctx context.Context, txs []LedgerTransaction) (int, error)

	// List retrieves the stored transactions ordered by timestamp
	List(ctx context.Context) ([]LedgerTransaction, error)
}

// SnapshotRepository defines the interface for price snapshot persistence operations
type SnapshotRepository interface {
	// ExistingDays returns the days in [from, to] that already have a snapshot for providerID
	ExistingDays(ctx context.Context, providerID string, from, to Day) (map[Day]bool, error)

	// Upsert writes a snapshot keyed by (provider id, day).
	// History snapshots never replace an existing row. Spot snapshots follow policy,
	// and may replace a history row but a history row never replaces a spot row.
	// It reports whether a row was written.
	Upsert(ctx context.Context, snapshot *PriceSnapshot, policy ConflictPolicy) (bool, error)

	// LatestOnOrBefore retrieves the most recent snapshot with day <= day.
	// Returns ErrNotFound when there is none.
	LatestOnOrBefore(ctx context.Context, providerID string, day Day) (*PriceSnapshot, error)

	// List retrieves the snapshots of providerID in [from, to] ordered by day
	List(ctx context.Context, providerID string, from, to Day) ([]*PriceSnapshot, error)
}

// ReportRepository persists computed reports
type ReportRepository interface {
	// Replace stores the lines of report, replacing any line of the same report date
	Replace(ctx context.Context, report *Report) error

	// Get retrieves the stored report of a date, optionally restricted to one account.
	// Returns ErrNotFound when nothing was stored for that date.
	Get(ctx context.Context, date Day, account string) (*Report, error)
}

// RunRepository persists pipeline run summaries
type RunRepository interface {
	// Save stores the summary of a finished run
	Save(ctx context.Context, run *RunSummary) error
}
