package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/simaogato/pricesnap/internal/domain"
)

// reportRepository implements domain.ReportRepository
type reportRepository struct {
	db *DB
}

// NewReportRepository creates a new report repository
func NewReportRepository(db *DB) domain.ReportRepository {
	return &reportRepository{db: db}
}

func nullableDecimal(d decimal.NullDecimal) interface{} {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Replace stores the lines of report, deleting the lines previously stored for the same date
func (r *reportRepository) Replace(ctx context.Context, report *domain.Report) error {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	if _, err := dbTx.ExecContext(ctx, `DELETE FROM report_lines WHERE report_date = $1`, report.ReportDate.String()); err != nil {
		return fmt.Errorf("failed to delete previous report lines: %w", err)
	}

	stmt, err := dbTx.PrepareContext(ctx, `
		INSERT INTO report_lines
			(id, report_date, generated_at, currency, account, asset_symbol, provider_id, holdings,
			 price, price_day, market_value, cost_basis, unrealized_gain, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare report insert: %w", err)
	}
	defer stmt.Close()

	for _, line := range report.Lines {
		if _, err := stmt.ExecContext(ctx,
			rowID(line.ID),
			report.ReportDate.String(),
			formatTime(report.GeneratedAt),
			report.Currency,
			line.Account,
			line.AssetSymbol,
			line.ProviderID,
			line.Holdings.String(),
			nullableDecimal(line.Price),
			nullableString(line.PriceDay.String()),
			nullableDecimal(line.MarketValue),
			line.CostBasis.String(),
			nullableDecimal(line.UnrealizedGain),
			string(line.Status),
		); err != nil {
			return fmt.Errorf("failed to insert report line %s/%s: %w", line.Account, line.AssetSymbol, err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit report: %w", err)
	}
	return nil
}

// Get retrieves the stored report of a date, optionally restricted to one account
func (r *reportRepository) Get(ctx context.Context, date domain.Day, account string) (*domain.Report, error) {
	query := `
		SELECT id, generated_at, currency, account, asset_symbol, provider_id, holdings,
		       price, price_day, market_value, cost_basis, unrealized_gain, status
		FROM report_lines
		WHERE report_date = $1 AND ($2 = '' OR account = $2)
		ORDER BY account ASC, asset_symbol ASC
	`

	rows, err := r.db.QueryContext(ctx, query, date.String(), account)
	if err != nil {
		return nil, fmt.Errorf("failed to query report lines: %w", err)
	}
	defer rows.Close()

	report := &domain.Report{ReportDate: date, Lines: make([]domain.ReportLine, 0)}
	for rows.Next() {
		var line domain.ReportLine
		var generatedAt, holdingsStr, costBasisStr, status string
		var priceDay sql.NullString

		if err := rows.Scan(
			&line.ID,
			&generatedAt,
			&report.Currency,
			&line.Account,
			&line.AssetSymbol,
			&line.ProviderID,
			&holdingsStr,
			&line.Price,
			&priceDay,
			&line.MarketValue,
			&costBasisStr,
			&line.UnrealizedGain,
			&status,
		); err != nil {
			return nil, fmt.Errorf("failed to scan report line: %w", err)
		}

		if report.GeneratedAt, err = parseTime(generatedAt); err != nil {
			return nil, fmt.Errorf("failed to parse generated_at: %w", err)
		}
		if line.Holdings, err = decimal.NewFromString(holdingsStr); err != nil {
			return nil, fmt.Errorf("failed to parse holdings: %w", err)
		}
		if line.CostBasis, err = decimal.NewFromString(costBasisStr); err != nil {
			return nil, fmt.Errorf("failed to parse cost_basis: %w", err)
		}
		line.PriceDay = domain.Day(priceDay.String)
		line.Status = domain.ValuationStatus(status)
		report.Lines = append(report.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating report lines: %w", err)
	}

	if len(report.Lines) == 0 {
		return nil, fmt.Errorf("no report stored for %s: %w", date, domain.ErrNotFound)
	}
	return report, nil
}
