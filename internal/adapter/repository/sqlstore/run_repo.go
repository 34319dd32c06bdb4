package sqlstore

import (
	"context"
	"fmt"

	"github.com/simaogato/pricesnap/internal/domain"
)

// runRepository implements domain.RunRepository
type runRepository struct {
	db *DB
}

// NewRunRepository creates a new pipeline run repository
func NewRunRepository(db *DB) domain.RunRepository {
	return &runRepository{db: db}
}

// Save stores the summary of a finished run
func (r *runRepository) Save(ctx context.Context, run *domain.RunSummary) error {
	summary, err := run.MarshalSummary()
	if err != nil {
		return fmt.Errorf("failed to encode run summary: %w", err)
	}

	query := `
		INSERT INTO pipeline_runs (id, started_at, finished_at, status, report_date, summary)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = r.db.ExecContext(ctx, query,
		rowID(run.ID),
		formatTime(run.StartedAt),
		formatTime(run.FinishedAt),
		string(run.Status),
		run.ReportDate.String(),
		string(summary),
	)
	if err != nil {
		return fmt.Errorf("failed to insert pipeline run: %w", err)
	}

	return nil
}
