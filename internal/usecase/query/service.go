package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/simaogato/pricesnap/internal/domain"
	"github.com/simaogato/pricesnap/internal/usecase/report"
)

var (
	// ErrInvalidQuery is wrapped by every argument validation failure
	ErrInvalidQuery = errors.New("invalid query")
	// ErrSeriesUnavailable is returned when the service was built without a ledger to value
	ErrSeriesUnavailable = errors.New("valuation series not available")
)

// SeriesComputer values a ledger day by day
type SeriesComputer interface {
	ComputeSeries(ctx context.Context, txs []domain.LedgerTransaction, mapped map[string]string, from, to domain.Day) (*domain.ReportSeries, error)
}

// ReportView is a stored report narrowed to one account, with its totals
type ReportView struct {
	Report  *domain.Report
	Account string
	Totals  domain.ReportTotals
}

// QueryService serves the read-only queries of downstream consumers
type QueryService struct {
	ReportRepo   domain.ReportRepository
	SnapshotRepo domain.SnapshotRepository
	LedgerRepo   domain.LedgerRepository // optional, required by GetSeries
	Coins        domain.CoinMapping
	Series       SeriesComputer // optional, required by GetSeries
	Now          func() time.Time
}

// NewQueryService creates a new QueryService instance
func NewQueryService(reportRepo domain.ReportRepository, snapshotRepo domain.SnapshotRepository) *QueryService {
	return &QueryService{
		ReportRepo:   reportRepo,
		SnapshotRepo: snapshotRepo,
		Now:          time.Now,
	}
}

// WithSeries enables GetSeries over the stored ledger valued with coins
func (s *QueryService) WithSeries(ledgerRepo domain.LedgerRepository, coins domain.CoinMapping, series SeriesComputer) *QueryService {
	s.LedgerRepo = ledgerRepo
	s.Coins = coins
	s.Series = series
	return s
}

// GetReport returns the stored report of date, optionally restricted to one account.
// It returns domain.ErrNotFound when no line matches.
func (s *QueryService) GetReport(ctx context.Context, date, account string) (*ReportView, error) {
	day, err := domain.ParseDay(strings.TrimSpace(date))
	if err != nil {
		return nil, fmt.Errorf("%w: report date: %v", ErrInvalidQuery, err)
	}

	account = strings.TrimSpace(account)
	report, err := s.ReportRepo.Get(ctx, day, account)
	if err != nil {
		return nil, fmt.Errorf("failed to get report %s: %w", day, err)
	}

	view := &domain.Report{
		ReportDate:  report.ReportDate,
		GeneratedAt: report.GeneratedAt,
		Currency:    report.Currency,
		Lines:       report.ForAccount(account),
	}
	return &ReportView{
		Report:  view,
		Account: account,
		Totals:  view.Totals(),
	}, nil
}

// ListSnapshots returns the snapshots of providerID between the optional from and to days
func (s *QueryService) ListSnapshots(ctx context.Context, providerID, from, to string) ([]*domain.PriceSnapshot, error) {
	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return nil, fmt.Errorf("%w: provider id is required", ErrInvalidQuery)
	}

	fromDay, err := optionalDay("from", from)
	if err != nil {
		return nil, err
	}
	toDay, err := optionalDay("to", to)
	if err != nil {
		return nil, err
	}
	if fromDay != "" && toDay != "" && toDay.Before(fromDay) {
		return nil, fmt.Errorf("%w: from %s is after to %s", ErrInvalidQuery, fromDay, toDay)
	}

	snapshots, err := s.SnapshotRepo.List(ctx, providerID, fromDay, toDay)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots of %s: %w", providerID, err)
	}
	return snapshots, nil
}

// GetSeries values the stored ledger on every day between from and to, optionally for one account.
// from defaults to the day of the first transaction and to defaults to today (UTC).
func (s *QueryService) GetSeries(ctx context.Context, from, to, account string) (*domain.ReportSeries, error) {
	if s.Series == nil || s.LedgerRepo == nil {
		return nil, ErrSeriesUnavailable
	}

	fromDay, err := optionalDay("from", from)
	if err != nil {
		return nil, err
	}
	toDay, err := optionalDay("to", to)
	if err != nil {
		return nil, err
	}

	txs, err := s.LedgerRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger transactions: %w", err)
	}
	if len(txs) == 0 {
		return nil, fmt.Errorf("no ledger transactions stored: %w", domain.ErrNotFound)
	}

	if fromDay == "" {
		fromDay = domain.FirstDay(txs)
	}
	if toDay == "" {
		toDay = domain.DayOf(s.Now())
	}

	mapped := make(map[string]string)
	for _, symbol := range domain.DistinctSymbols(txs) {
		if id, ok := s.Coins.Lookup(symbol); ok {
			mapped[symbol] = id
		}
	}

	series, err := s.Series.ComputeSeries(ctx, txs, mapped, fromDay, toDay)
	if err != nil {
		if errors.Is(err, report.ErrInvalidRange) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
		}
		return nil, fmt.Errorf("failed to compute series %s..%s: %w", fromDay, toDay, err)
	}
	return series.ForAccount(strings.TrimSpace(account)), nil
}

func optionalDay(name, raw string) (domain.Day, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	day, err := domain.ParseDay(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidQuery, name, err)
	}
	return day, nil
}
