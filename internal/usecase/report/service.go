package report

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/simaogato/pricesnap/internal/domain"
	"github.com/sirupsen/logrus"
)

// SnapshotFileName is the name of the CSV export written in the report directory
const SnapshotFileName = "snapshot.csv"

// ErrNoReportStore is wrapped in the ComputeError returned when reports cannot be stored
var ErrNoReportStore = errors.New("report store not configured")

// Options configures report outputs
type Options struct {
	Currency  string
	ReportDir string // empty disables the CSV export
}

// ReportService values the ledger against the stored price snapshots
type ReportService struct {
	SnapshotRepo domain.SnapshotRepository
	ReportRepo   domain.ReportRepository
	Options      Options
	Logger       logrus.FieldLogger
	Now          func() time.Time
}

// NewReportService creates a new ReportService instance
func NewReportService(snapshotRepo domain.SnapshotRepository, reportRepo domain.ReportRepository, opts Options, logger logrus.FieldLogger) *ReportService {
	return &ReportService{
		SnapshotRepo: snapshotRepo,
		ReportRepo:   reportRepo,
		Options:      opts,
		Logger:       logger,
		Now:          time.Now,
	}
}

type positionKey struct {
	account string
	symbol  string
}

// position tracks holdings and cost basis with the average-cost method
type position struct {
	quantity decimal.Decimal
	cost     decimal.Decimal
}

func (p *position) apply(tx domain.LedgerTransaction) {
	delta := tx.SignedQuantity()
	switch {
	case delta.IsPositive():
		p.quantity = p.quantity.Add(delta)
		p.cost = p.cost.Add(tx.CounterValue)
	case delta.IsNegative():
		sold := delta.Abs()
		if p.quantity.IsPositive() {
			if sold.GreaterThan(p.quantity) {
				sold = p.quantity
			}
			// avg_cost * qty, multiplied first to keep precision
			p.cost = p.cost.Sub(p.cost.Mul(sold).Div(p.quantity))
		}
		p.quantity = p.quantity.Add(delta)
		if !p.quantity.IsPositive() {
			p.cost = decimal.Zero
		}
	}
}

// chronological returns a copy of txs sorted by timestamp, keeping the ledger order of ties
func chronological(txs []domain.LedgerTransaction) []domain.LedgerTransaction {
	ordered := make([]domain.LedgerTransaction, len(txs))
	copy(ordered, txs)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Timestamp.Before(ordered[j].Timestamp) })
	return ordered
}

func sortKeys(keys []positionKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].account != keys[j].account {
			return keys[i].account < keys[j].account
		}
		return keys[i].symbol < keys[j].symbol
	})
}

// holdings folds transactions up to the end of date into positions per (account, symbol)
func holdings(txs []domain.LedgerTransaction, date domain.Day) map[positionKey]*position {
	ordered := chronological(txs)
	cutoff := date.End()
	positions := make(map[positionKey]*position)
	for _, tx := range ordered {
		if tx.Timestamp.After(cutoff) {
			break
		}
		key := positionKey{account: tx.Account, symbol: tx.AssetSymbol}
		pos, ok := positions[key]
		if !ok {
			pos = &position{}
			positions[key] = pos
		}
		pos.apply(tx)
	}
	return positions
}

// Compute builds the report of date from txs, the symbol -> provider id mapping and the stored snapshots.
// Unmapped symbols and missing prices leave the valuation absent. Only store failures are errors.
func (s *ReportService) Compute(ctx context.Context, txs []domain.LedgerTransaction, mapped map[string]string, date domain.Day) (*domain.Report, error) {
	report := &domain.Report{
		ReportDate:  date,
		GeneratedAt: s.Now().UTC(),
		Currency:    s.Options.Currency,
		Lines:       make([]domain.ReportLine, 0),
	}

	positions := holdings(txs, date)
	keys := make([]positionKey, 0, len(positions))
	for key, pos := range positions {
		if pos.quantity.IsZero() {
			continue
		}
		keys = append(keys, key)
	}
	sortKeys(keys)

	prices := make(map[string]*domain.PriceSnapshot)
	for _, key := range keys {
		pos := positions[key]
		line := domain.ReportLine{
			ID:          uuid.New(),
			Account:     key.account,
			AssetSymbol: key.symbol,
			Holdings:    pos.quantity,
			CostBasis:   pos.cost.Round(8),
		}

		providerID, ok := mapped[key.symbol]
		if !ok {
			line.Status = domain.ValuationUnmapped
			report.Lines = append(report.Lines, line)
			continue
		}
		line.ProviderID = providerID

		snapshot, cached := prices[providerID]
		if !cached {
			var err error
			snapshot, err = s.SnapshotRepo.LatestOnOrBefore(ctx, providerID, date)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return nil, &domain.ComputeError{Op: "read price snapshots", Err: err}
			}
			prices[providerID] = snapshot
		}

		if snapshot == nil {
			line.Status = domain.ValuationNoPrice
			report.Lines = append(report.Lines, line)
			continue
		}

		marketValue := pos.quantity.Mul(snapshot.Price)
		line.Status = domain.ValuationPriced
		line.Price = decimal.NewNullDecimal(snapshot.Price)
		line.PriceDay = snapshot.Day
		line.MarketValue = decimal.NewNullDecimal(marketValue)
		line.UnrealizedGain = decimal.NewNullDecimal(marketValue.Sub(line.CostBasis))
		report.Lines = append(report.Lines, line)
	}

	return report, nil
}

// Run computes, stores and exports the report of date as a pipeline stage.
// A missing or failing report store is fatal; lines without a price are warnings.
func (s *ReportService) Run(ctx context.Context, txs []domain.LedgerTransaction, mapped map[string]string, date domain.Day) (*domain.Report, *domain.StageOutcome) {
	start := time.Now()
	outcome := domain.NewStageOutcome(domain.StageReport)
	defer func() { outcome.Duration = time.Since(start) }()
	log := s.Logger.WithFields(logrus.Fields{"stage": domain.StageReport, "report_date": date})

	if s.ReportRepo == nil || s.SnapshotRepo == nil {
		outcome.Fail(&domain.ComputeError{Op: "open report store", Err: ErrNoReportStore})
		return nil, outcome
	}

	report, err := s.Compute(ctx, txs, mapped, date)
	if err != nil {
		outcome.Fail(err)
		return nil, outcome
	}

	if err := s.ReportRepo.Replace(ctx, report); err != nil {
		outcome.Fail(&domain.ComputeError{Op: "store report", Err: err})
		return report, outcome
	}

	for _, line := range report.Lines {
		if line.Status == domain.ValuationNoPrice {
			outcome.Warn(domain.Warning{Symbol: line.AssetSymbol, ProviderID: line.ProviderID, Day: date, Message: "no price on or before report date"})
		}
	}

	if s.Options.ReportDir != "" {
		path := filepath.Join(s.Options.ReportDir, SnapshotFileName)
		if err := WriteCSV(path, report); err != nil {
			log.WithError(err).Warn("report export failed")
			outcome.Warn(domain.Warning{Message: fmt.Sprintf("failed to export report: %v", err)})
		} else {
			log.WithField("path", path).Debug("report exported")
		}
	}

	totals := report.Totals()
	log.WithFields(logrus.Fields{
		"lines":        len(report.Lines),
		"market_value": totals.MarketValue.StringFixed(2),
		"unavailable":  totals.Unavailable,
	}).Info("report computed")
	return report, outcome
}
