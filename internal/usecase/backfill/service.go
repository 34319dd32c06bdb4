package backfill

import (
	"context"
	"fmt"
	"time"

	"github.com/simaogato/pricesnap/internal/domain"
	"github.com/simaogato/pricesnap/internal/usecase/pacing"
	"github.com/sirupsen/logrus"
)

// DefaultWindowDays is the default length of the backfill window
const DefaultWindowDays = 30

// Options configures the historical backfill
type Options struct {
	WindowDays int
	VsCurrency string
}

// BackfillService fills the gaps of the daily price history
type BackfillService struct {
	Provider     domain.PriceProvider
	SnapshotRepo domain.SnapshotRepository
	Pacer        *pacing.Pacer
	Options      Options
	Logger       logrus.FieldLogger
	Now          func() time.Time
}

// NewBackfillService creates a new BackfillService instance
func NewBackfillService(provider domain.PriceProvider, snapshotRepo domain.SnapshotRepository, pacer *pacing.Pacer, opts Options, logger logrus.FieldLogger) *BackfillService {
	if opts.WindowDays <= 0 {
		opts.WindowDays = DefaultWindowDays
	}
	return &BackfillService{
		Provider:     provider,
		SnapshotRepo: snapshotRepo,
		Pacer:        pacer,
		Options:      opts,
		Logger:       logger,
		Now:          time.Now,
	}
}

// Window returns the first and last day of the backfill window.
// The window ends yesterday: today's row belongs to the spot fetch.
func (s *BackfillService) Window() (domain.Day, domain.Day) {
	last := domain.DayOf(s.Now()).AddDays(-1)
	first := last.AddDays(-(s.Options.WindowDays - 1))
	return first, last
}

// Backfill requests, for every provider id with missing days in the window, one price range
// spanning those days and stores the last point of each missing day.
// Assets already covered issue no request. Failures are per-asset warnings.
func (s *BackfillService) Backfill(ctx context.Context, providerIDs []string) *domain.StageOutcome {
	start := time.Now()
	outcome := domain.NewStageOutcome(domain.StageBackfill)
	defer func() { outcome.Duration = time.Since(start) }()

	first, last := s.Window()
	window := domain.DayRange(first, last)
	inserted := 0

	for _, id := range providerIDs {
		log := s.Logger.WithFields(logrus.Fields{"stage": domain.StageBackfill, "provider_id": id})

		existing, err := s.SnapshotRepo.ExistingDays(ctx, id, first, last)
		if err != nil {
			log.WithError(err).Warn("failed to read existing snapshots")
			outcome.Warn(domain.Warning{ProviderID: id, Message: fmt.Sprintf("failed to read existing snapshots: %v", err)})
			continue
		}

		missing := make([]domain.Day, 0)
		for _, day := range window {
			if !existing[day] {
				missing = append(missing, day)
			}
		}
		if len(missing) == 0 {
			log.Debug("history complete, nothing to backfill")
			continue
		}

		from, to := missing[0], missing[len(missing)-1]
		var points []domain.PricePoint
		err = s.Pacer.Do(ctx, "market_chart/range", func(ctx context.Context) error {
			var err error
			points, err = s.Provider.PriceRange(ctx, id, s.Options.VsCurrency, from.Start(), to.End())
			return err
		})
		if err != nil {
			log.WithError(err).WithFields(logrus.Fields{"from": from, "to": to}).Warn("price range request failed")
			outcome.Warn(domain.Warning{ProviderID: id, Day: from, Message: fmt.Sprintf("range %s..%s: %v", from, to, err)})
			continue
		}

		byDay := domain.LastPointPerDay(points)
		for _, day := range missing {
			point, ok := byDay[day]
			if !ok {
				outcome.Warn(domain.Warning{ProviderID: id, Day: day, Message: "no price point returned"})
				continue
			}
			snapshot := domain.NewPriceSnapshot(id, day, point.Price, s.Options.VsCurrency, domain.SnapshotSourceHistory, point.Time)
			written, err := s.SnapshotRepo.Upsert(ctx, snapshot, domain.ConflictSkip)
			if err != nil {
				log.WithError(err).WithField("day", day).Warn("failed to store historical price")
				outcome.Warn(domain.Warning{ProviderID: id, Day: day, Message: fmt.Sprintf("failed to store price: %v", err)})
				continue
			}
			if written {
				inserted++
			}
		}
		log.WithFields(logrus.Fields{"missing": len(missing), "returned_days": len(byDay)}).Debug("asset backfilled")
	}

	s.Logger.WithFields(logrus.Fields{
		"stage":    domain.StageBackfill,
		"assets":   len(providerIDs),
		"inserted": inserted,
		"from":     first,
		"to":       last,
	}).Info("price history backfilled")
	return outcome
}
