package pricefetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/simaogato/pricesnap/internal/domain"
	"github.com/simaogato/pricesnap/internal/usecase/pacing"
	"github.com/sirupsen/logrus"
)

// DefaultBatchSize is the number of ids requested per spot call
const DefaultBatchSize = 50

// ErrNoFreshPrices is reported when no spot price at all could be stored
var ErrNoFreshPrices = errors.New("no fresh prices")

// Options configures the spot fetch
type Options struct {
	VsCurrency string
	BatchSize  int
	Conflict   domain.ConflictPolicy
}

// FetcherService records today's spot price of every mapped asset
type FetcherService struct {
	Provider     domain.PriceProvider
	SnapshotRepo domain.SnapshotRepository
	Pacer        *pacing.Pacer
	Options      Options
	Logger       logrus.FieldLogger
	Now          func() time.Time
}

// NewFetcherService creates a new FetcherService instance
func NewFetcherService(provider domain.PriceProvider, snapshotRepo domain.SnapshotRepository, pacer *pacing.Pacer, opts Options, logger logrus.FieldLogger) *FetcherService {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Conflict == "" {
		opts.Conflict = domain.ConflictOverwrite
	}
	return &FetcherService{
		Provider:     provider,
		SnapshotRepo: snapshotRepo,
		Pacer:        pacer,
		Options:      opts,
		Logger:       logger,
		Now:          time.Now,
	}
}

// Fetch requests spot prices for providerIDs in batches and upserts one snapshot per id for today (UTC).
// Failures are per-asset warnings; the outcome is never fatal.
func (s *FetcherService) Fetch(ctx context.Context, providerIDs []string) *domain.StageOutcome {
	start := time.Now()
	outcome := domain.NewStageOutcome(domain.StageFetch)
	defer func() { outcome.Duration = time.Since(start) }()

	if len(providerIDs) == 0 {
		return outcome
	}

	now := s.Now().UTC()
	today := domain.DayOf(now)
	log := s.Logger.WithFields(logrus.Fields{"stage": domain.StageFetch, "day": today})
	stored := 0

	for _, batch := range batches(providerIDs, s.Options.BatchSize) {
		var prices map[string]decimal.Decimal
		err := s.Pacer.Do(ctx, "simple/price", func(ctx context.Context) error {
			var err error
			prices, err = s.Provider.SpotPrices(ctx, batch, s.Options.VsCurrency)
			return err
		})
		if err != nil {
			log.WithError(err).WithField("batch_size", len(batch)).Warn("spot price batch failed")
			for _, id := range batch {
				outcome.Warn(domain.Warning{ProviderID: id, Day: today, Message: err.Error()})
			}
			continue
		}

		for _, id := range batch {
			price, ok := prices[id]
			if !ok {
				log.WithField("provider_id", id).Warn("no spot price returned")
				outcome.Warn(domain.Warning{ProviderID: id, Day: today, Message: "no price returned by provider"})
				continue
			}

			snapshot := domain.NewPriceSnapshot(id, today, price, s.Options.VsCurrency, domain.SnapshotSourceSpot, now)
			written, err := s.SnapshotRepo.Upsert(ctx, snapshot, s.Options.Conflict)
			if err != nil {
				log.WithError(err).WithField("provider_id", id).Warn("failed to store spot price")
				outcome.Warn(domain.Warning{ProviderID: id, Day: today, Message: fmt.Sprintf("failed to store price: %v", err)})
				continue
			}
			stored++
			if !written {
				log.WithField("provider_id", id).Debug("spot price already recorded today, kept")
			}
		}
	}

	if stored == 0 {
		outcome.Warn(domain.Warning{Day: today, Message: ErrNoFreshPrices.Error()})
		log.Warn(ErrNoFreshPrices.Error())
	}
	log.WithFields(logrus.Fields{"assets": len(providerIDs), "stored": stored}).Info("spot prices fetched")
	return outcome
}

func batches(ids []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}
