package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/simaogato/pricesnap/internal/domain"
)

// MaxSeriesDays bounds the length of a valuation series
const MaxSeriesDays = 3660

// ErrInvalidRange is returned for an empty or oversized series range
var ErrInvalidRange = errors.New("invalid series range")

// seriesPosition extends a position with the cumulated and daily acquisition cost
type seriesPosition struct {
	position
	invested decimal.Decimal
	bought   decimal.Decimal
}

func (p *seriesPosition) apply(tx domain.LedgerTransaction, countBought bool) {
	if tx.SignedQuantity().IsPositive() {
		p.invested = p.invested.Add(tx.CounterValue)
		if countBought {
			p.bought = p.bought.Add(tx.CounterValue)
		}
	}
	p.position.apply(tx)
}

// priceWalk carries the last known snapshot of one provider id forward, day after day
type priceWalk struct {
	last  *domain.PriceSnapshot
	byDay map[domain.Day]*domain.PriceSnapshot
}

func (w *priceWalk) advance(day domain.Day) {
	if s, ok := w.byDay[day]; ok {
		w.last = s
	}
}

// priceWalks loads, for every provider id, the snapshot preceding from and the snapshots of [from, to]
func (s *ReportService) priceWalks(ctx context.Context, ids []string, from, to domain.Day) (map[string]*priceWalk, error) {
	walks := make(map[string]*priceWalk, len(ids))
	for _, id := range ids {
		if _, done := walks[id]; done {
			continue
		}
		seed, err := s.SnapshotRepo.LatestOnOrBefore(ctx, id, from.AddDays(-1))
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, &domain.ComputeError{Op: "read price snapshots", Err: err}
		}
		snapshots, err := s.SnapshotRepo.List(ctx, id, from, to)
		if err != nil {
			return nil, &domain.ComputeError{Op: "list price snapshots", Err: err}
		}

		walk := &priceWalk{last: seed, byDay: make(map[domain.Day]*domain.PriceSnapshot, len(snapshots))}
		for _, snapshot := range snapshots {
			walk.byDay[snapshot.Day] = snapshot
		}
		walks[id] = walk
	}
	return walks, nil
}

// ComputeSeries values every position of txs on each day of [from, to].
// Prices are carried forward from the last known snapshot. Before the first one, and for
// unmapped symbols, the valuation is absent rather than zero.
func (s *ReportService) ComputeSeries(ctx context.Context, txs []domain.LedgerTransaction, mapped map[string]string, from, to domain.Day) (*domain.ReportSeries, error) {
	if s.SnapshotRepo == nil {
		return nil, &domain.ComputeError{Op: "open report store", Err: ErrNoReportStore}
	}
	days := domain.DayRange(from, to)
	if len(days) == 0 {
		return nil, fmt.Errorf("%w: %s is after %s", ErrInvalidRange, from, to)
	}
	if len(days) > MaxSeriesDays {
		return nil, fmt.Errorf("%w: %d days exceeds %d", ErrInvalidRange, len(days), MaxSeriesDays)
	}

	ids := make([]string, 0, len(mapped))
	for _, id := range mapped {
		ids = append(ids, id)
	}
	walks, err := s.priceWalks(ctx, ids, from, to)
	if err != nil {
		return nil, err
	}

	series := &domain.ReportSeries{
		From:        from,
		To:          to,
		GeneratedAt: s.Now().UTC(),
		Currency:    s.Options.Currency,
		Points:      make([]domain.SeriesPoint, 0),
	}

	ordered := chronological(txs)
	positions := make(map[positionKey]*seriesPosition)
	next := 0
	fold := func(until domain.Day, countBought bool) {
		cutoff := until.End()
		for ; next < len(ordered) && !ordered[next].Timestamp.After(cutoff); next++ {
			tx := ordered[next]
			key := positionKey{account: tx.Account, symbol: tx.AssetSymbol}
			pos, ok := positions[key]
			if !ok {
				pos = &seriesPosition{}
				positions[key] = pos
			}
			pos.apply(tx, countBought)
		}
	}

	// Everything before the window only builds the opening positions
	fold(from.AddDays(-1), false)

	for _, day := range days {
		for _, walk := range walks {
			walk.advance(day)
		}
		for _, pos := range positions {
			pos.bought = decimal.Zero
		}
		fold(day, true)

		keys := make([]positionKey, 0, len(positions))
		for key := range positions {
			keys = append(keys, key)
		}
		sortKeys(keys)

		for _, key := range keys {
			pos := positions[key]
			point := domain.SeriesPoint{
				Day:         day,
				Account:     key.account,
				AssetSymbol: key.symbol,
				Holdings:    pos.quantity,
				Bought:      pos.bought.Round(8),
				Invested:    pos.invested.Round(8),
				Status:      domain.ValuationUnmapped,
			}
			if providerID, ok := mapped[key.symbol]; ok {
				point.ProviderID = providerID
				point.Status = domain.ValuationNoPrice
				if snapshot := walks[providerID].last; snapshot != nil {
					value := pos.quantity.Mul(snapshot.Price)
					point.Status = domain.ValuationPriced
					point.Price = decimal.NewNullDecimal(snapshot.Price)
					point.PriceDay = snapshot.Day
					point.MarketValue = decimal.NewNullDecimal(value)
					point.Gain = decimal.NewNullDecimal(value.Sub(point.Invested))
				}
			}
			series.Points = append(series.Points, point)
		}
	}

	return series, nil
}
