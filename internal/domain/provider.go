package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceProvider is the market data source
type PriceProvider interface {
	// SpotPrices returns the current price of each id quoted in vsCurrency.
	// Ids the provider does not know are absent from the result.
	SpotPrices(ctx context.Context, ids []string, vsCurrency string) (map[string]decimal.Decimal, error)

	// PriceRange returns the price samples of id between from and to, inclusive
	PriceRange(ctx context.Context, id, vsCurrency string, from, to time.Time) ([]PricePoint, error)
}

// Limiter paces outbound provider requests.
// Wait blocks until a request may proceed or ctx is done.
type Limiter interface {
	Wait(ctx context.Context) error
}
