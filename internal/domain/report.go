package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ValuationStatus explains whether a report line could be valued
type ValuationStatus string

const (
	ValuationPriced   ValuationStatus = "priced"
	ValuationNoPrice  ValuationStatus = "no_price" // mapped, but no snapshot on or before the report date
	ValuationUnmapped ValuationStatus = "unmapped" // no provider identifier for the symbol
)

// ReportLine is the valuation of one asset held in one account.
// Price, PriceDay, MarketValue and UnrealizedGain are invalid when the value is unknown,
// which is different from a zero value.
type ReportLine struct {
	ID             uuid.UUID
	Account        string
	AssetSymbol    string
	ProviderID     string
	Holdings       decimal.Decimal
	Price          decimal.NullDecimal
	PriceDay       Day
	MarketValue    decimal.NullDecimal
	CostBasis      decimal.Decimal
	UnrealizedGain decimal.NullDecimal
	Status         ValuationStatus
}

// Available reports whether the line carries a market value
func (l ReportLine) Available() bool {
	return l.Status == ValuationPriced && l.MarketValue.Valid
}

// ReportTotals aggregates the priced lines of a report
type ReportTotals struct {
	MarketValue    decimal.Decimal
	CostBasis      decimal.Decimal
	UnrealizedGain decimal.Decimal
	Unavailable    int // lines without a market value
}

// Report is the valuation snapshot of the ledger at ReportDate.
// It is always recomputed from transactions and price snapshots.
type Report struct {
	ReportDate  Day
	GeneratedAt time.Time
	Currency    string
	Lines       []ReportLine
}

// Totals sums market value, cost basis and gain over lines that have a market value
func (r *Report) Totals() ReportTotals {
	var totals ReportTotals
	for _, line := range r.Lines {
		if !line.Available() {
			totals.Unavailable++
			continue
		}
		totals.MarketValue = totals.MarketValue.Add(line.MarketValue.Decimal)
		totals.CostBasis = totals.CostBasis.Add(line.CostBasis)
		totals.UnrealizedGain = totals.UnrealizedGain.Add(line.UnrealizedGain.Decimal)
	}
	return totals
}

// ForAccount returns the lines of a single account; an empty account returns every line
func (r *Report) ForAccount(account string) []ReportLine {
	if account == "" {
		return r.Lines
	}
	lines := make([]ReportLine, 0)
	for _, line := range r.Lines {
		if line.Account == account {
			lines = append(lines, line)
		}
	}
	return lines
}

// SeriesPoint is the valuation of one position on one day of a series.
// Invested accumulates the cost of acquisitions and never decreases on disposals.
// Price is carried forward from the last known snapshot and stays invalid before the first one.
type SeriesPoint struct {
	Day         Day
	Account     string
	AssetSymbol string
	ProviderID  string
	Holdings    decimal.Decimal
	Bought      decimal.Decimal // cost of the acquisitions of the day
	Invested    decimal.Decimal
	Price       decimal.NullDecimal
	PriceDay    Day
	MarketValue decimal.NullDecimal
	Gain        decimal.NullDecimal
	Status      ValuationStatus
}

// Available reports whether the point carries a market value
func (p SeriesPoint) Available() bool {
	return p.Status == ValuationPriced && p.MarketValue.Valid
}

// SeriesTotals aggregates the priced points of one day
type SeriesTotals struct {
	Day         Day
	Invested    decimal.Decimal
	MarketValue decimal.Decimal
	Gain        decimal.Decimal
	Unavailable int
}

// ReportSeries is the daily valuation of the ledger over [From, To].
// Points are ordered by day, then account, then symbol.
type ReportSeries struct {
	From        Day
	To          Day
	GeneratedAt time.Time
	Currency    string
	Account     string // empty when every account is included
	Points      []SeriesPoint
}

// DailyTotals returns one aggregate per day of the series, in chronological order
func (s *ReportSeries) DailyTotals() []SeriesTotals {
	totals := make([]SeriesTotals, 0)
	index := make(map[Day]int)
	for _, day := range DayRange(s.From, s.To) {
		index[day] = len(totals)
		totals = append(totals, SeriesTotals{Day: day})
	}
	for _, p := range s.Points {
		i, ok := index[p.Day]
		if !ok {
			continue
		}
		if !p.Available() {
			totals[i].Unavailable++
			continue
		}
		totals[i].Invested = totals[i].Invested.Add(p.Invested)
		totals[i].MarketValue = totals[i].MarketValue.Add(p.MarketValue.Decimal)
		totals[i].Gain = totals[i].Gain.Add(p.Gain.Decimal)
	}
	return totals
}

// ForAccount returns a copy of the series restricted to one account; an empty account keeps every point
func (s *ReportSeries) ForAccount(account string) *ReportSeries {
	out := *s
	if account == "" {
		return &out
	}
	out.Account = account
	out.Points = make([]SeriesPoint, 0)
	for _, p := range s.Points {
		if p.Account == account {
			out.Points = append(out.Points, p)
		}
	}
	return &out
}
