package query

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/simaogato/pricesnap/internal/domain"
)

// Documents are plain maps so that the gRPC Struct messages and the HTTP JSON bodies share one shape.
// Decimals are rendered as strings and unknown values as nil.

func nullable(d decimal.NullDecimal) interface{} {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

// ReportDocument renders a report view
func ReportDocument(view *ReportView) map[string]interface{} {
	lines := make([]interface{}, 0, len(view.Report.Lines))
	for _, line := range view.Report.Lines {
		var priceDay interface{}
		if line.PriceDay != "" {
			priceDay = line.PriceDay.String()
		}
		lines = append(lines, map[string]interface{}{
			"account":         line.Account,
			"asset_symbol":    line.AssetSymbol,
			"provider_id":     line.ProviderID,
			"holdings":        line.Holdings.String(),
			"price":           nullable(line.Price),
			"price_day":       priceDay,
			"market_value":    nullable(line.MarketValue),
			"cost_basis":      line.CostBasis.String(),
			"unrealized_gain": nullable(line.UnrealizedGain),
			"status":          string(line.Status),
		})
	}

	return map[string]interface{}{
		"report_date":  view.Report.ReportDate.String(),
		"generated_at": view.Report.GeneratedAt.UTC().Format(time.RFC3339),
		"currency":     view.Report.Currency,
		"account":      view.Account,
		"lines":        lines,
		"totals": map[string]interface{}{
			"market_value":    view.Totals.MarketValue.String(),
			"cost_basis":      view.Totals.CostBasis.String(),
			"unrealized_gain": view.Totals.UnrealizedGain.String(),
			"unavailable":     view.Totals.Unavailable,
		},
	}
}

// SnapshotsDocument renders the snapshots of one provider identifier
func SnapshotsDocument(providerID string, snapshots []*domain.PriceSnapshot) map[string]interface{} {
	items := make([]interface{}, 0, len(snapshots))
	for _, s := range snapshots {
		items = append(items, map[string]interface{}{
			"day":         s.Day.String(),
			"price":       s.Price.String(),
			"currency":    s.Currency,
			"source":      string(s.Source),
			"captured_at": s.CapturedAt.UTC().Format(time.RFC3339),
		})
	}
	return map[string]interface{}{
		"provider_id": providerID,
		"snapshots":   items,
	}
}

// SeriesDocument renders a valuation series as one entry per day with its totals and points
func SeriesDocument(series *domain.ReportSeries) map[string]interface{} {
	byDay := make(map[domain.Day][]interface{})
	for _, p := range series.Points {
		var priceDay interface{}
		if p.PriceDay != "" {
			priceDay = p.PriceDay.String()
		}
		byDay[p.Day] = append(byDay[p.Day], map[string]interface{}{
			"account":      p.Account,
			"asset_symbol": p.AssetSymbol,
			"provider_id":  p.ProviderID,
			"holdings":     p.Holdings.String(),
			"price":        nullable(p.Price),
			"price_day":    priceDay,
			"market_value": nullable(p.MarketValue),
			"bought":       p.Bought.String(),
			"invested":     p.Invested.String(),
			"gain":         nullable(p.Gain),
			"status":       string(p.Status),
		})
	}

	days := make([]interface{}, 0)
	for _, totals := range series.DailyTotals() {
		points := byDay[totals.Day]
		if points == nil {
			points = make([]interface{}, 0)
		}
		days = append(days, map[string]interface{}{
			"day":    totals.Day.String(),
			"points": points,
			"totals": map[string]interface{}{
				"invested":     totals.Invested.String(),
				"market_value": totals.MarketValue.String(),
				"gain":         totals.Gain.String(),
				"unavailable":  totals.Unavailable,
			},
		})
	}

	return map[string]interface{}{
		"from":         series.From.String(),
		"to":           series.To.String(),
		"generated_at": series.GeneratedAt.UTC().Format(time.RFC3339),
		"currency":     series.Currency,
		"account":      series.Account,
		"days":         days,
	}
}
