package render

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/simaogato/pricesnap/internal/domain"
)

func sampleReport() *domain.Report {
	return &domain.Report{
		ReportDate:  "2024-03-15",
		GeneratedAt: time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC),
		Currency:    "USD",
		Lines: []domain.ReportLine{
			{
				Account:        "cold",
				AssetSymbol:    "BTC",
				ProviderID:     "bitcoin",
				Holdings:       decimal.RequireFromString("0.5"),
				Price:          decimal.NewNullDecimal(decimal.NewFromInt(50000)),
				PriceDay:       "2024-03-15",
				MarketValue:    decimal.NewNullDecimal(decimal.NewFromInt(25000)),
				CostBasis:      decimal.RequireFromString("20000.004"),
				UnrealizedGain: decimal.NewNullDecimal(decimal.RequireFromString("4999.996")),
				Status:         domain.ValuationPriced,
			},
			{Account: "hot", AssetSymbol: "XYZ", Holdings: decimal.NewFromInt(10), Status: domain.ValuationUnmapped},
		},
	}
}

func toHTML(t *testing.T, markdown string) string {
	t.Helper()
	var buf bytes.Buffer
	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	require.NoError(t, md.Convert([]byte(markdown), &buf))
	return buf.String()
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "$1,234.57", FormatMoney(decimal.RequireFromString("1234.567"), "usd"))
	assert.Equal(t, "-$5.00", FormatMoney(decimal.NewFromInt(-5), "USD"))
	assert.Equal(t, "12.50 ZZZ", FormatMoney(decimal.RequireFromString("12.5"), "zzz"))
}

func TestReportMarkdown(t *testing.T) {
	// Execute
	md := ReportMarkdown(sampleReport())
	html := toHTML(t, md)

	// Assert
	assert.Contains(t, html, "<h1>Portfolio snapshot 2024-03-15</h1>")
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "<td>BTC</td>")
	assert.Contains(t, md, "$25,000.00")
	assert.Contains(t, md, "+$5,000.00")
	assert.Contains(t, md, "| hot | XYZ | 10 | n/a | n/a | n/a | $0.00 | n/a | unmapped |")
	assert.Contains(t, md, "1 line(s) without a market value")
}

func TestSeriesMarkdown(t *testing.T) {
	// Setup
	series := &domain.ReportSeries{
		From:     "2024-03-01",
		To:       "2024-03-02",
		Currency: "USD",
		Points: []domain.SeriesPoint{
			{Day: "2024-03-01", Account: "main", AssetSymbol: "ETH", Holdings: decimal.NewFromInt(2), Invested: decimal.NewFromInt(8000), Status: domain.ValuationNoPrice},
			{
				Day:         "2024-03-02",
				Account:     "main",
				AssetSymbol: "ETH",
				Holdings:    decimal.NewFromInt(2),
				Invested:    decimal.NewFromInt(8000),
				Price:       decimal.NewNullDecimal(decimal.NewFromInt(3000)),
				MarketValue: decimal.NewNullDecimal(decimal.NewFromInt(6000)),
				Gain:        decimal.NewNullDecimal(decimal.NewFromInt(-2000)),
				Status:      domain.ValuationPriced,
			},
		},
	}

	// Execute
	md := SeriesMarkdown(series)
	html := toHTML(t, md)

	// Assert
	assert.Contains(t, html, "<h1>Portfolio series 2024-03-01 to 2024-03-02</h1>")
	assert.Contains(t, html, "<h2>Positions on 2024-03-02</h2>")
	assert.Contains(t, md, "| 2024-03-01 | $0.00 | $0.00 | $0.00 | 1 |")
	assert.Contains(t, md, "| 2024-03-02 | $8,000.00 | $6,000.00 | -$2,000.00 | 0 |")
	assert.Contains(t, md, "| main | ETH | 2 | $3,000.00 | $6,000.00 | $8,000.00 | -$2,000.00 | priced |")
	assert.Equal(t, 1, strings.Count(md, "| main | ETH |"))
}

func TestSummaryMarkdown(t *testing.T) {
	// Setup
	summary := &domain.RunSummary{
		Status:     domain.StageDegraded,
		ReportDate: "2024-03-15",
		Unmapped:   []string{"XYZ"},
		Stages: []domain.StageOutcome{
			{Stage: domain.StageImport, Status: domain.StageSuccess, Duration: 12 * time.Millisecond},
			{Stage: domain.StageBackfill, Status: domain.StageDegraded, Warnings: []domain.Warning{
				{Stage: domain.StageBackfill, ProviderID: "bitcoin", Day: "2024-03-10", Message: "status 429"},
			}},
			{Stage: domain.StageReport, Status: domain.StageFatal, Err: errors.New("compute store: a|b")},
		},
	}

	// Execute
	md := SummaryMarkdown(summary)
	html := toHTML(t, md)

	// Assert
	assert.Contains(t, html, "<h1>Pipeline run: degraded</h1>")
	assert.Contains(t, html, "<h2>Unmapped symbols</h2>")
	assert.Contains(t, html, "<li>XYZ</li>")
	assert.Contains(t, md, "- backfill bitcoin@2024-03-10: status 429")
	assert.Contains(t, md, "compute store: a\\|b")
	assert.Equal(t, 1, strings.Count(md, "| import | success | 12ms | 0 |"))
}

func TestTerminal(t *testing.T) {
	out, err := Terminal(ReportMarkdown(sampleReport()), "notty", 160)

	require.NoError(t, err)
	assert.Contains(t, out, "Portfolio snapshot 2024-03-15")
	assert.Contains(t, out, "BTC")
}
