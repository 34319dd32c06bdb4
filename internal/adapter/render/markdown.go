package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/shopspring/decimal"

	"github.com/simaogato/pricesnap/internal/domain"
)

// ReportMarkdown renders a report as a markdown document with one table row per line
func ReportMarkdown(report *domain.Report) string {
	var b strings.Builder
	cur := report.Currency

	fmt.Fprintf(&b, "# Portfolio snapshot %s\n\n", report.ReportDate)
	fmt.Fprintf(&b, "Generated %s, values in %s.\n\n", report.GeneratedAt.UTC().Format(time.RFC3339), cur)

	b.WriteString("| Account | Asset | Holdings | Price | Price day | Market value | Cost basis | Unrealized | Status |\n")
	b.WriteString("|---|---|---:|---:|---|---:|---:|---:|---|\n")
	for _, line := range report.Lines {
		priceDay := "n/a"
		if line.PriceDay != "" {
			priceDay = line.PriceDay.String()
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s | %s | %s |\n",
			escapeCell(line.Account),
			escapeCell(line.AssetSymbol),
			line.Holdings.String(),
			formatNullMoney(line.Price, cur),
			priceDay,
			formatNullMoney(line.MarketValue, cur),
			FormatMoney(line.CostBasis, cur),
			signed(line.UnrealizedGain, cur),
			line.Status,
		)
	}

	totals := report.Totals()
	fmt.Fprintf(&b, "\n**Total** market value %s, cost basis %s, unrealized %s.\n",
		FormatMoney(totals.MarketValue, cur),
		FormatMoney(totals.CostBasis, cur),
		signed(decimal.NewNullDecimal(totals.UnrealizedGain), cur),
	)
	if totals.Unavailable > 0 {
		fmt.Fprintf(&b, "\n%d line(s) without a market value are excluded from the totals.\n", totals.Unavailable)
	}
	return b.String()
}

// SeriesMarkdown renders the daily totals of a series, then the positions of its last day
func SeriesMarkdown(series *domain.ReportSeries) string {
	var b strings.Builder
	cur := series.Currency

	fmt.Fprintf(&b, "# Portfolio series %s to %s\n\n", series.From, series.To)
	if series.Account != "" {
		fmt.Fprintf(&b, "Account %s, values in %s.\n\n", escapeCell(series.Account), cur)
	} else {
		fmt.Fprintf(&b, "All accounts, values in %s.\n\n", cur)
	}

	b.WriteString("| Day | Invested | Market value | Gain | Unavailable |\n")
	b.WriteString("|---|---:|---:|---:|---:|\n")
	for _, totals := range series.DailyTotals() {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %d |\n",
			totals.Day,
			FormatMoney(totals.Invested, cur),
			FormatMoney(totals.MarketValue, cur),
			signed(decimal.NewNullDecimal(totals.Gain), cur),
			totals.Unavailable,
		)
	}

	fmt.Fprintf(&b, "\n## Positions on %s\n\n", series.To)
	b.WriteString("| Account | Asset | Holdings | Price | Market value | Invested | Gain | Status |\n")
	b.WriteString("|---|---|---:|---:|---:|---:|---:|---|\n")
	for _, p := range series.Points {
		if p.Day != series.To {
			continue
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s | %s |\n",
			escapeCell(p.Account),
			escapeCell(p.AssetSymbol),
			p.Holdings.String(),
			formatNullMoney(p.Price, cur),
			formatNullMoney(p.MarketValue, cur),
			FormatMoney(p.Invested, cur),
			signed(p.Gain, cur),
			p.Status,
		)
	}
	return b.String()
}

// SummaryMarkdown renders the stage table, unmapped symbols and failed requests of a run
func SummaryMarkdown(summary *domain.RunSummary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Pipeline run: %s\n\n", summary.Status)
	if summary.ReportDate != "" {
		fmt.Fprintf(&b, "Report date %s.\n\n", summary.ReportDate)
	}

	b.WriteString("| Stage | Status | Duration | Warnings | Error |\n")
	b.WriteString("|---|---|---:|---:|---|\n")
	for _, stage := range summary.Stages {
		errText := ""
		if stage.Err != nil {
			errText = escapeCell(stage.Err.Error())
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %d | %s |\n",
			stage.Stage, stage.Status, stage.Duration.Round(time.Millisecond), len(stage.Warnings), errText)
	}

	if len(summary.Unmapped) > 0 {
		b.WriteString("\n## Unmapped symbols\n\n")
		for _, symbol := range summary.Unmapped {
			fmt.Fprintf(&b, "- %s\n", escapeCell(symbol))
		}
	}

	if failed := summary.FailedRequests(); len(failed) > 0 {
		b.WriteString("\n## Failed price requests\n\n")
		for _, w := range failed {
			fmt.Fprintf(&b, "- %s\n", escapeCell(w.String()))
		}
	}
	return b.String()
}

// Terminal renders markdown for a terminal of the given width.
// An empty style selects the style from the terminal background.
func Terminal(markdown, style string, width int) (string, error) {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if style == "" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}

	renderer, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", fmt.Errorf("terminal renderer: %w", err)
	}
	out, err := renderer.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return out, nil
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
