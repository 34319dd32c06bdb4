package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	"github.com/simaogato/pricesnap/internal/domain"
)

var csvHeader = []string{
	"report_date", "account", "asset_symbol", "provider_id", "holdings", "price", "price_day",
	"market_value", "cost_basis", "unrealized_gain", "status", "currency",
}

func nullable(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

// WriteCSV exports the report lines to path, leaving unknown values empty
func WriteCSV(path string, report *domain.Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}

	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to create report export: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, line := range report.Lines {
		record := []string{
			report.ReportDate.String(),
			line.Account,
			line.AssetSymbol,
			line.ProviderID,
			line.Holdings.String(),
			nullable(line.Price),
			line.PriceDay.String(),
			nullable(line.MarketValue),
			line.CostBasis.String(),
			nullable(line.UnrealizedGain),
			string(line.Status),
			report.Currency,
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write report export: %w", err)
	}
	return f.Close()
}

var seriesHeader = []string{
	"day", "account", "asset_symbol", "provider_id", "holdings", "price", "price_day",
	"market_value", "bought", "invested", "gain", "status", "currency",
}

// WriteSeriesCSV exports one row per point of series to path, leaving unknown values empty
func WriteSeriesCSV(path string, series *domain.ReportSeries) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create series directory: %w", err)
	}

	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to create series export: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(seriesHeader); err != nil {
		return err
	}
	for _, p := range series.Points {
		record := []string{
			p.Day.String(),
			p.Account,
			p.AssetSymbol,
			p.ProviderID,
			p.Holdings.String(),
			nullable(p.Price),
			p.PriceDay.String(),
			nullable(p.MarketValue),
			p.Bought.String(),
			p.Invested.String(),
			nullable(p.Gain),
			string(p.Status),
			series.Currency,
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write series export: %w", err)
	}
	return f.Close()
}
