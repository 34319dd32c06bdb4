package cli

import (
	"context"
	"flag"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/subcommands"

	"github.com/simaogato/pricesnap/internal/adapter/render"
	"github.com/simaogato/pricesnap/internal/domain"
	"github.com/simaogato/pricesnap/internal/usecase/report"
)

// SeriesFileName is the name of the series export written in the report directory
const SeriesFileName = "series.csv"

type reportCmd struct {
	ledger  string
	date    string
	from    string
	to      string
	account string
	plain   bool
	style   string
}

func (*reportCmd) Name() string     { return "report" }
func (*reportCmd) Synopsis() string { return "values the ledger against the stored prices" }
func (*reportCmd) Usage() string {
	return `pricesnap report [-date YYYY-MM-DD | -from YYYY-MM-DD -to YYYY-MM-DD] [-account <name>] [-plain]

Computes holdings, average cost basis, market value and unrealized gain
of every account and asset at the report date, using the latest stored
price on or before that date. The report replaces any stored report of
the same date and is exported to REPORT_DIR/snapshot.csv.

Assets without a mapping or without a price are listed but excluded
from the totals.

With -from or -to, values every position on each day of the range
instead: prices are carried forward from the last stored snapshot,
invested amounts never decrease on sales, and days before the first
known price stay unvalued. -from defaults to the first transaction day
and -to to today. The series is exported to REPORT_DIR/series.csv.
`
}

func (c *reportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.ledger, "ledger", "", "Path to the ledger CSV export (defaults to LEDGER_CSV, then the store)")
	f.StringVar(&c.date, "date", "", "Report date (YYYY-MM-DD), defaults to today (UTC)")
	f.StringVar(&c.from, "from", "", "First day of a daily valuation series (YYYY-MM-DD)")
	f.StringVar(&c.to, "to", "", "Last day of a daily valuation series (YYYY-MM-DD)")
	f.StringVar(&c.account, "account", "", "Only print the lines of this account")
	f.BoolVar(&c.plain, "plain", false, "Print raw markdown instead of rendering it for the terminal")
	f.StringVar(&c.style, "style", "", "Terminal style (dark, light, notty); detected when empty")
}

func optionalFlagDay(name, raw string) (domain.Day, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	day, err := domain.ParseDay(strings.TrimSpace(raw))
	if err != nil {
		return "", &domain.ConfigError{Key: name, Err: err}
	}
	return day, nil
}

func (c *reportCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	date, err := optionalFlagDay("-date", c.date)
	if err != nil {
		return fail(err)
	}
	from, err := optionalFlagDay("-from", c.from)
	if err != nil {
		return fail(err)
	}
	to, err := optionalFlagDay("-to", c.to)
	if err != nil {
		return fail(err)
	}
	series := from != "" || to != ""
	if series && date != "" {
		return fail(&domain.ConfigError{Key: "-date", Err: fmt.Errorf("cannot be combined with -from or -to")})
	}

	a, err := setup()
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	txs, mapping, err := a.mapping(ctx, c.ledger)
	if err != nil {
		return fail(err)
	}

	reporter := a.reporter()
	if series {
		return c.series(ctx, reporter, a.cfg.Report.Dir, txs, mapping.Mapped, from, to)
	}
	if date == "" {
		date = domain.DayOf(reporter.Now().UTC())
	}
	rep, outcome := reporter.Run(ctx, txs, mapping.Mapped, date)
	if outcome.Status == domain.StageFatal {
		return fail(outcome.Err)
	}

	view := &domain.Report{
		ReportDate:  rep.ReportDate,
		GeneratedAt: rep.GeneratedAt,
		Currency:    rep.Currency,
		Lines:       rep.ForAccount(c.account),
	}
	printMarkdown(render.ReportMarkdown(view), c.plain, c.style)
	return subcommands.ExitSuccess
}

func (c *reportCmd) series(ctx context.Context, reporter *report.ReportService, dir string, txs []domain.LedgerTransaction, mapped map[string]string, from, to domain.Day) subcommands.ExitStatus {
	if from == "" {
		from = domain.FirstDay(txs)
	}
	if to == "" {
		to = domain.DayOf(reporter.Now().UTC())
	}

	series, err := reporter.ComputeSeries(ctx, txs, mapped, from, to)
	if err != nil {
		return fail(err)
	}
	if dir != "" {
		path := filepath.Join(dir, SeriesFileName)
		if err := report.WriteSeriesCSV(path, series); err != nil {
			fmt.Fprintf(stderr, "warning: %v\n", err)
		}
	}

	printMarkdown(render.SeriesMarkdown(series.ForAccount(c.account)), c.plain, c.style)
	return subcommands.ExitSuccess
}
