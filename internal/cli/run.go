package cli

import (
	"context"
	"flag"
	"strings"

	"github.com/google/subcommands"

	"github.com/simaogato/pricesnap/internal/adapter/render"
	"github.com/simaogato/pricesnap/internal/domain"
	"github.com/simaogato/pricesnap/internal/usecase/pipeline"
)

type runCmd struct {
	ledger string
	date   string
	plain  bool
	style  string
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "runs import, mapping, backfill, fetch and report in order" }
func (*runCmd) Usage() string {
	return `pricesnap run [-ledger <export.csv>] [-date YYYY-MM-DD] [-plain]

Runs the full pipeline once and prints the run summary followed by the
report. Backfill and fetch failures only degrade the run; a ledger that
cannot be imported aborts it.

Exit status: 0 when the run succeeded or degraded, 1 when a stage was
fatal, 2 for usage or configuration errors.
`
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.ledger, "ledger", "", "Path to the ledger CSV export (defaults to LEDGER_CSV)")
	f.StringVar(&c.date, "date", "", "Report date (YYYY-MM-DD), defaults to today (UTC)")
	f.BoolVar(&c.plain, "plain", false, "Print raw markdown instead of rendering it for the terminal")
	f.StringVar(&c.style, "style", "", "Terminal style (dark, light, notty); detected when empty")
}

func (c *runCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	var date domain.Day
	if strings.TrimSpace(c.date) != "" {
		var err error
		if date, err = domain.ParseDay(strings.TrimSpace(c.date)); err != nil {
			return fail(&domain.ConfigError{Key: "-date", Err: err})
		}
	}

	a, err := setup()
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	if c.ledger != "" {
		a.cfg.Ledger.Path = c.ledger
	}
	if err := a.cfg.RequireLedger(); err != nil {
		return fail(err)
	}
	if err := a.cfg.RequireCoins(); err != nil {
		return fail(err)
	}

	service, err := a.pipeline(ctx)
	if err != nil {
		return fail(err)
	}

	result := service.Run(ctx, a.cfg.Ledger.Path, date)
	md := render.SummaryMarkdown(result.Summary)
	if result.Report != nil {
		md += "\n" + render.ReportMarkdown(result.Report)
	}
	printMarkdown(md, c.plain, c.style)

	return subcommands.ExitStatus(pipeline.ExitCode(result.Summary.Status))
}
