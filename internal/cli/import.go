package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
)

type importCmd struct {
	ledger string
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "imports a ledger export into the store" }
func (*importCmd) Usage() string {
	return `pricesnap import [-ledger <export.csv>]

Trims the banner and footer rows of the export (LEDGER_HEAD_SKIP,
LEDGER_TAIL_SKIP), parses every operation and stores the new ones.
Operations already stored are recognized by their dedup hash and skipped.

When LEDGER_CLEAN_OUTPUT is set, a sanitized copy without account
identifiers is written there.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.ledger, "ledger", "", "Path to the ledger CSV export (defaults to LEDGER_CSV)")
}

func (c *importCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := setup()
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	path := c.ledger
	if path == "" {
		if err := a.cfg.RequireLedger(); err != nil {
			return fail(err)
		}
		path = a.cfg.Ledger.Path
	}

	imp, err := a.importer()
	if err != nil {
		return fail(err)
	}
	result, err := imp.Import(ctx, path)
	if err != nil {
		return fail(err)
	}

	fmt.Fprintf(stdout, "imported %d transaction(s), %d new\n", len(result.Transactions), result.Persisted)
	for _, w := range result.Warnings {
		fmt.Fprintf(stdout, "  - %s\n", w)
	}
	return subcommands.ExitSuccess
}

