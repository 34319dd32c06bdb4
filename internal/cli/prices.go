package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
)

type backfillCmd struct {
	ledger string
}

func (*backfillCmd) Name() string     { return "backfill" }
func (*backfillCmd) Synopsis() string { return "fills the gaps of the daily price history" }
func (*backfillCmd) Usage() string {
	return `pricesnap backfill [-ledger <export.csv>]

For every mapped asset of the ledger, finds the days of the last
BACKFILL_DAYS days (ending yesterday, UTC) that have no stored price and
requests only that span from the provider. Existing days are never
overwritten. Without -ledger, the stored transactions are used.
`
}

func (c *backfillCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.ledger, "ledger", "", "Path to the ledger CSV export (defaults to LEDGER_CSV, then the store)")
}

func (c *backfillCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := setup()
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	_, mapping, err := a.mapping(ctx, c.ledger)
	if err != nil {
		return fail(err)
	}
	provider, err := a.provider(ctx)
	if err != nil {
		return fail(err)
	}

	service := a.backfill(provider, a.pacer())
	from, to := service.Window()
	fmt.Fprintf(stdout, "backfill window %s..%s for %d asset(s)\n", from, to, len(mapping.ProviderIDs()))
	printOutcome(service.Backfill(ctx, mapping.ProviderIDs()))
	return subcommands.ExitSuccess
}

type fetchCmd struct {
	ledger string
}

func (*fetchCmd) Name() string     { return "fetch" }
func (*fetchCmd) Synopsis() string { return "records today's spot price of every mapped asset" }
func (*fetchCmd) Usage() string {
	return `pricesnap fetch [-ledger <export.csv>]

Requests the current price of every mapped asset in batches of
PROVIDER_BATCH_SIZE and stores one snapshot per asset for today (UTC).
An existing snapshot for today is replaced or kept according to
SNAPSHOT_CONFLICT. Without -ledger, the stored transactions are used.
`
}

func (c *fetchCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.ledger, "ledger", "", "Path to the ledger CSV export (defaults to LEDGER_CSV, then the store)")
}

func (c *fetchCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := setup()
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	_, mapping, err := a.mapping(ctx, c.ledger)
	if err != nil {
		return fail(err)
	}
	provider, err := a.provider(ctx)
	if err != nil {
		return fail(err)
	}

	printOutcome(a.fetcher(provider, a.pacer()).Fetch(ctx, mapping.ProviderIDs()))
	return subcommands.ExitSuccess
}
