package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/google/subcommands"

	"github.com/simaogato/pricesnap/internal/adapter/coingecko"
	"github.com/simaogato/pricesnap/internal/domain"
)

type searchCmd struct {
	query string
	limit int
}

func (*searchCmd) Name() string     { return "search" }
func (*searchCmd) Synopsis() string { return "looks up provider ids to fill COINS_MAP" }
func (*searchCmd) Usage() string {
	return `pricesnap search -q <query> [-limit 10]

Searches the provider catalogue by id, symbol or name and prints the
best matches with their market cap rank, to help write COINS_MAP pairs
such as xrp:ripple.
`
}

func (c *searchCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.query, "q", "", "Term to search for (e.g. xrp or ripple)")
	f.IntVar(&c.limit, "limit", 10, "Maximum number of matches to print")
}

func (c *searchCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	query := strings.TrimSpace(c.query)
	if query == "" {
		return fail(&domain.ConfigError{Key: "-q", Err: coingecko.ErrEmptyQuery})
	}
	if c.limit <= 0 {
		return fail(&domain.ConfigError{Key: "-limit", Err: errors.New("must be positive")})
	}

	a, err := setup()
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	provider, err := a.provider(ctx)
	if err != nil {
		return fail(err)
	}

	var coins []coingecko.Coin
	err = a.pacer().Do(ctx, "search", func(ctx context.Context) error {
		var err error
		coins, err = provider.SearchCoins(ctx, query)
		return err
	})
	if err != nil {
		return fail(err)
	}

	if len(coins) == 0 {
		fmt.Fprintln(stdout, "no match")
		return subcommands.ExitSuccess
	}
	if len(coins) > c.limit {
		coins = coins[:c.limit]
	}
	fmt.Fprintf(stdout, "matches for %q (top %d):\n", query, len(coins))
	for _, coin := range coins {
		rank := "-"
		if coin.MarketCapRank > 0 {
			rank = fmt.Sprint(coin.MarketCapRank)
		}
		fmt.Fprintf(stdout, "- id=%s  symbol=%s  name=%s  rank=%s\n", coin.ID, coin.Symbol, coin.Name, rank)
	}
	return subcommands.ExitSuccess
}
