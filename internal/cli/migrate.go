package cli

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/simaogato/pricesnap/internal/adapter/repository/sqlstore"
)

type migrateCmd struct{}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "applies the pending database migrations" }
func (*migrateCmd) Usage() string {
	return `pricesnap migrate

Creates or upgrades the ledger, snapshot, report and run tables of the
configured store (DB_DRIVER=sqlite or postgres). Every other command
migrates on start as well, so this is only needed to prepare a store.
`
}

func (*migrateCmd) SetFlags(*flag.FlagSet) {}

func (*migrateCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := setup()
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	version, err := sqlstore.MigrationVersion(a.db)
	if err != nil {
		return fail(err)
	}
	fmt.Fprintf(stdout, "%s store at schema version %d\n", a.cfg.Database.Driver, version)
	return subcommands.ExitSuccess
}
