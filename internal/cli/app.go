// Package cli implements the pricesnap subcommands.
package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"

	"github.com/simaogato/pricesnap/internal/adapter/render"
	"github.com/simaogato/pricesnap/internal/domain"
)

// Register the subcommands.
func Register(c *subcommands.Commander) {
	c.Register(&migrateCmd{}, "store")
	c.Register(&importCmd{}, "store")

	c.Register(&backfillCmd{}, "prices")
	c.Register(&fetchCmd{}, "prices")
	c.Register(&searchCmd{}, "prices")

	c.Register(&reportCmd{}, "pipeline")
	c.Register(&runCmd{}, "pipeline")
	c.Register(&serveCmd{}, "pipeline")
}

// Global flags shared by every subcommand
var configFile = flag.String("config", "", "Path to an optional YAML configuration file; the environment overrides it")
var envFile = flag.String("env-file", ".env", "Path to the dotenv file loaded before the environment; ignored when missing")

var stdout io.Writer = os.Stdout
var stderr io.Writer = os.Stderr

// terminalWidth is the word wrap applied to rendered markdown
const terminalWidth = 120

// fail prints err and maps it to an exit status: configuration errors are usage errors
func fail(err error) subcommands.ExitStatus {
	fmt.Fprintf(stderr, "Error: %v\n", err)
	var cerr *domain.ConfigError
	if errors.As(err, &cerr) {
		return subcommands.ExitUsageError
	}
	return subcommands.ExitFailure
}

// printMarkdown writes md as is when plain, rendered for the terminal otherwise
func printMarkdown(md string, plain bool, style string) {
	if plain {
		fmt.Fprint(stdout, md)
		return
	}
	out, err := render.Terminal(md, style, terminalWidth)
	if err != nil {
		fmt.Fprint(stdout, md)
		return
	}
	fmt.Fprint(stdout, out)
}

// printOutcome writes one line per warning of a stage
func printOutcome(outcome *domain.StageOutcome) {
	fmt.Fprintf(stdout, "%s: %s (%d warning(s))\n", outcome.Stage, outcome.Status, len(outcome.Warnings))
	for _, w := range outcome.Warnings {
		fmt.Fprintf(stdout, "  - %s\n", w)
	}
}
