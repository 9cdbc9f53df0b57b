package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/bobmcallan/growthfund/internal/app"
)

type cacheCmd struct {
	configPath string
	purge      bool
	list       bool
}

func (*cacheCmd) Name() string     { return "cache" }
func (*cacheCmd) Synopsis() string { return "inspect or purge the per-symbol cache" }
func (*cacheCmd) Usage() string {
	return `growthfund cache [-list] [-purge]

  Reports how many stock records are cached. Universe lists are kept on purge.
`
}

func (c *cacheCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "Config file")
	f.BoolVar(&c.list, "list", false, "Print every cached symbol")
	f.BoolVar(&c.purge, "purge", false, "Delete all cached stock records")
}

func (c *cacheCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := app.NewApp(c.configPath)
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	symbols, err := a.Store.ListSymbols(ctx)
	if err != nil {
		return fail(err)
	}
	fmt.Fprintf(os.Stdout, "%d cached records in %s\n", len(symbols), a.Store.DataPath())
	if c.list {
		for _, s := range symbols {
			fmt.Fprintln(os.Stdout, s)
		}
	}
	if c.purge {
		fmt.Fprintf(os.Stdout, "Purged %d records\n", a.Store.PurgeStocks())
	}
	return subcommands.ExitSuccess
}
