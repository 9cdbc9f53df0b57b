package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/bobmcallan/growthfund/internal/app"
	"github.com/bobmcallan/growthfund/internal/models"
	"github.com/bobmcallan/growthfund/internal/router"
)

type sourcesCmd struct {
	configPath string
	check      bool
}

func (*sourcesCmd) Name() string     { return "sources" }
func (*sourcesCmd) Synopsis() string { return "show the data providers per market" }
func (*sourcesCmd) Usage() string {
	return `growthfund sources [-check]

  Prints the provider chosen for each role in each market. With -check the
  providers are logged in, so a pricing fallback shows up.
`
}

func (c *sourcesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "Config file")
	f.BoolVar(&c.check, "check", false, "Log in to each provider")
}

func (c *sourcesCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := app.NewApp(c.configPath)
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	fmt.Fprintf(os.Stdout, "Configured providers: %v\n", a.Router.Names())
	exit := subcommands.ExitSuccess
	for _, id := range models.MarketIDs() {
		resolve := a.Router.Resolve
		if c.check {
			resolve = func(m string) (*router.Sources, error) { return a.Router.Authenticate(ctx, m) }
		}
		src, err := resolve(id)
		if err != nil {
			fmt.Fprintf(os.Stdout, "%-8s unavailable: %v\n", id, err)
			exit = subcommands.ExitFailure
			continue
		}
		fmt.Fprintf(os.Stdout, "%-8s financial=%s pricing=%s\n", id, src.FinancialName, src.PricingName)
	}
	return exit
}
