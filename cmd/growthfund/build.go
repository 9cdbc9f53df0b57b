package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"

	"github.com/bobmcallan/growthfund/internal/services/build"
)

type buildCmd struct {
	runFlags
}

func (*buildCmd) Name() string     { return "build" }
func (*buildCmd) Synopsis() string { return "build a fund from the full index universe" }
func (*buildCmd) Usage() string {
	return `growthfund build [-market SP500|TASE125] [-quarter Qn] [-year YYYY] [-dry-run] [-refresh] [-allow-invalid]

  Scores every index constituent and composes the ten-position fund.
`
}

func (c *buildCmd) SetFlags(f *flag.FlagSet) { c.register(f) }

func (c *buildCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := c.open()
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	market, period, err := c.resolve(a.Config, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}

	res, err := a.Builder.Build(ctx, build.Request{Market: market.ID, Period: period, DryRun: c.dryRun})
	if err != nil {
		return fail(err)
	}
	printFailures(os.Stdout, res.Failures)
	printFund(os.Stdout, res.Fund, market.Currency, res.Violations, res.Artifacts)
	return status(res.Violations, c.allowInvalid)
}
