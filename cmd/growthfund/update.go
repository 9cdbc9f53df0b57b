package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"

	"github.com/bobmcallan/growthfund/internal/services/quarterly"
)

type updateCmd struct {
	runFlags
}

func (*updateCmd) Name() string     { return "update" }
func (*updateCmd) Synopsis() string { return "rescore last quarter's candidates" }
func (*updateCmd) Usage() string {
	return `growthfund update [-market SP500|TASE125] [-quarter Qn] [-year YYYY] [-dry-run] [-allow-invalid]

  Refreshes the previous period's candidates with trailing-twelve-month
  figures, rescores them and writes the new fund with a comparison.
`
}

func (c *updateCmd) SetFlags(f *flag.FlagSet) { c.register(f) }

func (c *updateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
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

	res, err := a.Updater.Update(ctx, quarterly.Request{Market: market.ID, Period: period, DryRun: c.dryRun})
	if err != nil {
		return fail(err)
	}
	printFailures(os.Stdout, res.Failures)
	fmt.Fprintf(os.Stdout, "Updated from %s: %d added, %d removed, %d retained\n",
		res.PreviousDoc.FundName, len(res.Diff.Added), len(res.Diff.Removed), len(res.Diff.Retained))
	printFund(os.Stdout, res.Fund, market.Currency, res.Violations, res.Artifacts)
	return status(res.Violations, c.allowInvalid)
}
