package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/bobmcallan/growthfund/internal/app"
	"github.com/bobmcallan/growthfund/internal/common"
)

type scheduleCmd struct {
	configPath string
	now        bool
}

func (*scheduleCmd) Name() string     { return "schedule" }
func (*scheduleCmd) Synopsis() string { return "run quarterly updates on the cron schedule" }
func (*scheduleCmd) Usage() string {
	return `growthfund schedule [-now]

  Runs in the foreground and updates every configured market at the start
  of each quarter. Requires scheduler.enabled in the config.
`
}

func (c *scheduleCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "Config file")
	f.BoolVar(&c.now, "now", false, "Run one update pass immediately, then keep the schedule")
}

func (c *scheduleCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := app.NewApp(c.configPath)
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	if !a.Config.Scheduler.Enabled {
		return fail(fmt.Errorf("%w: scheduler.enabled is false", common.ErrConfiguration))
	}
	common.PrintBanner(a.Config, a.Logger)

	s, err := a.StartScheduler(ctx)
	if err != nil {
		return fail(err)
	}
	if c.now {
		s.RunOnce(ctx)
	}
	fmt.Fprintf(os.Stdout, "Next update: %s\n", s.Next().Format("2006-01-02 15:04 MST"))

	<-ctx.Done()
	common.PrintShutdownBanner(a.Logger)
	return subcommands.ExitSuccess
}
