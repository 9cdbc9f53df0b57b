package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/subcommands"

	"github.com/bobmcallan/growthfund/internal/app"
	"github.com/bobmcallan/growthfund/internal/common"
	"github.com/bobmcallan/growthfund/internal/models"
	"github.com/bobmcallan/growthfund/internal/report"
)

// runFlags are shared by build and update.
type runFlags struct {
	configPath   string
	market       string
	quarter      string
	year         int
	dryRun       bool
	allowInvalid bool
	refresh      bool
	quiet        bool
}

func (r *runFlags) register(f *flag.FlagSet) {
	f.StringVar(&r.configPath, "config", "", "Config file (defaults to GROWTHFUND_CONFIG, then growthfund.toml next to the binary)")
	f.StringVar(&r.market, "market", "", "Market to build: SP500 or TASE125 (defaults to config market)")
	f.StringVar(&r.quarter, "quarter", "", "Fund quarter Q1-Q4 (defaults to config, then the current quarter)")
	f.IntVar(&r.year, "year", 0, "Fund year (defaults to config, then the current year)")
	f.BoolVar(&r.dryRun, "dry-run", false, "Compute the fund without writing artifacts")
	f.BoolVar(&r.allowInvalid, "allow-invalid", false, "Exit successfully even when the fund fails validation")
	f.BoolVar(&r.refresh, "refresh", false, "Ignore cached records and fetch everything again")
	f.BoolVar(&r.quiet, "q", false, "Do not print the startup banner")
}

// open initializes the app and applies the flag overrides to its config.
func (r *runFlags) open() (*app.App, error) {
	a, err := app.NewApp(r.configPath)
	if err != nil {
		return nil, err
	}
	if r.refresh {
		a.Config.Storage.UseCache = false
	}
	if !r.quiet {
		common.PrintBanner(a.Config, a.Logger)
	}
	return a, nil
}

// resolve returns the market and period, with flags overriding config.
func (r *runFlags) resolve(cfg *common.Config, now time.Time) (models.Market, common.Period, error) {
	id := r.market
	if id == "" {
		id = cfg.Market
	}
	market, ok := models.LookupMarket(strings.ToUpper(id))
	if !ok {
		return models.Market{}, common.Period{}, fmt.Errorf("%w: unknown market %q, want one of %v", common.ErrConfiguration, id, models.MarketIDs())
	}
	quarter := r.quarter
	if quarter == "" {
		quarter = cfg.Fund.Quarter
	}
	year := r.year
	if year == 0 {
		year = cfg.Fund.Year
	}
	p, err := common.ResolvePeriod(quarter, year, now)
	if err != nil {
		return models.Market{}, common.Period{}, err
	}
	return market, p, nil
}

// status maps a finished run to an exit status. Violations fail the run
// unless allowInvalid is set.
func status(violations []string, allowInvalid bool) subcommands.ExitStatus {
	if len(violations) > 0 && !allowInvalid {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return subcommands.ExitFailure
}

// printFund writes a short fund summary.
func printFund(w io.Writer, f *models.Fund, currency string, violations []string, artifacts []string) {
	fmt.Fprintf(w, "\n%s\n", f.Name)
	for i, p := range f.Positions {
		fmt.Fprintf(w, "%2d. %-10s %-9s %5.1f%%  %3d shares  %s\n",
			i+1, p.Stock.Symbol, p.Type, p.Weight*100, p.SharesPerUnit,
			report.FormatMoney(p.ValuePerUnit(), currency))
	}
	fmt.Fprintf(w, "Minimum cost per unit: %s\n", report.FormatMoney(f.MinimumCost, currency))
	for _, v := range violations {
		fmt.Fprintf(w, "INVALID: %s\n", v)
	}
	for _, a := range artifacts {
		fmt.Fprintf(w, "Wrote %s\n", a)
	}
}

func printFailures(w io.Writer, l *models.FailureLog) {
	if l == nil {
		return
	}
	fmt.Fprintf(w, "Symbols: %s\n", l.Summary())
}
