package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/subcommands"

	"github.com/bobmcallan/growthfund/internal/adapter"
	"github.com/bobmcallan/growthfund/internal/app"
	"github.com/bobmcallan/growthfund/internal/interfaces"
	"github.com/bobmcallan/growthfund/internal/models"
)

type compareCmd struct {
	configPath string
	market     string
	with       string
	years      int
}

func (*compareCmd) Name() string     { return "compare" }
func (*compareCmd) Synopsis() string { return "compare one symbol across two providers" }
func (*compareCmd) Usage() string {
	return `growthfund compare -with <provider> [-market SP500|TASE125] <symbol>

  Fetches the symbol from the market's financial source and from the named
  provider, then reports market cap, price and revenue-year differences.
`
}

func (c *compareCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.configPath, "config", "", "Config file")
	f.StringVar(&c.market, "market", "", "Market (defaults to config market)")
	f.StringVar(&c.with, "with", "", "Provider to compare against")
	f.IntVar(&c.years, "years", 0, "Years of history (defaults to eligibility.history_years)")
}

func (c *compareCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 || c.with == "" {
		f.Usage()
		return subcommands.ExitUsageError
	}
	a, err := app.NewApp(c.configPath)
	if err != nil {
		return fail(err)
	}
	defer a.Close()

	id := c.market
	if id == "" {
		id = a.Config.Market
	}
	market, ok := models.LookupMarket(id)
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown market %q\n", id)
		return subcommands.ExitUsageError
	}
	years := c.years
	if years <= 0 {
		years = a.Config.Eligibility.HistoryYears
	}

	src, err := a.Router.Authenticate(ctx, market.ID)
	if err != nil {
		return fail(err)
	}
	other, err := a.Router.Named(c.with)
	if err != nil {
		return fail(err)
	}
	if other.Name() == src.FinancialName {
		return fail(fmt.Errorf("%s is already the financial source for %s", other.Name(), market.ID))
	}
	if err := other.Authenticate(ctx); err != nil {
		return fail(err)
	}

	symbol := adapter.QualifySymbol(strings.ToUpper(f.Arg(0)), market.ID)
	first, err := fetchSide(ctx, src.Financial, src.FinancialName, src.Pricing, src.PricingName, symbol, market.ID, years)
	if err != nil {
		return fail(err)
	}
	second, err := fetchSide(ctx, other, other.Name(), other, other.Name(), symbol, market.ID, years)
	if err != nil {
		return fail(err)
	}

	cmp := adapter.New(a.Logger).CompareSources(symbol, first, second)
	printComparison(os.Stdout, cmp)
	if cmp.MarketCapDiverges || cmp.PriceDiverges || len(cmp.RevenueYearsDiff) > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// fetchSide loads statements and pricing the way a build would, so market
// cap and price come from the pricing snapshot.
func fetchSide(ctx context.Context, fin interfaces.Provider, finName string, pricing interfaces.Provider, pricingName, symbol, market string, years int) (adapter.SourceData, error) {
	d := adapter.SourceData{Source: finName}
	if pricingName != finName {
		d.Source = finName + "+" + pricingName
	}
	var err error
	if pricing == fin {
		d.Financials, d.Market, err = fin.FetchBoth(ctx, adapter.NormalizeSymbol(symbol, market, finName), years)
		return d, err
	}
	d.Financials, err = fin.FetchFinancials(ctx, adapter.NormalizeSymbol(symbol, market, finName), years)
	if err != nil {
		return d, err
	}
	d.Market, err = pricing.FetchMarketData(ctx, adapter.NormalizeSymbol(symbol, market, pricingName), d.Financials.FiscalDates)
	return d, err
}

func printComparison(w io.Writer, c adapter.Comparison) {
	fmt.Fprintf(w, "%s: %s vs %s\n", c.Symbol, c.Sources[0], c.Sources[1])
	diff := func(label string, pct *float64, diverges bool) {
		switch {
		case pct == nil:
			fmt.Fprintf(w, "  %-11s n/a\n", label)
		case diverges:
			fmt.Fprintf(w, "  %-11s %.2f%% DIVERGES\n", label, *pct)
		default:
			fmt.Fprintf(w, "  %-11s %.2f%%\n", label, *pct)
		}
	}
	diff("market cap", c.MarketCapDiffPct, c.MarketCapDiverges)
	diff("price", c.PriceDiffPct, c.PriceDiverges)
	if len(c.RevenueYearsDiff) > 0 {
		fmt.Fprintf(w, "  revenue years only in one source: %v\n", c.RevenueYearsDiff)
	} else {
		fmt.Fprintf(w, "  revenue years match\n")
	}
}
