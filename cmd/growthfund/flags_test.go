package main

import (
	"bytes"
	"flag"
	"testing"
	"time"

	"github.com/google/subcommands"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/growthfund/internal/common"
	"github.com/bobmcallan/growthfund/internal/models"
)

func parse(t *testing.T, args ...string) *runFlags {
	t.Helper()
	r := &runFlags{}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	r.register(fs)
	require.NoError(t, fs.Parse(args))
	return r
}

func TestResolve_FlagsOverrideConfig(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Fund.Quarter = "Q3"
	cfg.Fund.Year = 2023

	r := parse(t, "-market", "tase125", "-quarter", "Q1", "-year", "2025")
	market, p, err := r.resolve(cfg, time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "TASE125", market.ID)
	assert.Equal(t, "Q1_2025", p.String())
}

func TestResolve_FallsBackToConfigThenClock(t *testing.T) {
	cfg := common.NewDefaultConfig()
	now := time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC)

	market, p, err := parse(t).resolve(cfg, now)
	require.NoError(t, err)
	assert.Equal(t, "SP500", market.ID)
	assert.Equal(t, "Q3_2024", p.String())

	cfg.Fund.Quarter = "Q4"
	_, p, err = parse(t).resolve(cfg, now)
	require.NoError(t, err)
	assert.Equal(t, "Q4_2024", p.String())
}

func TestResolve_RejectsBadInput(t *testing.T) {
	cfg := common.NewDefaultConfig()
	now := time.Now()

	_, _, err := parse(t, "-market", "FTSE").resolve(cfg, now)
	assert.ErrorIs(t, err, common.ErrConfiguration)

	_, _, err = parse(t, "-quarter", "Q5").resolve(cfg, now)
	assert.Error(t, err)

	_, _, err = parse(t, "-year", "1999").resolve(cfg, now)
	assert.ErrorIs(t, err, common.ErrConfiguration)
}

func TestStatus_Violations(t *testing.T) {
	assert.Equal(t, subcommands.ExitSuccess, status(nil, false))
	assert.Equal(t, subcommands.ExitFailure, status([]string{"weights sum to 0.98"}, false))
	assert.Equal(t, subcommands.ExitSuccess, status([]string{"weights sum to 0.98"}, true))
}

func TestPrintFund(t *testing.T) {
	stock := &models.StockRecord{
		Symbol:     "AAPL",
		MarketData: &models.MarketSnapshot{CurrentPrice: 150},
	}
	f := &models.Fund{
		Name:        "Fund_10_SP500_Q1_2025",
		Positions:   []models.FundPosition{{Stock: stock, Weight: 0.18, SharesPerUnit: 2, Type: models.PositionBase}},
		MinimumCost: 300,
	}
	var buf bytes.Buffer
	printFund(&buf, f, "USD", []string{"fund has 1 positions, want 10"}, []string{"Fund_Docs/SP500/Q1_2025/Fund_10_SP500_Q1_2025.md"})

	out := buf.String()
	assert.Contains(t, out, "Fund_10_SP500_Q1_2025")
	assert.Contains(t, out, "AAPL")
	assert.Contains(t, out, "18.0%")
	assert.Contains(t, out, "$300.00")
	assert.Contains(t, out, "INVALID: fund has 1 positions, want 10")
	assert.Contains(t, out, "Wrote Fund_Docs/SP500/Q1_2025/")
}
