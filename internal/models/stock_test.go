package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/growthfund/internal/common"
)

func yearsOf(start int, values ...float64) map[int]float64 {
	m := make(map[int]float64, len(values))
	for i, v := range values {
		m[start+i] = v
	}
	return m
}

func eligibleFinancials() *FinancialRecord {
	f := NewFinancialRecord("AAA")
	f.Revenues = yearsOf(2020, 10, 11, 12, 13, 14)
	f.NetIncomes = yearsOf(2020, 1, 1, 1, 1, 1)
	// most recent year negative: 4 of 5 positive
	f.OperatingIncomes = yearsOf(2020, 1, 1, 1, 1, -1)
	f.OperatingCashFlows = yearsOf(2022, 1, 1, -1)
	f.TotalDebt = 50
	f.TotalEquity = 100
	return f
}

func TestBaseEligibility_Scenario(t *testing.T) {
	rules := common.NewDefaultConfig().Eligibility
	s := &StockRecord{Symbol: "AAA", Financials: eligibleFinancials()}

	assert.True(t, s.CheckBaseEligibility(rules))
	assert.True(t, s.BaseEligible)

	s.Financials.NetIncomes[2021] = -1
	assert.False(t, s.CheckBaseEligibility(rules))
	assert.False(t, s.BaseEligible)
}

func TestBaseEligibility_Rules(t *testing.T) {
	rules := common.NewDefaultConfig().Eligibility

	t.Run("too few operating income years", func(t *testing.T) {
		f := eligibleFinancials()
		delete(f.OperatingIncomes, 2020)
		assert.False(t, baseEligible(f, rules))
	})
	t.Run("two negative operating years", func(t *testing.T) {
		f := eligibleFinancials()
		f.OperatingIncomes[2023] = -5
		assert.False(t, baseEligible(f, rules))
	})
	t.Run("cash flow exactly half positive", func(t *testing.T) {
		f := eligibleFinancials()
		f.OperatingCashFlows = yearsOf(2022, 1, -1)
		assert.False(t, baseEligible(f, rules))
	})
	t.Run("no cash flow data", func(t *testing.T) {
		f := eligibleFinancials()
		f.OperatingCashFlows = map[int]float64{}
		assert.False(t, baseEligible(f, rules))
	})
	t.Run("leverage above limit", func(t *testing.T) {
		f := eligibleFinancials()
		f.TotalDebt = 61
		assert.False(t, baseEligible(f, rules))
	})
	t.Run("undefined leverage passes", func(t *testing.T) {
		f := eligibleFinancials()
		f.TotalDebt = 1e9
		f.TotalEquity = 0
		assert.True(t, baseEligible(f, rules))
	})
	t.Run("only most recent five years count", func(t *testing.T) {
		f := eligibleFinancials()
		f.NetIncomes[2015] = -100
		assert.True(t, baseEligible(f, rules))
	})
}

func TestPotentialEligibility(t *testing.T) {
	rules := common.NewDefaultConfig().Eligibility

	s := &StockRecord{Financials: NewFinancialRecord("BBB")}
	s.Financials.Revenues = yearsOf(2023, 5, 8)
	s.Financials.NetIncomes = yearsOf(2023, 1, 2)
	assert.True(t, s.CheckPotentialEligibility(rules))

	// an older loss does not matter
	s.Financials.NetIncomes[2022] = -3
	assert.True(t, s.CheckPotentialEligibility(rules))

	s.Financials.NetIncomes[2024] = -1
	assert.False(t, s.CheckPotentialEligibility(rules))

	s.Financials = nil
	assert.False(t, s.CheckPotentialEligibility(rules))
}

func TestDebtToEquity(t *testing.T) {
	f := NewFinancialRecord("X")
	_, ok := f.DebtToEquity()
	assert.False(t, ok)

	f.TotalDebt, f.TotalEquity = 30, 60
	de, ok := f.DebtToEquity()
	require.True(t, ok)
	assert.InDelta(t, 0.5, de, 1e-9)
}

func TestMomentum(t *testing.T) {
	m := &MarketSnapshot{CurrentPrice: 150, PriceHistory: map[string]float64{
		"2023-12-31": 100,
		"2024-12-31": 120,
		"2025-06-01": 150,
	}}
	mom, ok := m.Momentum()
	require.True(t, ok)
	assert.InDelta(t, 50.0, mom, 1e-9)

	m.PriceHistory = map[string]float64{"2024-12-31": 120}
	_, ok = m.Momentum()
	assert.False(t, ok)

	m.PriceHistory = map[string]float64{"2023-12-31": 0, "2024-12-31": 120}
	_, ok = m.Momentum()
	assert.False(t, ok)
}

func TestRescored_LeavesOriginalUntouched(t *testing.T) {
	s := &StockRecord{
		Symbol:         "AAA",
		Financials:     eligibleFinancials(),
		MarketData:     &MarketSnapshot{CurrentPrice: 10, PriceHistory: map[string]float64{"2024-01-01": 9}},
		BaseScore:      Float64(80),
		PotentialScore: Float64(40),
		BaseDetail:     &ScoreDetail{Raw: map[string]float64{"x": 1}},
	}

	c := s.Rescored()
	assert.Nil(t, c.BaseScore)
	assert.Nil(t, c.PotentialScore)
	assert.Nil(t, c.BaseDetail)

	c.Financials.Revenues[2030] = 1
	c.MarketData.PriceHistory["2030-01-01"] = 1

	require.NotNil(t, s.BaseScore)
	assert.Equal(t, 80.0, *s.BaseScore)
	assert.NotContains(t, s.Financials.Revenues, 2030)
	assert.NotContains(t, s.MarketData.PriceHistory, "2030-01-01")
}

func TestFailureLogSummary(t *testing.T) {
	var l FailureLog
	l.Success()
	l.Success()
	l.Add("not_found", "ZZZ", "Zed", "404")
	l.Add("data_quality", "YYY", "Why", "no revenue")
	l.Add("not_found", "XXX", "Ex", "404")

	assert.Equal(t, map[string]int{"not_found": 2, "data_quality": 1}, l.Counts())
	assert.Equal(t, "processed=2 failed=3 (data_quality=1, not_found=2)", l.Summary())
}

func TestLookupMarket(t *testing.T) {
	m, ok := LookupMarket("tase125")
	require.True(t, ok)
	assert.Equal(t, "ILS", m.Currency)
	assert.True(t, m.Secondary)

	_, ok = LookupMarket("NASDAQ")
	assert.False(t, ok)
	assert.Equal(t, []string{"SP500", "TASE125"}, MarketIDs())
}
