package fund

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/growthfund/internal/common"
	"github.com/bobmcallan/growthfund/internal/models"
)

func stock(symbol, name string, price float64) *models.StockRecord {
	return &models.StockRecord{
		Symbol:     symbol,
		Name:       name,
		Financials: models.NewFinancialRecord(symbol),
		MarketData: &models.MarketSnapshot{Symbol: symbol, Name: name, CurrentPrice: price, MarketCap: price * 1e6},
	}
}

func TestGrowthRate_Property(t *testing.T) {
	series := []map[int]float64{
		{2021: 100, 2022: 150, 2023: 210},
		{2020: 5, 2021: 4, 2022: 3, 2023: 8, 2024: 2},
		{2023: 1, 2024: 3},
	}
	for _, values := range series {
		n := len(values)
		years := models.YearsDesc(values)
		latest, earliest := values[years[0]], values[years[n-1]]

		cagr, ok := GrowthRate(values, n)
		require.True(t, ok)
		lhs := math.Pow(1+cagr/100, float64(n-1))
		assert.InDelta(t, latest/earliest, lhs, 1e-9, "%v", values)
	}
}

func TestGrowthRate_Undefined(t *testing.T) {
	_, ok := GrowthRate(map[int]float64{2023: 1, 2024: 2}, 3)
	assert.False(t, ok, "fewer years than span")

	_, ok = GrowthRate(map[int]float64{2022: 0, 2023: 1, 2024: 2}, 3)
	assert.False(t, ok, "zero start")

	_, ok = GrowthRate(map[int]float64{2022: -4, 2023: 1, 2024: 2}, 3)
	assert.False(t, ok, "negative start")
}

func TestGrowthRate_UsesMostRecentYears(t *testing.T) {
	// 2019 is outside the three-year span
	values := map[int]float64{2019: 1, 2022: 100, 2023: 110, 2024: 121}
	cagr, ok := GrowthRate(values, 3)
	require.True(t, ok)
	assert.InDelta(t, 10.0, cagr, 1e-9)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, []float64{0, 50, 100}, Normalize([]float64{2, 4, 6}))
	assert.Equal(t, []float64{50, 50}, Normalize([]float64{7, 7}))
	assert.Empty(t, Normalize(nil))

	out := Normalize([]float64{-10, 30, 10, 5})
	assert.Equal(t, 0.0, out[0])
	assert.Equal(t, 100.0, out[1])
}

func TestMeanPositive(t *testing.T) {
	m, ok := MeanPositive([]float64{10, 0, -5, 20})
	require.True(t, ok)
	assert.Equal(t, 15.0, m)

	_, ok = MeanPositive([]float64{0, -1})
	assert.False(t, ok)
}

func TestCanonicalCompanyKey(t *testing.T) {
	cases := []struct {
		name, symbol, want string
	}{
		{"Alphabet Inc. Class A", "GOOGL", "ALPHABET"},
		{"Alphabet Inc (Class C)", "GOOG", "ALPHABET"},
		{"Fox Corporation Class B", "FOX", "FOX CORPORATION"},
		{"Berkshire Hathaway Inc.", "BRK.B", "BERKSHIRE HATHAWAY"},
		{"Teva Pharmaceutical Industries Ltd", "TEVA.TA", "TEVA PHARMACEUTICAL INDUSTRIES"},
		{"", "NVDA.US", "NVDA"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanonicalCompanyKey(tc.name, tc.symbol), tc.name)
	}
}

func TestSelectTopK_CollapsesShareClasses(t *testing.T) {
	ranked := []*models.StockRecord{
		stock("GOOGL", "Alphabet Inc. Class A", 1),
		stock("GOOG", "Alphabet Inc. Class C", 1),
		stock("MSFT", "Microsoft Corp", 1),
		stock("FOXA", "Fox Corporation Class A", 1),
		stock("FOX", "Fox Corporation Class B", 1),
		stock("AAPL", "Apple Inc", 1),
	}

	got := SelectTopK(ranked, 3)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"GOOGL", "MSFT", "FOXA"}, symbols(got))

	all := SelectTopK(ranked, 10)
	assert.Equal(t, []string{"GOOGL", "MSFT", "FOXA", "AAPL"}, symbols(all))

	keys := map[string]bool{}
	for _, st := range all {
		k := CanonicalCompanyKey(st.Name, st.Symbol)
		assert.False(t, keys[k], "duplicate key %s", k)
		keys[k] = true
	}
}

func symbols(stocks []*models.StockRecord) []string {
	out := make([]string, len(stocks))
	for i, s := range stocks {
		out[i] = s.Symbol
	}
	return out
}

func TestMinimumUnitCost_Scenario(t *testing.T) {
	a := stock("A", "A Co", 100)
	b := stock("B", "B Co", 50)

	cost, shares := MinimumUnitCost([]Allocation{{a, 0.5}, {b, 0.5}})
	assert.Equal(t, 200.0, cost)
	assert.Equal(t, map[string]int{"A": 1, "B": 2}, shares)
}

func TestMinimumUnitCost_Degenerate(t *testing.T) {
	cost, shares := MinimumUnitCost(nil)
	assert.Zero(t, cost)
	assert.Empty(t, shares)

	cost, shares = MinimumUnitCost([]Allocation{{stock("A", "A", 0), 0.5}})
	assert.Zero(t, cost)
	assert.Empty(t, shares)

	cost, shares = MinimumUnitCost([]Allocation{{stock("A", "A", 10), 0}})
	assert.Zero(t, cost)
	assert.Empty(t, shares)
}

func TestMinimumUnitCost_MinimumOneShare(t *testing.T) {
	// unit cost 1000/0.5 = 2000; C target 2000*0.01 = 20 on a 900 price rounds to 0
	a := stock("A", "A", 1000)
	c := stock("C", "C", 900)
	_, shares := MinimumUnitCost([]Allocation{{a, 0.5}, {c, 0.01}})
	assert.Equal(t, 1, shares["A"])
	assert.Equal(t, 1, shares["C"])
}

func TestMinimumUnitCost_HalfToEven(t *testing.T) {
	// unit cost 100/0.5 = 200; B target 200*0.25 = 50 on 20 = 2.5 -> 2
	a := stock("A", "A", 100)
	b := stock("B", "B", 20)
	_, shares := MinimumUnitCost([]Allocation{{a, 0.5}, {b, 0.25}})
	assert.Equal(t, 2, shares["B"])
}

func tenStocks() ([]*models.StockRecord, []*models.StockRecord) {
	var base, potential []*models.StockRecord
	for i := 0; i < 6; i++ {
		base = append(base, stock(fmt.Sprintf("B%d", i), fmt.Sprintf("Base %d", i), float64(50+i*10)))
	}
	for i := 0; i < 4; i++ {
		potential = append(potential, stock(fmt.Sprintf("P%d", i), fmt.Sprintf("Potential %d", i), float64(20+i)))
	}
	return base, potential
}

func TestCompose_ValidFund(t *testing.T) {
	cfg := common.NewDefaultConfig().Fund
	base, potential := tenStocks()

	f, violations := NewBuilder(cfg).Compose("Fund_10_SP500_Q1_2025", "SP500", common.Period{Quarter: 1, Year: 2025}, base, potential)
	assert.Empty(t, violations)
	require.Len(t, f.Positions, 10)
	assert.Equal(t, "Q1", f.Quarter)
	assert.NotEmpty(t, f.ID)
	assert.InDelta(t, 1.0, f.TotalWeight(), 1e-9)
	assert.Equal(t, models.PositionBase, f.Positions[5].Type)
	assert.Equal(t, models.PositionPotential, f.Positions[6].Type)
	assert.Equal(t, 0.18, f.Positions[0].Weight)

	// highest price (B5 at 100) holds exactly one share
	for _, p := range f.Positions {
		assert.GreaterOrEqual(t, p.SharesPerUnit, 1)
		if p.Stock.Symbol == "B5" {
			assert.Equal(t, 1, p.SharesPerUnit)
		}
	}
	assert.Greater(t, f.MinimumCost, 0.0)
}

func TestCompose_Violations(t *testing.T) {
	cfg := common.NewDefaultConfig().Fund
	base, potential := tenStocks()
	potential[3] = base[0]

	f, violations := NewBuilder(cfg).Compose("x", "SP500", common.Period{Quarter: 1, Year: 2025}, base[:5], potential)
	assert.Len(t, f.Positions, 9)
	assert.Contains(t, violations, "fund has 9 positions, want 10")
	assert.Contains(t, violations, "fund has 5 base positions, want 6")
	assert.Contains(t, violations, "duplicate symbol B0")
	assert.Contains(t, violations, "weights sum to 96.00%, want 100%")
}

func TestScoreBase_WeightsAndRank(t *testing.T) {
	scorer := NewScorer(common.NewDefaultConfig().Scoring)

	hi := stock("HI", "High", 10)
	hi.Financials.NetIncomes = map[int]float64{2022: 100, 2023: 150, 2024: 225}
	hi.Financials.Revenues = map[int]float64{2022: 100, 2023: 110, 2024: 121}
	hi.MarketData.MarketCap = 1000

	lo := stock("LO", "Low", 10)
	lo.Financials.NetIncomes = map[int]float64{2022: 100, 2023: 100, 2024: 100}
	lo.Financials.Revenues = map[int]float64{2022: 100, 2023: 200, 2024: 400}
	lo.MarketData.MarketCap = 500

	ranked := scorer.ScoreBase([]*models.StockRecord{lo, hi})
	require.Len(t, ranked, 2)
	assert.Equal(t, "HI", ranked[0].Symbol)

	// HI tops NI growth and cap, LO tops revenue growth
	assert.InDelta(t, 65.0, *hi.BaseScore, 1e-9)
	assert.InDelta(t, 35.0, *lo.BaseScore, 1e-9)
	assert.InDelta(t, 50.0, hi.BaseDetail.Raw[ComponentNetIncomeGrowth], 1e-9)
	assert.Equal(t, 100.0, hi.BaseDetail.Normalized[ComponentMarketCap])
}

func TestScorePotential_Valuation(t *testing.T) {
	scorer := NewScorer(common.NewDefaultConfig().Scoring)

	cheap := stock("CHEAP", "Cheap", 10)
	cheap.MarketData.PERatio = 10
	dear := stock("DEAR", "Dear", 10)
	dear.MarketData.PERatio = 30

	raw := scorer.PotentialRaw(cheap, 20)
	assert.InDelta(t, 75.0, raw[ComponentValuation], 1e-9)
	assert.InDelta(t, 25.0, scorer.PotentialRaw(dear, 20)[ComponentValuation], 1e-9)
	assert.Zero(t, scorer.PotentialRaw(dear, 0)[ComponentValuation])

	ranked := scorer.ScorePotential([]*models.StockRecord{dear, cheap}, 20)
	assert.Equal(t, "CHEAP", ranked[0].Symbol)
	// only valuation differs: 0.5*50 + 0.3*50 + 0.2*100
	assert.InDelta(t, 60.0, *cheap.PotentialScore, 1e-9)
	assert.InDelta(t, 40.0, *dear.PotentialScore, 1e-9)
}

func TestRank_StableTies(t *testing.T) {
	a, b, c := stock("A", "A", 1), stock("B", "B", 1), stock("C", "C", 1)
	a.BaseScore, b.BaseScore = models.Float64(5), models.Float64(5)
	ranked := Rank([]*models.StockRecord{c, a, b}, func(s *models.StockRecord) *float64 { return s.BaseScore })
	assert.Equal(t, []string{"A", "B", "C"}, symbols(ranked))
}
