package fund

import (
	"sort"

	"github.com/bobmcallan/growthfund/internal/common"
	"github.com/bobmcallan/growthfund/internal/models"
)

// Sub-score component names stored in ScoreDetail.
const (
	ComponentNetIncomeGrowth = "net_income_growth"
	ComponentRevenueGrowth   = "revenue_growth"
	ComponentMarketCap       = "market_cap"
	ComponentFutureGrowth    = "future_growth"
	ComponentMomentum        = "momentum"
	ComponentValuation       = "valuation"
)

// Scorer computes pool-relative scores.
type Scorer struct {
	cfg common.ScoringConfig
}

// NewScorer creates a Scorer.
func NewScorer(cfg common.ScoringConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// BaseRaw returns the unnormalised base components. Undefined growth is 0.
func (s *Scorer) BaseRaw(stock *models.StockRecord) map[string]float64 {
	raw := map[string]float64{
		ComponentNetIncomeGrowth: 0,
		ComponentRevenueGrowth:   0,
		ComponentMarketCap:       stock.MarketCap(),
	}
	if f := stock.Financials; f != nil {
		if g, ok := GrowthRate(f.NetIncomes, s.cfg.BaseGrowthYears); ok {
			raw[ComponentNetIncomeGrowth] = g
		}
		if g, ok := GrowthRate(f.Revenues, s.cfg.BaseGrowthYears); ok {
			raw[ComponentRevenueGrowth] = g
		}
	}
	return raw
}

// PotentialRaw returns the unnormalised potential components. Valuation is
// (2 - stockPE/indexPE) * 50, and 0 when either P/E is unusable.
func (s *Scorer) PotentialRaw(stock *models.StockRecord, indexPE float64) map[string]float64 {
	raw := map[string]float64{
		ComponentFutureGrowth: 0,
		ComponentMomentum:     0,
		ComponentValuation:    0,
	}
	if stock.Financials == nil || stock.MarketData == nil {
		return raw
	}
	if g, ok := GrowthRate(stock.Financials.NetIncomes, s.cfg.PotentialGrowthYears); ok {
		raw[ComponentFutureGrowth] = g
	}
	if m, ok := stock.MarketData.Momentum(); ok {
		raw[ComponentMomentum] = m
	}
	if pe := stock.PERatio(); pe > 0 && indexPE > 0 {
		raw[ComponentValuation] = (2 - pe/indexPE) * 50
	}
	return raw
}

// ScoreBase scores the pool and returns it ranked by base score.
func (s *Scorer) ScoreBase(pool []*models.StockRecord) []*models.StockRecord {
	weights := []component{
		{ComponentNetIncomeGrowth, s.cfg.BaseNetIncomeGrowth},
		{ComponentRevenueGrowth, s.cfg.BaseRevenueGrowth},
		{ComponentMarketCap, s.cfg.BaseMarketCap},
	}
	raws := make([]map[string]float64, len(pool))
	for i, st := range pool {
		raws[i] = s.BaseRaw(st)
	}
	scores, details := weigh(raws, weights)
	for i, st := range pool {
		st.BaseScore = models.Float64(scores[i])
		st.BaseDetail = details[i]
	}
	return Rank(pool, func(st *models.StockRecord) *float64 { return st.BaseScore })
}

// ScorePotential scores the pool against the index P/E and returns it
// ranked by potential score.
func (s *Scorer) ScorePotential(pool []*models.StockRecord, indexPE float64) []*models.StockRecord {
	weights := []component{
		{ComponentFutureGrowth, s.cfg.PotentialNetIncomeGrowth},
		{ComponentMomentum, s.cfg.PotentialMomentum},
		{ComponentValuation, s.cfg.PotentialValuation},
	}
	raws := make([]map[string]float64, len(pool))
	for i, st := range pool {
		raws[i] = s.PotentialRaw(st, indexPE)
	}
	scores, details := weigh(raws, weights)
	for i, st := range pool {
		st.PotentialScore = models.Float64(scores[i])
		st.PotentialDetail = details[i]
	}
	return Rank(pool, func(st *models.StockRecord) *float64 { return st.PotentialScore })
}

type component struct {
	name   string
	weight float64
}

// weigh normalises each component across the pool and combines them in a
// fixed order so sums are reproducible.
func weigh(raws []map[string]float64, weights []component) ([]float64, []*models.ScoreDetail) {
	scores := make([]float64, len(raws))
	details := make([]*models.ScoreDetail, len(raws))
	for i, raw := range raws {
		details[i] = &models.ScoreDetail{Raw: raw, Normalized: make(map[string]float64, len(raw))}
	}
	for _, c := range weights {
		column := make([]float64, len(raws))
		for i, raw := range raws {
			column[i] = raw[c.name]
		}
		for i, n := range Normalize(column) {
			details[i].Normalized[c.name] = n
			scores[i] += n * c.weight
		}
	}
	return scores, details
}

// Rank returns a copy of stocks ordered by score descending. Ties and
// missing scores keep their input order, missing scores last.
func Rank(stocks []*models.StockRecord, score func(*models.StockRecord) *float64) []*models.StockRecord {
	out := make([]*models.StockRecord, len(stocks))
	copy(out, stocks)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := score(out[i]), score(out[j])
		if a == nil || b == nil {
			return a != nil && b == nil
		}
		return *a > *b
	})
	return out
}
