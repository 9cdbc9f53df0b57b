package fund

import (
	"github.com/bobmcallan/growthfund/internal/common"
	"github.com/bobmcallan/growthfund/internal/models"
)

// Selection holds both ranked pools and the chosen sleeves.
type Selection struct {
	RankedBase      []*models.StockRecord
	RankedPotential []*models.StockRecord
	Base            []*models.StockRecord
	Potential       []*models.StockRecord
	IndexPE         float64
}

// EligibilityCounts tallies a pool against the eligibility rules.
type EligibilityCounts struct {
	Total     int
	Base      int
	Potential int
	Rejected  int
}

// CheckEligibility re-evaluates both rule sets on every stock.
func CheckEligibility(stocks []*models.StockRecord, rules common.EligibilityConfig) EligibilityCounts {
	c := EligibilityCounts{Total: len(stocks)}
	for _, st := range stocks {
		base := st.CheckBaseEligibility(rules)
		potential := st.CheckPotentialEligibility(rules)
		if base {
			c.Base++
		}
		if potential {
			c.Potential++
		}
		if !base && !potential {
			c.Rejected++
		}
	}
	return c
}

// PoolPE is the mean of the positive P/E ratios in stocks.
func PoolPE(stocks []*models.StockRecord) (float64, bool) {
	values := make([]float64, len(stocks))
	for i, st := range stocks {
		values[i] = st.PERatio()
	}
	return MeanPositive(values)
}

// IndexPEFunc resolves the benchmark P/E for a potential pool.
type IndexPEFunc func(pool []*models.StockRecord) (float64, error)

// Select scores basePool and takes the base sleeve, then scores
// potentialPool without the chosen base symbols and takes the potential
// sleeve. Every pooled stock has its scores cleared first.
func (s *Scorer) Select(basePool, potentialPool []*models.StockRecord, cfg common.FundConfig, indexPE IndexPEFunc) (*Selection, error) {
	for _, st := range basePool {
		st.ResetScores()
	}
	for _, st := range potentialPool {
		st.ResetScores()
	}

	sel := &Selection{}
	sel.RankedBase = s.ScoreBase(basePool)
	sel.Base = SelectTopK(sel.RankedBase, cfg.BaseCount)

	pool := Exclude(potentialPool, sel.Base)
	if indexPE != nil {
		pe, err := indexPE(pool)
		if err != nil {
			return nil, err
		}
		sel.IndexPE = pe
	}
	sel.RankedPotential = s.ScorePotential(pool, sel.IndexPE)
	sel.Potential = SelectTopK(sel.RankedPotential, cfg.PotentialCount)
	return sel, nil
}
