package models

import (
	"github.com/bobmcallan/growthfund/internal/common"
)

// ScoreDetail records raw and normalised sub-scores keyed by component name.
type ScoreDetail struct {
	Raw        map[string]float64 `json:"raw"`
	Normalized map[string]float64 `json:"normalized"`
}

// StockRecord is a symbol with its statements, pricing and scores.
// Records are persisted per symbol and rescored only through ResetScores
// or Rescored.
type StockRecord struct {
	Symbol     string           `json:"symbol"`
	Name       string           `json:"name"`
	Market     string           `json:"market"`
	Financials *FinancialRecord `json:"financials,omitempty"`
	MarketData *MarketSnapshot  `json:"market_data,omitempty"`

	BaseScore       *float64     `json:"base_score,omitempty"`
	PotentialScore  *float64     `json:"potential_score,omitempty"`
	BaseDetail      *ScoreDetail `json:"base_detail,omitempty"`
	PotentialDetail *ScoreDetail `json:"potential_detail,omitempty"`

	BaseEligible      bool `json:"base_eligible"`
	PotentialEligible bool `json:"potential_eligible"`
}

// CurrentPrice prefers market data over the statement snapshot.
func (s *StockRecord) CurrentPrice() float64 {
	if s.MarketData != nil {
		return s.MarketData.CurrentPrice
	}
	if s.Financials != nil {
		return s.Financials.CurrentPrice
	}
	return 0
}

// MarketCap prefers market data over the statement snapshot.
func (s *StockRecord) MarketCap() float64 {
	if s.MarketData != nil {
		return s.MarketData.MarketCap
	}
	if s.Financials != nil {
		return s.Financials.MarketCap
	}
	return 0
}

// PERatio prefers market data over the statement snapshot. 0 means unknown.
func (s *StockRecord) PERatio() float64 {
	if s.MarketData != nil && s.MarketData.PERatio != 0 {
		return s.MarketData.PERatio
	}
	if s.Financials != nil {
		return s.Financials.PERatio
	}
	return 0
}

// CheckBaseEligibility applies the base rules and records the result.
func (s *StockRecord) CheckBaseEligibility(rules common.EligibilityConfig) bool {
	s.BaseEligible = baseEligible(s.Financials, rules)
	return s.BaseEligible
}

func baseEligible(f *FinancialRecord, rules common.EligibilityConfig) bool {
	if f == nil {
		return false
	}
	if !f.ProfitableYears(rules.BaseNetIncomeYears) {
		return false
	}
	if !f.OperatingProfitYears(rules.BaseOperatingIncomeMinPos, rules.BaseOperatingIncomeYears) {
		return false
	}
	if !f.PositiveCashFlow() {
		return false
	}
	if de, ok := f.DebtToEquity(); ok && de > rules.MaxDebtToEquity {
		return false
	}
	return true
}

// CheckPotentialEligibility applies the potential rules and records the result.
func (s *StockRecord) CheckPotentialEligibility(rules common.EligibilityConfig) bool {
	f := s.Financials
	s.PotentialEligible = f != nil &&
		f.ProfitableYears(rules.PotentialNetIncomeYears) &&
		len(f.Revenues) >= rules.MinHistoryYears &&
		len(f.NetIncomes) >= rules.MinHistoryYears
	return s.PotentialEligible
}

// ResetScores clears every score and breakdown.
func (s *StockRecord) ResetScores() {
	s.BaseScore = nil
	s.PotentialScore = nil
	s.BaseDetail = nil
	s.PotentialDetail = nil
}

// Rescored returns a deep copy with scores cleared, leaving s untouched.
func (s *StockRecord) Rescored() *StockRecord {
	c := *s
	c.Financials = s.Financials.Clone()
	c.MarketData = s.MarketData.Clone()
	c.ResetScores()
	return &c
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 {
	return &v
}
