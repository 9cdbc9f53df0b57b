package models

import (
	"sort"
)

// FinancialRecord holds annual statement figures keyed by fiscal year.
type FinancialRecord struct {
	Symbol             string          `json:"symbol"`
	Revenues           map[int]float64 `json:"revenues"`
	NetIncomes         map[int]float64 `json:"net_incomes"`
	OperatingIncomes   map[int]float64 `json:"operating_incomes"`
	OperatingCashFlows map[int]float64 `json:"operating_cash_flows"`
	TotalDebt          float64         `json:"total_debt"`
	TotalEquity        float64         `json:"total_equity"`
	FiscalDates        []string        `json:"fiscal_dates,omitempty"` // statement period ends, most recent first

	// Optional snapshot some providers return with statements
	MarketCap    float64 `json:"market_cap,omitempty"`
	CurrentPrice float64 `json:"current_price,omitempty"`
	PERatio      float64 `json:"pe_ratio,omitempty"`
}

// NewFinancialRecord returns a record with initialised year maps.
func NewFinancialRecord(symbol string) *FinancialRecord {
	return &FinancialRecord{
		Symbol:             symbol,
		Revenues:           make(map[int]float64),
		NetIncomes:         make(map[int]float64),
		OperatingIncomes:   make(map[int]float64),
		OperatingCashFlows: make(map[int]float64),
	}
}

// DebtToEquity returns total debt over equity. It is undefined when equity
// is not positive.
func (f *FinancialRecord) DebtToEquity() (float64, bool) {
	if f.TotalEquity <= 0 {
		return 0, false
	}
	return f.TotalDebt / f.TotalEquity, true
}

// YearsDesc returns the keys of m, most recent first.
func YearsDesc(m map[int]float64) []int {
	years := make([]int, 0, len(m))
	for y := range m {
		years = append(years, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	return years
}

// Recent returns up to n values of m, most recent year first.
func Recent(m map[int]float64, n int) []float64 {
	years := YearsDesc(m)
	if len(years) > n {
		years = years[:n]
	}
	values := make([]float64, len(years))
	for i, y := range years {
		values[i] = m[y]
	}
	return values
}

// ProfitableYears reports whether the n most recent net income figures are
// all positive. Fewer than n years fails.
func (f *FinancialRecord) ProfitableYears(n int) bool {
	if len(f.NetIncomes) < n {
		return false
	}
	for _, v := range Recent(f.NetIncomes, n) {
		if v <= 0 {
			return false
		}
	}
	return true
}

// OperatingProfitYears reports whether at least required of the total most
// recent operating income figures are positive. Fewer than total years fails.
func (f *FinancialRecord) OperatingProfitYears(required, total int) bool {
	if len(f.OperatingIncomes) < total {
		return false
	}
	positive := 0
	for _, v := range Recent(f.OperatingIncomes, total) {
		if v > 0 {
			positive++
		}
	}
	return positive >= required
}

// PositiveCashFlow reports whether operating cash flow was positive in more
// than half of the available years.
func (f *FinancialRecord) PositiveCashFlow() bool {
	if len(f.OperatingCashFlows) == 0 {
		return false
	}
	positive := 0
	for _, v := range f.OperatingCashFlows {
		if v > 0 {
			positive++
		}
	}
	return float64(positive)/float64(len(f.OperatingCashFlows)) > 0.5
}

// Clone returns a deep copy.
func (f *FinancialRecord) Clone() *FinancialRecord {
	if f == nil {
		return nil
	}
	c := *f
	c.Revenues = cloneYears(f.Revenues)
	c.NetIncomes = cloneYears(f.NetIncomes)
	c.OperatingIncomes = cloneYears(f.OperatingIncomes)
	c.OperatingCashFlows = cloneYears(f.OperatingCashFlows)
	c.FiscalDates = append([]string(nil), f.FiscalDates...)
	return &c
}

func cloneYears(m map[int]float64) map[int]float64 {
	out := make(map[int]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MarketSnapshot holds pricing data for a symbol.
type MarketSnapshot struct {
	Symbol       string             `json:"symbol"`
	Name         string             `json:"name"`
	MarketCap    float64            `json:"market_cap"`
	CurrentPrice float64            `json:"current_price"`
	PERatio      float64            `json:"pe_ratio,omitempty"` // 0 when unknown
	PriceHistory map[string]float64 `json:"price_history"`      // YYYY-MM-DD to close
}

// Momentum is the percent change from the oldest recorded price to the
// current price. Undefined with fewer than two points or a non-positive
// oldest price.
func (m *MarketSnapshot) Momentum() (float64, bool) {
	if len(m.PriceHistory) < 2 {
		return 0, false
	}
	oldest := ""
	for d := range m.PriceHistory {
		if oldest == "" || d < oldest {
			oldest = d
		}
	}
	old := m.PriceHistory[oldest]
	if old <= 0 {
		return 0, false
	}
	return (m.CurrentPrice - old) / old * 100, true
}

// Clone returns a deep copy.
func (m *MarketSnapshot) Clone() *MarketSnapshot {
	if m == nil {
		return nil
	}
	c := *m
	c.PriceHistory = make(map[string]float64, len(m.PriceHistory))
	for k, v := range m.PriceHistory {
		c.PriceHistory[k] = v
	}
	return &c
}

// QuarterAmount is one quarterly statement figure.
type QuarterAmount struct {
	FiscalDate string  `json:"fiscal_date"` // YYYY-MM-DD
	Amount     float64 `json:"amount"`
}

// QuarterlyFinancials holds quarterly series, most recent quarter first.
type QuarterlyFinancials struct {
	Symbol             string          `json:"symbol"`
	Revenues           []QuarterAmount `json:"revenues"`
	NetIncomes         []QuarterAmount `json:"net_incomes"`
	OperatingIncomes   []QuarterAmount `json:"operating_incomes"`
	OperatingCashFlows []QuarterAmount `json:"operating_cash_flows"`
	TotalDebt          float64         `json:"total_debt"`
	TotalEquity        float64         `json:"total_equity"`
}

// LTM holds trailing-twelve-month totals.
type LTM struct {
	Year             int      `json:"year"`
	Revenue          float64  `json:"revenue"`
	NetIncome        float64  `json:"net_income"`
	OperatingIncome  float64  `json:"operating_income"`
	OperatingCash    float64  `json:"operating_cash_flow"`
	QuartersUsed     []string `json:"quarters_used"`
	HasOperatingData bool     `json:"has_operating_data"`
	HasCashFlowData  bool     `json:"has_cash_flow_data"`
}
