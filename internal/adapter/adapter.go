// Package adapter validates and normalizes records returned by any provider
// so the fund pipeline never sees provider-specific shapes.
package adapter

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/bobmcallan/growthfund/internal/common"
	"github.com/bobmcallan/growthfund/internal/models"
)

// Thresholds for validation and cross-source comparison.
const (
	MinHistoryYears           = 2
	SuspiciousDebtToEquity    = 5.0
	MinPricePointsConstituent = 3
	MinPricePointsDirect      = 5
	MarketCapDivergencePct    = 5.0
	PriceDivergencePct        = 2.0
)

// Validation is the outcome of a check. Reasons make the record invalid,
// warnings do not.
type Validation struct {
	Valid    bool
	Reasons  []string
	Warnings []string
}

// Err returns a data-quality error when invalid, nil otherwise.
func (v Validation) Err() error {
	if v.Valid {
		return nil
	}
	return fmt.Errorf("%w: %s", common.ErrDataQuality, strings.Join(v.Reasons, "; "))
}

// Adapter logs validation outcomes with the source that produced the data.
type Adapter struct {
	logger *common.Logger
}

// New creates an Adapter.
func New(logger *common.Logger) *Adapter {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Adapter{logger: logger}
}

// ValidateFinancials checks statement completeness.
func (a *Adapter) ValidateFinancials(f *models.FinancialRecord, source string) Validation {
	v := ValidateFinancials(f)
	a.report(v, symbolOf(f), source, "financial")
	return v
}

// ValidateMarketData checks pricing completeness.
func (a *Adapter) ValidateMarketData(m *models.MarketSnapshot, source string, constituent bool) Validation {
	v := ValidateMarketData(m, constituent)
	sym := ""
	if m != nil {
		sym = m.Symbol
	}
	a.report(v, sym, source, "market")
	return v
}

func (a *Adapter) report(v Validation, symbol, source, kind string) {
	for _, w := range v.Warnings {
		a.logger.Warn().Str("symbol", symbol).Str("source", source).Msg(w)
	}
	if !v.Valid {
		a.logger.Error().Str("symbol", symbol).Str("source", source).
			Strs("reasons", v.Reasons).Msgf("%s data quality issues", kind)
		return
	}
	a.logger.Debug().Str("symbol", symbol).Str("source", source).Msgf("%s data validated", kind)
}

func symbolOf(f *models.FinancialRecord) string {
	if f == nil {
		return ""
	}
	return f.Symbol
}

// ValidateFinancials rejects records without at least two years of positive
// revenue and two years of net income. Extreme leverage is only flagged.
func ValidateFinancials(f *models.FinancialRecord) Validation {
	v := Validation{Valid: true}
	if f == nil {
		v.Valid = false
		v.Reasons = append(v.Reasons, "missing financial record")
		return v
	}

	if len(f.Revenues) == 0 {
		v.Reasons = append(v.Reasons, "missing revenue data")
	} else {
		positive := 0
		for _, r := range f.Revenues {
			if r > 0 {
				positive++
			}
		}
		if positive < MinHistoryYears {
			v.Reasons = append(v.Reasons, fmt.Sprintf("insufficient revenue history: %d positive years, need %d", positive, MinHistoryYears))
		}
	}

	if len(f.NetIncomes) == 0 {
		v.Reasons = append(v.Reasons, "missing net income data")
	} else if len(f.NetIncomes) < MinHistoryYears {
		v.Reasons = append(v.Reasons, fmt.Sprintf("insufficient net income history: %d years, need %d", len(f.NetIncomes), MinHistoryYears))
	}

	if de, ok := f.DebtToEquity(); ok && de > SuspiciousDebtToEquity {
		v.Warnings = append(v.Warnings, fmt.Sprintf("suspicious debt/equity ratio %.1f%%", de*100))
	}

	v.Valid = len(v.Reasons) == 0
	return v
}

// ValidateMarketData rejects non-positive market cap or price and short
// price histories. Index constituents tolerate a missing price and need
// fewer price points.
func ValidateMarketData(m *models.MarketSnapshot, constituent bool) Validation {
	v := Validation{Valid: true}
	if m == nil {
		v.Valid = false
		v.Reasons = append(v.Reasons, "missing market data")
		return v
	}

	if m.MarketCap <= 0 {
		v.Reasons = append(v.Reasons, fmt.Sprintf("invalid market cap: %g", m.MarketCap))
	}

	if m.CurrentPrice <= 0 {
		if constituent {
			v.Warnings = append(v.Warnings, "missing price tolerated for index constituent")
		} else {
			v.Reasons = append(v.Reasons, fmt.Sprintf("invalid current price: %g", m.CurrentPrice))
		}
	}

	need := MinPricePointsDirect
	if constituent {
		need = MinPricePointsConstituent
	}
	if n := len(m.PriceHistory); n < need {
		v.Reasons = append(v.Reasons, fmt.Sprintf("insufficient price history: %d points, need %d", n, need))
	}

	v.Valid = len(v.Reasons) == 0
	return v
}

// BaseSymbol strips a known market suffix (".US", ".TA").
func BaseSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	for _, m := range []models.Market{models.MarketSP500, models.MarketTASE125} {
		if strings.HasSuffix(s, "."+m.Suffix) {
			return strings.TrimSuffix(s, "."+m.Suffix)
		}
	}
	return s
}

// NormalizeSymbol formats a symbol for a provider. US equities use the plain
// ticker everywhere except eodhd, which wants the exchange suffix. Secondary
// market symbols always carry their suffix.
func NormalizeSymbol(symbol, market, provider string) string {
	base := BaseSymbol(symbol)
	m, ok := models.LookupMarket(market)
	if !ok {
		return symbol
	}
	if m.Secondary {
		return base + "." + m.Suffix
	}
	if provider == "eodhd" {
		return base + "." + m.Suffix
	}
	return base
}

// QualifySymbol appends the market suffix to a raw constituent ticker.
func QualifySymbol(symbol, market string) string {
	m, ok := models.LookupMarket(market)
	if !ok {
		return symbol
	}
	return BaseSymbol(symbol) + "." + m.Suffix
}

// CacheKey is a filesystem-safe form of a qualified symbol.
func CacheKey(symbol string) string {
	return strings.ReplaceAll(symbol, ".", "_")
}

// Comparison is a cross-source diff for manual review.
type Comparison struct {
	Symbol            string
	Sources           [2]string
	MarketCapDiffPct  *float64
	PriceDiffPct      *float64
	RevenueYearsDiff  []int
	MarketCapDiverges bool
	PriceDiverges     bool
}

// SourceData is what one provider returned for a symbol.
type SourceData struct {
	Source     string
	Financials *models.FinancialRecord
	Market     *models.MarketSnapshot
}

// marketCap prefers the snapshot and falls back to the statement record.
func (d SourceData) marketCap() float64 {
	if d.Market != nil && d.Market.MarketCap > 0 {
		return d.Market.MarketCap
	}
	if d.Financials != nil {
		return d.Financials.MarketCap
	}
	return 0
}

func (d SourceData) price() float64 {
	if d.Market != nil && d.Market.CurrentPrice > 0 {
		return d.Market.CurrentPrice
	}
	if d.Financials != nil {
		return d.Financials.CurrentPrice
	}
	return 0
}

func (d SourceData) revenues() map[int]float64 {
	if d.Financials == nil {
		return nil
	}
	return d.Financials.Revenues
}

// CompareSources diffs two providers' data for the same symbol.
func (a *Adapter) CompareSources(symbol string, first, second SourceData) Comparison {
	c := CompareSources(symbol, first, second)
	if c.MarketCapDiverges {
		a.logger.Warn().Str("symbol", symbol).Float64("diff_pct", *c.MarketCapDiffPct).
			Msgf("market cap differs between %s and %s", first.Source, second.Source)
	}
	if c.PriceDiverges {
		a.logger.Warn().Str("symbol", symbol).Float64("diff_pct", *c.PriceDiffPct).
			Msgf("price differs between %s and %s", first.Source, second.Source)
	}
	if len(c.RevenueYearsDiff) > 0 {
		a.logger.Info().Str("symbol", symbol).Ints("years", c.RevenueYearsDiff).
			Msgf("revenue years differ between %s and %s", first.Source, second.Source)
	}
	return c
}

// CompareSources is the logging-free form of Adapter.CompareSources.
func CompareSources(symbol string, first, second SourceData) Comparison {
	c := Comparison{Symbol: symbol, Sources: [2]string{first.Source, second.Source}}

	if m1, m2 := first.marketCap(), second.marketCap(); m1 > 0 && m2 > 0 {
		d := math.Abs(m1-m2) / m1 * 100
		c.MarketCapDiffPct = &d
		c.MarketCapDiverges = d > MarketCapDivergencePct
	}
	if p1, p2 := first.price(), second.price(); p1 > 0 && p2 > 0 {
		d := math.Abs(p1-p2) / p1 * 100
		c.PriceDiffPct = &d
		c.PriceDiverges = d > PriceDivergencePct
	}

	r1, r2 := first.revenues(), second.revenues()
	for y := range r1 {
		if _, ok := r2[y]; !ok {
			c.RevenueYearsDiff = append(c.RevenueYearsDiff, y)
		}
	}
	for y := range r2 {
		if _, ok := r1[y]; !ok {
			c.RevenueYearsDiff = append(c.RevenueYearsDiff, y)
		}
	}
	sort.Ints(c.RevenueYearsDiff)
	return c
}
