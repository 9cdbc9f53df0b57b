package quarterly

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bobmcallan/growthfund/internal/common"
	"github.com/bobmcallan/growthfund/internal/models"
)

// ltmQuarters is the number of quarters summed into a trailing year.
const ltmQuarters = 4

func sumRecent(series []models.QuarterAmount) (float64, []string, bool) {
	if len(series) < ltmQuarters {
		return 0, nil, false
	}
	var total float64
	dates := make([]string, 0, ltmQuarters)
	for _, q := range series[:ltmQuarters] {
		total += q.Amount
		dates = append(dates, q.FiscalDate)
	}
	return total, dates, true
}

// ComputeLTM sums the four most recent quarters of each series. Revenue
// and net income are required; operating income and cash flow are used
// only when four quarters are present. The LTM year is the calendar year
// of the latest revenue quarter.
func ComputeLTM(q *models.QuarterlyFinancials) (*models.LTM, error) {
	if q == nil {
		return nil, fmt.Errorf("%w: no quarterly statements", common.ErrDataQuality)
	}
	revenue, dates, ok := sumRecent(q.Revenues)
	if !ok {
		return nil, fmt.Errorf("%w: %s has %d revenue quarters, need %d", common.ErrDataQuality, q.Symbol, len(q.Revenues), ltmQuarters)
	}
	netIncome, _, ok := sumRecent(q.NetIncomes)
	if !ok {
		return nil, fmt.Errorf("%w: %s has %d net income quarters, need %d", common.ErrDataQuality, q.Symbol, len(q.NetIncomes), ltmQuarters)
	}

	year, err := strconv.Atoi(strings.SplitN(dates[0], "-", 2)[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %s has unreadable fiscal date %q", common.ErrDataQuality, q.Symbol, dates[0])
	}

	ltm := &models.LTM{
		Year:         year,
		Revenue:      revenue,
		NetIncome:    netIncome,
		QuartersUsed: dates,
	}
	if v, _, ok := sumRecent(q.OperatingIncomes); ok {
		ltm.OperatingIncome = v
		ltm.HasOperatingData = true
	}
	if v, _, ok := sumRecent(q.OperatingCashFlows); ok {
		ltm.OperatingCash = v
		ltm.HasCashFlowData = true
	}
	return ltm, nil
}

// MergeLTM returns a rescored copy of stock with the LTM figures recorded
// as year ltm.Year and the balance sheet replaced by the latest quarter's.
// Fresh pricing, when given, replaces the cached snapshot fields and its
// current price is recorded under today. stock is left untouched.
func MergeLTM(stock *models.StockRecord, ltm *models.LTM, q *models.QuarterlyFinancials, fresh *models.MarketSnapshot, today string) *models.StockRecord {
	out := stock.Rescored()
	if out.Financials == nil {
		out.Financials = models.NewFinancialRecord(stock.Symbol)
	}

	f := out.Financials
	f.Revenues[ltm.Year] = ltm.Revenue
	f.NetIncomes[ltm.Year] = ltm.NetIncome
	if ltm.HasOperatingData {
		f.OperatingIncomes[ltm.Year] = ltm.OperatingIncome
	}
	if ltm.HasCashFlowData {
		f.OperatingCashFlows[ltm.Year] = ltm.OperatingCash
	}
	if q != nil && (q.TotalDebt != 0 || q.TotalEquity != 0) {
		f.TotalDebt = q.TotalDebt
		f.TotalEquity = q.TotalEquity
	}

	if fresh == nil {
		return out
	}
	if out.MarketData == nil {
		out.MarketData = &models.MarketSnapshot{Symbol: fresh.Symbol, Name: stock.Name, PriceHistory: map[string]float64{}}
	}
	md := out.MarketData
	if md.PriceHistory == nil {
		md.PriceHistory = map[string]float64{}
	}
	if fresh.CurrentPrice > 0 {
		md.CurrentPrice = fresh.CurrentPrice
		md.PriceHistory[today] = fresh.CurrentPrice
	}
	if fresh.MarketCap > 0 {
		md.MarketCap = fresh.MarketCap
	}
	if fresh.PERatio > 0 {
		md.PERatio = fresh.PERatio
	}
	return out
}
