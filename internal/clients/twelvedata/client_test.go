package twelvedata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/growthfund/internal/common"
	"github.com/bobmcallan/growthfund/internal/governor"
)

// route keys are path plus the date param when present
type mockAPI struct {
	mu     sync.Mutex
	routes map[string]string
	calls  []string
}

func (m *mockAPI) handler(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Path
	if d := r.URL.Query().Get("date"); d != "" {
		key += "@" + d
	}
	if p := r.URL.Query().Get("period"); p == "quarterly" {
		key += "#q"
	}
	m.mu.Lock()
	m.calls = append(m.calls, key)
	body, ok := m.routes[key]
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(governor.HeaderCreditsUsed, "100")
	w.Header().Set(governor.HeaderCreditsLeft, "1500")
	if !ok {
		w.Write([]byte(`{"code": 400, "message": "**symbol** not found", "status": "error"}`))
		return
	}
	w.Write([]byte(body))
}

func newTestClient(t *testing.T, routes map[string]string) (*Client, *mockAPI) {
	t.Helper()
	api := &mockAPI{routes: routes}
	srv := httptest.NewServer(http.HandlerFunc(api.handler))
	t.Cleanup(srv.Close)

	cfg := governor.DefaultConfig()
	cfg.CreditsPerMinute = 100000
	cfg.MinInterval = 0
	gov := governor.New(cfg, governor.WithName(Name))

	c := NewClient("test-key", WithBaseURL(srv.URL), WithGovernor(gov))
	c.now = func() time.Time { return time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC) }
	return c, api
}

const incomeAnnual = `{"income_statement": [
	{"fiscal_date": "2023-12-31", "sales": 1200, "net_income": 150, "operating_income": null, "pretax_income": 180, "ebitda": 260},
	{"fiscal_date": "2022-12-31", "sales": 1100, "net_income": 120, "operating_income": 170},
	{"fiscal_date": "2021-12-31", "sales": 1000, "net_income": 100, "operating_income": null, "pretax_income": null, "ebitda": 140}
]}`

func TestFetchFinancials_OperatingFallbacksAndExtension(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		"/income_statement": incomeAnnual,
		"/balance_sheet": `{"balance_sheet": [{"fiscal_date": "2023-12-31",
			"liabilities": {"non_current_liabilities": {"long_term_debt": 300}},
			"shareholders_equity": {"total_shareholders_equity": null, "common_stock_equity": 900}}]}`,
		"/cash_flow": `{"cash_flow": [{"fiscal_date": "2023-12-31", "operating_activities": {"operating_cash_flow": 210}}]}`,
	})

	f, err := c.FetchFinancials(context.Background(), "AAPL", 5)
	require.NoError(t, err)

	assert.Equal(t, 1200.0, f.Revenues[2023])
	assert.Equal(t, 180.0, f.OperatingIncomes[2023], "pretax fallback")
	assert.Equal(t, 170.0, f.OperatingIncomes[2022])
	assert.Equal(t, 140.0, f.OperatingIncomes[2021], "EBITDA fallback")
	assert.Equal(t, 300.0, f.TotalDebt)
	assert.Equal(t, 900.0, f.TotalEquity, "common stock equity fallback")
	assert.Equal(t, 210.0, f.OperatingCashFlows[2023])

	// 2024-12-31 has passed by 2025-02-01 without statements
	assert.Equal(t, []string{"2024-12-31", "2023-12-31", "2022-12-31", "2021-12-31"}, f.FiscalDates)

	_, stocks := c.Governor().Usage()
	assert.Equal(t, 1, stocks)
}

func TestFetchFinancials_DegradesWithoutBalanceSheet(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{"/income_statement": incomeAnnual})

	f, err := c.FetchFinancials(context.Background(), "AAPL", 2)
	require.NoError(t, err)
	assert.Len(t, f.Revenues, 2)
	assert.Zero(t, f.TotalEquity)
	assert.Empty(t, f.OperatingCashFlows)
}

func TestFetchFinancials_UnknownSymbol(t *testing.T) {
	c, _ := newTestClient(t, nil)

	_, err := c.FetchFinancials(context.Background(), "NOPE", 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNotFound))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Contains(t, apiErr.Message, "not found")
}

func TestFetchFinancials_CarriesValuationsAndSkipsNulls(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		"/income_statement": `{"income_statement": [
			{"fiscal_date": "2023-12-31", "sales": 1200, "net_income": null, "operating_income": 200},
			{"fiscal_date": "2022-12-31", "sales": null, "net_income": 120, "operating_income": 170}
		]}`,
		"/statistics": `{"statistics": {"valuations_metrics": {"market_capitalization": 3400000000000, "trailing_pe": 36.2}}}`,
	})

	f, err := c.FetchFinancials(context.Background(), "AAPL", 5)
	require.NoError(t, err)

	assert.Equal(t, 3400000000000.0, f.MarketCap)
	assert.Equal(t, 36.2, f.PERatio)

	assert.Equal(t, 1200.0, f.Revenues[2023])
	_, ok := f.Revenues[2022]
	assert.False(t, ok, "null sales must not become a zero year")
	_, ok = f.NetIncomes[2023]
	assert.False(t, ok, "null net income must not become a zero year")
	assert.Equal(t, 120.0, f.NetIncomes[2022])
}

func TestFetchBoth_SingleStatisticsCall(t *testing.T) {
	c, api := newTestClient(t, map[string]string{
		"/income_statement": incomeAnnual,
		"/quote":            `{"symbol": "AAPL", "name": "Apple Inc", "close": "228.50"}`,
		"/statistics":       `{"statistics": {"valuations_metrics": {"market_capitalization": 3400000000000, "trailing_pe": 36.2}}}`,
	})

	f, m, err := c.FetchBoth(context.Background(), "AAPL", 3)
	require.NoError(t, err)
	assert.Equal(t, f.MarketCap, m.MarketCap)
	assert.Equal(t, 36.2, m.PERatio)

	stats := 0
	for _, call := range api.calls {
		if call == "/statistics" {
			stats++
		}
	}
	assert.Equal(t, 1, stats)
}

func TestExtendFiscalDates(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, []string{"2025-03-31", "2024-03-31"}, extendFiscalDates([]string{"2024-03-31"}, now))
	assert.Equal(t, []string{"2024-09-30"}, extendFiscalDates([]string{"2024-09-30"}, now), "next year end not reached")
	assert.Empty(t, extendFiscalDates(nil, now))
}

func TestFetchMarketData_TASEConvertsAgorot(t *testing.T) {
	c, api := newTestClient(t, map[string]string{
		"/quote":      `{"symbol": "TEVA", "name": "Teva Pharmaceutical", "close": "6523.0"}`,
		"/statistics": `{"statistics": {"valuations_metrics": {"market_capitalization": 7400000000000, "trailing_pe": 21.3}}}`,
		// 2024-12-31 has no close; the 2024-12-30 fallback does
		"/eod@2024-12-30": `{"symbol": "TEVA", "datetime": "2024-12-30", "close": "8100.0"}`,
		"/eod@2023-12-31": `{"symbol": "TEVA", "datetime": "2023-12-31", "close": "3800.0"}`,
	})

	m, err := c.FetchMarketData(context.Background(), "TEVA.TA", []string{"2024-12-31", "2023-12-31"})
	require.NoError(t, err)

	assert.Equal(t, "Teva Pharmaceutical", m.Name)
	assert.InDelta(t, 65.23, m.CurrentPrice, 1e-9)
	assert.InDelta(t, 74000000000.0, m.MarketCap, 1e-3)
	assert.Equal(t, 21.3, m.PERatio)
	assert.InDelta(t, 81.0, m.PriceHistory["2024-12-31"], 1e-9)
	assert.InDelta(t, 38.0, m.PriceHistory["2023-12-31"], 1e-9)

	assert.Contains(t, api.calls, "/eod@2024-12-31")
	assert.Contains(t, api.calls, "/eod@2024-12-30")
	assert.NotContains(t, api.calls, "/eod@2024-12-29")
}

func TestFetchMarketData_FallbackGivesUp(t *testing.T) {
	c, api := newTestClient(t, map[string]string{
		"/quote": `{"symbol": "AAPL", "name": "Apple Inc", "close": "228.50"}`,
	})

	m, err := c.FetchMarketData(context.Background(), "AAPL", []string{"2024-09-30"})
	require.NoError(t, err)
	assert.Equal(t, 228.5, m.CurrentPrice)
	assert.Empty(t, m.PriceHistory)

	eods := 0
	for _, call := range api.calls {
		if len(call) > 4 && call[:4] == "/eod" {
			eods++
		}
	}
	assert.Equal(t, 4, eods, "fiscal date plus three prior days")
}

func TestAuthenticate_ConfiguresPlan(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		"/api_usage": `{"timestamp": "2025-01-02 10:00:00", "current_usage": 12, "plan_limit": 1597, "plan_category": "pro"}`,
	})
	gov := governor.New(governor.Config{MinInterval: 0, CreditsPerStock: 300, SafetyFraction: 0.65})
	c.gov = gov

	require.NoError(t, c.Authenticate(context.Background()))
	cfg := gov.Config()
	assert.Equal(t, 1597, cfg.CreditsPerMinute)
	assert.Equal(t, 3, cfg.MaxStocksPerMinute)
}

func TestListUniverse(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		"/stocks": `{"data": [
			{"symbol": "TEVA", "name": "Teva Pharmaceutical", "exchange": "TASE", "type": "Common Stock"},
			{"symbol": "1081124", "name": "Some Security", "exchange": "TASE"},
			{"symbol": "LUMI", "name": "", "exchange": "TASE"}
		]}`,
	})

	got, err := c.ListUniverse(context.Background(), "TASE125")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "LUMI", got[1].Name)

	_, err = c.ListUniverse(context.Background(), "SP500")
	assert.True(t, errors.Is(err, common.ErrNotSupported))
}

func TestFetchBenchmarkPE(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		"/statistics": `{"statistics": {"valuations_metrics": {"trailing_pe": 25.1}}}`,
	})

	pe, ok, err := c.FetchBenchmarkPE(context.Background(), "SP500")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 25.1, pe)

	_, ok, err = c.FetchBenchmarkPE(context.Background(), "TASE125")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFetchQuarterlyFinancials(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		"/income_statement#q": `{"income_statement": [
			{"fiscal_date": "2024-12-31", "sales": 400, "net_income": 50, "operating_income": 70},
			{"fiscal_date": "2024-09-30", "sales": 380, "net_income": 45, "operating_income": null},
			{"fiscal_date": "2024-06-30", "sales": null, "net_income": null, "operating_income": 65}
		]}`,
		"/cash_flow#q": `{"cash_flow": [{"fiscal_date": "2024-12-31", "operating_activities": {"operating_cash_flow": 60}}]}`,
	})

	q, err := c.FetchQuarterlyFinancials(context.Background(), "AAPL")
	require.NoError(t, err)
	require.Len(t, q.Revenues, 2)
	assert.Equal(t, "2024-12-31", q.Revenues[0].FiscalDate)
	assert.Len(t, q.NetIncomes, 2, "null quarters are skipped")
	assert.Len(t, q.OperatingIncomes, 2)
	assert.Len(t, q.OperatingCashFlows, 1)
}

func TestRateLimitIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cfg := governor.DefaultConfig()
	cfg.CreditsPerMinute = 100000
	cfg.MinInterval = 0
	cfg.MaxRetries = 0
	c := NewClient("test-key", WithBaseURL(srv.URL), WithGovernor(governor.New(cfg)))

	_, err := c.FetchFinancials(context.Background(), "AAPL", 5)
	require.Error(t, err)
	assert.True(t, common.IsFatal(err))
}
