package eodhd

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bobmcallan/growthfund/internal/common"
)

const fundamentalsResp = `{
	"General": {"Code": "AAPL", "Name": "Apple Inc"},
	"Highlights": {"MarketCapitalization": "3000000000000", "PERatio": 31.5},
	"Financials": {
		"Income_Statement": {
			"yearly": {
				"2024-09-30": {"date": "2024-09-30", "totalRevenue": "391035000000", "netIncome": "93736000000", "operatingIncome": "123216000000"},
				"2023-09-30": {"date": "2023-09-30", "totalRevenue": "383285000000", "netIncome": "96995000000", "operatingIncome": null, "ebitda": "125820000000"},
				"2022-09-30": {"date": "2022-09-30", "totalRevenue": 394328000000, "netIncome": 99803000000, "operatingIncome": 119437000000}
			},
			"quarterly": {
				"2024-12-31": {"date": "2024-12-31", "totalRevenue": "124300000000", "netIncome": "36330000000", "operatingIncome": "42832000000"},
				"2024-09-30": {"date": "2024-09-30", "totalRevenue": "94930000000", "netIncome": "14736000000", "operatingIncome": "29591000000"}
			}
		},
		"Balance_Sheet": {
			"yearly": {
				"2024-09-30": {"shortLongTermDebtTotal": "106629000000", "totalStockholderEquity": "56950000000"},
				"2023-09-30": {"shortLongTermDebtTotal": "111088000000", "totalStockholderEquity": "62146000000"}
			},
			"quarterly": {
				"2024-12-31": {"longTermDebt": "83956000000", "shortTermDebt": "12843000000", "totalStockholderEquity": "66758000000"}
			}
		},
		"Cash_Flow": {
			"yearly": {
				"2024-09-30": {"totalCashFromOperatingActivities": "118254000000"},
				"2023-09-30": {"totalCashFromOperatingActivities": "110543000000"}
			},
			"quarterly": {
				"2024-12-31": {"totalCashFromOperatingActivities": "29935000000"}
			}
		}
	}
}`

func newTestServer(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api_token") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"Unauthenticated"}`))
			return
		}
		body, ok := routes[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`Ticker Not Found.`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchFinancials(t *testing.T) {
	srv := newTestServer(t, map[string]string{"/fundamentals/AAPL.US": fundamentalsResp})
	client := NewClient("test-key", WithBaseURL(srv.URL))

	f, err := client.FetchFinancials(context.Background(), "AAPL.US", 5)
	if err != nil {
		t.Fatalf("FetchFinancials failed: %v", err)
	}

	if len(f.Revenues) != 3 {
		t.Fatalf("expected 3 revenue years, got %d", len(f.Revenues))
	}
	if f.Revenues[2024] != 391035000000 {
		t.Errorf("2024 revenue = %.0f, want 391035000000", f.Revenues[2024])
	}
	if f.Revenues[2022] != 394328000000 {
		t.Errorf("2022 revenue = %.0f, want numeric field parsed", f.Revenues[2022])
	}
	if f.OperatingIncomes[2023] != 125820000000 {
		t.Errorf("2023 operating income = %.0f, want EBITDA fallback", f.OperatingIncomes[2023])
	}
	if f.TotalDebt != 106629000000 || f.TotalEquity != 56950000000 {
		t.Errorf("balance sheet = %.0f/%.0f, want latest year", f.TotalDebt, f.TotalEquity)
	}
	if len(f.FiscalDates) != 3 || f.FiscalDates[0] != "2024-09-30" {
		t.Errorf("fiscal dates = %v, want most recent first", f.FiscalDates)
	}
	if f.PERatio != 31.5 {
		t.Errorf("PE = %.2f, want 31.5", f.PERatio)
	}
}

func TestFetchFinancials_YearLimit(t *testing.T) {
	srv := newTestServer(t, map[string]string{"/fundamentals/AAPL.US": fundamentalsResp})
	client := NewClient("test-key", WithBaseURL(srv.URL))

	f, err := client.FetchFinancials(context.Background(), "AAPL.US", 2)
	if err != nil {
		t.Fatalf("FetchFinancials failed: %v", err)
	}
	if _, ok := f.Revenues[2022]; ok {
		t.Errorf("2022 should be outside a two-year request")
	}
}

func TestFetchFinancials_NotFound(t *testing.T) {
	srv := newTestServer(t, nil)
	client := NewClient("test-key", WithBaseURL(srv.URL))

	_, err := client.FetchFinancials(context.Background(), "NOPE.US", 5)
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("expected wrapped APIError with 404, got %v", err)
	}
}

func TestAuthenticate_BadKey(t *testing.T) {
	srv := newTestServer(t, map[string]string{"/user": `{"name":"x"}`})
	client := NewClient("wrong", WithBaseURL(srv.URL))

	err := client.Authenticate(context.Background())
	if !errors.Is(err, common.ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
}

func TestFetchMarketData(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"/fundamentals/AAPL.US": fundamentalsResp,
		"/real-time/AAPL.US":    `{"code": "AAPL.US", "close": "228.5"}`,
		"/eod/AAPL.US":          `[{"date": "2024-09-30", "close": 233.0}, {"date": "2024-09-27", "close": 227.79}]`,
	})
	client := NewClient("test-key", WithBaseURL(srv.URL))
	client.now = func() time.Time { return time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC) }

	m, err := client.FetchMarketData(context.Background(), "AAPL.US", []string{"2024-09-30"})
	if err != nil {
		t.Fatalf("FetchMarketData failed: %v", err)
	}
	if m.Name != "Apple Inc" {
		t.Errorf("name = %q, want Apple Inc", m.Name)
	}
	if m.CurrentPrice != 228.5 {
		t.Errorf("price = %.2f, want 228.5", m.CurrentPrice)
	}
	if m.MarketCap != 3e12 {
		t.Errorf("market cap = %.0f, want 3e12", m.MarketCap)
	}
	if m.PriceHistory["2024-09-30"] != 233.0 {
		t.Errorf("fiscal close = %.2f, want 233.0", m.PriceHistory["2024-09-30"])
	}
	if m.PriceHistory["2025-01-15"] != 228.5 {
		t.Errorf("expected current price recorded at today")
	}
	if mom, ok := m.Momentum(); !ok || mom >= 0 {
		t.Errorf("momentum = %.2f/%v, want negative", mom, ok)
	}
}

func TestListUniverse_Components(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"/fundamentals/GSPC.INDX": `{
			"1": {"Code": "MSFT", "Exchange": "US", "Name": "Microsoft Corporation", "Sector": "Technology"},
			"0": {"Code": "AAPL", "Exchange": "US", "Name": "Apple Inc", "Sector": "Technology"}
		}`,
	})
	client := NewClient("test-key", WithBaseURL(srv.URL))

	got, err := client.ListUniverse(context.Background(), "SP500")
	if err != nil {
		t.Fatalf("ListUniverse failed: %v", err)
	}
	if len(got) != 2 || got[0].Symbol != "AAPL" || got[1].Symbol != "MSFT" {
		t.Errorf("universe = %+v, want AAPL then MSFT", got)
	}
}

func TestListUniverse_TASEFallsBackToExchangeList(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"/exchange-symbol-list/TA": `[
			{"Code": "TEVA", "Name": "Teva Pharmaceutical Industries", "Type": "Common Stock"},
			{"Code": "TA35", "Name": "Some ETF", "Type": "ETF"},
			{"Code": "LUMI", "Name": "Bank Leumi", "Type": "Common Stock"}
		]`,
	})
	client := NewClient("test-key", WithBaseURL(srv.URL))

	got, err := client.ListUniverse(context.Background(), "TASE125")
	if err != nil {
		t.Fatalf("ListUniverse failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 common stocks, got %d", len(got))
	}
}

func TestListUniverse_UnknownMarket(t *testing.T) {
	client := NewClient("test-key", WithBaseURL("http://unused"))
	_, err := client.ListUniverse(context.Background(), "NIKKEI")
	if !errors.Is(err, common.ErrNotSupported) {
		t.Errorf("expected ErrNotSupported, got %v", err)
	}
}

func TestFetchBenchmarkPE(t *testing.T) {
	srv := newTestServer(t, map[string]string{"/fundamentals/GSPC.INDX": `{"PERatio": "24.8"}`})
	client := NewClient("test-key", WithBaseURL(srv.URL))

	pe, ok, err := client.FetchBenchmarkPE(context.Background(), "SP500")
	if err != nil || !ok {
		t.Fatalf("FetchBenchmarkPE failed: %v ok=%v", err, ok)
	}
	if pe != 24.8 {
		t.Errorf("PE = %.2f, want 24.8", pe)
	}
}

func TestFetchQuarterlyFinancials(t *testing.T) {
	srv := newTestServer(t, map[string]string{"/fundamentals/AAPL.US": `{
		"Income_Statement": {"quarterly": {
			"2024-12-31": {"totalRevenue": "124300000000", "netIncome": "36330000000", "operatingIncome": "42832000000"},
			"2024-09-30": {"totalRevenue": "94930000000", "netIncome": "14736000000"}
		}},
		"Balance_Sheet": {"quarterly": {
			"2024-12-31": {"longTermDebt": "83956000000", "shortTermDebt": "12843000000", "totalStockholderEquity": "66758000000"}
		}},
		"Cash_Flow": {"quarterly": {"2024-12-31": {"totalCashFromOperatingActivities": "29935000000"}}}
	}`})
	client := NewClient("test-key", WithBaseURL(srv.URL))

	q, err := client.FetchQuarterlyFinancials(context.Background(), "AAPL.US")
	if err != nil {
		t.Fatalf("FetchQuarterlyFinancials failed: %v", err)
	}
	if len(q.Revenues) != 2 || q.Revenues[0].FiscalDate != "2024-12-31" {
		t.Errorf("revenues = %+v, want most recent first", q.Revenues)
	}
	if len(q.OperatingIncomes) != 1 {
		t.Errorf("operating incomes = %d, want missing quarter skipped", len(q.OperatingIncomes))
	}
	if q.TotalDebt != 96799000000 {
		t.Errorf("debt = %.0f, want long plus short term", q.TotalDebt)
	}
}
