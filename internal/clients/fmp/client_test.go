package fmp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bobmcallan/growthfund/internal/common"
)

func newTestClient(t *testing.T, routes map[string]string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("apikey") != "test-key" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		body, ok := routes[r.URL.Path]
		if !ok {
			w.Write([]byte(`[]`))
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	c := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(1000))
	c.now = func() time.Time { return time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC) }
	return c
}

var msftRoutes = map[string]string{
	"/income-statement/MSFT": `[
		{"date": "2023-06-30", "revenue": 211915000000, "netIncome": 72361000000, "operatingIncome": 88523000000},
		{"date": "2024-06-30", "revenue": 245122000000, "netIncome": 88136000000, "operatingIncome": 109433000000}
	]`,
	"/balance-sheet-statement/MSFT": `[{"date": "2024-06-30", "totalDebt": 97852000000, "totalStockholdersEquity": 268477000000}]`,
	"/cash-flow-statement/MSFT":     `[{"date": "2024-06-30", "operatingCashFlow": 118548000000}]`,
	"/profile/MSFT":                 `[{"symbol": "MSFT", "companyName": "Microsoft Corporation", "price": 430.5, "mktCap": 3200000000000, "pe": 35.4}]`,
	"/historical-price-full/MSFT": `{"symbol": "MSFT", "historical": [
		{"date": "2024-06-28", "close": 446.95},
		{"date": "2024-06-27", "close": 452.85},
		{"date": "2023-06-30", "close": 340.54}
	]}`,
}

func TestFetchBoth(t *testing.T) {
	c := newTestClient(t, msftRoutes)

	f, m, err := c.FetchBoth(context.Background(), "MSFT.US", 5)
	if err != nil {
		t.Fatalf("FetchBoth failed: %v", err)
	}

	if f.Revenues[2024] != 245122000000 {
		t.Errorf("2024 revenue = %.0f", f.Revenues[2024])
	}
	if len(f.FiscalDates) != 2 || f.FiscalDates[0] != "2024-06-30" {
		t.Errorf("fiscal dates = %v, want most recent first", f.FiscalDates)
	}
	if d, ok := f.DebtToEquity(); !ok || d > 0.37 || d < 0.36 {
		t.Errorf("D/E = %.3f/%v", d, ok)
	}
	if f.OperatingCashFlows[2024] != 118548000000 {
		t.Errorf("OCF = %.0f", f.OperatingCashFlows[2024])
	}

	if m.Name != "Microsoft Corporation" || m.CurrentPrice != 430.5 {
		t.Errorf("snapshot = %+v", m)
	}
	// 2024-06-30 is a Sunday; the Friday close is used
	if m.PriceHistory["2024-06-30"] != 446.95 {
		t.Errorf("2024 fiscal close = %.2f, want 446.95", m.PriceHistory["2024-06-30"])
	}
	if m.PriceHistory["2023-06-30"] != 340.54 {
		t.Errorf("2023 fiscal close = %.2f, want 340.54", m.PriceHistory["2023-06-30"])
	}
	if m.PriceHistory["2025-01-15"] != 430.5 {
		t.Errorf("expected current price at today")
	}
}

func TestFetchFinancials_Empty(t *testing.T) {
	c := newTestClient(t, nil)
	_, err := c.FetchFinancials(context.Background(), "NOPE", 5)
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAuthenticate_Forbidden(t *testing.T) {
	c := newTestClient(t, msftRoutes)
	c.apiKey = "bad"
	if err := c.Authenticate(context.Background()); !errors.Is(err, common.ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
}

func TestListUniverse(t *testing.T) {
	c := newTestClient(t, map[string]string{
		"/sp500_constituent": `[{"symbol": "MSFT", "name": "Microsoft", "sector": "Information Technology", "subSector": "Software"}]`,
	})
	got, err := c.ListUniverse(context.Background(), "SP500")
	if err != nil {
		t.Fatalf("ListUniverse failed: %v", err)
	}
	if len(got) != 1 || got[0].SubSector != "Software" {
		t.Errorf("universe = %+v", got)
	}
	if _, err := c.ListUniverse(context.Background(), "TASE125"); !errors.Is(err, common.ErrNotSupported) {
		t.Errorf("expected ErrNotSupported for TASE125, got %v", err)
	}
}

func TestFetchBenchmarkPE_AveragesPositive(t *testing.T) {
	c := newTestClient(t, map[string]string{
		"/sp500_constituent": `[{"symbol": "A"}, {"symbol": "B"}, {"symbol": "C"}]`,
		"/profile/A":         `[{"symbol": "A", "pe": 20}]`,
		"/profile/B":         `[{"symbol": "B", "pe": -4}]`,
		"/profile/C":         `[{"symbol": "C", "pe": 30}]`,
	})
	pe, ok, err := c.FetchBenchmarkPE(context.Background(), "SP500")
	if err != nil || !ok {
		t.Fatalf("FetchBenchmarkPE failed: %v ok=%v", err, ok)
	}
	if pe != 25 {
		t.Errorf("PE = %.2f, want 25", pe)
	}
}
