package yahoo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/growthfund/internal/common"
)

func unix(date string) int64 {
	t, _ := time.Parse(dateLayout, date)
	return t.Add(14 * time.Hour).Unix()
}

func chartJSON(currency string, price float64) string {
	return fmt.Sprintf(`{"chart": {"result": [{
		"meta": {"symbol": "X", "currency": %q, "regularMarketPrice": %g, "longName": "Example Corp"},
		"timestamp": [%d, %d, %d, %d],
		"indicators": {"quote": [{"close": [100.0, null, 110.0, 120.0]}]}
	}], "error": null}}`, currency, price,
		unix("2023-12-28"), unix("2023-12-29"), unix("2024-06-28"), unix("2024-12-30"))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(WithBaseURL(srv.URL), WithRateLimit(1000))
	c.now = func() time.Time { return time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC) }
	return c
}

func TestFetchMarketData(t *testing.T) {
	var chartPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v7/finance/quote":
			w.Write([]byte(`{"quoteResponse": {"result": [{"symbol": "AAPL", "marketCap": 3.4e12, "trailingPE": 37.2, "currency": "USD"}]}}`))
		default:
			chartPath = r.URL.Path
			w.Write([]byte(chartJSON("USD", 125.5)))
		}
	})

	m, err := c.FetchMarketData(context.Background(), "AAPL.US", []string{"2024-12-31", "2023-12-31", "2020-12-31"})
	require.NoError(t, err)

	assert.Equal(t, "/v8/finance/chart/AAPL", chartPath)
	assert.Equal(t, "Example Corp", m.Name)
	assert.Equal(t, 125.5, m.CurrentPrice)
	assert.Equal(t, 3.4e12, m.MarketCap)
	assert.Equal(t, 37.2, m.PERatio)
	assert.Equal(t, 120.0, m.PriceHistory["2024-12-31"])
	// 2023-12-29 has a null close; the 28th is used
	assert.Equal(t, 100.0, m.PriceHistory["2023-12-31"])
	_, ok := m.PriceHistory["2020-12-31"]
	assert.False(t, ok, "no bar within the lookback")
	assert.Equal(t, 125.5, m.PriceHistory["2025-01-15"])
}

func TestFetchMarketData_TASEAgorot(t *testing.T) {
	var chartPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v7/finance/quote" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		chartPath = r.URL.Path
		w.Write([]byte(chartJSON("ILA", 6500)))
	})

	m, err := c.FetchMarketData(context.Background(), "teva.ta", []string{"2024-12-31"})
	require.NoError(t, err)
	assert.Equal(t, "/v8/finance/chart/TEVA.TA", chartPath)
	assert.InDelta(t, 65.0, m.CurrentPrice, 1e-9)
	assert.InDelta(t, 1.2, m.PriceHistory["2024-12-31"], 1e-9)
	assert.Zero(t, m.MarketCap, "quote failure leaves market cap unset")
}

func TestFetchMarketData_ChartError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart": {"result": null, "error": {"code": "Not Found", "description": "No data found, symbol may be delisted"}}}`))
	})

	_, err := c.FetchMarketData(context.Background(), "GONE", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestUnsupportedCapabilities(t *testing.T) {
	c := NewClient()
	ctx := context.Background()

	_, err := c.ListUniverse(ctx, "SP500")
	assert.True(t, errors.Is(err, common.ErrNotSupported))
	_, err = c.FetchFinancials(ctx, "AAPL", 5)
	assert.True(t, errors.Is(err, common.ErrNotSupported))
	_, _, err = c.FetchBoth(ctx, "AAPL", 5)
	assert.True(t, errors.Is(err, common.ErrNotSupported))
	_, ok, err := c.FetchBenchmarkPE(ctx, "SP500")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestCloseOnOrBefore(t *testing.T) {
	bars := []bar{{"2024-01-02", 10}, {"2024-01-05", 12}, {"2024-02-01", 15}}
	p, ok := closeOnOrBefore(bars, "2024-01-07")
	assert.True(t, ok)
	assert.Equal(t, 12.0, p)

	_, ok = closeOnOrBefore(bars, "2024-01-01")
	assert.False(t, ok)

	_, ok = closeOnOrBefore(bars, "2024-01-20")
	assert.False(t, ok, "outside lookback")
}
