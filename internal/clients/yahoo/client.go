// Package yahoo provides a pricing-only client for the public Yahoo Finance
// chart and quote endpoints. No credential is required.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/growthfund/internal/adapter"
	"github.com/bobmcallan/growthfund/internal/common"
	"github.com/bobmcallan/growthfund/internal/interfaces"
	"github.com/bobmcallan/growthfund/internal/models"
)

const (
	Name             = "yahoo"
	DefaultBaseURL   = "https://query1.finance.yahoo.com"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 2 // requests per second

	// calendar days searched back from a fiscal date for a close
	priceLookbackDays = 7

	dateLayout = "2006-01-02"
	userAgent  = "Mozilla/5.0 (compatible; growthfund)"
)

// Client implements interfaces.Provider for pricing only
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
	now        func() time.Time
}

var _ interfaces.Provider = (*Client)(nil)

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new Yahoo client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:     common.NewSilentLogger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the provider identifier
func (c *Client) Name() string {
	return Name
}

func (c *Client) get(ctx context.Context, path, symbol string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	c.logger.Debug().Str("url", reqURL).Msg("Yahoo request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return common.NewProviderError(common.ErrConnection, Name, path, symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return common.NewProviderError(common.KindForStatus(resp.StatusCode), Name, path, symbol,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return common.NewProviderError(common.ErrDataQuality, Name, path, symbol, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

// yahooSymbol keeps the TASE suffix and strips the US one
func yahooSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if strings.HasSuffix(s, "."+models.MarketTASE125.Suffix) {
		return s
	}
	return adapter.BaseSymbol(s)
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				Currency           string  `json:"currency"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				LongName           string  `json:"longName"`
				ShortName          string  `json:"shortName"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol             string  `json:"symbol"`
			LongName           string  `json:"longName"`
			ShortName          string  `json:"shortName"`
			MarketCap          float64 `json:"marketCap"`
			TrailingPE         float64 `json:"trailingPE"`
			RegularMarketPrice float64 `json:"regularMarketPrice"`
			Currency           string  `json:"currency"`
		} `json:"result"`
	} `json:"quoteResponse"`
}

// scaleFor converts quotes in agorot to shekels
func scaleFor(currency string) float64 {
	if currency == "ILA" {
		return 0.01
	}
	return 1
}

type bar struct {
	date  string
	close float64
}

func (c *Client) chart(ctx context.Context, symbol string, from, to time.Time) (*chartResponse, []bar, float64, error) {
	params := url.Values{}
	params.Set("period1", strconv.FormatInt(from.Unix(), 10))
	params.Set("period2", strconv.FormatInt(to.Unix(), 10))
	params.Set("interval", "1d")
	var resp chartResponse
	path := "/v8/finance/chart/" + url.PathEscape(symbol)
	if err := c.get(ctx, path, symbol, params, &resp); err != nil {
		return nil, nil, 0, err
	}
	if resp.Chart.Error != nil || len(resp.Chart.Result) == 0 {
		msg := "empty chart"
		if resp.Chart.Error != nil {
			msg = resp.Chart.Error.Description
		}
		return nil, nil, 0, common.NewProviderError(common.ErrNotFound, Name, "chart", symbol, fmt.Errorf("%s", msg))
	}

	r := resp.Chart.Result[0]
	scale := scaleFor(r.Meta.Currency)
	var bars []bar
	if len(r.Indicators.Quote) > 0 {
		closes := r.Indicators.Quote[0].Close
		for i, ts := range r.Timestamp {
			if i >= len(closes) || closes[i] == nil {
				continue
			}
			bars = append(bars, bar{
				date:  time.Unix(ts, 0).UTC().Format(dateLayout),
				close: *closes[i] * scale,
			})
		}
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].date < bars[j].date })
	return &resp, bars, scale, nil
}

// closeOnOrBefore returns the last close within the lookback before date
func closeOnOrBefore(bars []bar, date string) (float64, bool) {
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return 0, false
	}
	floor := d.AddDate(0, 0, -priceLookbackDays).Format(dateLayout)
	i := sort.Search(len(bars), func(i int) bool { return bars[i].date > date })
	if i == 0 {
		return 0, false
	}
	b := bars[i-1]
	if b.date < floor || b.close <= 0 {
		return 0, false
	}
	return b.close, true
}

// Authenticate checks the chart endpoint answers
func (c *Client) Authenticate(ctx context.Context) error {
	now := c.now()
	_, _, _, err := c.chart(ctx, "AAPL", now.AddDate(0, 0, -7), now)
	return err
}

// ListUniverse is not supported
func (c *Client) ListUniverse(ctx context.Context, market string) ([]models.Constituent, error) {
	return nil, common.NewProviderError(common.ErrNotSupported, Name, "universe", market, nil)
}

// FetchFinancials is not supported
func (c *Client) FetchFinancials(ctx context.Context, symbol string, years int) (*models.FinancialRecord, error) {
	return nil, common.NewProviderError(common.ErrNotSupported, Name, "financials", symbol, nil)
}

// FetchBoth is not supported
func (c *Client) FetchBoth(ctx context.Context, symbol string, years int) (*models.FinancialRecord, *models.MarketSnapshot, error) {
	return nil, nil, common.NewProviderError(common.ErrNotSupported, Name, "financials", symbol, nil)
}

// FetchBenchmarkPE is not supported; callers fall back to estimates
func (c *Client) FetchBenchmarkPE(ctx context.Context, market string) (float64, bool, error) {
	return 0, false, nil
}

// FetchMarketData retrieves the current price, closes at the fiscal dates
// and, when the quote endpoint answers, market cap and P/E.
func (c *Client) FetchMarketData(ctx context.Context, symbol string, fiscalDates []string) (*models.MarketSnapshot, error) {
	ys := yahooSymbol(symbol)
	now := c.now()
	from := now.AddDate(-1, 0, 0)
	for _, d := range fiscalDates {
		if t, err := time.Parse(dateLayout, d); err == nil && t.Before(from) {
			from = t
		}
	}
	from = from.AddDate(0, 0, -priceLookbackDays)

	resp, bars, scale, err := c.chart(ctx, ys, from, now)
	if err != nil {
		return nil, err
	}
	meta := resp.Chart.Result[0].Meta

	m := &models.MarketSnapshot{
		Symbol:       symbol,
		Name:         meta.LongName,
		CurrentPrice: meta.RegularMarketPrice * scale,
		PriceHistory: make(map[string]float64),
	}
	if m.Name == "" {
		m.Name = meta.ShortName
	}
	if m.CurrentPrice <= 0 && len(bars) > 0 {
		m.CurrentPrice = bars[len(bars)-1].close
	}

	for _, d := range fiscalDates {
		if p, ok := closeOnOrBefore(bars, d); ok {
			m.PriceHistory[d] = p
		}
	}
	if m.CurrentPrice > 0 {
		m.PriceHistory[now.Format(dateLayout)] = m.CurrentPrice
	}

	params := url.Values{}
	params.Set("symbols", ys)
	var quote quoteResponse
	if err := c.get(ctx, "/v7/finance/quote", symbol, params, &quote); err != nil {
		c.logger.Debug().Err(err).Str("symbol", symbol).Msg("Yahoo quote unavailable, market cap left for the caller")
	} else if len(quote.QuoteResponse.Result) > 0 {
		q := quote.QuoteResponse.Result[0]
		m.MarketCap = q.MarketCap * scaleFor(q.Currency)
		if q.TrailingPE > 0 {
			m.PERatio = q.TrailingPE
		}
		if m.Name == "" {
			m.Name = q.LongName
		}
	}
	if m.Name == "" {
		m.Name = adapter.BaseSymbol(symbol)
	}
	return m, nil
}
