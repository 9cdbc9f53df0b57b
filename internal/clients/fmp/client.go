// Package fmp provides a client for the Financial Modeling Prep API
package fmp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/growthfund/internal/adapter"
	"github.com/bobmcallan/growthfund/internal/common"
	"github.com/bobmcallan/growthfund/internal/interfaces"
	"github.com/bobmcallan/growthfund/internal/models"
)

const (
	Name             = "fmp"
	DefaultBaseURL   = "https://financialmodelingprep.com/api/v3"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 5 // requests per second

	// constituents sampled for the index P/E average
	benchmarkSample = 10

	// calendar days searched back from a fiscal date for a close
	priceLookbackDays = 7

	dateLayout = "2006-01-02"
)

// Client implements interfaces.Provider for FMP
type Client struct {
	baseURL    string
	apiKey     string
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

// NewClient creates a new FMP client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
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

// APIError represents an API error
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("FMP API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// Name returns the provider identifier
func (c *Client) Name() string {
	return Name
}

func (c *Client) get(ctx context.Context, path, symbol string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("apikey", c.apiKey)
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("url", c.baseURL+path).Msg("FMP API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return common.NewProviderError(common.ErrConnection, Name, path, symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(body), Endpoint: path}
		return common.NewProviderError(common.KindForStatus(resp.StatusCode), Name, path, symbol, apiErr)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return common.NewProviderError(common.ErrDataQuality, Name, path, symbol, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

type profile struct {
	Symbol      string  `json:"symbol"`
	CompanyName string  `json:"companyName"`
	Price       float64 `json:"price"`
	MktCap      float64 `json:"mktCap"`
	PE          float64 `json:"pe"`
	Sector      string  `json:"sector"`
	Industry    string  `json:"industry"`
}

func (c *Client) profile(ctx context.Context, symbol string) (*profile, error) {
	var resp []profile
	if err := c.get(ctx, "/profile/"+symbol, symbol, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp) == 0 {
		return nil, common.NewProviderError(common.ErrNotFound, Name, "/profile", symbol, fmt.Errorf("empty profile"))
	}
	return &resp[0], nil
}

// Authenticate fetches a known profile
func (c *Client) Authenticate(ctx context.Context) error {
	if _, err := c.profile(ctx, "AAPL"); err != nil {
		return err
	}
	c.logger.Info().Msg("FMP authenticated")
	return nil
}

// ListUniverse returns the S&P 500 constituents
func (c *Client) ListUniverse(ctx context.Context, market string) ([]models.Constituent, error) {
	if market != models.MarketSP500.ID {
		return nil, common.NewProviderError(common.ErrNotSupported, Name, "universe", market, nil)
	}
	var resp []struct {
		Symbol      string `json:"symbol"`
		Name        string `json:"name"`
		Sector      string `json:"sector"`
		SubSector   string `json:"subSector"`
		HeadQuarter string `json:"headQuarter"`
	}
	if err := c.get(ctx, "/sp500_constituent", "", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]models.Constituent, 0, len(resp))
	for _, s := range resp {
		out = append(out, models.Constituent{Symbol: s.Symbol, Name: s.Name, Sector: s.Sector, SubSector: s.SubSector})
	}
	return out, nil
}

type incomeStatement struct {
	Date            string  `json:"date"`
	CalendarYear    string  `json:"calendarYear"`
	Revenue         float64 `json:"revenue"`
	NetIncome       float64 `json:"netIncome"`
	OperatingIncome float64 `json:"operatingIncome"`
}

type balanceSheet struct {
	Date                    string  `json:"date"`
	TotalDebt               float64 `json:"totalDebt"`
	TotalStockholdersEquity float64 `json:"totalStockholdersEquity"`
}

type cashFlowStatement struct {
	Date              string  `json:"date"`
	OperatingCashFlow float64 `json:"operatingCashFlow"`
}

func yearOf(date string) (int, bool) {
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return 0, false
	}
	return t.Year(), true
}

// FetchFinancials retrieves annual statements plus the profile snapshot
func (c *Client) FetchFinancials(ctx context.Context, symbol string, years int) (*models.FinancialRecord, error) {
	ticker := adapter.BaseSymbol(symbol)
	limit := url.Values{}
	limit.Set("limit", fmt.Sprint(years))

	var income []incomeStatement
	if err := c.get(ctx, "/income-statement/"+ticker, symbol, limit, &income); err != nil {
		return nil, err
	}
	if len(income) == 0 {
		return nil, common.NewProviderError(common.ErrNotFound, Name, "/income-statement", symbol, fmt.Errorf("no annual statements"))
	}

	f := models.NewFinancialRecord(symbol)
	for _, s := range income {
		y, ok := yearOf(s.Date)
		if !ok {
			continue
		}
		f.Revenues[y] = s.Revenue
		f.NetIncomes[y] = s.NetIncome
		f.OperatingIncomes[y] = s.OperatingIncome
		f.FiscalDates = append(f.FiscalDates, s.Date)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(f.FiscalDates)))

	latest := url.Values{}
	latest.Set("limit", "1")
	var balance []balanceSheet
	if err := c.get(ctx, "/balance-sheet-statement/"+ticker, symbol, latest, &balance); err != nil {
		return nil, err
	}
	if len(balance) > 0 {
		f.TotalDebt = balance[0].TotalDebt
		f.TotalEquity = balance[0].TotalStockholdersEquity
	}

	var flows []cashFlowStatement
	if err := c.get(ctx, "/cash-flow-statement/"+ticker, symbol, limit, &flows); err != nil {
		return nil, err
	}
	for _, fl := range flows {
		if y, ok := yearOf(fl.Date); ok {
			f.OperatingCashFlows[y] = fl.OperatingCashFlow
		}
	}

	if p, err := c.profile(ctx, ticker); err == nil {
		f.MarketCap = p.MktCap
		f.CurrentPrice = p.Price
		f.PERatio = p.PE
	} else if common.IsFatal(err) {
		return nil, err
	}
	return f, nil
}

type historicalResponse struct {
	Symbol     string `json:"symbol"`
	Historical []struct {
		Date  string  `json:"date"`
		Close float64 `json:"close"`
	} `json:"historical"`
}

// closesAt picks the last close on or before each date within the lookback
func closesAt(h historicalResponse, dates []string) map[string]float64 {
	out := make(map[string]float64)
	for _, date := range dates {
		d, err := time.Parse(dateLayout, date)
		if err != nil {
			continue
		}
		floor := d.AddDate(0, 0, -priceLookbackDays).Format(dateLayout)
		best := ""
		for _, bar := range h.Historical {
			if bar.Date <= date && bar.Date >= floor && bar.Date > best && bar.Close > 0 {
				best = bar.Date
				out[date] = bar.Close
			}
		}
	}
	return out
}

// FetchMarketData retrieves the profile and closes at the fiscal dates
func (c *Client) FetchMarketData(ctx context.Context, symbol string, fiscalDates []string) (*models.MarketSnapshot, error) {
	ticker := adapter.BaseSymbol(symbol)
	p, err := c.profile(ctx, ticker)
	if err != nil {
		return nil, err
	}

	m := &models.MarketSnapshot{
		Symbol:       symbol,
		Name:         p.CompanyName,
		MarketCap:    p.MktCap,
		CurrentPrice: p.Price,
		PERatio:      p.PE,
		PriceHistory: make(map[string]float64),
	}
	if m.Name == "" {
		m.Name = ticker
	}

	if len(fiscalDates) > 0 {
		oldest := fiscalDates[0]
		for _, d := range fiscalDates {
			if d < oldest {
				oldest = d
			}
		}
		from, err := time.Parse(dateLayout, oldest)
		if err == nil {
			params := url.Values{}
			params.Set("from", from.AddDate(0, 0, -priceLookbackDays).Format(dateLayout))
			params.Set("to", c.now().Format(dateLayout))
			var hist historicalResponse
			if err := c.get(ctx, "/historical-price-full/"+ticker, symbol, params, &hist); err != nil {
				if common.IsFatal(err) {
					return nil, err
				}
				c.logger.Warn().Err(err).Str("symbol", symbol).Msg("Price history unavailable")
			} else {
				m.PriceHistory = closesAt(hist, fiscalDates)
			}
		}
	}
	if m.CurrentPrice > 0 {
		m.PriceHistory[c.now().Format(dateLayout)] = m.CurrentPrice
	}
	return m, nil
}

// FetchBoth retrieves statements then prices at the statement dates
func (c *Client) FetchBoth(ctx context.Context, symbol string, years int) (*models.FinancialRecord, *models.MarketSnapshot, error) {
	f, err := c.FetchFinancials(ctx, symbol, years)
	if err != nil {
		return nil, nil, err
	}
	m, err := c.FetchMarketData(ctx, symbol, f.FiscalDates)
	if err != nil {
		return nil, nil, err
	}
	return f, m, nil
}

// FetchBenchmarkPE averages the P/E of the first constituents
func (c *Client) FetchBenchmarkPE(ctx context.Context, market string) (float64, bool, error) {
	if market != models.MarketSP500.ID {
		return 0, false, nil
	}
	constituents, err := c.ListUniverse(ctx, market)
	if err != nil {
		return 0, false, err
	}
	if len(constituents) > benchmarkSample {
		constituents = constituents[:benchmarkSample]
	}
	var sum float64
	var n int
	for _, s := range constituents {
		p, err := c.profile(ctx, s.Symbol)
		if err != nil {
			if common.IsFatal(err) {
				return 0, false, err
			}
			continue
		}
		if p.PE > 0 {
			sum += p.PE
			n++
		}
	}
	if n == 0 {
		return 0, false, nil
	}
	return sum / float64(n), true, nil
}
