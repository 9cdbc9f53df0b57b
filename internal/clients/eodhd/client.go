// Package eodhd provides a client for the EODHD API
package eodhd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/growthfund/internal/common"
	"github.com/bobmcallan/growthfund/internal/interfaces"
	"github.com/bobmcallan/growthfund/internal/models"
)

// flexFloat64 handles JSON values that may be either a number or a string.
type flexFloat64 float64

func (f *flexFloat64) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*f = flexFloat64(num)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" || s == "N/A" {
			*f = 0
			return nil
		}
		num, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*f = 0
			return nil
		}
		*f = flexFloat64(num)
		return nil
	}
	if string(data) == "null" {
		*f = 0
		return nil
	}
	return fmt.Errorf("cannot unmarshal %s into float64", string(data))
}

const (
	Name             = "eodhd"
	DefaultBaseURL   = "https://eodhd.com/api"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 10 // requests per second
)

// index symbols whose component lists define each market
var indexSymbols = map[string]string{
	"SP500":   "GSPC.INDX",
	"TASE125": "TA125.INDX",
}

// Client implements interfaces.Provider for EODHD
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
	now        func() time.Time
}

var _ interfaces.QuarterlyProvider = (*Client)(nil)

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

// NewClient creates a new EODHD client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
		now:     time.Now,
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
	return fmt.Sprintf("EODHD API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// Name returns the provider identifier
func (c *Client) Name() string {
	return Name
}

// get performs a rate-limited GET request
func (c *Client) get(ctx context.Context, path, symbol string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("api_token", c.apiKey)
	params.Set("fmt", "json")

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("url", c.baseURL+path).Msg("EODHD API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return common.NewProviderError(common.ErrConnection, Name, path, symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   path,
		}
		return common.NewProviderError(common.KindForStatus(resp.StatusCode), Name, path, symbol, apiErr)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return common.NewProviderError(common.ErrDataQuality, Name, path, symbol, fmt.Errorf("failed to decode response: %w", err))
	}

	return nil
}

// Authenticate checks the API key against the account endpoint
func (c *Client) Authenticate(ctx context.Context) error {
	var user struct {
		Name              string `json:"name"`
		APIRequests       int    `json:"apiRequests"`
		DailyRateLimit    int    `json:"dailyRateLimit"`
		SubscriptionType  string `json:"subscriptionType"`
		PaymentMethod     string `json:"paymentMethod"`
		APIRequestsDate   string `json:"apiRequestsDate"`
		ExtraLimit        int    `json:"extraLimit"`
		InviteToken       string `json:"inviteToken"`
		InviteTokenClicks int    `json:"inviteTokenClicked"`
	}
	if err := c.get(ctx, "/user", "", nil, &user); err != nil {
		return err
	}
	c.logger.Info().Str("subscription", user.SubscriptionType).
		Int("requests_today", user.APIRequests).
		Int("daily_limit", user.DailyRateLimit).
		Msg("EODHD authenticated")
	return nil
}

type component struct {
	Code     string `json:"Code"`
	Exchange string `json:"Exchange"`
	Name     string `json:"Name"`
	Sector   string `json:"Sector"`
	Industry string `json:"Industry"`
}

// ListUniverse returns index components; TASE falls back to the exchange list
func (c *Client) ListUniverse(ctx context.Context, market string) ([]models.Constituent, error) {
	index, ok := indexSymbols[market]
	if !ok {
		return nil, common.NewProviderError(common.ErrNotSupported, Name, "universe", market, nil)
	}

	var resp struct {
		Components map[string]component `json:"Components"`
	}
	params := url.Values{}
	params.Set("filter", "Components")
	err := c.get(ctx, "/fundamentals/"+index, "", params, &resp.Components)
	if err == nil && len(resp.Components) > 0 {
		keys := make([]int, 0, len(resp.Components))
		for k := range resp.Components {
			n, _ := strconv.Atoi(k)
			keys = append(keys, n)
		}
		sort.Ints(keys)
		out := make([]models.Constituent, 0, len(keys))
		for _, k := range keys {
			comp := resp.Components[strconv.Itoa(k)]
			name := comp.Name
			if name == "" {
				name = comp.Code
			}
			out = append(out, models.Constituent{Symbol: comp.Code, Name: name, Sector: comp.Sector, SubSector: comp.Industry})
		}
		return out, nil
	}

	if market != models.MarketTASE125.ID {
		if err == nil {
			err = common.NewProviderError(common.ErrNotFound, Name, "universe", index, fmt.Errorf("no components"))
		}
		return nil, err
	}

	c.logger.Warn().Err(err).Msg("TA125 components unavailable, using exchange symbol list")
	symbols, err := c.exchangeSymbols(ctx, "TA")
	if err != nil {
		return nil, err
	}
	return symbols, nil
}

type exchangeSymbol struct {
	Code     string `json:"Code"`
	Name     string `json:"Name"`
	Country  string `json:"Country"`
	Exchange string `json:"Exchange"`
	Currency string `json:"Currency"`
	Type     string `json:"Type"`
}

func (c *Client) exchangeSymbols(ctx context.Context, exchange string) ([]models.Constituent, error) {
	var resp []exchangeSymbol
	if err := c.get(ctx, "/exchange-symbol-list/"+exchange, "", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]models.Constituent, 0, len(resp))
	for _, s := range resp {
		if s.Type != "" && s.Type != "Common Stock" {
			continue
		}
		out = append(out, models.Constituent{Symbol: s.Code, Name: s.Name})
	}
	return out, nil
}

type fundamentalsResponse struct {
	General struct {
		Code     string `json:"Code"`
		Name     string `json:"Name"`
		Exchange string `json:"Exchange"`
		Sector   string `json:"Sector"`
		Industry string `json:"Industry"`
	} `json:"General"`
	Highlights struct {
		MarketCapitalization flexFloat64 `json:"MarketCapitalization"`
		PERatio              flexFloat64 `json:"PERatio"`
	} `json:"Highlights"`
	Financials struct {
		IncomeStatement struct {
			Yearly    map[string]incomeStatement `json:"yearly"`
			Quarterly map[string]incomeStatement `json:"quarterly"`
		} `json:"Income_Statement"`
		BalanceSheet struct {
			Yearly    map[string]balanceSheet `json:"yearly"`
			Quarterly map[string]balanceSheet `json:"quarterly"`
		} `json:"Balance_Sheet"`
		CashFlow struct {
			Yearly    map[string]cashFlow `json:"yearly"`
			Quarterly map[string]cashFlow `json:"quarterly"`
		} `json:"Cash_Flow"`
	} `json:"Financials"`
}

type incomeStatement struct {
	Date            string      `json:"date"`
	TotalRevenue    flexFloat64 `json:"totalRevenue"`
	NetIncome       flexFloat64 `json:"netIncome"`
	OperatingIncome flexFloat64 `json:"operatingIncome"`
	EBITDA          flexFloat64 `json:"ebitda"`
}

type balanceSheet struct {
	TotalDebt        flexFloat64 `json:"shortLongTermDebtTotal"`
	LongTermDebt     flexFloat64 `json:"longTermDebt"`
	ShortTermDebt    flexFloat64 `json:"shortTermDebt"`
	StockholderEquit flexFloat64 `json:"totalStockholderEquity"`
}

func (b balanceSheet) debt() float64 {
	if b.TotalDebt != 0 {
		return float64(b.TotalDebt)
	}
	return float64(b.LongTermDebt + b.ShortTermDebt)
}

type cashFlow struct {
	OperatingCashFlow flexFloat64 `json:"totalCashFromOperatingActivities"`
}

// recentDates returns up to n statement dates, most recent first
func recentDates[T any](m map[string]T, n int) []string {
	dates := make([]string, 0, len(m))
	for d := range m {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	if n > 0 && len(dates) > n {
		dates = dates[:n]
	}
	return dates
}

func yearOf(date string) (int, bool) {
	if len(date) < 4 {
		return 0, false
	}
	y, err := strconv.Atoi(date[:4])
	return y, err == nil
}

// FetchFinancials retrieves annual statements from the fundamentals endpoint
func (c *Client) FetchFinancials(ctx context.Context, symbol string, years int) (*models.FinancialRecord, error) {
	var resp fundamentalsResponse
	if err := c.get(ctx, "/fundamentals/"+symbol, symbol, nil, &resp); err != nil {
		return nil, err
	}

	f := models.NewFinancialRecord(symbol)
	income := resp.Financials.IncomeStatement.Yearly
	for _, date := range recentDates(income, years) {
		y, ok := yearOf(date)
		if !ok {
			continue
		}
		stmt := income[date]
		f.Revenues[y] = float64(stmt.TotalRevenue)
		f.NetIncomes[y] = float64(stmt.NetIncome)
		op := stmt.OperatingIncome
		if op == 0 {
			op = stmt.EBITDA
		}
		f.OperatingIncomes[y] = float64(op)
		f.FiscalDates = append(f.FiscalDates, date)
	}

	cash := resp.Financials.CashFlow.Yearly
	for _, date := range recentDates(cash, years) {
		if y, ok := yearOf(date); ok {
			f.OperatingCashFlows[y] = float64(cash[date].OperatingCashFlow)
		}
	}

	balance := resp.Financials.BalanceSheet.Yearly
	if latest := recentDates(balance, 1); len(latest) == 1 {
		b := balance[latest[0]]
		f.TotalDebt = b.debt()
		f.TotalEquity = float64(b.StockholderEquit)
	}

	f.MarketCap = float64(resp.Highlights.MarketCapitalization)
	f.PERatio = float64(resp.Highlights.PERatio)

	if len(f.Revenues) == 0 {
		return nil, common.NewProviderError(common.ErrNotFound, Name, "fundamentals", symbol, fmt.Errorf("no yearly income statements"))
	}
	return f, nil
}

type eodBar struct {
	Date     string      `json:"date"`
	Close    flexFloat64 `json:"close"`
	AdjClose flexFloat64 `json:"adjusted_close"`
}

type realTimeResponse struct {
	Code  string      `json:"code"`
	Close flexFloat64 `json:"close"`
}

// closeOnOrBefore returns the last close within a week up to date
func (c *Client) closeOnOrBefore(ctx context.Context, symbol, date string) (float64, bool) {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return 0, false
	}
	params := url.Values{}
	params.Set("from", d.AddDate(0, 0, -7).Format("2006-01-02"))
	params.Set("to", date)
	params.Set("order", "d")
	var bars []eodBar
	if err := c.get(ctx, "/eod/"+symbol, symbol, params, &bars); err != nil {
		c.logger.Warn().Err(err).Str("symbol", symbol).Str("date", date).Msg("EOD price unavailable")
		return 0, false
	}
	for _, b := range bars {
		if b.Close > 0 {
			return float64(b.Close), true
		}
	}
	return 0, false
}

// FetchMarketData retrieves the live price, cap and P/E plus closes at the fiscal dates
func (c *Client) FetchMarketData(ctx context.Context, symbol string, fiscalDates []string) (*models.MarketSnapshot, error) {
	var resp fundamentalsResponse
	params := url.Values{}
	params.Set("filter", "General,Highlights")
	if err := c.get(ctx, "/fundamentals/"+symbol, symbol, params, &resp); err != nil {
		return nil, err
	}

	var rt realTimeResponse
	if err := c.get(ctx, "/real-time/"+symbol, symbol, nil, &rt); err != nil {
		return nil, err
	}

	m := &models.MarketSnapshot{
		Symbol:       symbol,
		Name:         resp.General.Name,
		MarketCap:    float64(resp.Highlights.MarketCapitalization),
		CurrentPrice: float64(rt.Close),
		PERatio:      float64(resp.Highlights.PERatio),
		PriceHistory: make(map[string]float64),
	}
	if m.Name == "" {
		m.Name = symbol
	}

	for _, date := range fiscalDates {
		if p, ok := c.closeOnOrBefore(ctx, symbol, date); ok {
			m.PriceHistory[date] = p
		}
	}
	if m.CurrentPrice > 0 {
		m.PriceHistory[c.now().Format("2006-01-02")] = m.CurrentPrice
	}
	return m, nil
}

// FetchBenchmarkPE returns the index P/E from the index fundamentals
func (c *Client) FetchBenchmarkPE(ctx context.Context, market string) (float64, bool, error) {
	index, ok := indexSymbols[market]
	if !ok {
		return 0, false, nil
	}
	var resp fundamentalsResponse
	params := url.Values{}
	params.Set("filter", "Highlights")
	if err := c.get(ctx, "/fundamentals/"+index, "", params, &resp.Highlights); err != nil {
		return 0, false, err
	}
	pe := float64(resp.Highlights.PERatio)
	return pe, pe > 0, nil
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

// quarterlyLimit bounds how many quarters are read; LTM needs four, the rest
// cover a late filing
const quarterlyLimit = 8

// FetchQuarterlyFinancials retrieves quarterly statements, most recent first
func (c *Client) FetchQuarterlyFinancials(ctx context.Context, symbol string) (*models.QuarterlyFinancials, error) {
	var resp fundamentalsResponse
	params := url.Values{}
	params.Set("filter", "Financials")
	if err := c.get(ctx, "/fundamentals/"+symbol, symbol, params, &resp.Financials); err != nil {
		return nil, err
	}

	q := &models.QuarterlyFinancials{Symbol: symbol}
	income := resp.Financials.IncomeStatement.Quarterly
	for _, date := range recentDates(income, quarterlyLimit) {
		stmt := income[date]
		q.Revenues = append(q.Revenues, models.QuarterAmount{FiscalDate: date, Amount: float64(stmt.TotalRevenue)})
		q.NetIncomes = append(q.NetIncomes, models.QuarterAmount{FiscalDate: date, Amount: float64(stmt.NetIncome)})
		if stmt.OperatingIncome != 0 {
			q.OperatingIncomes = append(q.OperatingIncomes, models.QuarterAmount{FiscalDate: date, Amount: float64(stmt.OperatingIncome)})
		}
	}
	cash := resp.Financials.CashFlow.Quarterly
	for _, date := range recentDates(cash, quarterlyLimit) {
		q.OperatingCashFlows = append(q.OperatingCashFlows, models.QuarterAmount{FiscalDate: date, Amount: float64(cash[date].OperatingCashFlow)})
	}
	balance := resp.Financials.BalanceSheet.Quarterly
	if latest := recentDates(balance, 1); len(latest) == 1 {
		q.TotalDebt = balance[latest[0]].debt()
		q.TotalEquity = float64(balance[latest[0]].StockholderEquit)
	}

	if len(q.Revenues) == 0 {
		return nil, common.NewProviderError(common.ErrNotFound, Name, "fundamentals", symbol, fmt.Errorf("no quarterly income statements"))
	}
	return q, nil
}
