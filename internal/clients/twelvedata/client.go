// Package twelvedata provides a client for the Twelve Data API. Every
// request is paced by a credit governor.
package twelvedata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bobmcallan/growthfund/internal/adapter"
	"github.com/bobmcallan/growthfund/internal/common"
	"github.com/bobmcallan/growthfund/internal/governor"
	"github.com/bobmcallan/growthfund/internal/interfaces"
	"github.com/bobmcallan/growthfund/internal/models"
)

const (
	Name           = "twelvedata"
	DefaultBaseURL = "https://api.twelvedata.com"
	DefaultTimeout = 30 * time.Second

	// TASE quotes are in agorot, statements in shekels
	agorotPerShekel = 100

	// trading days tried before a fiscal date when it has no close
	priceFallbackDays = 3

	fiscalDateLayout = "2006-01-02"
)

// optFloat is a nullable number that may arrive as a JSON string.
type optFloat struct {
	Value float64
	Valid bool
}

func (f *optFloat) UnmarshalJSON(data []byte) error {
	*f = optFloat{}
	if string(data) == "null" {
		return nil
	}
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*f = optFloat{Value: num, Valid: true}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("cannot unmarshal %s into float64", string(data))
	}
	if num, err := strconv.ParseFloat(s, 64); err == nil {
		*f = optFloat{Value: num, Valid: true}
	}
	return nil
}

// Client implements interfaces.QuarterlyProvider for Twelve Data
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *common.Logger
	gov        *governor.Governor
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

// WithGovernor sets the credit governor
func WithGovernor(g *governor.Governor) ClientOption {
	return func(c *Client) {
		c.gov = g
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new Twelve Data client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger: common.NewSilentLogger(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.gov == nil {
		c.gov = governor.New(governor.DefaultConfig(), governor.WithLogger(c.logger), governor.WithName(Name))
	}

	return c
}

// Name returns the provider identifier
func (c *Client) Name() string {
	return Name
}

// Governor exposes the credit governor for usage reporting
func (c *Client) Governor() *governor.Governor {
	return c.gov
}

// APIError represents an API error
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Twelve Data API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// errorEnvelope is returned with HTTP 200 when a call fails
type errorEnvelope struct {
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// kindFor maps an API error code. Unknown symbols come back as 400.
func kindFor(code int) error {
	if code == http.StatusBadRequest {
		return common.ErrNotFound
	}
	return common.KindForStatus(code)
}

// get performs a governed GET request
func (c *Client) get(ctx context.Context, endpoint, symbol string, params url.Values, result interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("apikey", c.apiKey)
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, endpoint, params.Encode())

	c.logger.Debug().Str("endpoint", endpoint).Str("symbol", symbol).Msg("Twelve Data API request")

	resp, err := c.gov.Do(ctx, endpoint, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, common.NewProviderError(common.ErrConnection, Name, endpoint, symbol, err)
		}
		return resp, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return common.NewProviderError(common.ErrConnection, Name, endpoint, symbol, err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(body), Endpoint: endpoint}
		return common.NewProviderError(kindFor(resp.StatusCode), Name, endpoint, symbol, apiErr)
	}

	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && (env.Status == "error" || env.Code != 0) {
		apiErr := &APIError{StatusCode: env.Code, Message: env.Message, Endpoint: endpoint}
		return common.NewProviderError(kindFor(env.Code), Name, endpoint, symbol, apiErr)
	}

	if err := json.Unmarshal(body, result); err != nil {
		return common.NewProviderError(common.ErrDataQuality, Name, endpoint, symbol, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

// symbolParams splits a qualified symbol into the ticker and exchange params
func symbolParams(symbol string) url.Values {
	params := url.Values{}
	params.Set("symbol", adapter.BaseSymbol(symbol))
	if isTASE(symbol) {
		params.Set("exchange", "TASE")
	}
	return params
}

func isTASE(symbol string) bool {
	return strings.HasSuffix(strings.ToUpper(symbol), "."+models.MarketTASE125.Suffix)
}

func toShekels(symbol string, v float64) float64 {
	if isTASE(symbol) {
		return v / agorotPerShekel
	}
	return v
}

type usageResponse struct {
	Timestamp    string `json:"timestamp"`
	CurrentUsage int    `json:"current_usage"`
	PlanLimit    int    `json:"plan_limit"`
	PlanCategory string `json:"plan_category"`
}

// Authenticate checks the key and sizes the credit budget from the plan
func (c *Client) Authenticate(ctx context.Context) error {
	var usage usageResponse
	if err := c.get(ctx, "/api_usage", "", nil, &usage); err != nil {
		return err
	}
	c.logger.Info().Str("plan", usage.PlanCategory).
		Int("usage", usage.CurrentUsage).Int("limit", usage.PlanLimit).
		Msg("Twelve Data authenticated")
	c.gov.ConfigureFromPlan(usage.PlanCategory, usage.PlanLimit)
	return nil
}

// ensureBudget detects the plan once when no manual budget is set
func (c *Client) ensureBudget(ctx context.Context) {
	if c.gov.Configured() {
		return
	}
	var usage usageResponse
	if err := c.get(ctx, "/api_usage", "", nil, &usage); err != nil {
		c.gov.ConfigureFallback(err)
		return
	}
	c.gov.ConfigureFromPlan(usage.PlanCategory, usage.PlanLimit)
}

// beginStock waits for budget before a stock's calls
func (c *Client) beginStock(ctx context.Context) error {
	c.ensureBudget(ctx)
	return c.gov.BeforeStock(ctx)
}

// ListUniverse lists TASE common stocks. There is no S&P 500 constituent
// endpoint.
func (c *Client) ListUniverse(ctx context.Context, market string) ([]models.Constituent, error) {
	if market != models.MarketTASE125.ID {
		return nil, common.NewProviderError(common.ErrNotSupported, Name, "universe", market, nil)
	}

	var resp struct {
		Data []struct {
			Symbol   string `json:"symbol"`
			Name     string `json:"name"`
			Currency string `json:"currency"`
			Exchange string `json:"exchange"`
			Type     string `json:"type"`
		} `json:"data"`
	}
	params := url.Values{}
	params.Set("exchange", "TASE")
	params.Set("type", "Common Stock")
	if err := c.get(ctx, "/stocks", "", params, &resp); err != nil {
		return nil, err
	}

	out := make([]models.Constituent, 0, len(resp.Data))
	for _, s := range resp.Data {
		// numeric security ids are not tickers
		if _, err := strconv.Atoi(s.Symbol); err == nil {
			continue
		}
		name := s.Name
		if name == "" {
			name = s.Symbol
		}
		out = append(out, models.Constituent{Symbol: s.Symbol, Name: name})
	}
	c.logger.Info().Int("count", len(out)).Msg("Fetched TASE stocks from Twelve Data")
	return out, nil
}

type incomeStatement struct {
	FiscalDate      string   `json:"fiscal_date"`
	Sales           optFloat `json:"sales"`
	NetIncome       optFloat `json:"net_income"`
	OperatingIncome optFloat `json:"operating_income"`
	PretaxIncome    optFloat `json:"pretax_income"`
	EBITDA          optFloat `json:"ebitda"`
}

// operating prefers operating income, then pretax income, then EBITDA
func (s incomeStatement) operating() (float64, bool) {
	for _, v := range []optFloat{s.OperatingIncome, s.PretaxIncome, s.EBITDA} {
		if v.Valid {
			return v.Value, true
		}
	}
	return 0, false
}

type balanceSheet struct {
	FiscalDate  string `json:"fiscal_date"`
	Liabilities struct {
		NonCurrent struct {
			LongTermDebt optFloat `json:"long_term_debt"`
		} `json:"non_current_liabilities"`
	} `json:"liabilities"`
	Equity struct {
		Total       optFloat `json:"total_shareholders_equity"`
		CommonStock optFloat `json:"common_stock_equity"`
	} `json:"shareholders_equity"`
}

func (b balanceSheet) debtEquity() (float64, float64) {
	equity := b.Equity.Total
	if !equity.Valid {
		equity = b.Equity.CommonStock
	}
	return b.Liabilities.NonCurrent.LongTermDebt.Value, equity.Value
}

type cashFlow struct {
	FiscalDate string `json:"fiscal_date"`
	Operating  struct {
		CashFlow optFloat `json:"operating_cash_flow"`
	} `json:"operating_activities"`
}

func yearOf(date string) (int, bool) {
	t, err := time.Parse(fiscalDateLayout, date)
	if err != nil {
		return 0, false
	}
	return t.Year(), true
}

func (c *Client) incomeStatements(ctx context.Context, symbol, period string) ([]incomeStatement, error) {
	params := symbolParams(symbol)
	params.Set("period", period)
	var resp struct {
		IncomeStatement []incomeStatement `json:"income_statement"`
	}
	if err := c.get(ctx, "/income_statement", symbol, params, &resp); err != nil {
		return nil, err
	}
	return resp.IncomeStatement, nil
}

func (c *Client) balanceSheets(ctx context.Context, symbol, period string) ([]balanceSheet, error) {
	params := symbolParams(symbol)
	params.Set("period", period)
	var resp struct {
		BalanceSheet []balanceSheet `json:"balance_sheet"`
	}
	if err := c.get(ctx, "/balance_sheet", symbol, params, &resp); err != nil {
		return nil, err
	}
	return resp.BalanceSheet, nil
}

func (c *Client) cashFlows(ctx context.Context, symbol, period string) ([]cashFlow, error) {
	params := symbolParams(symbol)
	params.Set("period", period)
	var resp struct {
		CashFlow []cashFlow `json:"cash_flow"`
	}
	if err := c.get(ctx, "/cash_flow", symbol, params, &resp); err != nil {
		return nil, err
	}
	return resp.CashFlow, nil
}

// financials runs the three statement calls. Balance sheet and cash flow
// failures degrade to empty figures unless they are fatal.
func (c *Client) financials(ctx context.Context, symbol string, years int) (*models.FinancialRecord, error) {
	statements, err := c.incomeStatements(ctx, symbol, "annual")
	if err != nil {
		return nil, err
	}
	if len(statements) == 0 {
		return nil, common.NewProviderError(common.ErrNotFound, Name, "/income_statement", symbol, fmt.Errorf("no annual statements"))
	}
	if years > 0 && len(statements) > years {
		statements = statements[:years]
	}

	f := models.NewFinancialRecord(symbol)
	for _, s := range statements {
		y, ok := yearOf(s.FiscalDate)
		if !ok {
			continue
		}
		f.FiscalDates = append(f.FiscalDates, s.FiscalDate)
		if s.Sales.Valid {
			f.Revenues[y] = s.Sales.Value
		}
		if s.NetIncome.Valid {
			f.NetIncomes[y] = s.NetIncome.Value
		}
		op, _ := s.operating()
		f.OperatingIncomes[y] = op
	}
	f.FiscalDates = extendFiscalDates(f.FiscalDates, c.now())

	sheets, err := c.balanceSheets(ctx, symbol, "annual")
	switch {
	case err != nil && common.IsFatal(err):
		return nil, err
	case err != nil:
		c.logger.Warn().Err(err).Str("symbol", symbol).Msg("Balance sheet unavailable")
	case len(sheets) > 0:
		f.TotalDebt, f.TotalEquity = sheets[0].debtEquity()
	}

	flows, err := c.cashFlows(ctx, symbol, "annual")
	switch {
	case err != nil && common.IsFatal(err):
		return nil, err
	case err != nil:
		c.logger.Warn().Err(err).Str("symbol", symbol).Msg("Cash flow unavailable")
	default:
		if years > 0 && len(flows) > years {
			flows = flows[:years]
		}
		for _, fl := range flows {
			if y, ok := yearOf(fl.FiscalDate); ok && fl.Operating.CashFlow.Valid {
				f.OperatingCashFlows[y] = fl.Operating.CashFlow.Value
			}
		}
	}

	// Market cap and P/E ride along so a pricing source without them can
	// be backfilled from the statement record.
	mcap, pe, err := c.valuations(ctx, symbol)
	if err != nil {
		return nil, err
	}
	f.MarketCap = mcap
	f.PERatio = pe

	return f, nil
}

// valuations reads market cap and trailing P/E from /statistics. Non-fatal
// failures report zeros.
func (c *Client) valuations(ctx context.Context, symbol string) (float64, float64, error) {
	var stats statisticsResponse
	if err := c.get(ctx, "/statistics", symbol, symbolParams(symbol), &stats); err != nil {
		if common.IsFatal(err) {
			return 0, 0, err
		}
		c.logger.Warn().Err(err).Str("symbol", symbol).Msg("Statistics unavailable")
		return 0, 0, nil
	}
	var mcap, pe float64
	v := stats.Statistics.Valuations
	if v.MarketCap.Valid {
		mcap = toShekels(symbol, v.MarketCap.Value)
	}
	if v.TrailingPE.Valid && v.TrailingPE.Value > 0 {
		pe = v.TrailingPE.Value
	}
	return mcap, pe, nil
}

// extendFiscalDates prepends the next fiscal year end once it has passed,
// so prices line up even before that year's statements are filed.
func extendFiscalDates(dates []string, now time.Time) []string {
	if len(dates) == 0 {
		return dates
	}
	latest, err := time.Parse(fiscalDateLayout, dates[0])
	if err != nil {
		return dates
	}
	next := latest.AddDate(1, 0, 0)
	if !next.Before(now) {
		return dates
	}
	s := next.Format(fiscalDateLayout)
	for _, d := range dates {
		if d == s {
			return dates
		}
	}
	return append([]string{s}, dates...)
}

// FetchFinancials retrieves annual statements as one governed stock
func (c *Client) FetchFinancials(ctx context.Context, symbol string, years int) (*models.FinancialRecord, error) {
	if err := c.beginStock(ctx); err != nil {
		return nil, err
	}
	defer c.gov.StockComplete()
	return c.financials(ctx, symbol, years)
}

type quoteResponse struct {
	Symbol string   `json:"symbol"`
	Name   string   `json:"name"`
	Close  optFloat `json:"close"`
}

type statisticsResponse struct {
	Statistics struct {
		Valuations struct {
			MarketCap  optFloat `json:"market_capitalization"`
			TrailingPE optFloat `json:"trailing_pe"`
		} `json:"valuations_metrics"`
	} `json:"statistics"`
}

type eodResponse struct {
	Symbol   string   `json:"symbol"`
	Datetime string   `json:"datetime"`
	Close    optFloat `json:"close"`
}

// closeNear returns the close on date or up to priceFallbackDays before it
func (c *Client) closeNear(ctx context.Context, symbol, date string) (float64, bool, error) {
	d, err := time.Parse(fiscalDateLayout, date)
	if err != nil {
		return 0, false, nil
	}
	for offset := 0; offset <= priceFallbackDays; offset++ {
		params := symbolParams(symbol)
		params.Set("date", d.AddDate(0, 0, -offset).Format(fiscalDateLayout))
		var eod eodResponse
		err := c.get(ctx, "/eod", symbol, params, &eod)
		if err != nil {
			if common.IsFatal(err) {
				return 0, false, err
			}
			continue
		}
		if eod.Close.Valid {
			return toShekels(symbol, eod.Close.Value), true, nil
		}
	}
	return 0, false, nil
}

// marketData builds the pricing snapshot. Valuations already on known are
// reused instead of a second /statistics call.
func (c *Client) marketData(ctx context.Context, symbol string, fiscalDates []string, known *models.FinancialRecord) (*models.MarketSnapshot, error) {
	params := symbolParams(symbol)
	m := &models.MarketSnapshot{
		Symbol:       symbol,
		Name:         adapter.BaseSymbol(symbol),
		PriceHistory: make(map[string]float64),
	}

	var quote quoteResponse
	if err := c.get(ctx, "/quote", symbol, params, &quote); err != nil {
		if common.IsFatal(err) {
			return nil, err
		}
		c.logger.Warn().Err(err).Str("symbol", symbol).Msg("Quote unavailable")
	} else {
		if quote.Close.Valid {
			m.CurrentPrice = toShekels(symbol, quote.Close.Value)
		}
		if quote.Name != "" {
			m.Name = quote.Name
		}
	}

	if known != nil && known.MarketCap > 0 {
		m.MarketCap, m.PERatio = known.MarketCap, known.PERatio
	} else {
		mcap, pe, err := c.valuations(ctx, symbol)
		if err != nil {
			return nil, err
		}
		m.MarketCap, m.PERatio = mcap, pe
	}

	if fiscalDates == nil {
		statements, err := c.incomeStatements(ctx, symbol, "annual")
		if err != nil && common.IsFatal(err) {
			return nil, err
		}
		for i, s := range statements {
			if i == 5 {
				break
			}
			fiscalDates = append(fiscalDates, s.FiscalDate)
		}
	}

	for _, date := range fiscalDates {
		p, ok, err := c.closeNear(ctx, symbol, date)
		if err != nil {
			return nil, err
		}
		if !ok {
			c.logger.Warn().Str("symbol", symbol).Str("fiscal_date", date).Msg("No close near fiscal date")
			continue
		}
		m.PriceHistory[date] = p
	}
	return m, nil
}

// FetchMarketData retrieves quote, statistics and fiscal-date closes as one
// governed stock. Nil fiscalDates are read from the income statements.
func (c *Client) FetchMarketData(ctx context.Context, symbol string, fiscalDates []string) (*models.MarketSnapshot, error) {
	if err := c.beginStock(ctx); err != nil {
		return nil, err
	}
	defer c.gov.StockComplete()
	return c.marketData(ctx, symbol, fiscalDates, nil)
}

// FetchBoth retrieves statements and pricing under a single stock budget
func (c *Client) FetchBoth(ctx context.Context, symbol string, years int) (*models.FinancialRecord, *models.MarketSnapshot, error) {
	if err := c.beginStock(ctx); err != nil {
		return nil, nil, err
	}
	defer c.gov.StockComplete()

	f, err := c.financials(ctx, symbol, years)
	if err != nil {
		return nil, nil, err
	}
	m, err := c.marketData(ctx, symbol, f.FiscalDates, f)
	if err != nil {
		return nil, nil, err
	}
	return f, m, nil
}

// FetchBenchmarkPE reads the S&P 500 trailing P/E. Other markets report
// unavailable.
func (c *Client) FetchBenchmarkPE(ctx context.Context, market string) (float64, bool, error) {
	if market != models.MarketSP500.ID {
		return 0, false, nil
	}
	params := url.Values{}
	params.Set("symbol", "SPX")
	var stats statisticsResponse
	if err := c.get(ctx, "/statistics", "SPX", params, &stats); err != nil {
		if common.IsFatal(err) {
			return 0, false, err
		}
		c.logger.Warn().Err(err).Msg("Index statistics unavailable")
		return 0, false, nil
	}
	pe := stats.Statistics.Valuations.TrailingPE
	return pe.Value, pe.Valid && pe.Value > 0, nil
}

// FetchQuarterlyFinancials retrieves quarterly statements, most recent first
func (c *Client) FetchQuarterlyFinancials(ctx context.Context, symbol string) (*models.QuarterlyFinancials, error) {
	if err := c.beginStock(ctx); err != nil {
		return nil, err
	}
	defer c.gov.StockComplete()

	statements, err := c.incomeStatements(ctx, symbol, "quarterly")
	if err != nil {
		return nil, err
	}
	if len(statements) == 0 {
		return nil, common.NewProviderError(common.ErrNotFound, Name, "/income_statement", symbol, fmt.Errorf("no quarterly statements"))
	}

	q := &models.QuarterlyFinancials{Symbol: symbol}
	for _, s := range statements {
		if s.Sales.Valid {
			q.Revenues = append(q.Revenues, models.QuarterAmount{FiscalDate: s.FiscalDate, Amount: s.Sales.Value})
		}
		if s.NetIncome.Valid {
			q.NetIncomes = append(q.NetIncomes, models.QuarterAmount{FiscalDate: s.FiscalDate, Amount: s.NetIncome.Value})
		}
		if op, ok := s.operating(); ok {
			q.OperatingIncomes = append(q.OperatingIncomes, models.QuarterAmount{FiscalDate: s.FiscalDate, Amount: op})
		}
	}

	if sheets, err := c.balanceSheets(ctx, symbol, "quarterly"); err != nil {
		if common.IsFatal(err) {
			return nil, err
		}
		c.logger.Warn().Err(err).Str("symbol", symbol).Msg("Quarterly balance sheet unavailable")
	} else if len(sheets) > 0 {
		q.TotalDebt, q.TotalEquity = sheets[0].debtEquity()
	}

	if flows, err := c.cashFlows(ctx, symbol, "quarterly"); err != nil {
		if common.IsFatal(err) {
			return nil, err
		}
		c.logger.Warn().Err(err).Str("symbol", symbol).Msg("Quarterly cash flow unavailable")
	} else {
		for _, fl := range flows {
			if fl.Operating.CashFlow.Valid {
				q.OperatingCashFlows = append(q.OperatingCashFlows, models.QuarterAmount{FiscalDate: fl.FiscalDate, Amount: fl.Operating.CashFlow.Value})
			}
		}
	}
	return q, nil
}
