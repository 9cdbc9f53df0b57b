// Package governor paces calls to a credit-metered provider. It tracks a
// per-minute credit budget from response headers, throttles before each
// stock, enforces a minimum gap between requests and retries quota errors.
package governor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/bobmcallan/growthfund/internal/common"
)

// Response headers reporting usage. Used is cumulative within the window.
const (
	HeaderCreditsUsed = "api-credits-used"
	HeaderCreditsLeft = "api-credits-left"
)

// FallbackCreditsPerMinute is assumed when plan detection fails.
const FallbackCreditsPerMinute = 610

// Config holds the budget parameters.
type Config struct {
	CreditsPerMinute   int
	MaxStocksPerMinute int
	CreditsPerStock    int
	SafetyFraction     float64
	Window             time.Duration
	MinInterval        time.Duration
	MaxRetries         int
	BaseBackoff        time.Duration
}

// DefaultConfig returns the budget used for a pro plan.
func DefaultConfig() Config {
	return Config{
		CreditsPerStock: 300,
		SafetyFraction:  0.65,
		Window:          62 * time.Second,
		MinInterval:     500 * time.Millisecond,
		MaxRetries:      3,
		BaseBackoff:     time.Second,
	}
}

// ConfigFrom builds a Config from the provider settings.
func ConfigFrom(c common.TwelveDataConfig) Config {
	d := DefaultConfig()
	cfg := Config{
		CreditsPerMinute:   c.CreditsPerMinute,
		MaxStocksPerMinute: c.MaxStocksPerMinute,
		CreditsPerStock:    c.CreditsPerStock,
		SafetyFraction:     c.SafetyFraction,
		Window:             common.ParseDurationOr(c.Window, d.Window),
		MinInterval:        common.ParseDurationOr(c.MinInterval, d.MinInterval),
		MaxRetries:         c.MaxRetries,
		BaseBackoff:        common.ParseDurationOr(c.BaseBackoff, d.BaseBackoff),
	}
	if cfg.CreditsPerStock <= 0 {
		cfg.CreditsPerStock = d.CreditsPerStock
	}
	if cfg.SafetyFraction <= 0 || cfg.SafetyFraction > 1 {
		cfg.SafetyFraction = d.SafetyFraction
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = d.MaxRetries
	}
	return cfg
}

// Clock abstracts time so tests can run without sleeping.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Governor is shared by every call a single provider instance makes.
type Governor struct {
	mu      sync.Mutex
	name    string
	cfg     Config
	clock   Clock
	limiter *rate.Limiter
	logger  *common.Logger

	windowStart    time.Time
	creditsUsed    int
	stocksInWindow int
	creditsLeft    int
	haveLeft       bool
	headerSeen     bool
}

// Option configures a Governor.
type Option func(*Governor)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(g *Governor) {
		g.clock = c
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) Option {
	return func(g *Governor) {
		g.logger = logger
	}
}

// WithName labels log lines and errors.
func WithName(name string) Option {
	return func(g *Governor) {
		g.name = name
	}
}

// New creates a Governor. When cfg.CreditsPerMinute is zero the budget stays
// unconfigured until Configure or ConfigureFromPlan is called.
func New(cfg Config, opts ...Option) *Governor {
	g := &Governor{
		name:   "governor",
		clock:  realClock{},
		logger: common.NewSilentLogger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	g.Configure(cfg)
	return g
}

// Configure replaces the budget. MaxStocksPerMinute is derived when zero.
func (g *Governor) Configure(cfg Config) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cfg.CreditsPerMinute > 0 && cfg.MaxStocksPerMinute <= 0 {
		cfg.MaxStocksPerMinute = MaxStocksFor(cfg.CreditsPerMinute, cfg.SafetyFraction, cfg.CreditsPerStock)
	}
	g.cfg = cfg
}

// Configured reports whether a credit ceiling is known.
func (g *Governor) Configured() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cfg.CreditsPerMinute > 0
}

// Config returns the active budget.
func (g *Governor) Config() Config {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cfg
}

// MaxStocksFor returns how many stocks fit in one window, at least one.
func MaxStocksFor(creditsPerMinute int, fraction float64, perStock int) int {
	if perStock <= 0 {
		return 1
	}
	n := int(float64(creditsPerMinute) * fraction / float64(perStock))
	if n < 1 {
		return 1
	}
	return n
}

// ConfigureFromPlan sets the ceiling from a usage report. Manual settings
// already present take precedence.
func (g *Governor) ConfigureFromPlan(plan string, planLimit int) {
	cfg := g.Config()
	if cfg.CreditsPerMinute > 0 {
		return
	}
	switch strings.ToLower(plan) {
	case "basic", "free":
		cfg.CreditsPerMinute = 8
		cfg.MaxStocksPerMinute = 1
		g.logger.Warn().Str("provider", g.name).Str("plan", plan).
			Msg("Basic plan detected: 8 credits/min is not enough for a full run, expect hours per universe")
	case "pro":
		cfg.CreditsPerMinute = planLimit
		if cfg.CreditsPerMinute <= 0 {
			cfg.CreditsPerMinute = FallbackCreditsPerMinute
		}
	default:
		cfg.CreditsPerMinute = planLimit
		if cfg.CreditsPerMinute <= 0 {
			cfg.CreditsPerMinute = 1500
		}
	}
	g.Configure(cfg)
	cfg = g.Config()
	g.logger.Info().Str("provider", g.name).Str("plan", plan).
		Int("credits_per_minute", cfg.CreditsPerMinute).
		Int("stocks_per_minute", cfg.MaxStocksPerMinute).
		Msg("Credit budget configured")
}

// ConfigureFallback applies the default ceiling after detection failed.
func (g *Governor) ConfigureFallback(err error) {
	cfg := g.Config()
	if cfg.CreditsPerMinute > 0 {
		return
	}
	cfg.CreditsPerMinute = FallbackCreditsPerMinute
	g.Configure(cfg)
	g.logger.Warn().Err(err).Str("provider", g.name).
		Int("credits_per_minute", FallbackCreditsPerMinute).
		Msg("Plan detection failed, using fallback credit budget")
}

func (g *Governor) resetWindow(now time.Time) {
	g.windowStart = now
	g.creditsUsed = 0
	g.stocksInWindow = 0
	g.haveLeft = false
}

// BeforeStock blocks until the next stock fits in the budget. Checks run in
// order: stock ceiling, remaining credits, projected usage. Any one that
// trips sleeps until the window rolls over.
func (g *Governor) BeforeStock(ctx context.Context) error {
	g.mu.Lock()
	now := g.clock.Now()
	g.headerSeen = false
	if g.windowStart.IsZero() {
		g.windowStart = now
	}
	elapsed := now.Sub(g.windowStart)
	if elapsed >= g.cfg.Window {
		g.resetWindow(now)
		g.mu.Unlock()
		return nil
	}

	wait := g.cfg.Window - elapsed
	var reason string
	threshold := int(float64(g.cfg.CreditsPerMinute) * g.cfg.SafetyFraction)
	switch {
	case g.cfg.MaxStocksPerMinute > 0 && g.stocksInWindow >= g.cfg.MaxStocksPerMinute:
		reason = "stock limit reached"
	case g.haveLeft && g.creditsLeft < g.cfg.CreditsPerStock:
		reason = "remaining credits below one stock"
	case g.cfg.CreditsPerMinute > 0 && g.creditsUsed+g.cfg.CreditsPerStock > threshold:
		reason = "projected usage above safe threshold"
	}
	if reason == "" {
		g.mu.Unlock()
		return nil
	}

	g.logger.Info().Str("provider", g.name).
		Int("stocks", g.stocksInWindow).
		Int("credits_used", g.creditsUsed).
		Int("threshold", threshold).
		Dur("wait", wait).
		Msg("Throttling: " + reason)
	g.mu.Unlock()

	if err := g.clock.Sleep(ctx, wait); err != nil {
		return err
	}

	g.mu.Lock()
	g.resetWindow(g.clock.Now())
	g.mu.Unlock()
	return nil
}

// StockComplete counts a finished stock. When no usage header arrived during
// the stock the estimated cost is charged instead.
func (g *Governor) StockComplete() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stocksInWindow++
	if !g.headerSeen {
		g.creditsUsed += g.cfg.CreditsPerStock
	}
}

// Usage returns credits used and stocks processed in the current window.
func (g *Governor) Usage() (credits, stocks int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.creditsUsed, g.stocksInWindow
}

// Do runs one request under the minimum interval, retrying 429 responses
// with exponential backoff. The caller owns the returned body.
func (g *Governor) Do(ctx context.Context, endpoint string, send func(ctx context.Context) (*http.Response, error)) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		if err := g.waitInterval(ctx); err != nil {
			return nil, err
		}

		resp, err := send(ctx)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			g.recordHeaders(resp.Header)
			return resp, nil
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if attempt >= g.cfg.MaxRetries {
			return nil, common.NewProviderError(common.ErrRateLimit, g.name, endpoint, "",
				fmt.Errorf("quota still exceeded after %d retries", g.cfg.MaxRetries))
		}
		backoff := g.cfg.BaseBackoff << attempt
		g.logger.Warn().Str("provider", g.name).Str("endpoint", endpoint).
			Int("retry", attempt+1).Dur("backoff", backoff).
			Msg("Rate limit exceeded (429), backing off")
		if err := g.clock.Sleep(ctx, backoff); err != nil {
			return nil, err
		}
	}
}

func (g *Governor) waitInterval(ctx context.Context) error {
	now := g.clock.Now()
	r := g.limiter.ReserveN(now, 1)
	if !r.OK() {
		return nil
	}
	return g.clock.Sleep(ctx, r.DelayFrom(now))
}

func (g *Governor) recordHeaders(h http.Header) {
	usedStr, leftStr := h.Get(HeaderCreditsUsed), h.Get(HeaderCreditsLeft)
	if usedStr == "" && leftStr == "" {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.headerSeen = true
	if g.windowStart.IsZero() {
		g.windowStart = g.clock.Now()
	}
	if used, err := strconv.Atoi(usedStr); err == nil {
		g.creditsUsed = used
	}
	left, err := strconv.Atoi(leftStr)
	if err != nil {
		return
	}
	g.creditsLeft = left
	g.haveLeft = true

	lvl := zerolog.DebugLevel
	switch {
	case left == 0:
		lvl = zerolog.ErrorLevel
	case left < 400:
		lvl = zerolog.WarnLevel
	case left < 600:
		lvl = zerolog.InfoLevel
	}
	g.logger.WithLevel(lvl).Str("provider", g.name).Int("credits_used", g.creditsUsed).
		Int("credits_left", left).Int("credits_per_minute", g.cfg.CreditsPerMinute).
		Msg("Credit usage")
}
