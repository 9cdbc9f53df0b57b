// Package common provides shared utilities for Growth Fund
package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for Growth Fund
type Config struct {
	Environment string            `toml:"environment"`
	Market      string            `toml:"market"` // default market when the CLI is not given one
	Storage     StorageConfig     `toml:"storage"`
	Output      OutputConfig      `toml:"output"`
	Providers   ProvidersConfig   `toml:"providers"`
	Fund        FundConfig        `toml:"fund"`
	Scoring     ScoringConfig     `toml:"scoring"`
	Eligibility EligibilityConfig `toml:"eligibility"`
	Update      UpdateConfig      `toml:"update"`
	Logging     LoggingConfig     `toml:"logging"`
	Scheduler   SchedulerConfig   `toml:"scheduler"`
}

// StorageConfig holds the cache location.
type StorageConfig struct {
	CachePath string `toml:"cache_path"`
	UseCache  bool   `toml:"use_cache"`
}

// StocksPath is where per-symbol records are kept.
func (s StorageConfig) StocksPath() string {
	return filepath.Join(s.CachePath, "stocks_data")
}

// ConstituentsPath is where universe lists are kept.
func (s StorageConfig) ConstituentsPath() string {
	return filepath.Join(s.CachePath, "index_constituents")
}

// OutputConfig holds artifact output settings.
type OutputConfig struct {
	Path string `toml:"path"`
}

// ProvidersConfig selects sources and configures each provider.
type ProvidersConfig struct {
	FinancialSource string           `toml:"financial_source"` // empty means walk the fallback chain
	PricingSource   string           `toml:"pricing_source"`
	TwelveData      TwelveDataConfig `toml:"twelvedata"`
	EODHD           ClientConfig     `toml:"eodhd"`
	FMP             ClientConfig     `toml:"fmp"`
	Yahoo           ClientConfig     `toml:"yahoo"`
}

// ClientConfig holds HTTP client settings for a provider.
type ClientConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	RateLimit int    `toml:"rate_limit"` // requests per second
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *ClientConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// TwelveDataConfig adds credit governor settings to the client settings.
type TwelveDataConfig struct {
	ClientConfig
	CreditsPerMinute   int     `toml:"credits_per_minute"`    // 0 = detect from the usage endpoint
	MaxStocksPerMinute int     `toml:"max_stocks_per_minute"` // 0 = derive from credits
	CreditsPerStock    int     `toml:"credits_per_stock"`
	SafetyFraction     float64 `toml:"safety_fraction"`
	Window             string  `toml:"window"`
	MinInterval        string  `toml:"min_interval"`
	MaxRetries         int     `toml:"max_retries"`
	BaseBackoff        string  `toml:"base_backoff"`
}

// FundConfig holds composition settings.
type FundConfig struct {
	Quarter         string    `toml:"quarter"` // empty means the current quarter
	Year            int       `toml:"year"`
	Weights         []float64 `toml:"weights"`
	BaseCount       int       `toml:"base_count"`
	PotentialCount  int       `toml:"potential_count"`
	WeightTolerance float64   `toml:"weight_tolerance"`
}

// ScoringConfig holds sub-score weights and growth spans.
type ScoringConfig struct {
	BaseNetIncomeGrowth      float64 `toml:"base_net_income_growth"`
	BaseRevenueGrowth        float64 `toml:"base_revenue_growth"`
	BaseMarketCap            float64 `toml:"base_market_cap"`
	PotentialNetIncomeGrowth float64 `toml:"potential_net_income_growth"`
	PotentialMomentum        float64 `toml:"potential_momentum"`
	PotentialValuation       float64 `toml:"potential_valuation"`
	BaseGrowthYears          int     `toml:"base_growth_years"`
	PotentialGrowthYears     int     `toml:"potential_growth_years"`
}

// EligibilityConfig holds the filter thresholds.
type EligibilityConfig struct {
	BaseNetIncomeYears        int     `toml:"base_net_income_years"`
	BaseOperatingIncomeYears  int     `toml:"base_operating_income_years"`
	BaseOperatingIncomeMinPos int     `toml:"base_operating_income_min_positive"`
	MaxDebtToEquity           float64 `toml:"max_debt_to_equity"`
	PotentialNetIncomeYears   int     `toml:"potential_net_income_years"`
	MinHistoryYears           int     `toml:"min_history_years"`
	HistoryYears              int     `toml:"history_years"` // years of statements to request
}

// UpdateConfig holds quarterly update settings.
type UpdateConfig struct {
	BaseCandidates      int `toml:"base_candidates"`
	PotentialCandidates int `toml:"potential_candidates"`
	MinStocks           int `toml:"min_stocks"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `toml:"level"`
}

// SchedulerConfig controls the quarterly update schedule.
type SchedulerConfig struct {
	Enabled bool     `toml:"enabled"`
	Spec    string   `toml:"spec"` // cron expression
	Markets []string `toml:"markets"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Market:      "SP500",
		Storage: StorageConfig{
			CachePath: "cache",
			UseCache:  true,
		},
		Output: OutputConfig{
			Path: "Fund_Docs",
		},
		Providers: ProvidersConfig{
			TwelveData: TwelveDataConfig{
				ClientConfig: ClientConfig{
					BaseURL: "https://api.twelvedata.com",
					Timeout: "30s",
				},
				CreditsPerStock: 300,
				SafetyFraction:  0.65,
				Window:          "62s",
				MinInterval:     "500ms",
				MaxRetries:      3,
				BaseBackoff:     "1s",
			},
			EODHD: ClientConfig{
				BaseURL:   "https://eodhd.com/api",
				RateLimit: 10,
				Timeout:   "30s",
			},
			FMP: ClientConfig{
				BaseURL:   "https://financialmodelingprep.com/api/v3",
				RateLimit: 5,
				Timeout:   "30s",
			},
			Yahoo: ClientConfig{
				BaseURL:   "https://query1.finance.yahoo.com",
				RateLimit: 2,
				Timeout:   "30s",
			},
		},
		Fund: FundConfig{
			Weights:         []float64{0.18, 0.16, 0.16, 0.10, 0.10, 0.10, 0.06, 0.06, 0.04, 0.04},
			BaseCount:       6,
			PotentialCount:  4,
			WeightTolerance: 0.001,
		},
		Scoring: ScoringConfig{
			BaseNetIncomeGrowth:      0.40,
			BaseRevenueGrowth:        0.35,
			BaseMarketCap:            0.25,
			PotentialNetIncomeGrowth: 0.50,
			PotentialMomentum:        0.30,
			PotentialValuation:       0.20,
			BaseGrowthYears:          3,
			PotentialGrowthYears:     2,
		},
		Eligibility: EligibilityConfig{
			BaseNetIncomeYears:        5,
			BaseOperatingIncomeYears:  5,
			BaseOperatingIncomeMinPos: 4,
			MaxDebtToEquity:           0.60,
			PotentialNetIncomeYears:   2,
			MinHistoryYears:           2,
			HistoryYears:              5,
		},
		Update: UpdateConfig{
			BaseCandidates:      30,
			PotentialCandidates: 20,
			MinStocks:           10,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Scheduler: SchedulerConfig{
			Spec:    "0 6 2 1,4,7,10 *",
			Markets: []string{"SP500", "TASE125"},
		},
	}
}

// LoadConfig loads configuration from files with environment overrides.
// A .env file in the working directory is read first when present.
func LoadConfig(paths ...string) (*Config, error) {
	_ = godotenv.Load()

	config := NewDefaultConfig()

	// Later files override earlier ones
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("GROWTHFUND_ENV"); env != "" {
		config.Environment = env
	}

	if level := os.Getenv("GROWTHFUND_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if debug := os.Getenv("DEBUG_MODE"); parseBool(debug) {
		config.Logging.Level = "debug"
	}

	if m := os.Getenv("GROWTHFUND_MARKET"); m != "" {
		config.Market = strings.ToUpper(m)
	}

	if path := os.Getenv("GROWTHFUND_CACHE_PATH"); path != "" {
		config.Storage.CachePath = path
	}
	if v := os.Getenv("USE_CACHE"); v != "" {
		config.Storage.UseCache = parseBool(v)
	}
	if path := os.Getenv("OUTPUT_DIRECTORY"); path != "" {
		config.Output.Path = path
	}

	// DATA_SOURCE sets both roles; the specific variables win.
	if v := os.Getenv("DATA_SOURCE"); v != "" {
		config.Providers.FinancialSource = strings.ToLower(v)
		config.Providers.PricingSource = strings.ToLower(v)
	}
	if v := os.Getenv("FINANCIAL_DATA_SOURCE"); v != "" {
		config.Providers.FinancialSource = strings.ToLower(v)
	}
	if v := os.Getenv("PRICING_DATA_SOURCE"); v != "" {
		config.Providers.PricingSource = strings.ToLower(v)
	}

	if v := os.Getenv("TWELVEDATA_API_KEY"); v != "" {
		config.Providers.TwelveData.APIKey = v
	}
	if v := os.Getenv("EODHD_API_KEY"); v != "" {
		config.Providers.EODHD.APIKey = v
	}
	if v := os.Getenv("FMP_API_KEY"); v != "" {
		config.Providers.FMP.APIKey = v
	}

	if v := os.Getenv("TWELVEDATA_CREDITS_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Providers.TwelveData.CreditsPerMinute = n
		}
	}
	if v := os.Getenv("TWELVEDATA_MAX_STOCKS_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Providers.TwelveData.MaxStocksPerMinute = n
		}
	}

	if q := os.Getenv("FUND_QUARTER"); q != "" {
		config.Fund.Quarter = strings.ToUpper(q)
	}
	if y := os.Getenv("FUND_YEAR"); y != "" {
		if n, err := strconv.Atoi(y); err == nil {
			config.Fund.Year = n
		}
	}
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// Validate returns the settings that make the config unusable.
func (c *Config) Validate() []string {
	var problems []string
	if c.Fund.BaseCount < 1 {
		problems = append(problems, fmt.Sprintf("fund.base_count %d must be at least 1", c.Fund.BaseCount))
	}
	if c.Fund.PotentialCount < 1 {
		problems = append(problems, fmt.Sprintf("fund.potential_count %d must be at least 1", c.Fund.PotentialCount))
	}
	if len(c.Fund.Weights) != c.Fund.BaseCount+c.Fund.PotentialCount {
		problems = append(problems, fmt.Sprintf("fund.weights has %d entries, want %d", len(c.Fund.Weights), c.Fund.BaseCount+c.Fund.PotentialCount))
	}
	var sum float64
	for _, w := range c.Fund.Weights {
		sum += w
	}
	if d := sum - 1.0; d > c.Fund.WeightTolerance || d < -c.Fund.WeightTolerance {
		problems = append(problems, fmt.Sprintf("fund.weights sum to %.4f", sum))
	}
	if c.Fund.Quarter != "" {
		if _, err := ParseQuarter(c.Fund.Quarter); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if c.Fund.Year != 0 && (c.Fund.Year < 2000 || c.Fund.Year > 2100) {
		problems = append(problems, fmt.Sprintf("fund.year %d out of range 2000-2100", c.Fund.Year))
	}
	if c.Storage.CachePath == "" {
		problems = append(problems, "storage.cache_path is empty")
	}
	if c.Output.Path == "" {
		problems = append(problems, "output.path is empty")
	}
	return problems
}

// ResolveAPIKey resolves an API key from the environment, falling back to
// the configured value.
func ResolveAPIKey(name string, fallback string) (string, error) {
	keyToEnvMapping := map[string][]string{
		"twelvedata_api_key": {"TWELVEDATA_API_KEY", "GROWTHFUND_TWELVEDATA_API_KEY"},
		"eodhd_api_key":      {"EODHD_API_KEY", "GROWTHFUND_EODHD_API_KEY"},
		"fmp_api_key":        {"FMP_API_KEY", "GROWTHFUND_FMP_API_KEY"},
	}

	if envVarNames, ok := keyToEnvMapping[name]; ok {
		for _, envVarName := range envVarNames {
			if envValue := os.Getenv(envVarName); envValue != "" {
				return envValue, nil
			}
		}
	}

	if fallback != "" {
		return fallback, nil
	}

	return "", fmt.Errorf("API key '%s' not found in environment or config", name)
}

// ParseDurationOr parses s, returning def when s is empty or invalid.
func ParseDurationOr(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
