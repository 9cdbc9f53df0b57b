package router

import (
	"github.com/bobmcallan/growthfund/internal/clients/eodhd"
	"github.com/bobmcallan/growthfund/internal/clients/fmp"
	"github.com/bobmcallan/growthfund/internal/clients/twelvedata"
	"github.com/bobmcallan/growthfund/internal/clients/yahoo"
	"github.com/bobmcallan/growthfund/internal/common"
	"github.com/bobmcallan/growthfund/internal/governor"
	"github.com/bobmcallan/growthfund/internal/interfaces"
)

// DefaultRegistrations returns the built-in providers.
func DefaultRegistrations() []Registration {
	return []Registration{
		{
			Name:       twelvedata.Name,
			Credential: "TWELVEDATA_API_KEY",
			KeyName:    "twelvedata_api_key",
			ConfigKey:  func(cfg *common.Config) string { return cfg.Providers.TwelveData.APIKey },
			Factory:    newTwelveData,
		},
		{
			Name:       eodhd.Name,
			Credential: "EODHD_API_KEY",
			KeyName:    "eodhd_api_key",
			ConfigKey:  func(cfg *common.Config) string { return cfg.Providers.EODHD.APIKey },
			Factory:    newEODHD,
		},
		{
			Name:       fmp.Name,
			Credential: "FMP_API_KEY",
			KeyName:    "fmp_api_key",
			ConfigKey:  func(cfg *common.Config) string { return cfg.Providers.FMP.APIKey },
			Factory:    newFMP,
		},
		{
			Name:    yahoo.Name,
			Factory: newYahoo,
		},
	}
}

func newTwelveData(cfg *common.Config, apiKey string, logger *common.Logger) interfaces.Provider {
	c := cfg.Providers.TwelveData
	gov := governor.New(governor.ConfigFrom(c),
		governor.WithLogger(logger),
		governor.WithName(twelvedata.Name),
	)
	opts := []twelvedata.ClientOption{
		twelvedata.WithLogger(logger),
		twelvedata.WithGovernor(gov),
		twelvedata.WithTimeout(c.GetTimeout()),
	}
	if c.BaseURL != "" {
		opts = append(opts, twelvedata.WithBaseURL(c.BaseURL))
	}
	return twelvedata.NewClient(apiKey, opts...)
}

func newEODHD(cfg *common.Config, apiKey string, logger *common.Logger) interfaces.Provider {
	c := cfg.Providers.EODHD
	opts := []eodhd.ClientOption{
		eodhd.WithLogger(logger),
		eodhd.WithRateLimit(c.RateLimit),
		eodhd.WithTimeout(c.GetTimeout()),
	}
	if c.BaseURL != "" {
		opts = append(opts, eodhd.WithBaseURL(c.BaseURL))
	}
	return eodhd.NewClient(apiKey, opts...)
}

func newFMP(cfg *common.Config, apiKey string, logger *common.Logger) interfaces.Provider {
	c := cfg.Providers.FMP
	opts := []fmp.ClientOption{
		fmp.WithLogger(logger),
		fmp.WithRateLimit(c.RateLimit),
		fmp.WithTimeout(c.GetTimeout()),
	}
	if c.BaseURL != "" {
		opts = append(opts, fmp.WithBaseURL(c.BaseURL))
	}
	return fmp.NewClient(apiKey, opts...)
}

func newYahoo(cfg *common.Config, _ string, logger *common.Logger) interfaces.Provider {
	c := cfg.Providers.Yahoo
	opts := []yahoo.ClientOption{
		yahoo.WithLogger(logger),
		yahoo.WithRateLimit(c.RateLimit),
		yahoo.WithTimeout(c.GetTimeout()),
	}
	if c.BaseURL != "" {
		opts = append(opts, yahoo.WithBaseURL(c.BaseURL))
	}
	return yahoo.NewClient(opts...)
}
