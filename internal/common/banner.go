package common

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ternarybob/banner"
)

var (
	bannerLine = banner.ColorCyan
	bannerText = banner.ColorBold + banner.ColorWhite
)

var bannerArt = []string{
	`   ____                    _   _       _____                _ `,
	`  / ___|_ __ _____      __| |_| |__   |  ___|   _ _ __   __| |`,
	` | |  _| '__/ _ \ \ /\ / /| __| '_ \  | |_ | | | | '_ \ / _` + "`" + ` |`,
	` | |_| | | | (_) \ V  V / | |_| | | | |  _|| |_| | | | | (_| |`,
	`  \____|_|  \___/ \_/\_/   \__|_| |_| |_|   \__,_|_| |_|\__,_|`,
}

func rule(width int) string {
	return bannerLine + strings.Repeat("═", width) + banner.ColorReset
}

// PrintBanner displays the startup banner on stderr and logs the same
// settings.
func PrintBanner(config *Config, logger *Logger) {
	writeBanner(os.Stderr, config, GetVersionInfo())

	logger.Info().
		Str("version", Version).
		Str("build", Build).
		Str("commit", GitCommit).
		Str("environment", config.Environment).
		Str("market", config.Market).
		Str("cache", config.Storage.CachePath).
		Str("output", config.Output.Path).
		Msg("Application started")
}

func writeBanner(w io.Writer, config *Config, v VersionInfo) {
	hr := rule(70)
	fmt.Fprintf(w, "\n%s\n\n", hr)
	for _, line := range bannerArt {
		fmt.Fprintf(w, "%s%s%s\n", bannerText, line, banner.ColorReset)
	}
	fmt.Fprintf(w, "\n%s  Ten-Position Growth Fund Builder%s\n\n%s\n\n", bannerText, banner.ColorReset, hr)

	cache := "off"
	if config.Storage.UseCache {
		cache = config.Storage.CachePath
	}
	rows := [][2]string{
		{"Version", v.Version},
		{"Build", v.Build},
		{"Commit", v.GitCommit},
		{"Environment", config.Environment},
		{"Market", config.Market},
		{"Cache", cache},
		{"Output", config.Output.Path},
	}
	if src := config.Providers.FinancialSource; src != "" {
		rows = append(rows, [2]string{"Financials", src})
	}
	if src := config.Providers.PricingSource; src != "" {
		rows = append(rows, [2]string{"Pricing", src})
	}
	for _, kv := range rows {
		fmt.Fprintf(w, "%s  %-16s %s%s\n", bannerText, kv[0], kv[1], banner.ColorReset)
	}
	fmt.Fprintf(w, "\n%s\n\n", hr)
}

// PrintShutdownBanner displays the shutdown banner on stderr.
func PrintShutdownBanner(logger *Logger) {
	hr := rule(42)
	fmt.Fprintf(os.Stderr, "\n%s\n%s  GROWTH FUND: SHUTTING DOWN%s\n%s\n\n", hr, bannerText, banner.ColorReset, hr)
	logger.Info().Msg("Application shutting down")
}
