// Package models defines data structures for Growth Fund
package models

import (
	"sort"
	"strings"
)

// Market describes an equity universe the fund can be built from.
type Market struct {
	ID              string  `json:"id"`
	Suffix          string  `json:"suffix"`   // exchange suffix used in cache keys
	Currency        string  `json:"currency"` // ISO 4217
	Exchange        string  `json:"exchange"`
	Secondary       bool    `json:"secondary"` // non-US listing, symbols carry the suffix
	EstimatedPE     float64 `json:"estimated_pe,omitempty"`
	BenchmarkSymbol string  `json:"benchmark_symbol,omitempty"`
}

// Known markets.
var (
	MarketSP500 = Market{
		ID:              "SP500",
		Suffix:          "US",
		Currency:        "USD",
		Exchange:        "US",
		BenchmarkSymbol: "GSPC.INDX",
	}
	MarketTASE125 = Market{
		ID:          "TASE125",
		Suffix:      "TA",
		Currency:    "ILS",
		Exchange:    "TA",
		Secondary:   true,
		EstimatedPE: 14.0,
	}
)

var markets = map[string]Market{
	MarketSP500.ID:   MarketSP500,
	MarketTASE125.ID: MarketTASE125,
}

// LookupMarket finds a market by ID, case-insensitively.
func LookupMarket(id string) (Market, bool) {
	m, ok := markets[strings.ToUpper(strings.TrimSpace(id))]
	return m, ok
}

// MarketIDs lists the known market IDs in sorted order.
func MarketIDs() []string {
	ids := make([]string, 0, len(markets))
	for id := range markets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Constituent is one member of an index universe.
type Constituent struct {
	Symbol    string `json:"symbol"`
	Name      string `json:"name"`
	Sector    string `json:"sector,omitempty"`
	SubSector string `json:"sub_sector,omitempty"`
}
