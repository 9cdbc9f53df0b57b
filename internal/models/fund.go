package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// PositionType distinguishes the two fund sleeves.
type PositionType string

const (
	PositionBase      PositionType = "base"
	PositionPotential PositionType = "potential"
)

// FundPosition is one holding of a fund.
type FundPosition struct {
	Stock         *StockRecord `json:"stock"`
	Weight        float64      `json:"weight"`
	SharesPerUnit int          `json:"shares_per_unit"`
	Type          PositionType `json:"type"`
}

// ValuePerUnit is shares times current price.
func (p FundPosition) ValuePerUnit() float64 {
	return float64(p.SharesPerUnit) * p.Stock.CurrentPrice()
}

// Fund is one quarter's ten-position composition.
type Fund struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Market      string         `json:"market"`
	Quarter     string         `json:"quarter"`
	Year        int            `json:"year"`
	CreatedAt   time.Time      `json:"created_at"`
	Positions   []FundPosition `json:"positions"`
	MinimumCost float64        `json:"minimum_cost"`
}

// TotalWeight sums position weights.
func (f *Fund) TotalWeight() float64 {
	var total float64
	for _, p := range f.Positions {
		total += p.Weight
	}
	return total
}

// PositionsOf returns positions of the given type, in fund order.
func (f *Fund) PositionsOf(t PositionType) []FundPosition {
	var out []FundPosition
	for _, p := range f.Positions {
		if p.Type == t {
			out = append(out, p)
		}
	}
	return out
}

// Symbols returns position symbols in fund order.
func (f *Fund) Symbols() []string {
	out := make([]string, len(f.Positions))
	for i, p := range f.Positions {
		out[i] = p.Stock.Symbol
	}
	return out
}

// FailureEntry records one skipped symbol.
type FailureEntry struct {
	Category string `json:"category"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Reason   string `json:"reason"`
}

// FailureLog collects per-symbol failures for the run summary.
type FailureLog struct {
	Entries   []FailureEntry `json:"entries"`
	Succeeded int            `json:"succeeded"`
}

// Add records a failure.
func (l *FailureLog) Add(category, symbol, name, reason string) {
	l.Entries = append(l.Entries, FailureEntry{Category: category, Symbol: symbol, Name: name, Reason: reason})
}

// Success counts a processed symbol.
func (l *FailureLog) Success() {
	l.Succeeded++
}

// Counts returns failures per category.
func (l *FailureLog) Counts() map[string]int {
	out := make(map[string]int)
	for _, e := range l.Entries {
		out[e.Category]++
	}
	return out
}

// Summary renders a one-line report, categories sorted by name.
func (l *FailureLog) Summary() string {
	counts := l.Counts()
	cats := make([]string, 0, len(counts))
	for c := range counts {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	parts := make([]string, len(cats))
	for i, c := range cats {
		parts[i] = fmt.Sprintf("%s=%d", c, counts[c])
	}
	s := fmt.Sprintf("processed=%d failed=%d", l.Succeeded, len(l.Entries))
	if len(parts) > 0 {
		s += " (" + strings.Join(parts, ", ") + ")"
	}
	return s
}
