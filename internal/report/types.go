// Package report renders and parses the markdown artifacts a run publishes:
// the fund document, the update document with ranked candidates, the
// quarterly comparison and the changelog.
package report

import (
	"github.com/bobmcallan/growthfund/internal/models"
)

// Section headings of the update document. The parser locates tables by
// these headings.
const (
	HeadingFilterStats = "Filter Statistics"
	HeadingBase        = "Ranked Base Candidates"
	HeadingPotential   = "Ranked Potential Candidates"
	HeadingComposition = "Final Composition"

	updateTitlePrefix = "Fund Update "
	updatedPrefix     = "Updated:"
)

// RankedEntry is one row of a ranked candidates table.
type RankedEntry struct {
	Rank   int
	Name   string
	Symbol string
	Score  float64
}

// CompositionEntry is one row of the final composition table.
type CompositionEntry struct {
	Name   string
	Symbol string
	Type   models.PositionType
	Weight float64 // 0-1
	Score  float64
	Price  float64
	Shares int
}

// FilterStats counts how the universe fared against the eligibility rules.
type FilterStats struct {
	Total             int
	BaseEligible      int
	PotentialEligible int
	Rejected          int
}

// UpdateDoc is the content of a <Fund>_Update.md artifact.
type UpdateDoc struct {
	FundName    string
	Date        string
	Stats       *FilterStats
	Base        []RankedEntry
	Potential   []RankedEntry
	Composition []CompositionEntry
}

// Change is a position added to or removed from a fund.
type Change struct {
	Symbol string
	Name   string
	Type   models.PositionType
	Weight float64
	Score  float64
}

// Retained is a position present in both funds.
type Retained struct {
	Symbol        string
	Name          string
	OldWeight     float64
	NewWeight     float64
	OldScore      float64
	NewScore      float64
	WeightChanged bool
}

// Diff compares a new fund against the previous period's composition.
type Diff struct {
	PreviousFund string
	PreviousDate string
	Added        []Change
	Removed      []Change
	Retained     []Retained
}

// RankedFrom turns scored stocks into table rows. score picks the base or
// potential score; unscored stocks rank with 0.
func RankedFrom(stocks []*models.StockRecord, score func(*models.StockRecord) *float64) []RankedEntry {
	out := make([]RankedEntry, len(stocks))
	for i, s := range stocks {
		var v float64
		if p := score(s); p != nil {
			v = *p
		}
		out[i] = RankedEntry{Rank: i + 1, Name: s.Name, Symbol: s.Symbol, Score: v}
	}
	return out
}

// PositionScore returns the score matching the position type.
func PositionScore(p models.FundPosition) float64 {
	s := p.Stock.BaseScore
	if p.Type == models.PositionPotential {
		s = p.Stock.PotentialScore
	}
	if s == nil {
		return 0
	}
	return *s
}

// CompositionFrom turns fund positions into table rows.
func CompositionFrom(f *models.Fund) []CompositionEntry {
	out := make([]CompositionEntry, len(f.Positions))
	for i, p := range f.Positions {
		out[i] = CompositionEntry{
			Name:   p.Stock.Name,
			Symbol: p.Stock.Symbol,
			Type:   p.Type,
			Weight: p.Weight,
			Score:  PositionScore(p),
			Price:  p.Stock.CurrentPrice(),
			Shares: p.SharesPerUnit,
		}
	}
	return out
}
