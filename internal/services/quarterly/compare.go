package quarterly

import (
	"math"

	"github.com/bobmcallan/growthfund/internal/models"
	"github.com/bobmcallan/growthfund/internal/report"
)

// WeightChangeThreshold is the smallest weight move reported as a change.
const WeightChangeThreshold = 0.001

// Compare diffs the previous composition against the new fund. Added and
// retained positions follow the new fund's order, removed ones the
// previous order.
func Compare(prev *report.UpdateDoc, f *models.Fund) report.Diff {
	d := report.Diff{PreviousFund: prev.FundName, PreviousDate: prev.Date}

	old := make(map[string]report.CompositionEntry, len(prev.Composition))
	for _, e := range prev.Composition {
		old[e.Symbol] = e
	}
	current := make(map[string]bool, len(f.Positions))

	for _, p := range f.Positions {
		sym := p.Stock.Symbol
		current[sym] = true
		score := report.PositionScore(p)
		o, ok := old[sym]
		if !ok {
			d.Added = append(d.Added, report.Change{
				Symbol: sym,
				Name:   p.Stock.Name,
				Type:   p.Type,
				Weight: p.Weight,
				Score:  score,
			})
			continue
		}
		d.Retained = append(d.Retained, report.Retained{
			Symbol:        sym,
			Name:          p.Stock.Name,
			OldWeight:     o.Weight,
			NewWeight:     p.Weight,
			OldScore:      o.Score,
			NewScore:      score,
			WeightChanged: math.Abs(p.Weight-o.Weight) > WeightChangeThreshold,
		})
	}

	for _, e := range prev.Composition {
		if current[e.Symbol] {
			continue
		}
		d.Removed = append(d.Removed, report.Change{
			Symbol: e.Symbol,
			Name:   e.Name,
			Type:   e.Type,
			Weight: e.Weight,
			Score:  e.Score,
		})
	}
	return d
}
