package fund

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/bobmcallan/growthfund/internal/common"
	"github.com/bobmcallan/growthfund/internal/models"
)

// Builder turns ranked selections into a sized, validated fund.
type Builder struct {
	cfg common.FundConfig
	now func() time.Time
}

// NewBuilder creates a Builder.
func NewBuilder(cfg common.FundConfig) *Builder {
	return &Builder{cfg: cfg, now: time.Now}
}

// Compose assigns positional weights to base then potential selections,
// sizes a unit and returns the fund with any composition violations.
func (b *Builder) Compose(name, market string, period common.Period, base, potential []*models.StockRecord) (*models.Fund, []string) {
	f := &models.Fund{
		ID:        uuid.NewString(),
		Name:      name,
		Market:    market,
		Quarter:   period.Quarter.String(),
		Year:      period.Year,
		CreatedAt: b.now(),
	}

	allocs := make([]Allocation, 0, len(base)+len(potential))
	add := func(stocks []*models.StockRecord, t models.PositionType) {
		for _, st := range stocks {
			i := len(f.Positions)
			var w float64
			if i < len(b.cfg.Weights) {
				w = b.cfg.Weights[i]
			}
			f.Positions = append(f.Positions, models.FundPosition{Stock: st, Weight: w, Type: t})
			allocs = append(allocs, Allocation{Stock: st, Weight: w})
		}
	}
	add(base, models.PositionBase)
	add(potential, models.PositionPotential)

	cost, shares := MinimumUnitCost(allocs)
	f.MinimumCost = cost
	for i := range f.Positions {
		f.Positions[i].SharesPerUnit = shares[f.Positions[i].Stock.Symbol]
	}

	return f, b.Validate(f)
}

// Validate checks the composition rules and returns every violation.
func (b *Builder) Validate(f *models.Fund) []string {
	var errs []string

	total := f.TotalWeight()
	if math.Abs(total-1.0) > b.cfg.WeightTolerance {
		errs = append(errs, fmt.Sprintf("weights sum to %.2f%%, want 100%%", total*100))
	}

	want := b.cfg.BaseCount + b.cfg.PotentialCount
	if len(f.Positions) != want {
		errs = append(errs, fmt.Sprintf("fund has %d positions, want %d", len(f.Positions), want))
	}
	if n := len(f.PositionsOf(models.PositionBase)); n != b.cfg.BaseCount {
		errs = append(errs, fmt.Sprintf("fund has %d base positions, want %d", n, b.cfg.BaseCount))
	}
	if n := len(f.PositionsOf(models.PositionPotential)); n != b.cfg.PotentialCount {
		errs = append(errs, fmt.Sprintf("fund has %d potential positions, want %d", n, b.cfg.PotentialCount))
	}

	seen := make(map[string]bool, len(f.Positions))
	for _, p := range f.Positions {
		if seen[p.Stock.Symbol] {
			errs = append(errs, fmt.Sprintf("duplicate symbol %s", p.Stock.Symbol))
		}
		seen[p.Stock.Symbol] = true
		if p.SharesPerUnit < 1 {
			errs = append(errs, fmt.Sprintf("%s has %d shares per unit, want a positive integer", p.Stock.Symbol, p.SharesPerUnit))
		}
	}
	return errs
}
