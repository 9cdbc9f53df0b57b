package fund

import (
	"github.com/shopspring/decimal"

	"github.com/bobmcallan/growthfund/internal/models"
)

// Allocation pairs a stock with its target weight.
type Allocation struct {
	Stock  *models.StockRecord
	Weight float64
}

// MinimumUnitCost sizes one fund unit so the highest-priced position holds
// exactly one share. Every other position gets round(unitCost*weight/price)
// shares, at least one, with halves rounded to even. It returns the actual
// cost of a unit and shares per symbol; without any positive price or
// weight the cost is zero and the map empty.
func MinimumUnitCost(allocs []Allocation) (float64, map[string]int) {
	var maxPrice, maxWeight float64
	for _, a := range allocs {
		if p := a.Stock.CurrentPrice(); p > maxPrice {
			maxPrice = p
			maxWeight = a.Weight
		}
	}
	if maxPrice <= 0 || maxWeight <= 0 {
		return 0, map[string]int{}
	}

	unitCost := decimal.NewFromFloat(maxPrice).Div(decimal.NewFromFloat(maxWeight))
	shares := make(map[string]int, len(allocs))
	actual := decimal.Zero
	for _, a := range allocs {
		price := a.Stock.CurrentPrice()
		if price <= 0 {
			continue
		}
		p := decimal.NewFromFloat(price)
		n := unitCost.Mul(decimal.NewFromFloat(a.Weight)).Div(p).RoundBank(0).IntPart()
		if n < 1 {
			n = 1
		}
		shares[a.Stock.Symbol] = int(n)
		actual = actual.Add(p.Mul(decimal.NewFromInt(n)))
	}
	cost, _ := actual.Float64()
	return cost, shares
}
