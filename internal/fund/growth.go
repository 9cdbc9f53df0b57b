// Package fund holds the pure fund construction logic: growth rates,
// normalised scoring, share-class collapsing, position sizing and
// composition checks. Nothing here performs I/O.
package fund

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/bobmcallan/growthfund/internal/models"
)

// GrowthRate is the compound annual growth rate in percent over the span
// most recent years. It is undefined when fewer years exist or the earliest
// value in the span is not positive.
func GrowthRate(values map[int]float64, span int) (float64, bool) {
	if span < 2 || len(values) < span {
		return 0, false
	}
	years := models.YearsDesc(values)[:span]
	latest := values[years[0]]
	earliest := values[years[span-1]]
	if earliest <= 0 {
		return 0, false
	}
	cagr := (math.Pow(latest/earliest, 1/float64(span-1)) - 1) * 100
	if math.IsNaN(cagr) || math.IsInf(cagr, 0) {
		return 0, false
	}
	return cagr, true
}

// Normalize rescales values to 0..100 by min-max. When every value is equal
// each maps to 50.
func Normalize(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	lo, hi := floats.Min(values), floats.Max(values)
	if hi == lo {
		for i := range out {
			out[i] = 50
		}
		return out
	}
	for i, v := range values {
		out[i] = (v - lo) / (hi - lo) * 100
	}
	return out
}

// MeanPositive averages the positive values; ok is false when there are none.
func MeanPositive(values []float64) (float64, bool) {
	var pos []float64
	for _, v := range values {
		if v > 0 {
			pos = append(pos, v)
		}
	}
	if len(pos) == 0 {
		return 0, false
	}
	return stat.Mean(pos, nil), true
}
