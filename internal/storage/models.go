package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSample is one observation of an instrument's price. Samples are append-only.
type PriceSample struct {
	Code             string
	Price            decimal.Decimal
	DividendYieldPct decimal.Decimal
	AnnualDividend   decimal.Decimal
	SampledAt        time.Time
}

// Prices returns the price series as floats, oldest first.
func Prices(samples []PriceSample) []float64 {
	out := make([]float64, 0, len(samples))
	for _, s := range samples {
		out = append(out, s.Price.InexactFloat64())
	}
	return out
}
