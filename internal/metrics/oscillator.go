// Package metrics derives the momentum oscillator and yield ratios used for ranking.
// Everything here is pure: identical input gives identical output.
package metrics

import "math"

// DefaultPeriods are the oscillator windows computed when none are configured.
var DefaultPeriods = []int{14, 28}

// OscillatorResult is the oscillator value for one period. Value is nil when the
// series is too short.
type OscillatorResult struct {
	Period int      `json:"period"`
	Value  *float64 `json:"value"`
}

// RSI computes the Wilder-smoothed relative strength index of prices (oldest first)
// over period. The result is in [0, 100], rounded to 2 decimals, or nil when fewer
// than period+1 prices are given.
func RSI(prices []float64, period int) *float64 {
	if period <= 0 || len(prices) < period+1 {
		return nil
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		gain, loss := split(prices[i] - prices[i-1])
		avgGain += gain
		avgLoss += loss
	}
	p := float64(period)
	avgGain /= p
	avgLoss /= p

	for i := period + 1; i < len(prices); i++ {
		gain, loss := split(prices[i] - prices[i-1])
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
	}

	var v float64
	switch {
	case avgLoss == 0 && avgGain > 0:
		v = 100
	case avgLoss == 0:
		v = 50
	default:
		rs := avgGain / avgLoss
		v = round2(100 - 100/(1+rs))
	}
	return &v
}

// Oscillators computes RSI for every period.
func Oscillators(prices []float64, periods []int) []OscillatorResult {
	if len(periods) == 0 {
		periods = DefaultPeriods
	}
	out := make([]OscillatorResult, 0, len(periods))
	for _, period := range periods {
		out = append(out, OscillatorResult{Period: period, Value: RSI(prices, period)})
	}
	return out
}

func split(change float64) (gain, loss float64) {
	if change > 0 {
		return change, 0
	}
	if change < 0 {
		return 0, -change
	}
	return 0, 0
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
