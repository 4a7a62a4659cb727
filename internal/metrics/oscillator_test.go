package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func series(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func TestRSIBoundaries(t *testing.T) {
	up := RSI(series(15, 100, 1), 14)
	require.NotNil(t, up)
	assert.Equal(t, 100.0, *up)

	down := RSI(series(15, 100, -1), 14)
	require.NotNil(t, down)
	assert.Equal(t, 0.0, *down)

	flat := RSI(series(30, 100, 0), 14)
	require.NotNil(t, flat)
	assert.Equal(t, 50.0, *flat)

	assert.Nil(t, RSI(series(14, 100, 1), 14))
	assert.Nil(t, RSI(nil, 14))
	assert.Nil(t, RSI(series(20, 100, 1), 0))
}

func TestRSIKnownValue(t *testing.T) {
	// one gain of 2 and one loss of 1 with period 2: avgGain 1, avgLoss 0.5, RS 2
	v := RSI([]float64{10, 12, 11}, 2)
	require.NotNil(t, v)
	assert.Equal(t, 66.67, *v)

	// smoothing step: changes +2, -1, -1 -> avgGain 0.5, avgLoss 0.75
	v = RSI([]float64{10, 12, 11, 10}, 2)
	require.NotNil(t, v)
	assert.Equal(t, 40.0, *v)
}

func TestRSIDeterministic(t *testing.T) {
	prices := []float64{101.5, 99.2, 100.1, 103.7, 102.2, 104.9, 104.1, 105.5, 103.3, 106.8,
		107.2, 105.9, 108.4, 109.1, 107.7, 110.2, 111.9, 109.8, 112.4, 113.0}
	a := RSI(prices, 14)
	b := RSI(prices, 14)
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Equal(t, math.Float64bits(*a), math.Float64bits(*b))
	assert.GreaterOrEqual(t, *a, 0.0)
	assert.LessOrEqual(t, *a, 100.0)
}

func TestOscillatorsDefaultPeriods(t *testing.T) {
	got := Oscillators(series(20, 50, 1), nil)
	require.Len(t, got, 2)
	assert.Equal(t, 14, got[0].Period)
	require.NotNil(t, got[0].Value)
	assert.Equal(t, 28, got[1].Period)
	assert.Nil(t, got[1].Value)
}
