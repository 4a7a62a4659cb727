package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute(t *testing.T) {
	r := Compute(Snapshot{Succeeded: 25, Failed: 5}, 120, 10*time.Minute)
	assert.Equal(t, int64(30), r.Processed)
	assert.Equal(t, 3.0, r.ThroughputPerMinute)
	assert.Equal(t, 25.0, r.PercentComplete)
	require.NotNil(t, r.ETAMinutes)
	assert.Equal(t, 30.0, *r.ETAMinutes)
}

func TestComputeEdges(t *testing.T) {
	r := Compute(Snapshot{}, 100, 0)
	assert.Nil(t, r.ETAMinutes)
	assert.Zero(t, r.ThroughputPerMinute)

	r = Compute(Snapshot{Succeeded: 10}, 10, time.Minute)
	require.NotNil(t, r.ETAMinutes)
	assert.Zero(t, *r.ETAMinutes)
	assert.Equal(t, 100.0, r.PercentComplete)

	r = Compute(Snapshot{Succeeded: 3}, 0, time.Minute)
	assert.Nil(t, r.ETAMinutes)
	assert.Zero(t, r.PercentComplete)
}

func TestCountersConcurrent(t *testing.T) {
	var c Counters
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.AddSucceeded()
				c.AddRecords(2)
			}
		}()
	}
	wg.Wait()
	s := c.Snapshot()
	assert.Equal(t, int64(800), s.Succeeded)
	assert.Equal(t, int64(1600), s.Records)
	assert.Equal(t, int64(800), s.Processed())
}

func TestTickerStopsWithContext(t *testing.T) {
	var c Counters
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewTicker(&c, 10, time.Millisecond, zerolog.Nop()).Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ticker did not stop")
	}
}
