// Package progress aggregates orchestrator counters into throughput and ETA reports.
package progress

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Counters are updated by workers. The zero value is ready to use.
type Counters struct {
	succeeded     atomic.Int64
	failed        atomic.Int64
	notFound      atomic.Int64
	noBenefit     atomic.Int64
	persistFailed atomic.Int64
	records       atomic.Int64
}

func (c *Counters) AddSucceeded() { c.succeeded.Add(1) }
func (c *Counters) AddFailed() { c.failed.Add(1) }
func (c *Counters) AddNotFound() { c.notFound.Add(1) }
func (c *Counters) AddNoBenefit() { c.noBenefit.Add(1) }
func (c *Counters) AddPersistFailed() { c.persistFailed.Add(1) }
func (c *Counters) AddRecords(n int) { c.records.Add(int64(n)) }

// Snapshot is a point-in-time copy of Counters.
type Snapshot struct {
	Succeeded     int64
	Failed        int64
	NotFound      int64
	NoBenefit     int64
	PersistFailed int64
	Records       int64
}

// Processed counts identifiers that reached a terminal or pending-again state.
func (s Snapshot) Processed() int64 {
	return s.Succeeded + s.Failed + s.PersistFailed
}

// Snapshot reads all counters.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Succeeded:     c.succeeded.Load(),
		Failed:        c.failed.Load(),
		NotFound:      c.notFound.Load(),
		NoBenefit:     c.noBenefit.Load(),
		PersistFailed: c.persistFailed.Load(),
		Records:       c.records.Load(),
	}
}

// Report is the derived view of a snapshot.
type Report struct {
	Processed           int64    `json:"processed"`
	Total               int64    `json:"total"`
	ThroughputPerMinute float64  `json:"throughput_per_minute"`
	ETAMinutes          *float64 `json:"eta_minutes"`
	PercentComplete     float64  `json:"percent_complete"`
}

// Compute derives a report. It is pure: ETA is nil until throughput is known, and
// zero once everything is processed.
func Compute(s Snapshot, total int64, elapsed time.Duration) Report {
	processed := s.Processed()
	r := Report{Processed: processed, Total: total}

	if minutes := elapsed.Minutes(); minutes > 0 {
		r.ThroughputPerMinute = round1(float64(processed) / minutes)
	}
	if total > 0 {
		pct := float64(processed) / float64(total) * 100
		r.PercentComplete = round1(math.Min(pct, 100))
	}

	remaining := total - processed
	switch {
	case total <= 0:
	case remaining <= 0:
		zero := 0.0
		r.ETAMinutes = &zero
	case processed > 0 && elapsed > 0:
		eta := round1(float64(remaining) / (float64(processed) / elapsed.Minutes()))
		r.ETAMinutes = &eta
	}
	return r
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Ticker logs a report at a fixed interval until its context ends.
type Ticker struct {
	counters *Counters
	total    int64
	interval time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// NewTicker returns a ticker for counters over total identifiers.
func NewTicker(counters *Counters, total int, interval time.Duration, logger zerolog.Logger) *Ticker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Ticker{
		counters: counters,
		total:    int64(total),
		interval: interval,
		logger:   logger.With().Str("component", "progress").Logger(),
		now:      time.Now,
	}
}

// Run blocks, logging every interval, and logs once more on exit.
func (t *Ticker) Run(ctx context.Context) {
	start := t.now()
	tk := time.NewTicker(t.interval)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			t.log(start)
			return
		case <-tk.C:
			t.log(start)
		}
	}
}

func (t *Ticker) log(start time.Time) {
	snap := t.counters.Snapshot()
	r := Compute(snap, t.total, t.now().Sub(start))
	ev := t.logger.Info().
		Int64("processed", r.Processed).
		Int64("total", r.Total).
		Int64("succeeded", snap.Succeeded).
		Int64("failed", snap.Failed).
		Int64("records", snap.Records).
		Float64("per_minute", r.ThroughputPerMinute).
		Float64("percent", r.PercentComplete)
	if r.ETAMinutes != nil {
		ev = ev.Float64("eta_minutes", *r.ETAMinutes)
	}
	ev.Msg("progress")
}
