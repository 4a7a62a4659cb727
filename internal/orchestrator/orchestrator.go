// Package orchestrator drives a pool of fetch workers over the identifier universe.
package orchestrator

import (
	"context"
	"errors"
	"iter"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"yutai-ranker/internal/checkpoint"
	"yutai-ranker/internal/fetcher"
	"yutai-ranker/internal/perr"
	"yutai-ranker/internal/progress"
)

const (
	DefaultWorkers      = 4
	DefaultMaxRetries   = 3
	DefaultRetryBase    = 2 * time.Second
	DefaultFetchTimeout = 30 * time.Second
	DefaultWriteTimeout = 15 * time.Second
)

// Options tune the worker pool.
type Options struct {
	Workers int
	// Delay is the pause a worker takes after each identifier.
	Delay time.Duration
	// MaxRetries is how many times a transiently failing fetch is retried after
	// the first attempt.
	MaxRetries   int
	RetryBase    time.Duration
	FetchTimeout time.Duration
	WriteTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.Delay < 0 {
		o.Delay = 0
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.RetryBase <= 0 {
		o.RetryBase = DefaultRetryBase
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = DefaultFetchTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	return o
}

// Sink persists a successful extraction. A returned error leaves the identifier pending.
type Sink interface {
	Handle(ctx context.Context, code string, ex fetcher.Extraction) (checkpoint.Outcome, int, error)
}

// Marker records terminal identifier states. *checkpoint.Tracker satisfies it.
type Marker interface {
	MarkCompleted(code string, outcome checkpoint.Outcome)
	MarkFailed(code string)
}

var _ Marker = (*checkpoint.Tracker)(nil)

// Summary describes one run.
type Summary struct {
	Succeeded     int64         `json:"succeeded"`
	Failed        int64         `json:"failed"`
	Skipped       int64         `json:"skipped"`
	NotFound      int64         `json:"not_found"`
	NoBenefit     int64         `json:"no_benefit"`
	BenefitFound  int64         `json:"benefit_found"`
	Records       int64         `json:"records"`
	PersistFailed int64         `json:"persist_failed"`
	Elapsed       time.Duration `json:"elapsed"`
}

// Orchestrator hands identifiers to workers. Each worker owns one session.
type Orchestrator struct {
	opts      Options
	sessions  fetcher.SessionFactory
	extractor fetcher.Extractor
	sink      Sink
	marker    Marker
	counters  *progress.Counters
	logger    zerolog.Logger

	benefitFound atomic.Int64
	sleep        func(ctx context.Context, d time.Duration) error
}

// New builds an orchestrator. counters may be nil when nobody reports progress.
func New(opts Options, sessions fetcher.SessionFactory, extractor fetcher.Extractor, sink Sink, marker Marker, counters *progress.Counters, logger zerolog.Logger) *Orchestrator {
	if counters == nil {
		counters = &progress.Counters{}
	}
	return &Orchestrator{
		opts:      opts.withDefaults(),
		sessions:  sessions,
		extractor: extractor,
		sink:      sink,
		marker:    marker,
		counters:  counters,
		logger:    logger.With().Str("component", "orchestrator").Logger(),
		sleep:     sleepCtx,
	}
}

// Options returns the effective options.
func (o *Orchestrator) Options() Options { return o.opts }

// Run processes every identifier of codes once and returns when the sequence is
// drained or ctx is cancelled. On cancellation workers finish the identifier in
// hand and the context error is returned with the partial summary.
func (o *Orchestrator) Run(ctx context.Context, codes iter.Seq[string]) (Summary, error) {
	if o.sessions == nil || o.extractor == nil || o.sink == nil || o.marker == nil {
		return Summary{}, perr.New(perr.ErrorCodeInvalidArgument, "orchestrator dependencies not configured")
	}
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	work := make(chan string)

	g.Go(func() error {
		defer close(work)
		for code := range codes {
			select {
			case work <- code:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})

	for i := 0; i < o.opts.Workers; i++ {
		w := &worker{
			id:     i,
			o:      o,
			logger: o.logger.With().Int("worker", i).Logger(),
		}
		g.Go(func() error {
			return w.run(gctx, work)
		})
	}

	err := g.Wait()
	summary := o.summary(time.Since(start))
	if err == nil {
		err = ctx.Err()
	}

	o.logger.Info().
		Int64("succeeded", summary.Succeeded).
		Int64("failed", summary.Failed).
		Int64("not_found", summary.NotFound).
		Int64("no_benefit", summary.NoBenefit).
		Int64("records", summary.Records).
		Int64("persist_failed", summary.PersistFailed).
		Dur("elapsed", summary.Elapsed).
		Msg("run finished")
	return summary, err
}

func (o *Orchestrator) summary(elapsed time.Duration) Summary {
	snap := o.counters.Snapshot()
	return Summary{
		Succeeded:     snap.Succeeded,
		Failed:        snap.Failed,
		NotFound:      snap.NotFound,
		NoBenefit:     snap.NoBenefit,
		BenefitFound:  o.benefitFound.Load(),
		Records:       snap.Records,
		PersistFailed: snap.PersistFailed,
		Elapsed:       elapsed,
	}
}

type worker struct {
	id      int
	o       *Orchestrator
	session fetcher.Session
	logger  zerolog.Logger
}

func (w *worker) run(ctx context.Context, work <-chan string) error {
	defer w.closeSession()
	for {
		select {
		case <-ctx.Done():
			return nil
		case code, ok := <-work:
			if !ok {
				return nil
			}
			w.process(ctx, code)
			if err := w.o.sleep(ctx, w.o.opts.Delay); err != nil {
				return nil
			}
		}
	}
}

// process runs the state machine of one identifier to a terminal state, or
// abandons it untouched when ctx is cancelled.
func (w *worker) process(ctx context.Context, code string) {
	log := w.logger.With().Str("code", code).Logger()
	j := newJob(code, w.o.opts.MaxRetries+1)
	var ex fetcher.Extraction

	for !j.done() {
		switch j.state {
		case StateRetrying:
			wait := backoff(j.attempt, w.o.opts.RetryBase)
			log.Debug().Err(j.lastErr).Int("attempt", j.attempt).Dur("backoff", wait).Msg("retrying")
			if err := w.o.sleep(ctx, wait); err != nil {
				return
			}
			j.begin()
		case StatePending:
			j.begin()
		case StateFetching:
			var err error
			ex, err = w.fetch(ctx, code)
			if err != nil && ctx.Err() != nil {
				log.Debug().Err(err).Msg("fetch abandoned on shutdown")
				return
			}
			if perr.IsSessionCrash(err) {
				log.Warn().Err(err).Msg("session crashed; replacing")
				w.closeSession()
			}
			j.settle(err, perr.Retryable(err))
		}
	}

	if j.state == StateFailed {
		w.o.marker.MarkFailed(code)
		w.o.counters.AddFailed()
		log.Warn().Err(j.lastErr).Int("attempts", j.attempt).Msg("identifier failed")
		return
	}
	w.persist(ctx, log, code, ex)
}

func (w *worker) fetch(ctx context.Context, code string) (fetcher.Extraction, error) {
	if w.session == nil {
		s, err := w.o.sessions.Open(ctx)
		if err != nil {
			return fetcher.Extraction{}, err
		}
		w.session = s
	}

	fctx, cancel := context.WithTimeout(ctx, w.o.opts.FetchTimeout)
	defer cancel()
	ex, err := w.o.extractor.Extract(fctx, w.session, code)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		err = perr.Wrap(err, perr.ErrorCodeUnavailable, "fetch timed out")
	}
	return ex, err
}

// persist hands the extraction to the sink under a context that survives
// cancellation, so a write in flight at shutdown completes.
func (w *worker) persist(ctx context.Context, log zerolog.Logger, code string, ex fetcher.Extraction) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.o.opts.WriteTimeout)
	defer cancel()

	outcome, n, err := w.o.sink.Handle(wctx, code, ex)
	if err != nil {
		w.o.counters.AddPersistFailed()
		log.Error().Err(err).Msg("persist failed; identifier left pending")
		return
	}

	w.o.marker.MarkCompleted(code, outcome)
	w.o.counters.AddSucceeded()
	w.o.counters.AddRecords(n)
	switch outcome {
	case checkpoint.OutcomeNotFound:
		w.o.counters.AddNotFound()
	case checkpoint.OutcomeNoBenefit:
		w.o.counters.AddNoBenefit()
	case checkpoint.OutcomeBenefitFound:
		w.o.benefitFound.Add(1)
	}
	log.Debug().Str("outcome", outcome.String()).Int("records", n).Msg("identifier done")
}

func (w *worker) closeSession() {
	if w.session == nil {
		return
	}
	if err := w.session.Close(); err != nil {
		w.logger.Debug().Err(err).Msg("close session")
	}
	w.session = nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
