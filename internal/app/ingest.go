package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"yutai-ranker/internal/checkpoint"
	"yutai-ranker/internal/fetcher"
	"yutai-ranker/internal/orchestrator"
	"yutai-ranker/internal/progress"
	"yutai-ranker/internal/service"
	"yutai-ranker/internal/universe"
)

const (
	jobScrape = "scrape"
	jobPrices = "prices"
)

// IngestOptions configure scrape and price runs.
type IngestOptions struct {
	// Fresh discards the checkpoint before starting.
	Fresh bool
	// RestartWhenDone starts over when the checkpoint has nothing left pending.
	RestartWhenDone bool
	DryRun          bool
	// Codes replaces the configured universe.
	Codes []string
}

type ingestSpec struct {
	name           string
	checkpointPath string
	sessions       fetcher.SessionFactory
	extractor      fetcher.Extractor
	sink           orchestrator.Sink
	universe       func(ctx context.Context) ([]string, error)
}

// Scrape runs one benefit scrape over the universe, resuming from the checkpoint.
func (a *App) Scrape(ctx context.Context, opts IngestOptions) (service.RunReport, error) {
	return a.runOnce(ctx, opts, a.scrapeJob)
}

// Prices collects one price sample for every code with benefits.
func (a *App) Prices(ctx context.Context, opts IngestOptions) (service.RunReport, error) {
	return a.runOnce(ctx, opts, a.pricesJob)
}

func (a *App) runOnce(ctx context.Context, opts IngestOptions, build func(*backend, IngestOptions) service.Job) (service.RunReport, error) {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	be, err := a.openBackend(ctx, opts.DryRun)
	if err != nil {
		return service.RunReport{}, err
	}
	defer be.close()

	job := build(be, opts)
	reports, err := a.newService(nil, []service.Job{job}, be.locker).RunOnce(ctx)
	if len(reports) == 0 {
		if err == nil {
			err = fmt.Errorf("%s skipped: another run holds the advisory lock", job.Name)
		}
		return service.RunReport{Job: job.Name}, err
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return reports[0], err
}

func (a *App) scrapeJob(be *backend, opts IngestOptions) service.Job {
	return service.Job{Name: jobScrape, Run: func(ctx context.Context) (service.RunReport, error) {
		normalizer, err := a.newNormalizer()
		if err != nil {
			return service.RunReport{}, err
		}
		return a.ingest(ctx, ingestSpec{
			name:           jobScrape,
			checkpointPath: a.Config.Scraper.CheckpointPath,
			sessions:       a.newSessionFactory(),
			extractor:      a.newExtractor(),
			sink:           service.NewPipeline(normalizer, be.benefits, be.prices, a.Logger),
			universe: func(context.Context) ([]string, error) {
				if len(opts.Codes) > 0 {
					return opts.Codes, nil
				}
				u := a.Config.Universe
				return universe.Load(universe.Source{File: u.File, From: u.From, To: u.To, Width: u.Width})
			},
		}, opts)
	}}
}

func (a *App) pricesJob(be *backend, opts IngestOptions) service.Job {
	return service.Job{Name: jobPrices, Run: func(ctx context.Context) (service.RunReport, error) {
		client := fetcher.NewPriceClient(fetcher.PriceOptions{URLTemplate: a.Config.Prices.URLTemplate}, a.Logger)
		return a.ingest(ctx, ingestSpec{
			name:           jobPrices,
			checkpointPath: a.Config.Prices.CheckpointPath,
			sessions:       a.httpFactory(),
			extractor:      fetcher.PriceExtractor{Source: client},
			sink:           service.NewPriceRecorder(be.prices, time.Now().UTC().Truncate(time.Minute), a.Logger),
			universe: func(ctx context.Context) ([]string, error) {
				if len(opts.Codes) > 0 {
					return opts.Codes, nil
				}
				return a.pricedUniverse(ctx, be)
			},
		}, opts)
	}}
}

// pricedUniverse is every code known to have benefits, from the store and the
// scrape checkpoint.
func (a *App) pricedUniverse(ctx context.Context, be *backend) ([]string, error) {
	codes, err := be.benefits.ListCodesWithBenefits(ctx)
	if err != nil {
		return nil, err
	}
	state, err := checkpoint.NewFileStore(a.Config.Scraper.CheckpointPath, a.Logger).Load()
	if err != nil {
		return nil, err
	}
	codes = append(codes, state.BenefitFound()...)
	slices.SortFunc(codes, universe.Compare)
	return slices.Compact(codes), nil
}

// ingest runs one resumable pass. Only an unreadable checkpoint or universe is
// an error; per-identifier failures are reported in the summary.
func (a *App) ingest(ctx context.Context, spec ingestSpec, opts IngestOptions) (service.RunReport, error) {
	logger := a.Logger.With().Str("job", spec.name).Logger()
	report := service.RunReport{Job: spec.name}

	store := a.openCheckpoint(spec.checkpointPath, opts.DryRun)
	if opts.Fresh {
		if err := store.Remove(); err != nil {
			return report, err
		}
	}
	state, err := store.Load()
	if err != nil {
		return report, fmt.Errorf("load checkpoint: %w", err)
	}

	codes, err := spec.universe(ctx)
	if err != nil {
		return report, fmt.Errorf("load universe: %w", err)
	}

	spans, err := universe.ParseSpans(a.Config.Scraper.PriorityRanges)
	if err != nil {
		return report, err
	}
	priority := universe.RangePriority(spans)

	// the tracker owns state from here on; enumeration reads a frozen copy
	done := state.Clone()
	pending := universe.Pending(codes, done.IsCompleted, priority)
	if opts.RestartWhenDone && len(codes) > 0 && cycleDone(pending, done) {
		logger.Info().Str("previous_run", state.RunID).Msg("checkpoint complete; starting a new cycle")
		state = checkpoint.NewState()
		done = state.Clone()
		pending = universe.Pending(codes, done.IsCompleted, priority)
	}
	skipped := len(codes) - len(pending)
	report.RunID = state.RunID

	tracker := checkpoint.NewTracker(store, state, a.Config.Scraper.CheckpointEvery, a.Logger)
	tracker.AddSkipped(skipped)

	counters := &progress.Counters{}
	progressCtx, stopProgress := context.WithCancel(ctx)
	ticker := progress.NewTicker(counters, len(pending), a.Config.Scraper.ProgressInterval, logger)
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		ticker.Run(progressCtx)
	}()

	sc := a.Config.Scraper
	orch := orchestrator.New(orchestrator.Options{
		Workers:      sc.Workers,
		Delay:        sc.Delay,
		MaxRetries:   sc.MaxRetries,
		RetryBase:    sc.RetryBase,
		FetchTimeout: sc.FetchTimeout,
		WriteTimeout: sc.WriteTimeout,
	}, spec.sessions, spec.extractor, spec.sink, tracker, counters, logger)

	logger.Info().
		Str("run_id", state.RunID).
		Int("universe", len(codes)).
		Int("pending", len(pending)).
		Int("skipped", skipped).
		Int("workers", orch.Options().Workers).
		Msg("ingest started")

	summary, runErr := orch.Run(ctx, universe.Enumerate(codes, done.IsCompleted, priority))
	stopProgress()
	<-progressDone

	if snap := tracker.Snapshot(); snap != nil {
		report.FailedCodes = snap.Failed()
	}
	closeErr := tracker.Close()

	summary.Skipped = int64(skipped)
	report.Summary = summary
	report.Interrupted = errors.Is(runErr, context.Canceled)

	if closeErr != nil {
		return report, fmt.Errorf("save checkpoint: %w", closeErr)
	}
	if runErr != nil && !report.Interrupted {
		return report, runErr
	}
	if report.Interrupted {
		logger.Warn().Str("checkpoint", store.Path()).Msg("interrupted; rerun to resume")
	}
	return report, nil
}

type checkpointStore interface {
	checkpoint.Store
	Remove() error
	Path() string
}

// openCheckpoint keeps dry runs away from the file real runs resume from.
func (a *App) openCheckpoint(path string, dryRun bool) checkpointStore {
	if dryRun {
		return checkpoint.NewMemoryStore()
	}
	return checkpoint.NewFileStore(path, a.Logger)
}

// cycleDone reports whether every pending code already failed in this checkpoint.
func cycleDone(pending []string, state *checkpoint.State) bool {
	for _, code := range pending {
		if !state.IsFailed(code) {
			return false
		}
	}
	return true
}
