package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"yutai-ranker/internal/alerting"
	"yutai-ranker/internal/benefit"
	"yutai-ranker/internal/config"
	"yutai-ranker/internal/fetcher"
	"yutai-ranker/internal/scheduler"
	"yutai-ranker/internal/service"
	"yutai-ranker/internal/storage"
	"yutai-ranker/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// backend is the storage a command works against: PostgreSQL when configured,
// otherwise an in-process store.
type backend struct {
	benefits storage.BenefitStore
	prices   storage.PriceSampleStore
	locker   storage.AdvisoryLocker
	close    func()
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("database unreachable: %w", err)
	}
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// openBackend opens PostgreSQL, or an in-process store for dry runs. Without a
// DSN only a dry run may proceed: results would be discarded while the
// checkpoint claims them done.
func (a *App) openBackend(ctx context.Context, dryRun bool) (*backend, error) {
	if dryRun {
		a.Logger.Warn().Msg("dry-run: results and checkpoint are kept in memory and discarded")
		return memoryBackend(), nil
	}
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("database.dsn not configured; use --dry-run to run without storage")
	}
	return &backend{benefits: store, prices: store, locker: store, close: closeStore}, nil
}

func memoryBackend() *backend {
	mem := storage.NewMemoryStore()
	return &backend{benefits: mem, prices: mem, locker: mem, close: func() {}}
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) httpFactory() *fetcher.HTTPFactory {
	src := a.Config.Source
	ua := src.UserAgent
	if ua == "" {
		ua = version.UserAgent()
	}
	return fetcher.NewHTTPFactory(fetcher.HTTPOptions{
		Timeout:           src.RequestTimeout,
		UserAgent:         ua,
		RequestsPerSecond: src.RequestsPerSecond,
		Burst:             src.Burst,
		Headers:           src.Headers,
	}, a.Logger)
}

func (a *App) newSessionFactory() fetcher.SessionFactory {
	if a.Config.Scraper.Session != "browser" {
		return a.httpFactory()
	}
	b := a.Config.Source.Browser
	ua := a.Config.Source.UserAgent
	if ua == "" {
		ua = version.UserAgent()
	}
	return fetcher.NewBrowserFactory(fetcher.BrowserOptions{
		UserAgent:      ua,
		Headless:       b.Headless,
		NoSandbox:      b.NoSandbox,
		DisableGPU:     b.DisableGPU,
		WaitSelector:   b.WaitSelector,
		StartupTimeout: b.StartupTimeout,
		ExecPath:       b.ExecPath,
	}, a.Logger)
}

func (a *App) newExtractor() *fetcher.HTMLExtractor {
	s := a.Config.Source.Selectors
	return fetcher.NewHTMLExtractor(fetcher.HTMLOptions{
		URLTemplate: a.Config.Source.URLTemplate,
		Selectors: fetcher.Selectors{
			Row:           s.Row,
			Description:   s.Description,
			Shares:        s.Shares,
			Amount:        s.Amount,
			Month:         s.Month,
			NotFound:      s.NotFound,
			Price:         s.Price,
			DividendYield: s.DividendYield,
		},
	}, a.Logger)
}

func (a *App) newNormalizer() (*benefit.Normalizer, error) {
	var taxonomy *benefit.Taxonomy
	if path := a.Config.Normalizer.TaxonomyPath; path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read taxonomy: %w", err)
		}
		taxonomy, err = benefit.ParseTaxonomy(data)
		if err != nil {
			return nil, err
		}
	}

	cfg := a.Config.Normalizer
	opts := benefit.DefaultOptions()
	opts.MaxValue = cfg.MaxValue
	opts.DefaultShares = cfg.DefaultShares
	opts.DefaultMonth = cfg.DefaultMonth
	if len(cfg.ValueCaps) > 0 {
		opts.ValueCaps = make(map[benefit.Category]int, len(cfg.ValueCaps))
		for category, limit := range cfg.ValueCaps {
			opts.ValueCaps[benefit.Category(category)] = limit
		}
	}
	n := benefit.NewNormalizer(taxonomy, opts)
	for category := range opts.ValueCaps {
		if !n.Taxonomy().Has(category) {
			a.Logger.Warn().Str("category", string(category)).Msg("value cap for unknown category")
		}
	}
	return n, nil
}

func (a *App) newService(sched *scheduler.Scheduler, jobs []service.Job, locker storage.AdvisoryLocker) *service.Service {
	return service.New(service.Options{
		AdvisoryLockKey:     a.Config.Scheduler.AdvisoryLockKey,
		NotifyOnFailureOnly: a.Config.Alerting.OnFailureOnly,
	}, sched, jobs, locker, a.newNotifier(), a.Logger)
}

// Run executes the long-running ingest service.
func (a *App) Run(ctx context.Context, opts IngestOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	be, err := a.openBackend(ctx, opts.DryRun)
	if err != nil {
		return err
	}
	defer be.close()

	sched, err := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		Cron:         a.Config.Scheduler.Cron,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)
	if err != nil {
		return err
	}

	// a finished checkpoint starts the next cycle over; an interrupted one resumes
	opts.RestartWhenDone = true
	jobs := make([]service.Job, 0, len(a.Config.Scheduler.Jobs))
	for _, name := range a.Config.Scheduler.Jobs {
		switch name {
		case jobScrape:
			jobs = append(jobs, a.scrapeJob(be, opts))
		case jobPrices:
			jobs = append(jobs, a.pricesJob(be, opts))
		}
	}

	svc := a.newService(sched, jobs, be.locker)

	a.Logger.Info().Strs("jobs", a.Config.Scheduler.Jobs).Msg("starting ingest service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("ingest service stopped")
	return nil
}
