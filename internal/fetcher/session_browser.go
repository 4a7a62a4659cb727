package fetcher

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"yutai-ranker/internal/perr"
	"yutai-ranker/internal/version"
)

// BrowserOptions parameterise headless Chrome sessions.
type BrowserOptions struct {
	UserAgent      string
	Headless       bool
	NoSandbox      bool
	DisableGPU     bool
	WaitSelector   string
	StartupTimeout time.Duration
	ExecPath       string
}

// BrowserFactory opens one Chrome process per session.
type BrowserFactory struct {
	opts   BrowserOptions
	logger zerolog.Logger
}

var _ SessionFactory = (*BrowserFactory)(nil)

// NewBrowserFactory constructs a factory.
func NewBrowserFactory(opts BrowserOptions, logger zerolog.Logger) *BrowserFactory {
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = version.UserAgent()
	}
	if opts.StartupTimeout <= 0 {
		opts.StartupTimeout = 30 * time.Second
	}
	if opts.WaitSelector == "" {
		opts.WaitSelector = "body"
	}
	return &BrowserFactory{
		opts:   opts,
		logger: logger.With().Str("component", "browser_session").Logger(),
	}
}

// Open starts a browser and checks that it can navigate before handing it out.
// The browser lives until Close, independent of ctx.
func (f *BrowserFactory) Open(ctx context.Context) (Session, error) {
	start := time.Now()
	allocOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", f.opts.Headless),
		chromedp.Flag("disable-gpu", f.opts.DisableGPU),
		chromedp.Flag("no-sandbox", f.opts.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(f.opts.UserAgent),
	)
	if f.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(f.opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	testCtx, testCancel := context.WithTimeout(browserCtx, f.opts.StartupTimeout)
	defer testCancel()
	stop := context.AfterFunc(ctx, testCancel)
	defer stop()

	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocCancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, perr.Wrap(err, perr.ErrorCodeSessionCrashed, "browser failed startup test")
	}

	f.logger.Debug().Dur("startup", time.Since(start)).Msg("browser session started")
	return &browserSession{
		browserCtx: browserCtx,
		cancel: func() {
			browserCancel()
			allocCancel()
		},
		waitSelector: f.opts.WaitSelector,
		logger:       f.logger,
	}, nil
}

type browserSession struct {
	browserCtx   context.Context
	cancel       context.CancelFunc
	waitSelector string
	logger       zerolog.Logger
}

func (s *browserSession) Get(ctx context.Context, url string) ([]byte, error) {
	if s.browserCtx.Err() != nil {
		return nil, perr.New(perr.ErrorCodeSessionCrashed, "browser is gone")
	}

	runCtx, cancel := context.WithCancel(s.browserCtx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	resp, err := chromedp.RunResponse(runCtx, chromedp.Navigate(url))
	if err != nil {
		return nil, s.classify(ctx, url, err)
	}
	if resp != nil && (resp.Status < 200 || resp.Status > 299) {
		return nil, parseHTTPError(int(resp.Status), nil)
	}

	var html string
	if err := chromedp.Run(runCtx,
		chromedp.WaitReady(s.waitSelector, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return nil, s.classify(ctx, url, err)
	}
	return []byte(html), nil
}

func (s *browserSession) Close() error {
	s.cancel()
	return nil
}

func (s *browserSession) classify(ctx context.Context, url string, err error) error {
	return classifyBrowserError(ctx.Err(), s.browserCtx.Err(), url, err)
}

// classifyBrowserError maps a chromedp failure: caller cancellation passes through,
// a dead browser or unknown CDP failure is a session crash, network and timeout
// errors are transient.
func classifyBrowserError(callerErr, browserErr error, url string, err error) error {
	switch {
	case errors.Is(callerErr, context.Canceled):
		return callerErr
	case browserErr != nil:
		return perr.Wrapf(err, perr.ErrorCodeSessionCrashed, "browser exited while loading %s", url)
	case callerErr != nil || errors.Is(err, context.DeadlineExceeded):
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "timeout loading %s", url)
	case strings.Contains(err.Error(), "net::ERR_"):
		return perr.Wrapf(err, perr.ErrorCodeUnavailable, "load %s", url)
	default:
		return perr.Wrapf(err, perr.ErrorCodeSessionCrashed, "browser failure loading %s", url)
	}
}
