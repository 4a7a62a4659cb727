package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"yutai-ranker/internal/perr"
	"yutai-ranker/internal/version"
)

// HTTPOptions parameterise plain HTTP sessions.
type HTTPOptions struct {
	Timeout           time.Duration
	UserAgent         string
	RequestsPerSecond float64
	Burst             int
	Headers           map[string]string
}

// HTTPFactory opens resty-backed sessions, each with its own client and limiter.
type HTTPFactory struct {
	opts   HTTPOptions
	logger zerolog.Logger
}

var _ SessionFactory = (*HTTPFactory)(nil)

// NewHTTPFactory constructs a factory.
func NewHTTPFactory(opts HTTPOptions, logger zerolog.Logger) *HTTPFactory {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = version.UserAgent()
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	return &HTTPFactory{
		opts:   opts,
		logger: logger.With().Str("component", "http_session").Logger(),
	}
}

// Open returns a new session.
func (f *HTTPFactory) Open(ctx context.Context) (Session, error) {
	client := resty.New().
		SetTimeout(f.opts.Timeout).
		SetHeader("User-Agent", f.opts.UserAgent).
		SetHeader("Accept-Language", "ja,en;q=0.8")
	for k, v := range f.opts.Headers {
		client.SetHeader(k, v)
	}

	limit := rate.Inf
	if f.opts.RequestsPerSecond > 0 {
		limit = rate.Limit(f.opts.RequestsPerSecond)
	}
	return &httpSession{
		client:  client,
		limiter: rate.NewLimiter(limit, f.opts.Burst),
		logger:  f.logger,
	}, nil
}

type httpSession struct {
	client  *resty.Client
	limiter *rate.Limiter
	logger  zerolog.Logger
}

func (s *httpSession) Get(ctx context.Context, url string) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := s.client.R().SetContext(ctx).Get(url)
	if err != nil {
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
			return nil, ctxErr
		}
		return nil, perr.Wrapf(err, perr.ErrorCodeUnavailable, "get %s", url)
	}

	body := resp.Body()
	if status := resp.StatusCode(); status < 200 || status > 299 {
		return nil, parseHTTPError(status, body)
	}
	s.logger.Debug().Str("url", url).Int("bytes", len(body)).Msg("fetched")
	return body, nil
}

func (s *httpSession) Close() error {
	s.client.GetClient().CloseIdleConnections()
	return nil
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// parseHTTPError codes a non-2xx response: 404/410 not found, 429 too many
// requests, 5xx and 408 unavailable, anything else unknown.
func parseHTTPError(status int, payload []byte) error {
	msg := fmt.Sprintf("source error (%d)", status)
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil && (apiErr.Error != "" || apiErr.Message != "") {
		detail := apiErr.Error
		if detail == "" {
			detail = apiErr.Message
		}
		msg = fmt.Sprintf("source error (%d): %s", status, detail)
	} else if text := strings.TrimSpace(string(payload)); text != "" && len(text) <= 200 && !strings.HasPrefix(text, "<") {
		msg = fmt.Sprintf("source error (%d): %s", status, text)
	}

	switch {
	case status == http.StatusNotFound || status == http.StatusGone:
		return perr.New(perr.ErrorCodeNotFound, msg)
	case status == http.StatusTooManyRequests:
		return perr.New(perr.ErrorCodeTooManyRequests, msg)
	case status == http.StatusRequestTimeout || status >= 500:
		return perr.New(perr.ErrorCodeUnavailable, msg)
	default:
		return perr.New(perr.ErrorCodeUnknown, msg)
	}
}
