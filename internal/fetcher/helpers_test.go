package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger { return zerolog.Nop() }

func openHTTPSession(t *testing.T) Session {
	t.Helper()
	s, err := NewHTTPFactory(HTTPOptions{Timeout: time.Second, UserAgent: "yutai-test"}, noopLogger()).Open(context.Background())
	if err != nil {
		t.Fatalf("打开会话失败: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func serve(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}
