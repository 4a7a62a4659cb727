package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	note := Notification{Job: "scrape", RunID: "run-1", Finished: time.Now(), Elapsed: 90 * time.Second, Succeeded: 10, BenefitFound: 7, Failed: 2, FailedCodes: []string{"1301", "7203"}}

	if err := notifier.Notify(context.Background(), note); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if !strings.Contains(received["text"], "1301,7203") {
		t.Fatalf("text 应包含失败代码: %q", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), Notification{Job: "prices"}); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func TestTelegramNotifierRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "Too Many Requests"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), Notification{Job: "scrape"}); err != nil {
		t.Fatalf("429 后重试应成功: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("应请求 2 次, 实际 %d", calls.Load())
	}
}

func TestTelegramNotifierBadRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "chat not found"})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	err := notifier.Notify(context.Background(), Notification{Job: "scrape"})
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("400 应返回带描述的错误: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("400 不应重试, 实际请求 %d 次", calls.Load())
	}
}

func TestTruncateMessage(t *testing.T) {
	if got := truncateMessage("短消息", 10); got != "短消息" {
		t.Fatalf("短消息不应截断: %q", got)
	}
	got := truncateMessage(strings.Repeat("株", 20), 10)
	if len([]rune(got)) != 10 || !strings.HasSuffix(got, "…") {
		t.Fatalf("截断结果不正确: %q", got)
	}
}

func TestRenderMessageTruncatesCodes(t *testing.T) {
	codes := make([]string, MaxListedCodes+5)
	for i := range codes {
		codes[i] = fmt.Sprintf("%04d", i)
	}
	text := renderMessage(Notification{Job: "scrape", Interrupted: true, FailedCodes: codes})
	if !strings.Contains(text, "interrupted") {
		t.Fatalf("中断状态应出现在消息中: %q", text)
	}
	if !strings.Contains(text, "(+5)") {
		t.Fatalf("超出的代码数量应被汇总: %q", text)
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
