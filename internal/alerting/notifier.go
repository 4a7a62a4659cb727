// Package alerting 推送运行摘要。
package alerting

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Notification 封装一次采集运行的摘要。
type Notification struct {
	Job           string
	RunID         string
	Finished      time.Time
	Elapsed       time.Duration
	Succeeded     int64
	Failed        int64
	Skipped       int64
	NotFound      int64
	NoBenefit     int64
	BenefitFound  int64
	Records       int64
	PersistFailed int64
	FailedCodes   []string
	Interrupted   bool
	AdditionalMsg string
}

// MaxListedCodes 限制消息中列出的失败代码数量。
const MaxListedCodes = 20

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// MaxMessageRunes 是 Telegram 单条消息的长度上限。
const MaxMessageRunes = 4096

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	client   *resty.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。429 与 5xx 会重试两次。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil || resp == nil {
				return false
			}
			code := resp.StatusCode()
			return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
		})

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		client:   client,
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

type sendMessageResult struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    truncateMessage(renderMessage(note), MaxMessageRunes),
	}

	var result sendMessageResult
	resp, err := n.client.R().
		SetContext(ctx).
		ForceContentType("application/json").
		SetBody(payload).
		SetResult(&result).
		SetError(&result).
		Post("/bot" + n.botToken + "/sendMessage")
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("telegram 响应码异常: %d %s", resp.StatusCode(), result.Description)
	}
	if !result.OK {
		return fmt.Errorf("telegram 返回 ok=false: %s", result.Description)
	}

	n.logger.Info().Str("job", note.Job).
		Str("run_id", note.RunID).
		Int64("failed", note.Failed).
		Int("attempts", resp.Request.Attempt).
		Msg("运行摘要已发送 (Telegram)")
	return nil
}

func truncateMessage(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-1]) + "…"
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	status := "finished"
	if note.Interrupted {
		status = "interrupted"
	}
	builder.WriteString(fmt.Sprintf("[yutai %s %s]\n", note.Job, status))
	if note.RunID != "" {
		builder.WriteString(fmt.Sprintf("Run: %s\n", note.RunID))
	}
	if !note.Finished.IsZero() {
		builder.WriteString(fmt.Sprintf("At: %s UTC\n", note.Finished.UTC().Format(time.RFC3339)))
	}
	builder.WriteString(fmt.Sprintf("Elapsed: %s\n", note.Elapsed.Round(time.Second)))
	builder.WriteString(fmt.Sprintf("Succeeded: %d (benefits %d, none %d, not found %d)\n",
		note.Succeeded, note.BenefitFound, note.NoBenefit, note.NotFound))
	builder.WriteString(fmt.Sprintf("Records: %d\n", note.Records))
	builder.WriteString(fmt.Sprintf("Failed: %d  Persist failed: %d  Skipped: %d\n", note.Failed, note.PersistFailed, note.Skipped))
	if len(note.FailedCodes) > 0 {
		codes := note.FailedCodes
		more := ""
		if len(codes) > MaxListedCodes {
			more = fmt.Sprintf(" (+%d)", len(codes)-MaxListedCodes)
			codes = codes[:MaxListedCodes]
		}
		builder.WriteString(fmt.Sprintf("Failed codes: %s%s\n", strings.Join(codes, ","), more))
	}
	if note.AdditionalMsg != "" {
		builder.WriteString(note.AdditionalMsg)
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
