// Package notify delivers best-effort ops alerts to a Telegram channel.
// Every send is a single attempt with a bounded timeout; failures are logged
// and swallowed so they can never change the outcome of the operation that
// triggered them.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"sms-panel/internal/metrics"
)

const defaultAPIBase = "https://api.telegram.org"

// Telegram posts formatted alerts via the bot sendMessage API.
// A zero-configured client (empty token or chat id) is a silent no-op, which
// keeps local environments working without a bot.
type Telegram struct {
	logger  *slog.Logger
	apiBase string
	token   string
	chatID  string
	http    *http.Client
	metrics *metrics.Metrics
}

type Config struct {
	APIBase string
	Token   string
	ChatID  string
	Timeout time.Duration
}

func NewTelegram(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Telegram {
	base := strings.TrimRight(cfg.APIBase, "/")
	if base == "" {
		base = defaultAPIBase
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Telegram{
		logger:  logger.With("component", "notify"),
		apiBase: base,
		token:   cfg.Token,
		chatID:  cfg.ChatID,
		http:    &http.Client{Timeout: timeout},
		metrics: m,
	}
}

// PolicyViolation alerts that a message was blocked, quoting the offending
// term and a truncated body excerpt.
func (t *Telegram) PolicyViolation(ctx context.Context, accountID, term, excerpt string) {
	msg := fmt.Sprintf("🚫 *Blacklisted Content Detected*\nAccount: %s\nBlocked word: %q\nMessage: %s",
		accountID, term, excerpt)
	t.post(ctx, msg)
}

// TopupSubmitted alerts that a reseller filed a top-up request.
func (t *Telegram) TopupSubmitted(ctx context.Context, accountID, amount string) {
	msg := fmt.Sprintf("💰 *New Top-Up Request*\nAccount: %s\nAmount: Rs. %s\n\nPlease review in admin panel.",
		accountID, amount)
	t.post(ctx, msg)
}

// TopupProcessed alerts that an admin approved or rejected a top-up.
func (t *Telegram) TopupProcessed(ctx context.Context, accountID, amount, decision, actor string) {
	emoji := "❌"
	if decision == "approved" {
		emoji = "✅"
	}
	msg := fmt.Sprintf("%s *Top-Up %s*\nAccount: %s\nAmount: Rs. %s\nProcessed by: %s",
		emoji, titleCase(decision), accountID, amount, actor)
	t.post(ctx, msg)
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

func (t *Telegram) post(ctx context.Context, text string) {
	if t.token == "" || t.chatID == "" {
		return
	}

	payload, err := json.Marshal(sendMessageRequest{
		ChatID:    t.chatID,
		Text:      text,
		ParseMode: "Markdown",
	})
	if err != nil {
		t.fail("marshal", err)
		return
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.fail("build request", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		t.fail("send", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		t.fail("send", fmt.Errorf("telegram status %d", resp.StatusCode))
	}
}

func (t *Telegram) fail(op string, err error) {
	t.logger.Warn("notification dropped", "op", op, "err", err)
	if t.metrics != nil {
		t.metrics.NotifierFailures.Inc()
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
