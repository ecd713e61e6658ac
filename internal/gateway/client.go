// Package gateway sends messages to the upstream carrier and normalizes its
// responses. Single attempt, no retries; delivery guarantees beyond
// "the carrier said yes" are out of scope.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"sms-panel/internal/metrics"
)

const sendPath = "/sms/v3/send"

// Client provides typed access to the carrier's send API.
type Client struct {
	logger    *slog.Logger
	baseURL   string
	authToken string
	http      *http.Client
	metrics   *metrics.Metrics
}

// Config holds gateway client configuration.
type Config struct {
	BaseURL   string
	AuthToken string
	Timeout   time.Duration
}

// New creates a carrier client. The auth token is service-wide; per-account
// credentials do not exist at this layer.
func New(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		logger:    logger.With("component", "gateway"),
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		authToken: cfg.AuthToken,
		http:      &http.Client{Timeout: timeout},
		metrics:   m,
	}
}

// Result is the normalized carrier response.
// Accepted=false covers transport errors, timeouts, non-success statuses and
// provider-reported error flags alike; callers never see the difference.
type Result struct {
	Accepted bool
	Message  string
	Raw      json.RawMessage
}

type sendRequest struct {
	AuthToken string `json:"auth_token"`
	To        string `json:"to"`
	Text      string `json:"text"`
}

// envelope mirrors the carrier's standard response shape.
type envelope struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

// Send forwards one message to the carrier. No local mutation, no retry.
func (c *Client) Send(ctx context.Context, to, text string) Result {
	start := time.Now()
	res := c.send(ctx, to, text)

	status := "rejected"
	if res.Accepted {
		status = "accepted"
	}
	if c.metrics != nil {
		c.metrics.GatewayRequests.WithLabelValues(status).Inc()
		c.metrics.GatewayLatency.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}
	return res
}

func (c *Client) send(ctx context.Context, to, text string) Result {
	payload, err := json.Marshal(sendRequest{
		AuthToken: c.authToken,
		To:        to,
		Text:      text,
	})
	if err != nil {
		return Result{Accepted: false, Message: "SMS gateway request could not be built"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+sendPath, bytes.NewReader(payload))
	if err != nil {
		return Result{Accepted: false, Message: "SMS gateway request could not be built"}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// Timeouts land here too. Nothing is assumed delivered.
		c.logger.Warn("gateway request failed", "err", err)
		return Result{Accepted: false, Message: "SMS gateway unreachable"}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.logger.Warn("gateway response read failed", "err", err)
		return Result{Accepted: false, Message: "SMS gateway returned an unreadable response"}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		c.logger.Warn("gateway response unparseable", "status", resp.StatusCode)
		return Result{Accepted: false, Message: "SMS gateway returned an invalid response", Raw: json.RawMessage(body)}
	}

	accepted := !env.Error && resp.StatusCode >= 200 && resp.StatusCode < 300
	msg := env.Message
	if msg == "" {
		if accepted {
			msg = "SMS sent successfully"
		} else {
			msg = "Failed to send"
		}
	}
	return Result{Accepted: accepted, Message: msg, Raw: json.RawMessage(body)}
}
