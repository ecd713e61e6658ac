// Package topup settles administrator decisions on balance top-up requests.
// The surrounding request/approval UI lives elsewhere; this service performs
// the balance credit, marks the request processed and alerts the ops channel.
package topup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sms-panel/internal/ledger"
	"sms-panel/internal/metrics"
	"sms-panel/internal/money"
)

type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

var ErrInvalidDecision = errors.New("topup: decision must be approved or rejected")

// Ledger is the balance subsystem as seen by settlement: credits only.
type Ledger interface {
	Credit(ctx context.Context, accountID string, amountMinor int64, reason, actor string) (int64, ledger.Adjustment, error)
}

// RequestStore marks originating top-up requests processed.
type RequestStore interface {
	MarkProcessed(ctx context.Context, requestID string, decision Decision, processedBy string, at time.Time) error
}

// Notifier raises best-effort ops alerts.
type Notifier interface {
	TopupProcessed(ctx context.Context, accountID, amount, decision, actor string)
}

type Service struct {
	ledger   Ledger
	store    RequestStore
	notifier Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
	clock    func() time.Time
}

func NewService(l Ledger, s RequestStore, n Notifier, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		ledger:   l,
		store:    s,
		notifier: n,
		logger:   logger.With("component", "topup"),
		metrics:  m,
		clock:    time.Now,
	}
}

type ProcessRequest struct {
	RequestID   string
	Decision    Decision
	AccountID   string
	AmountMinor int64
}

// Process settles one top-up decision. Approval credits the account with an
// adjustment trail entry; rejection touches no balance. Either way the
// originating request is marked processed and the ops channel is alerted.
func (s *Service) Process(ctx context.Context, req ProcessRequest, actor string) (int64, error) {
	if req.RequestID == "" || req.AccountID == "" || actor == "" {
		return 0, ledger.ErrInvalidArgument
	}
	if req.Decision != DecisionApproved && req.Decision != DecisionRejected {
		return 0, ErrInvalidDecision
	}
	if req.Decision == DecisionApproved && req.AmountMinor <= 0 {
		return 0, ledger.ErrInvalidArgument
	}

	// The mark is the replay guard: it flips the row exactly once, so a
	// duplicated or replayed decision stops here before any money moves.
	if err := s.store.MarkProcessed(ctx, req.RequestID, req.Decision, actor, s.clock().UTC()); err != nil {
		return 0, fmt.Errorf("mark topup processed: %w", err)
	}

	var newBalance int64
	if req.Decision == DecisionApproved {
		reason := fmt.Sprintf("topup:%s", req.RequestID)
		b, _, err := s.ledger.Credit(ctx, req.AccountID, req.AmountMinor, reason, actor)
		if err != nil {
			// The request is already marked, so a retry cannot double-credit.
			// Surface loudly; the missing credit needs a manual adjustment.
			s.logger.Error("topup marked processed but credit failed",
				"request_id", req.RequestID, "account_id", req.AccountID, "err", err)
			return 0, fmt.Errorf("credit topup: %w", err)
		}
		newBalance = b
	}

	if s.metrics != nil {
		s.metrics.TopupDecisions.WithLabelValues(string(req.Decision)).Inc()
	}
	s.notifier.TopupProcessed(ctx, req.AccountID, money.FormatMinor(req.AmountMinor), string(req.Decision), actor)
	return newBalance, nil
}
