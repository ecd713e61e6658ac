package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sms-panel/internal/gateway"
	"sms-panel/internal/ledger"
	"sms-panel/internal/metrics"
	"sms-panel/internal/policy"
	"sms-panel/internal/pricing"

	"github.com/google/uuid"
)

// Ledger is the balance subsystem as seen by the orchestrator. Credit exists
// only for the compensating path: a debit whose log write failed is reversed
// so no money leaves an account without a matching record.
type Ledger interface {
	GetAccount(ctx context.Context, accountID string) (ledger.Account, error)
	TryDebit(ctx context.Context, accountID string, amountMinor int64) (int64, error)
	Credit(ctx context.Context, accountID string, amountMinor int64, reason, actor string) (int64, ledger.Adjustment, error)
}

// PolicyChecker screens message bodies against blocked terms.
type PolicyChecker interface {
	Check(ctx context.Context, body string) error
}

// Carrier forwards a message upstream and reports the normalized outcome.
type Carrier interface {
	Send(ctx context.Context, to, text string) gateway.Result
}

// Recorder appends delivery log rows.
type Recorder interface {
	Insert(ctx context.Context, r Record) error
}

// Notifier raises best-effort ops alerts. Implementations must swallow their
// own failures.
type Notifier interface {
	PolicyViolation(ctx context.Context, accountID, term, excerpt string)
}

const (
	// excerptLimit caps the body excerpt quoted in policy alerts.
	excerptLimit = 100

	systemActor = "system"
)

var ErrAccountInactive = errors.New("dispatch: account inactive")

// Service runs the send lifecycle: account check, policy, cost, balance
// pre-check, carrier call, settlement, log write.
type Service struct {
	ledger   Ledger
	policy   PolicyChecker
	carrier  Carrier
	recorder Recorder
	notifier Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
	clock    func() time.Time
}

func NewService(l Ledger, p PolicyChecker, c Carrier, r Recorder, n Notifier, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		ledger:   l,
		policy:   p,
		carrier:  c,
		recorder: r,
		notifier: n,
		logger:   logger.With("component", "dispatch"),
		metrics:  m,
		clock:    time.Now,
	}
}

// SendRequest is an authenticated send. AccountID comes from the credential
// middleware, never from the request body.
type SendRequest struct {
	AccountID  string
	Recipients string
	Body       string
}

// SendResult reports the outcome the caller sees. Accepted mirrors the
// carrier's flag; rejections never reach the carrier and surface as errors
// from Send instead.
type SendResult struct {
	Accepted        bool
	Message         string
	CostMinor       int64
	BalanceMinor    int64
	ProviderPayload json.RawMessage
}

// Send executes the full request lifecycle.
//
// Rejections (inactive account, policy violation, bad recipients,
// insufficient balance) return a typed error, charge nothing and write no
// record. Once the carrier has been called, an outcome Record is always
// written: sent with the computed cost after a successful debit, failed with
// cost zero otherwise.
func (s *Service) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	acc, err := s.ledger.GetAccount(ctx, req.AccountID)
	if err != nil {
		return SendResult{}, fmt.Errorf("load account: %w", err)
	}
	if !acc.IsActive {
		s.count(metrics.OutcomeRejectedInactive)
		return SendResult{}, ErrAccountInactive
	}

	if err := s.policy.Check(ctx, req.Body); err != nil {
		var v *policy.Violation
		if errors.As(err, &v) {
			s.count(metrics.OutcomeRejectedPolicy)
			s.notifier.PolicyViolation(ctx, req.AccountID, v.Term, policy.Excerpt(req.Body, excerptLimit))
			return SendResult{}, v
		}
		return SendResult{}, err
	}

	quote, err := pricing.QuoteSend(req.Recipients, acc.RatePerSMSMinor)
	if err != nil {
		if errors.Is(err, pricing.ErrNoRecipients) {
			s.count(metrics.OutcomeRejectedRecipients)
		}
		return SendResult{}, err
	}

	// Pre-check so obviously unaffordable requests never reach the carrier
	// and leave no log row. The authoritative check is the conditional debit
	// at settlement.
	if acc.BalanceMinor < quote.CostMinor {
		s.count(metrics.OutcomeRejectedBalance)
		return SendResult{}, ledger.ErrInsufficientBalance
	}

	res := s.carrier.Send(ctx, req.Recipients, req.Body)
	return s.settle(ctx, req, quote, acc, res)
}

func (s *Service) settle(ctx context.Context, req SendRequest, quote pricing.Quote, acc ledger.Account, res gateway.Result) (SendResult, error) {
	now := s.clock().UTC()
	rec := Record{
		ID:              uuid.NewString(),
		AccountID:       req.AccountID,
		Recipient:       req.Recipients,
		Message:         req.Body,
		RecipientCount:  quote.RecipientCount,
		Status:          StatusFailed,
		CostMinor:       0,
		ProviderPayload: res.Raw,
		CreatedAt:       now,
	}

	out := SendResult{
		Accepted:        res.Accepted,
		Message:         res.Message,
		BalanceMinor:    acc.BalanceMinor,
		ProviderPayload: res.Raw,
	}

	if res.Accepted {
		newBalance, err := s.ledger.TryDebit(ctx, req.AccountID, quote.CostMinor)
		switch {
		case err == nil:
			rec.Status = StatusSent
			rec.CostMinor = quote.CostMinor
			out.CostMinor = quote.CostMinor
			out.BalanceMinor = newBalance
		case errors.Is(err, ledger.ErrInsufficientBalance):
			// Balance moved between pre-check and settlement under
			// concurrent load. The message is already gone upstream; record
			// the attempt as failed with zero cost rather than oversell.
			s.logger.Warn("late debit failed, downgrading to failed record",
				"account_id", req.AccountID, "cost_minor", quote.CostMinor)
		default:
			s.countError()
			return SendResult{}, fmt.Errorf("settle debit: %w", err)
		}
	}

	if err := s.recorder.Insert(ctx, rec); err != nil {
		if rec.Status == StatusSent {
			// Never leave a debit without a record. Reverse it and fail the
			// request.
			reason := fmt.Sprintf("dispatch log write failed, reversing charge (record %s)", rec.ID)
			if _, _, cerr := s.ledger.Credit(ctx, req.AccountID, rec.CostMinor, reason, systemActor); cerr != nil {
				s.logger.Error("compensating credit failed",
					"account_id", req.AccountID, "amount_minor", rec.CostMinor, "err", cerr)
			}
		}
		s.countError()
		return SendResult{}, fmt.Errorf("write dispatch record: %w", err)
	}

	if rec.Status == StatusSent {
		s.count(metrics.OutcomeSent)
	} else {
		s.count(metrics.OutcomeFailed)
	}
	return out, nil
}

func (s *Service) count(outcome string) {
	if s.metrics != nil {
		s.metrics.SendRequests.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) countError() {
	if s.metrics != nil {
		s.metrics.Errors.WithLabelValues("dispatch").Inc()
	}
}
