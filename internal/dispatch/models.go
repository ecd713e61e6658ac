package dispatch

import (
	"encoding/json"
	"time"
)

// Record is the append-only delivery log row, created exactly once per send
// attempt that reached the carrier. Pre-dispatch rejections (policy, balance,
// bad recipients) never produce a Record.
//
// Invariants:
// - status=sent implies CostMinor = RecipientCount x rate at send time, and
//   the balance was debited by exactly that amount.
// - status=failed implies CostMinor = 0 and no balance change survived.
type Record struct {
	ID        string `json:"id" db:"id"`
	AccountID string `json:"account_id" db:"account_id"`

	// Recipient is the raw field as submitted (possibly comma-joined).
	Recipient string `json:"recipient" db:"recipient"`
	Message   string `json:"message" db:"message"`

	RecipientCount int   `json:"recipient_count" db:"recipient_count"`
	CostMinor      int64 `json:"cost_minor" db:"cost_minor"`

	Status Status `json:"status" db:"status"`

	// ProviderPayload is the carrier's raw response, kept for audit/debug.
	ProviderPayload json.RawMessage `json:"provider_payload,omitempty" db:"provider_payload"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Status string

const (
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)
