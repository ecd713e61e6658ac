package ledger

import "time"

// Account is a reseller's billing identity. Balance and rate are int64 minor
// units. The >= 0 balance invariant is enforced by the conditional debit in
// this package, not by storage.
type Account struct {
	ID          string `json:"id" db:"id"`
	DisplayName string `json:"display_name" db:"display_name"`

	BalanceMinor    int64 `json:"balance_minor" db:"balance_minor"`
	RatePerSMSMinor int64 `json:"rate_per_sms_minor" db:"rate_per_sms_minor"`

	IsActive bool `json:"is_active" db:"is_active"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Adjustment is an immutable append-only record of an administrative balance
// mutation (top-up approval or manual adjustment). Dispatch-driven debits do
// not produce Adjustments; their cost lives on the dispatch record.
type Adjustment struct {
	ID        string `json:"id" db:"id"`
	AccountID string `json:"account_id" db:"account_id"`

	Kind AdjustmentKind `json:"kind" db:"kind"`

	// AmountMinor is signed: credits positive, debits negative.
	AmountMinor int64 `json:"amount_minor" db:"amount_minor"`

	Reason string `json:"reason" db:"reason"`
	Actor  string `json:"actor" db:"actor"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type AdjustmentKind string

const (
	AdjustmentKindCredit AdjustmentKind = "credit"
	AdjustmentKindDebit  AdjustmentKind = "debit"
)
