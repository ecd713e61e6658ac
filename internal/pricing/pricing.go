// Package pricing derives the charge for a send request from the raw
// recipient field and the account's per-message rate. Pure calculation,
// no persistence, no provider calls.
package pricing

import (
	"errors"
	"strings"
)

var (
	ErrNoRecipients = errors.New("pricing: no recipients")
	ErrInvalidRate  = errors.New("pricing: rate must be positive")
)

// Recipients splits a comma-separated recipient field, trimming whitespace
// and dropping empty tokens. The raw field is what gets dispatched and
// logged; this split exists only for counting and validation.
func Recipients(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Quote is the computed charge for one send request.
type Quote struct {
	RecipientCount int
	RateMinor      int64
	CostMinor      int64
}

// QuoteSend computes cost = recipient count x rate, in minor units.
func QuoteSend(rawRecipients string, rateMinor int64) (Quote, error) {
	if rateMinor <= 0 {
		return Quote{}, ErrInvalidRate
	}
	n := len(Recipients(rawRecipients))
	if n == 0 {
		return Quote{}, ErrNoRecipients
	}
	return Quote{
		RecipientCount: n,
		RateMinor:      rateMinor,
		CostMinor:      int64(n) * rateMinor,
	}, nil
}
