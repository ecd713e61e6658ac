// Package policy rejects message bodies containing administrator-configured
// blocked terms. The term set is administered elsewhere; this package only
// reads it.
package policy

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Violation reports the first blocked term found in a message body.
type Violation struct {
	Term string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("policy: blocked term %q", v.Term)
}

// TermSource supplies the current blocked-term set, already lowercased.
type TermSource interface {
	ListTerms(ctx context.Context) ([]string, error)
}

// Filter matches message bodies against blocked terms.
// Matching is case-insensitive substring: a term anywhere in the body blocks
// the message, before any charge or dispatch.
type Filter struct {
	source TermSource
}

func NewFilter(source TermSource) *Filter {
	return &Filter{source: source}
}

// Check returns a *Violation if the body contains any blocked term, nil if
// the body is clean, and a plain error if the term set cannot be loaded.
func (f *Filter) Check(ctx context.Context, body string) error {
	terms, err := f.source.ListTerms(ctx)
	if err != nil {
		return fmt.Errorf("policy: load terms: %w", err)
	}

	lower := strings.ToLower(body)
	for _, term := range terms {
		if term == "" {
			continue
		}
		if strings.Contains(lower, term) {
			return &Violation{Term: term}
		}
	}
	return nil
}

// Excerpt truncates a body for ops alerts. Blocked content is quoted back to
// the operations channel, capped so alerts stay short. The cut lands on a
// rune boundary so a multi-byte character is never split into an invalid
// tail.
func Excerpt(body string, max int) string {
	if max <= 0 || len(body) <= max {
		return body
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut]
}
