package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var (
	ErrMissingCredential = errors.New("auth: no credential provided")
	ErrInvalidCredential = errors.New("auth: invalid credential")
)

// KeyResolver maps a raw API-key value to the owning account.
type KeyResolver interface {
	Resolve(ctx context.Context, key string) (accountID string, err error)
	TouchLastUsed(ctx context.Context, key string, at time.Time) error
}

// APIKeyStore resolves long-lived API keys against the api_keys table.
// Keys are created/revoked by the account owner elsewhere; this store only
// reads them and touches last_used_at.
type APIKeyStore struct {
	db *sql.DB
}

func NewAPIKeyStore(db *sql.DB) *APIKeyStore {
	return &APIKeyStore{db: db}
}

// Resolve returns the owning account for an active key.
// Unknown and revoked keys are indistinguishable to the caller.
func (s *APIKeyStore) Resolve(ctx context.Context, key string) (string, error) {
	const q = `
SELECT account_id, is_active
FROM api_keys
WHERE api_key = $1
`
	var accountID string
	var active bool
	if err := s.db.QueryRowContext(ctx, q, key).Scan(&accountID, &active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrInvalidCredential
		}
		return "", err
	}
	if !active {
		return "", ErrInvalidCredential
	}
	return accountID, nil
}

// TouchLastUsed records key usage. Callers treat failures as non-fatal.
func (s *APIKeyStore) TouchLastUsed(ctx context.Context, key string, at time.Time) error {
	const q = `
UPDATE api_keys
SET last_used_at = $2
WHERE api_key = $1
`
	_, err := s.db.ExecContext(ctx, q, key, at)
	return err
}
