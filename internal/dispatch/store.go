package dispatch

import (
	"context"
	"database/sql"
	"fmt"
)

// RecordStore persists delivery log rows in sms_logs.
// Append-only: no update or delete methods.
type RecordStore struct {
	db *sql.DB
}

func NewRecordStore(db *sql.DB) *RecordStore {
	return &RecordStore{db: db}
}

func (s *RecordStore) Insert(ctx context.Context, r Record) error {
	const q = `
INSERT INTO sms_logs (
  id, account_id, recipient, message, recipient_count, cost_minor, status, provider_payload, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9
)
`
	_, err := s.db.ExecContext(ctx, q,
		r.ID,
		r.AccountID,
		r.Recipient,
		r.Message,
		r.RecipientCount,
		r.CostMinor,
		r.Status,
		[]byte(r.ProviderPayload),
		r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert sms log: %w", err)
	}
	return nil
}
