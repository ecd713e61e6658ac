package topup

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLRequestStore updates topup_requests rows once an administrator decides.
type SQLRequestStore struct {
	db *sql.DB
}

func NewSQLRequestStore(db *sql.DB) *SQLRequestStore {
	return &SQLRequestStore{db: db}
}

const markProcessedSQL = `
UPDATE topup_requests
SET status = $2, processed_by = $3, processed_at = $4
WHERE id = $1 AND processed_at IS NULL`

// MarkProcessed stamps the request with the decision and the deciding admin.
// A request already processed (or unknown) yields an error so double
// settlement cannot pass silently.
func (s *SQLRequestStore) MarkProcessed(ctx context.Context, requestID string, decision Decision, processedBy string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, markProcessedSQL, requestID, string(decision), processedBy, at)
	if err != nil {
		return fmt.Errorf("update topup request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update topup request: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("topup request %s not found or already processed", requestID)
	}
	return nil
}
