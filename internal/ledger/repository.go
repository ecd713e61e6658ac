package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// NOTE: This repository assumes the following tables exist:
// - accounts
// - balance_adjustments (immutable append-only)

func getAccount(ctx context.Context, db *sql.DB, accountID string) (Account, error) {
	const q = `
SELECT id, display_name, balance_minor, rate_per_sms_minor, is_active, created_at, updated_at
FROM accounts
WHERE id = $1
`
	var a Account
	if err := db.QueryRowContext(ctx, q, accountID).Scan(
		&a.ID,
		&a.DisplayName,
		&a.BalanceMinor,
		&a.RatePerSMSMinor,
		&a.IsActive,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func getAccountTx(ctx context.Context, tx *sql.Tx, accountID string) (Account, error) {
	const q = `
SELECT id, display_name, balance_minor, rate_per_sms_minor, is_active, created_at, updated_at
FROM accounts
WHERE id = $1
`
	var a Account
	if err := tx.QueryRowContext(ctx, q, accountID).Scan(
		&a.ID,
		&a.DisplayName,
		&a.BalanceMinor,
		&a.RatePerSMSMinor,
		&a.IsActive,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	return a, nil
}

const conditionalDebitSQL = `
UPDATE accounts
SET balance_minor = balance_minor - $2,
    updated_at = $3
WHERE id = $1 AND balance_minor >= $2
RETURNING balance_minor
`

// conditionalDebit is the atomic check-and-decrement. ok=false means the
// update matched no row (missing account or insufficient balance).
func conditionalDebit(ctx context.Context, db *sql.DB, accountID string, amountMinor int64, now time.Time) (int64, bool, error) {
	var newBalance int64
	err := db.QueryRowContext(ctx, conditionalDebitSQL, accountID, amountMinor, now).Scan(&newBalance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return newBalance, true, nil
}

func conditionalDebitTx(ctx context.Context, tx *sql.Tx, accountID string, amountMinor int64, now time.Time) (int64, bool, error) {
	var newBalance int64
	err := tx.QueryRowContext(ctx, conditionalDebitSQL, accountID, amountMinor, now).Scan(&newBalance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return newBalance, true, nil
}

func applyCredit(ctx context.Context, tx *sql.Tx, accountID string, amountMinor int64, now time.Time) (int64, error) {
	const q = `
UPDATE accounts
SET balance_minor = balance_minor + $2,
    updated_at = $3
WHERE id = $1
RETURNING balance_minor
`
	var newBalance int64
	if err := tx.QueryRowContext(ctx, q, accountID, amountMinor, now).Scan(&newBalance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return newBalance, nil
}

func insertAdjustment(ctx context.Context, tx *sql.Tx, a Adjustment) error {
	const q = `
INSERT INTO balance_adjustments (
  id, account_id, kind, amount_minor, reason, actor, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7
)
`
	_, err := tx.ExecContext(ctx, q,
		a.ID,
		a.AccountID,
		a.Kind,
		a.AmountMinor,
		a.Reason,
		a.Actor,
		a.CreatedAt,
	)
	return err
}
