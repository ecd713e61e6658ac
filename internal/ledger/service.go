package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"sms-panel/pkg/utils"

	"github.com/google/uuid"
)

// Service owns every mutation of account balance.
//
// Money invariants:
// - Debits never drive a balance below zero; TryDebit is a single conditional
//   UPDATE so concurrent debits serialize at the storage layer and stay safe
//   across multiple server instances.
// - Administrative mutations (Credit, AdminDebit) append an Adjustment row in
//   the same transaction as the balance change. Adjustments are immutable.
type Service struct {
	db *sql.DB
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db, clock: time.Now}
}

var (
	ErrNotFound            = errors.New("ledger: account not found")
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")
	ErrInvalidArgument     = errors.New("ledger: invalid argument")
)

func (s *Service) GetAccount(ctx context.Context, accountID string) (Account, error) {
	if accountID == "" {
		return Account{}, ErrInvalidArgument
	}
	return getAccount(ctx, s.db, accountID)
}

// TryDebit decrements balance by amountMinor only if the current balance
// covers it, and returns the new balance. This is the serialization point for
// concurrent spends: two sends whose combined cost exceeds the balance cannot
// both pass.
func (s *Service) TryDebit(ctx context.Context, accountID string, amountMinor int64) (int64, error) {
	if accountID == "" || amountMinor <= 0 {
		return 0, ErrInvalidArgument
	}

	newBalance, ok, err := conditionalDebit(ctx, s.db, accountID, amountMinor, s.clock().UTC())
	if err != nil {
		return 0, err
	}
	if ok {
		return newBalance, nil
	}

	// Zero rows means either the account is missing or the balance is short.
	if _, err := getAccount(ctx, s.db, accountID); err != nil {
		return 0, err
	}
	return 0, ErrInsufficientBalance
}

// Credit unconditionally increases balance and appends an Adjustment in the
// same transaction. Used by top-up approvals and manual admin credits; never
// by dispatch.
func (s *Service) Credit(ctx context.Context, accountID string, amountMinor int64, reason, actor string) (int64, Adjustment, error) {
	if accountID == "" || amountMinor <= 0 || reason == "" || actor == "" {
		return 0, Adjustment{}, ErrInvalidArgument
	}

	now := s.clock().UTC()
	adj := Adjustment{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		Kind:        AdjustmentKindCredit,
		AmountMinor: amountMinor,
		Reason:      reason,
		Actor:       actor,
		CreatedAt:   now,
	}

	var newBalance int64
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		b, err := applyCredit(ctx, tx, accountID, amountMinor, now)
		if err != nil {
			return err
		}
		if err := insertAdjustment(ctx, tx, adj); err != nil {
			return err
		}
		newBalance = b
		return nil
	})
	if err != nil {
		return 0, Adjustment{}, err
	}
	return newBalance, adj, nil
}

// AdminDebit is a manual administrative deduction. Unlike dispatch debits it
// appends an Adjustment, and like every debit it cannot overdraw.
func (s *Service) AdminDebit(ctx context.Context, accountID string, amountMinor int64, reason, actor string) (int64, Adjustment, error) {
	if accountID == "" || amountMinor <= 0 || reason == "" || actor == "" {
		return 0, Adjustment{}, ErrInvalidArgument
	}

	now := s.clock().UTC()
	adj := Adjustment{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		Kind:        AdjustmentKindDebit,
		AmountMinor: -amountMinor,
		Reason:      reason,
		Actor:       actor,
		CreatedAt:   now,
	}

	var newBalance int64
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		b, ok, err := conditionalDebitTx(ctx, tx, accountID, amountMinor, now)
		if err != nil {
			return err
		}
		if !ok {
			if _, err := getAccountTx(ctx, tx, accountID); err != nil {
				return err
			}
			return ErrInsufficientBalance
		}
		if err := insertAdjustment(ctx, tx, adj); err != nil {
			return err
		}
		newBalance = b
		return nil
	})
	if err != nil {
		return 0, Adjustment{}, err
	}
	return newBalance, adj, nil
}
