package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// Debit charges a usage amount. When the balance is insufficient it
	// attempts one synchronous auto-renewal and retries the debit exactly
	// once; otherwise it fails with ErrInsufficientFunds or ErrRenewalFailed
	// and writes no row.
	Debit(ctx context.Context, userID snowflake.ID, amountMinor int64, consultationID *snowflake.ID, description string) (*CreditTransaction, error)
	// Credit adds funds (purchase, auto_renewal, refund).
	Credit(ctx context.Context, userID snowflake.ID, amountMinor int64, kind TransactionKind, externalRef, description string) (*CreditTransaction, error)
	CurrentBalance(ctx context.Context, userID snowflake.ID) (int64, error)
	Transactions(ctx context.Context, userID snowflake.ID, limit int) ([]CreditTransaction, error)
	// VerifyUser replays the user's ledger from zero and checks every
	// running balance plus the cached column. Any mismatch is a defect.
	VerifyUser(ctx context.Context, userID snowflake.ID) error
}

var (
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrUserNotFound      = errors.New("user_not_found")
	ErrInsufficientFunds = errors.New("insufficient_funds")
	// ErrRenewalFailed distinguishes "auto-renewal configured but the charge
	// was declined" from plain ErrInsufficientFunds so clients can prompt
	// for a payment-method update.
	ErrRenewalFailed   = errors.New("renewal_failed")
	ErrLedgerCorrupted = errors.New("ledger_corrupted")
)
