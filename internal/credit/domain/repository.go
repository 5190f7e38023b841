package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the single write path into the ledger. Append is the only
// way a transaction row comes into existence, so every row carries a correct
// running balance regardless of which service asked for it.
type Repository interface {
	// Append atomically locks the user's balance row, assigns the row's ID
	// and Seq, computes BalanceAfterMinor, inserts the transaction and
	// updates the cached balance. It returns ErrInsufficientFunds (and
	// writes nothing) when the signed amount would make the balance
	// negative. Callers never set ID or Seq.
	Append(ctx context.Context, db *gorm.DB, row *CreditTransaction) error
	CurrentBalance(ctx context.Context, db *gorm.DB, userID snowflake.ID) (int64, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, limit int) ([]CreditTransaction, error)
	LatestByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*CreditTransaction, error)
	// ReplayByUser returns the user's full ledger in insertion order.
	ReplayByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]CreditTransaction, error)
	// RecentUserIDs returns the distinct users with ledger activity since the
	// given time, for background verification sweeps.
	RecentUserIDs(ctx context.Context, db *gorm.DB, since time.Time, limit int) ([]snowflake.ID, error)
}
