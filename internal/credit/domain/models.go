// Package domain contains the prepaid credit ledger: an append-only
// transaction log plus the cached balance column on the user record.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// TransactionKind tags why a ledger row exists.
type TransactionKind string

const (
	KindPurchase    TransactionKind = "purchase"
	KindUsage       TransactionKind = "usage"
	KindAutoRenewal TransactionKind = "auto_renewal"
	KindRefund      TransactionKind = "refund"
)

// CreditTransaction is one immutable ledger row. AmountMinor is signed
// (negative for usage); BalanceAfterMinor is the running balance snapshot
// computed under the per-user lock at insertion time. Seq is the per-user
// insertion order, also assigned under that lock: snowflake ids from
// different nodes do not order within one millisecond, so all reads order
// by seq. Rows are never updated or deleted.
type CreditTransaction struct {
	ID                snowflake.ID    `json:"id" gorm:"primaryKey"`
	UserID            snowflake.ID    `json:"user_id" gorm:"not null;index:idx_credit_transactions_user;uniqueIndex:ux_credit_transactions_user_seq,priority:1"`
	Seq               int64           `json:"seq" gorm:"column:seq;not null;uniqueIndex:ux_credit_transactions_user_seq,priority:2"`
	ConsultationID    *snowflake.ID   `json:"consultation_id,omitempty" gorm:"index:idx_credit_transactions_consultation"`
	Kind              TransactionKind `json:"kind" gorm:"type:text;not null"`
	AmountMinor       int64           `json:"amount_minor_units" gorm:"column:amount_minor;not null"`
	BalanceAfterMinor int64           `json:"balance_after_minor_units" gorm:"column:balance_after_minor;not null"`
	Description       string          `json:"description" gorm:"type:text"`
	ExternalRef       *string         `json:"external_ref,omitempty" gorm:"type:text"`
	CreatedAt         time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (CreditTransaction) TableName() string { return "credit_transactions" }

// UserAccount is the slice of the user record owned by the ledger: the
// denormalized current balance. It must always equal BalanceAfterMinor of
// the user's most recent transaction row.
type UserAccount struct {
	ID                 snowflake.ID `json:"id" gorm:"primaryKey"`
	Email              string       `json:"email" gorm:"type:text"`
	CreditBalanceMinor int64        `json:"credit_balance_minor_units" gorm:"column:credit_balance_minor;not null;default:0"`
	CreatedAt          time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (UserAccount) TableName() string { return "users" }
