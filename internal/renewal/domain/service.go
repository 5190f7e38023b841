// Package domain defines the auto-renewal coordinator: the single-attempt
// top-up purchase triggered when a debit would overdraw the balance.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// Renew charges the user's active plan once and, on approval, credits
	// the plan's included amount to the ledger. It never retries the charge
	// itself; retry policy belongs to the caller.
	Renew(ctx context.Context, userID snowflake.ID) (creditedMinor int64, err error)
}

var (
	// ErrNoPlan means auto-renewal is not available for the user: no active
	// subscription, inactive plan, or auto-renew disabled.
	ErrNoPlan = errors.New("no_plan")
	// ErrPaymentDeclined means the processor refused the single charge
	// attempt; the ledger was not touched.
	ErrPaymentDeclined = errors.New("payment_declined")
)
