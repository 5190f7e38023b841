// Package payment exposes the external payment processor collaborator.
// Checkout sessions and webhook verification live outside this service; the
// only call consumed here is a synchronous charge returning approval plus an
// external reference.
package payment

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type ChargeRequest struct {
	UserID      snowflake.ID
	AmountMinor int64
	Description string
}

type ChargeResult struct {
	Approved  bool
	Reference string
	Reason    string
}

// Charger performs exactly one charge attempt per call; retry policy belongs
// to callers.
type Charger interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}
