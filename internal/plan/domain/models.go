// Package domain contains subscription plans and the per-user subscription
// state consumed by the auto-renewal coordinator.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

// Plan defines a purchasable credit bundle.
type Plan struct {
	ID                  snowflake.ID `json:"id" gorm:"primaryKey"`
	Code                string       `json:"code" gorm:"type:text;not null;uniqueIndex:ux_plans_code"`
	Name                string       `json:"name" gorm:"type:text;not null"`
	PriceMinor          int64        `json:"price_minor_units" gorm:"column:price_minor;not null"`
	IncludedCreditMinor int64        `json:"included_credit_minor_units" gorm:"column:included_credit_minor;not null"`
	Active              bool         `json:"active" gorm:"not null;default:true"`
	CreatedAt           time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Plan) TableName() string { return "plans" }

// Subscription links a user to a plan and carries the auto-renewal state.
type Subscription struct {
	ID            snowflake.ID       `json:"id" gorm:"primaryKey"`
	UserID        snowflake.ID       `json:"user_id" gorm:"not null;index"`
	PlanID        snowflake.ID       `json:"plan_id" gorm:"not null;index"`
	Status        SubscriptionStatus `json:"status" gorm:"type:text;not null"`
	AutoRenew     bool               `json:"auto_renew" gorm:"not null;default:false"`
	RenewalCount  int                `json:"renewal_count" gorm:"not null;default:0"`
	LastRenewedAt *time.Time         `json:"last_renewed_at,omitempty" gorm:""`
	CreatedAt     time.Time          `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time          `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Subscription) TableName() string { return "subscriptions" }
