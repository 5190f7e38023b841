package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// FindActiveByUser returns the user's active subscription and its plan,
	// or (nil, nil, nil) when the user has none.
	FindActiveByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Subscription, *Plan, error)
	IncrementRenewal(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, renewedAt time.Time) error
}
