package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/consultapj/consultapj/internal/plan/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() plandomain.Repository {
	return &repo{}
}

func (r *repo) FindActiveByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*plandomain.Subscription, *plandomain.Plan, error) {
	var sub plandomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, plan_id, status, auto_renew, renewal_count, last_renewed_at, created_at, updated_at
		 FROM subscriptions WHERE user_id = ? AND status = ?
		 ORDER BY created_at DESC LIMIT 1`,
		userID,
		plandomain.SubscriptionStatusActive,
	).Scan(&sub).Error
	if err != nil {
		return nil, nil, err
	}
	if sub.ID == 0 {
		return nil, nil, nil
	}

	var plan plandomain.Plan
	err = db.WithContext(ctx).Raw(
		`SELECT id, code, name, price_minor, included_credit_minor, active, created_at
		 FROM plans WHERE id = ?`,
		sub.PlanID,
	).Scan(&plan).Error
	if err != nil {
		return nil, nil, err
	}
	if plan.ID == 0 {
		return &sub, nil, nil
	}
	return &sub, &plan, nil
}

func (r *repo) IncrementRenewal(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, renewedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET renewal_count = renewal_count + 1, last_renewed_at = ?, updated_at = ?
		 WHERE id = ?`,
		renewedAt.UTC(),
		time.Now().UTC(),
		subscriptionID,
	).Error
}
