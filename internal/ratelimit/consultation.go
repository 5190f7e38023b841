package ratelimit

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/consultapj/consultapj/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

const keyConsultationUser = "consultation:user:%s"

// ConsultationLimiter throttles consultation submissions per user. A nil
// limiter (rate limiting disabled or no Redis) allows everything.
type ConsultationLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewConsultationLimiter(cfg config.Config, client *redis.Client) *ConsultationLimiter {
	if !cfg.RateLimitEnabled || client == nil {
		return nil
	}
	return &ConsultationLimiter{
		bucket: NewTokenBucket(client),
		rate:   cfg.ConsultationRate,
		burst:  cfg.ConsultationBurst,
	}
}

func (l *ConsultationLimiter) Allow(ctx context.Context, userID snowflake.ID) (Result, error) {
	if l == nil {
		return Result{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyConsultationUser, userID)
	return l.bucket.Allow(ctx, key, l.rate, l.burst)
}

var Module = fx.Module("rate.limit",
	fx.Provide(NewConsultationLimiter),
)
