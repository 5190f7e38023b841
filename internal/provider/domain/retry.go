package domain

import (
	"context"
	"time"
)

// RetryPolicy bounds the rate-limit backoff loop. The bound is structural:
// the loop runs at most MaxAttempts times and each wait is capped by MaxDelay.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

// DefaultRetryPolicy matches the documented upstream contract: 3 attempts,
// 2s base delay, doubling between attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		Multiplier:  2,
		MaxDelay:    30 * time.Second,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 2 * time.Second
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	return p
}

// Wait returns the backoff delay before the given retry (0-based).
func (p RetryPolicy) Wait(retry int) time.Duration {
	p = p.normalized()
	delay := p.BaseDelay
	for i := 0; i < retry; i++ {
		delay = time.Duration(float64(delay) * p.Multiplier)
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// DoWithBackoff runs fn, retrying only on rate-limit failures, sleeping per
// the policy between attempts. It stops on context cancellation and
// surfaces the last rate-limit error once attempts are exhausted.
func DoWithBackoff(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) *FieldError) *FieldError {
	policy = policy.normalized()

	var last *FieldError
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(policy.Wait(attempt - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return &FieldError{Code: FailureTimeout, Message: ctx.Err().Error()}
			case <-timer.C:
			}
		}

		last = fn(ctx)
		if last == nil || last.Code != FailureRateLimited {
			return last
		}
	}
	return last
}

// DegradeTracker enforces the degraded-service state machine: each field
// group may be disabled at most once per call, so the retry loop is bounded
// by the number of requested groups.
type DegradeTracker struct {
	degraded map[FieldGroup]bool
}

func NewDegradeTracker() *DegradeTracker {
	return &DegradeTracker{degraded: make(map[FieldGroup]bool)}
}

// Degrade records the offline groups and returns the remaining enabled set.
// ok is false when nothing changed (already degraded or nothing left), which
// ends the retry loop.
func (t *DegradeTracker) Degrade(enabled []FieldGroup, offline []FieldGroup) (remaining []FieldGroup, ok bool) {
	drop := make(map[FieldGroup]bool, len(offline))
	for _, group := range offline {
		if t.degraded[group] {
			continue
		}
		t.degraded[group] = true
		drop[group] = true
	}
	if len(drop) == 0 {
		return enabled, false
	}

	remaining = make([]FieldGroup, 0, len(enabled))
	for _, group := range enabled {
		if !drop[group] {
			remaining = append(remaining, group)
		}
	}
	return remaining, len(remaining) > 0
}

// Degraded reports whether the group was disabled during this call.
func (t *DegradeTracker) Degraded(group FieldGroup) bool {
	return t.degraded[group]
}
