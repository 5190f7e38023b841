// Package scheduler runs background maintenance: keeping the price catalog
// snapshot warm and sweeping recent ledgers for balance corruption.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/consultapj/consultapj/internal/alert"
	catalogdomain "github.com/consultapj/consultapj/internal/catalog/domain"
	"github.com/consultapj/consultapj/internal/clock"
	"github.com/consultapj/consultapj/internal/config"
	creditdomain "github.com/consultapj/consultapj/internal/credit/domain"
	"github.com/consultapj/consultapj/internal/distlock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const tickInterval = time.Minute

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Cfg        config.Config
	Clock      clock.Clock
	Catalog    catalogdomain.Service
	Credits    creditdomain.Service
	CreditRepo creditdomain.Repository
	Alerts     alert.Notifier
	Locker     *distlock.Locker `optional:"true"`
}

type Scheduler struct {
	db           *gorm.DB
	log          *zap.Logger
	clock        clock.Clock
	catalog      catalogdomain.Service
	credits      creditdomain.Service
	creditRepo   creditdomain.Repository
	alerts       alert.Notifier
	locker       *distlock.Locker
	verifyEvery  time.Duration
	verifyWindow time.Duration

	lastVerify time.Time
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.Catalog == nil || p.Credits == nil || p.CreditRepo == nil {
		return nil, errors.New("scheduler dependencies are incomplete")
	}
	return &Scheduler{
		db:           p.DB,
		log:          p.Log.Named("scheduler"),
		clock:        p.Clock,
		catalog:      p.Catalog,
		credits:      p.Credits,
		creditRepo:   p.CreditRepo,
		alerts:       p.Alerts,
		locker:       p.Locker,
		verifyEvery:  p.Cfg.LedgerVerifyInterval,
		verifyWindow: p.Cfg.LedgerVerifyWindow,
	}, nil
}

// RunForever ticks until ctx is canceled. Each pass refreshes the catalog
// snapshot and, on its own slower cadence, verifies recently active ledgers.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	s.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

func (s *Scheduler) RunOnce(ctx context.Context) {
	s.runJob(ctx, "catalog.refresh", 30*time.Second, func(ctx context.Context) error {
		return s.catalog.RefreshIfStale(ctx)
	})

	now := s.clock.Now()
	if now.Sub(s.lastVerify) < s.verifyEvery {
		return
	}
	s.lastVerify = now
	s.runJob(ctx, "ledger.verify", 5*time.Minute, s.verifyLedgers)
}

// runJob executes one named job under a timeout and, when Redis is present,
// a cross-instance lock so only one replica runs it.
func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	if s.locker != nil {
		key := "scheduler:job:" + name
		token, ok, err := s.locker.TryLock(ctx, key, timeout)
		if err != nil {
			s.log.Warn("job lock failed", zap.String("job", name), zap.Error(err))
			return
		}
		if !ok {
			return
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
				s.log.Warn("job lock release failed", zap.String("job", name), zap.Error(err))
			}
		}()
	}

	start := s.clock.Now()
	if err := fn(ctx); err != nil {
		s.log.Error("job failed",
			zap.String("job", name),
			zap.Duration("elapsed", s.clock.Now().Sub(start)),
			zap.Error(err),
		)
		return
	}
	s.log.Debug("job completed",
		zap.String("job", name),
		zap.Duration("elapsed", s.clock.Now().Sub(start)),
	)
}

// verifyLedgers replays each recently active ledger and raises an alert on
// any mismatch between rows, running balances and the cached column.
func (s *Scheduler) verifyLedgers(ctx context.Context) error {
	since := s.clock.Now().Add(-s.verifyWindow)
	userIDs, err := s.creditRepo.RecentUserIDs(ctx, s.db, since, 1000)
	if err != nil {
		return err
	}

	var corrupted int
	for _, userID := range userIDs {
		err := s.credits.VerifyUser(ctx, userID)
		if err == nil {
			continue
		}
		if errors.Is(err, creditdomain.ErrLedgerCorrupted) {
			corrupted++
			s.log.Error("ledger verification failed",
				zap.String("user_id", userID.String()),
				zap.Error(err),
			)
			message := fmt.Sprintf("ledger corruption detected for user %s: %v", userID, err)
			if alertErr := s.alerts.Notify(ctx, message); alertErr != nil {
				s.log.Warn("failed to deliver ledger alert", zap.Error(alertErr))
			}
			continue
		}
		return err
	}

	s.log.Info("ledger verification sweep completed",
		zap.Int("users_checked", len(userIDs)),
		zap.Int("corrupted", corrupted),
	)
	return nil
}
