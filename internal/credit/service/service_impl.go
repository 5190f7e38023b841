package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/consultapj/consultapj/internal/config"
	creditdomain "github.com/consultapj/consultapj/internal/credit/domain"
	"github.com/consultapj/consultapj/internal/distlock"
	obsmetrics "github.com/consultapj/consultapj/internal/observability/metrics"
	renewaldomain "github.com/consultapj/consultapj/internal/renewal/domain"
	"github.com/consultapj/consultapj/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Cfg     config.Config
	Repo    creditdomain.Repository
	Renewer renewaldomain.Service
	Locker  *distlock.Locker    `optional:"true"`
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	repo      creditdomain.Repository
	renewer   renewaldomain.Service
	locker    *distlock.Locker
	metrics   *obsmetrics.Metrics
	txTimeout time.Duration
}

func New(p Params) creditdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("credit.service"),
		repo:      p.Repo,
		renewer:   p.Renewer,
		locker:    p.Locker,
		metrics:   p.Metrics,
		txTimeout: p.Cfg.LedgerTxTimeout,
	}
}

func (s *Service) Debit(ctx context.Context, userID snowflake.ID, amountMinor int64, consultationID *snowflake.ID, description string) (*creditdomain.CreditTransaction, error) {
	if amountMinor <= 0 {
		return nil, creditdomain.ErrInvalidAmount
	}

	release, err := s.guard(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	row := &creditdomain.CreditTransaction{
		UserID:         userID,
		ConsultationID: consultationID,
		Kind:           creditdomain.KindUsage,
		AmountMinor:    -amountMinor,
		Description:    description,
	}

	err = s.append(ctx, row)
	if errors.Is(err, creditdomain.ErrInsufficientFunds) {
		credited, renewErr := s.renewer.Renew(ctx, userID)
		switch {
		case renewErr == nil:
			s.log.Info("auto renewal covered overdraft",
				zap.String("user_id", userID.String()),
				zap.Int64("credited_minor", credited),
			)
		case errors.Is(renewErr, renewaldomain.ErrNoPlan):
			return nil, creditdomain.ErrInsufficientFunds
		case errors.Is(renewErr, renewaldomain.ErrPaymentDeclined):
			return nil, fmt.Errorf("%w: %v", creditdomain.ErrRenewalFailed, renewErr)
		default:
			return nil, renewErr
		}

		// One retry only. If the renewed balance still cannot cover the
		// debit, the error surfaces as-is.
		err = s.append(ctx, row)
	}
	if err != nil {
		return nil, err
	}

	s.metrics.RecordCreditTransaction(ctx, string(creditdomain.KindUsage))
	return row, nil
}

func (s *Service) Credit(ctx context.Context, userID snowflake.ID, amountMinor int64, kind creditdomain.TransactionKind, externalRef, description string) (*creditdomain.CreditTransaction, error) {
	if amountMinor <= 0 {
		return nil, creditdomain.ErrInvalidAmount
	}
	switch kind {
	case creditdomain.KindPurchase, creditdomain.KindAutoRenewal, creditdomain.KindRefund:
	default:
		return nil, creditdomain.ErrInvalidAmount
	}

	release, err := s.guard(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	row := &creditdomain.CreditTransaction{
		UserID:      userID,
		Kind:        kind,
		AmountMinor: amountMinor,
		Description: description,
	}
	if externalRef != "" {
		ref := externalRef
		row.ExternalRef = &ref
	}

	if err := s.append(ctx, row); err != nil {
		return nil, err
	}

	s.metrics.RecordCreditTransaction(ctx, string(kind))
	return row, nil
}

// append runs the atomic ledger write under the ledger transaction timeout.
// A snowflake collision is the only duplicate-key source here; Append assigns
// a fresh ID on every call, so one retry is enough.
func (s *Service) append(ctx context.Context, row *creditdomain.CreditTransaction) error {
	txCtx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	err := s.repo.Append(txCtx, s.db, row)
	if err != nil && db.IsDuplicateKeyErr(err) {
		s.log.Warn("ledger id collision, retrying",
			zap.String("transaction_id", row.ID.String()),
		)
		err = s.repo.Append(txCtx, s.db, row)
	}
	return err
}

// guard serializes writers for one user across instances when Redis is
// configured. The database row lock inside Append remains the correctness
// boundary; this only reduces lock contention and renewal races.
func (s *Service) guard(ctx context.Context, userID snowflake.ID) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	key := fmt.Sprintf("credit:user:%s", userID)
	token, err := s.locker.Lock(ctx, key, 30*time.Second)
	if err != nil {
		return nil, err
	}
	return func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			s.log.Warn("failed to release credit lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

func (s *Service) CurrentBalance(ctx context.Context, userID snowflake.ID) (int64, error) {
	return s.repo.CurrentBalance(ctx, s.db, userID)
}

func (s *Service) Transactions(ctx context.Context, userID snowflake.ID, limit int) ([]creditdomain.CreditTransaction, error) {
	return s.repo.ListByUser(ctx, s.db, userID, limit)
}

func (s *Service) VerifyUser(ctx context.Context, userID snowflake.ID) error {
	rows, err := s.repo.ReplayByUser(ctx, s.db, userID)
	if err != nil {
		return err
	}

	var running int64
	for _, row := range rows {
		running += row.AmountMinor
		if running < 0 {
			return fmt.Errorf("%w: balance went negative at transaction %s", creditdomain.ErrLedgerCorrupted, row.ID)
		}
		if row.BalanceAfterMinor != running {
			return fmt.Errorf("%w: transaction %s records balance %d, replay computes %d",
				creditdomain.ErrLedgerCorrupted, row.ID, row.BalanceAfterMinor, running)
		}
	}

	cached, err := s.repo.CurrentBalance(ctx, s.db, userID)
	if err != nil {
		return err
	}
	if cached != running {
		return fmt.Errorf("%w: cached balance %d does not match replayed %d",
			creditdomain.ErrLedgerCorrupted, cached, running)
	}
	return nil
}
