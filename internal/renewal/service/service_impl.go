package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/consultapj/consultapj/internal/config"
	creditdomain "github.com/consultapj/consultapj/internal/credit/domain"
	obsmetrics "github.com/consultapj/consultapj/internal/observability/metrics"
	plandomain "github.com/consultapj/consultapj/internal/plan/domain"
	"github.com/consultapj/consultapj/internal/providers/payment"
	renewaldomain "github.com/consultapj/consultapj/internal/renewal/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Cfg     config.Config
	Plans   plandomain.Repository
	Charger payment.Charger
	Credits creditdomain.Repository
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	plans         plandomain.Repository
	charger       payment.Charger
	credits       creditdomain.Repository
	chargeTimeout time.Duration
	metrics       *obsmetrics.Metrics
}

func New(p Params) renewaldomain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("renewal.service"),
		plans:         p.Plans,
		charger:       p.Charger,
		credits:       p.Credits,
		chargeTimeout: p.Cfg.PaymentTimeout,
		metrics:       p.Metrics,
	}
}

func (s *Service) Renew(ctx context.Context, userID snowflake.ID) (int64, error) {
	sub, plan, err := s.plans.FindActiveByUser(ctx, s.db, userID)
	if err != nil {
		return 0, err
	}
	if sub == nil || plan == nil || !sub.AutoRenew || !plan.Active {
		s.metrics.RecordRenewal(ctx, "no_plan")
		return 0, renewaldomain.ErrNoPlan
	}

	// The processor is slow by nature; its timeout is independent from the
	// ledger transaction timeout.
	chargeCtx, cancel := context.WithTimeout(ctx, s.chargeTimeout)
	defer cancel()

	result, err := s.charger.Charge(chargeCtx, payment.ChargeRequest{
		UserID:      userID,
		AmountMinor: plan.PriceMinor,
		Description: fmt.Sprintf("auto renewal of plan %s", plan.Code),
	})
	if err != nil {
		s.log.Warn("auto renewal charge failed",
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
		s.metrics.RecordRenewal(ctx, "declined")
		return 0, renewaldomain.ErrPaymentDeclined
	}
	if !result.Approved {
		s.log.Info("auto renewal charge declined",
			zap.String("user_id", userID.String()),
			zap.String("reason", result.Reason),
		)
		s.metrics.RecordRenewal(ctx, "declined")
		return 0, renewaldomain.ErrPaymentDeclined
	}

	row := &creditdomain.CreditTransaction{
		UserID:      userID,
		Kind:        creditdomain.KindAutoRenewal,
		AmountMinor: plan.IncludedCreditMinor,
		Description: fmt.Sprintf("auto renewal of plan %s", plan.Code),
	}
	if result.Reference != "" {
		ref := result.Reference
		row.ExternalRef = &ref
	}
	if err := s.credits.Append(ctx, s.db, row); err != nil {
		// Money was collected but the credit could not be recorded; this is
		// an operational incident, not a declined payment.
		s.log.Error("auto renewal credit write failed after approved charge",
			zap.String("user_id", userID.String()),
			zap.String("external_ref", result.Reference),
			zap.Error(err),
		)
		return 0, err
	}

	if err := s.plans.IncrementRenewal(ctx, s.db, sub.ID, time.Now().UTC()); err != nil {
		s.log.Warn("failed to bump renewal counter",
			zap.String("subscription_id", sub.ID.String()),
			zap.Error(err),
		)
	}

	s.metrics.RecordRenewal(ctx, "success")
	s.metrics.RecordCreditTransaction(ctx, string(creditdomain.KindAutoRenewal))
	s.log.Info("auto renewal applied",
		zap.String("user_id", userID.String()),
		zap.Int64("credited_minor", plan.IncludedCreditMinor),
		zap.Int64("balance_after_minor", row.BalanceAfterMinor),
	)
	return plan.IncludedCreditMinor, nil
}
