package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/consultapj/consultapj/internal/config"
	creditdomain "github.com/consultapj/consultapj/internal/credit/domain"
	creditrepository "github.com/consultapj/consultapj/internal/credit/repository"
	plandomain "github.com/consultapj/consultapj/internal/plan/domain"
	planrepository "github.com/consultapj/consultapj/internal/plan/repository"
	"github.com/consultapj/consultapj/internal/providers/payment"
	renewaldomain "github.com/consultapj/consultapj/internal/renewal/domain"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeCharger struct {
	result payment.ChargeResult
	err    error
	calls  int
}

func (f *fakeCharger) Charge(ctx context.Context, req payment.ChargeRequest) (payment.ChargeResult, error) {
	f.calls++
	return f.result, f.err
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&creditdomain.UserAccount{},
		&plandomain.Plan{},
		&plandomain.Subscription{},
		&creditdomain.CreditTransaction{},
	))
	return db
}

type fixture struct {
	svc    renewaldomain.Service
	db     *gorm.DB
	node   *snowflake.Node
	userID snowflake.ID
	subID  snowflake.ID
}

func newFixture(t *testing.T, charger payment.Charger, withSubscription, autoRenew bool) fixture {
	t.Helper()
	db := newTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	user := creditdomain.UserAccount{ID: node.Generate(), CreditBalanceMinor: 10}
	require.NoError(t, db.Create(&user).Error)

	plan := plandomain.Plan{
		ID:                  node.Generate(),
		Code:                "recarga_10000",
		Name:                "Recarga R$ 100",
		PriceMinor:          10000,
		IncludedCreditMinor: 10000,
		Active:              true,
	}
	require.NoError(t, db.Create(&plan).Error)

	var subID snowflake.ID
	if withSubscription {
		sub := plandomain.Subscription{
			ID:        node.Generate(),
			UserID:    user.ID,
			PlanID:    plan.ID,
			Status:    plandomain.SubscriptionStatusActive,
			AutoRenew: autoRenew,
		}
		require.NoError(t, db.Create(&sub).Error)
		subID = sub.ID
	}

	svc := New(Params{
		DB:      db,
		Log:     zap.NewNop(),
		Cfg:     config.Config{PaymentTimeout: 5 * time.Second},
		Plans:   planrepository.Provide(),
		Charger: charger,
		Credits: creditrepository.Provide(node),
	})
	return fixture{svc: svc, db: db, node: node, userID: user.ID, subID: subID}
}

func TestRenewWithoutSubscription(t *testing.T) {
	charger := &fakeCharger{}
	f := newFixture(t, charger, false, false)

	_, err := f.svc.Renew(context.Background(), f.userID)
	assert.ErrorIs(t, err, renewaldomain.ErrNoPlan)
	assert.Zero(t, charger.calls)
}

func TestRenewWithAutoRenewDisabled(t *testing.T) {
	charger := &fakeCharger{}
	f := newFixture(t, charger, true, false)

	_, err := f.svc.Renew(context.Background(), f.userID)
	assert.ErrorIs(t, err, renewaldomain.ErrNoPlan)
	assert.Zero(t, charger.calls)
}

func TestRenewChargesOnceAndCreditsLedger(t *testing.T) {
	charger := &fakeCharger{result: payment.ChargeResult{Approved: true, Reference: "ch_abc"}}
	f := newFixture(t, charger, true, true)

	credited, err := f.svc.Renew(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), credited)
	assert.Equal(t, 1, charger.calls)

	var row creditdomain.CreditTransaction
	require.NoError(t, f.db.Where("user_id = ?", f.userID).First(&row).Error)
	assert.Equal(t, creditdomain.KindAutoRenewal, row.Kind)
	assert.Equal(t, int64(10000), row.AmountMinor)
	assert.Equal(t, int64(10010), row.BalanceAfterMinor)
	require.NotNil(t, row.ExternalRef)
	assert.Equal(t, "ch_abc", *row.ExternalRef)

	var sub plandomain.Subscription
	require.NoError(t, f.db.First(&sub, "id = ?", f.subID).Error)
	assert.Equal(t, 1, sub.RenewalCount)
	assert.NotNil(t, sub.LastRenewedAt)
}

func TestRenewDeclinedWritesNothing(t *testing.T) {
	charger := &fakeCharger{result: payment.ChargeResult{Approved: false, Reason: "card_declined"}}
	f := newFixture(t, charger, true, true)

	_, err := f.svc.Renew(context.Background(), f.userID)
	assert.ErrorIs(t, err, renewaldomain.ErrPaymentDeclined)
	assert.Equal(t, 1, charger.calls)

	var count int64
	require.NoError(t, f.db.Model(&creditdomain.CreditTransaction{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRenewGatewayErrorMapsToDeclined(t *testing.T) {
	charger := &fakeCharger{err: errors.New("connection reset")}
	f := newFixture(t, charger, true, true)

	_, err := f.svc.Renew(context.Background(), f.userID)
	assert.ErrorIs(t, err, renewaldomain.ErrPaymentDeclined)
	assert.Equal(t, 1, charger.calls)
}
