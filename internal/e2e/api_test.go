package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/consultapj/consultapj/internal/catalog/domain"
	catalogrepository "github.com/consultapj/consultapj/internal/catalog/repository"
	catalogservice "github.com/consultapj/consultapj/internal/catalog/service"
	"github.com/consultapj/consultapj/internal/clock"
	"github.com/consultapj/consultapj/internal/config"
	consultationdomain "github.com/consultapj/consultapj/internal/consultation/domain"
	consultationrepository "github.com/consultapj/consultapj/internal/consultation/repository"
	consultationservice "github.com/consultapj/consultapj/internal/consultation/service"
	creditdomain "github.com/consultapj/consultapj/internal/credit/domain"
	creditrepository "github.com/consultapj/consultapj/internal/credit/repository"
	creditservice "github.com/consultapj/consultapj/internal/credit/service"
	"github.com/consultapj/consultapj/internal/observability"
	plandomain "github.com/consultapj/consultapj/internal/plan/domain"
	planrepository "github.com/consultapj/consultapj/internal/plan/repository"
	"github.com/consultapj/consultapj/internal/provider"
	"github.com/consultapj/consultapj/internal/provider/protesto"
	"github.com/consultapj/consultapj/internal/provider/registry"
	"github.com/consultapj/consultapj/internal/providers/payment"
	renewalservice "github.com/consultapj/consultapj/internal/renewal/service"
	"github.com/consultapj/consultapj/internal/seed"
	"github.com/consultapj/consultapj/internal/server"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const validSubject = "11222333000181"

type fakeCharger struct {
	result payment.ChargeResult
	err    error
	calls  int
}

func (f *fakeCharger) Charge(ctx context.Context, req payment.ChargeRequest) (payment.ChargeResult, error) {
	f.calls++
	return f.result, f.err
}

type stack struct {
	db     *gorm.DB
	node   *snowflake.Node
	engine *gin.Engine
	userID snowflake.ID
}

func newStack(t *testing.T, charger payment.Charger) *stack {
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
		&creditdomain.CreditTransaction{},
		&plandomain.Plan{},
		&plandomain.Subscription{},
		&catalogdomain.ConsultationType{},
		&consultationdomain.Consultation{},
		&consultationdomain.ConsultationDetail{},
	))
	require.NoError(t, seed.EnsureCatalog(db))

	registryUpstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		groups := strings.Split(r.URL.Query().Get("groups"), ",")
		payload := make(map[string]json.RawMessage, len(groups))
		for _, group := range groups {
			payload[group] = json.RawMessage(`{"status":"ok"}`)
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
	t.Cleanup(registryUpstream.Close)

	protestoUpstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"total":1,"protests":[{"value_minor":120000}]}`))
	}))
	t.Cleanup(protestoUpstream.Close)

	cfg := config.Config{
		CatalogTTL:           5 * time.Minute,
		ConsultationDeadline: 10 * time.Second,
		ChargeFailedLookups:  true,
		LedgerTxTimeout:      5 * time.Second,
		PaymentTimeout:       5 * time.Second,
		RegistryBaseURL:      registryUpstream.URL,
		ProtestoBaseURL:      protestoUpstream.URL,
		ProviderTimeout:      5 * time.Second,
		ProviderCacheTTL:     48 * time.Hour,
		ProviderRetryBase:    time.Millisecond,
	}
	log := zap.NewNop()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	catalogSvc := catalogservice.New(catalogservice.Params{
		DB:    db,
		Log:   log,
		Cfg:   cfg,
		Clock: clock.NewSystemClock(),
		Repo:  catalogrepository.Provide(),
	})

	routing := provider.NewRouting(
		protesto.New(protesto.Params{Log: log, Cfg: cfg}),
		registry.New(registry.Params{Log: log, Cfg: cfg}),
	)

	renewer := renewalservice.New(renewalservice.Params{
		DB:      db,
		Log:     log,
		Cfg:     cfg,
		Plans:   planrepository.Provide(),
		Charger: charger,
		Credits: creditrepository.Provide(node),
	})
	credits := creditservice.New(creditservice.Params{
		DB:      db,
		Log:     log,
		Cfg:     cfg,
		Repo:    creditrepository.Provide(node),
		Renewer: renewer,
	})
	consultations := consultationservice.New(consultationservice.Params{
		DB:      db,
		Log:     log,
		GenID:   node,
		Cfg:     cfg,
		Catalog: catalogSvc,
		Routing: routing,
		Credits: credits,
		Repo:    consultationrepository.Provide(),
	})

	engine := server.NewEngine(observability.Config{LogLevel: "info", LogFormat: "json"})
	server.NewServer(server.ServerParams{
		Engine:        engine,
		Cfg:           cfg,
		Consultations: consultations,
		Credits:       credits,
		Catalog:       catalogSvc,
	})

	user := creditdomain.UserAccount{ID: node.Generate(), Email: "e2e@example.com"}
	require.NoError(t, db.Create(&user).Error)

	return &stack{db: db, node: node, engine: engine, userID: user.ID}
}

// subscribe attaches the seeded default plan to the stack user.
func (s *stack) subscribe(t *testing.T, autoRenew bool) {
	t.Helper()
	var plan plandomain.Plan
	require.NoError(t, s.db.First(&plan, "code = ?", "recarga_10000").Error)
	sub := plandomain.Subscription{
		ID:        s.node.Generate(),
		UserID:    s.userID,
		PlanID:    plan.ID,
		Status:    plandomain.SubscriptionStatusActive,
		AutoRenew: autoRenew,
	}
	require.NoError(t, s.db.Create(&sub).Error)
}

func (s *stack) request(t *testing.T, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("X-User-ID", s.userID.String())
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decodeInto(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

func (s *stack) topUp(t *testing.T, amountMinor int64) {
	t.Helper()
	w := s.request(t, http.MethodPost, "/v1/credits/topup", gin.H{
		"amount_minor": amountMinor,
		"external_ref": "pix_e2e",
	}, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestRequestsWithoutUserHeaderAreRejected(t *testing.T) {
	s := newStack(t, &fakeCharger{})

	for _, path := range []string{"/v1/credits/balance", "/v1/consultations"} {
		w := s.request(t, http.MethodGet, path, nil, false)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestCatalogTypesArePublic(t *testing.T) {
	s := newStack(t, &fakeCharger{})

	w := s.request(t, http.MethodGet, "/v1/catalog/types", nil, false)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Types []struct {
			Code      string `json:"code"`
			CostMinor int64  `json:"cost_minor"`
			Provider  string `json:"provider"`
		} `json:"types"`
	}
	decodeInto(t, w, &resp)
	require.Len(t, resp.Types, 6)

	byCode := make(map[string]int64, len(resp.Types))
	for _, entry := range resp.Types {
		byCode[entry.Code] = entry.CostMinor
	}
	assert.Equal(t, int64(1500), byCode["protestos"])
	assert.Equal(t, int64(500), byCode["receita_federal"])
	assert.Equal(t, int64(300), byCode["geocodificacao"])
}

func TestConsultationLifecycle(t *testing.T) {
	s := newStack(t, &fakeCharger{})
	s.topUp(t, 10000)

	w := s.request(t, http.MethodPost, "/v1/consultations", gin.H{
		"subject": "11.222.333/0001-81",
		"types":   []string{"protestos", "tax_status"},
	}, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var result consultationdomain.Result
	decodeInto(t, w, &result)
	assert.Equal(t, validSubject, result.Subject)
	assert.Equal(t, consultationdomain.StatusSuccess, result.Status)
	assert.Equal(t, int64(2000), result.TotalCostMinor)
	assert.Equal(t, int64(8000), result.BalanceAfterMinor)
	require.NotNil(t, result.CreditTransactionID)
	require.Len(t, result.Types, 2)
	for _, typeResult := range result.Types {
		assert.True(t, typeResult.Success, typeResult.Code)
		assert.True(t, typeResult.Charged, typeResult.Code)
	}

	w = s.request(t, http.MethodGet, "/v1/credits/balance", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var balance struct {
		CreditBalanceMinor int64 `json:"credit_balance_minor"`
	}
	decodeInto(t, w, &balance)
	assert.Equal(t, int64(8000), balance.CreditBalanceMinor)

	w = s.request(t, http.MethodGet, "/v1/credits/transactions", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var ledger struct {
		Transactions []creditdomain.CreditTransaction `json:"transactions"`
	}
	decodeInto(t, w, &ledger)
	require.Len(t, ledger.Transactions, 2)
	assert.Equal(t, creditdomain.KindUsage, ledger.Transactions[0].Kind)
	assert.Equal(t, int64(-2000), ledger.Transactions[0].AmountMinor)
	assert.Equal(t, creditdomain.KindPurchase, ledger.Transactions[1].Kind)

	w = s.request(t, http.MethodGet, "/v1/credits/verify", nil, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.request(t, http.MethodGet, "/v1/consultations", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var history struct {
		Consultations []struct {
			consultationdomain.Consultation
			Details []consultationdomain.ConsultationDetail `json:"details"`
		} `json:"consultations"`
	}
	decodeInto(t, w, &history)
	require.Len(t, history.Consultations, 1)
	assert.Equal(t, int64(2000), history.Consultations[0].TotalCostMinor)
	assert.Len(t, history.Consultations[0].Details, 2)
}

func TestRepeatedConsultationServesFromCache(t *testing.T) {
	s := newStack(t, &fakeCharger{})
	s.topUp(t, 10000)

	body := gin.H{"subject": validSubject, "types": []string{"protestos"}}

	w := s.request(t, http.MethodPost, "/v1/consultations", body, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var first consultationdomain.Result
	decodeInto(t, w, &first)
	assert.False(t, first.CacheUsed)

	w = s.request(t, http.MethodPost, "/v1/consultations", body, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var second consultationdomain.Result
	decodeInto(t, w, &second)
	assert.True(t, second.CacheUsed)
	// The cached lookup is still sold at full price.
	assert.Equal(t, int64(1500), second.TotalCostMinor)
	assert.Equal(t, int64(7000), second.BalanceAfterMinor)
}

func TestConsultationValidation(t *testing.T) {
	s := newStack(t, &fakeCharger{})

	w := s.request(t, http.MethodPost, "/v1/consultations", gin.H{
		"subject": "123",
		"types":   []string{"protestos"},
	}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.request(t, http.MethodPost, "/v1/consultations", gin.H{
		"subject": validSubject,
		"types":   []string{},
	}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConsultationWithoutCreditsOrPlan(t *testing.T) {
	s := newStack(t, &fakeCharger{})

	w := s.request(t, http.MethodPost, "/v1/consultations", gin.H{
		"subject": validSubject,
		"types":   []string{"protestos"},
	}, true)
	require.Equal(t, http.StatusPaymentRequired, w.Code, w.Body.String())

	var resp struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	decodeInto(t, w, &resp)
	assert.Equal(t, "insufficient_funds", resp.Error.Type)
}

func TestConsultationTriggersAutoRenewal(t *testing.T) {
	charger := &fakeCharger{result: payment.ChargeResult{Approved: true, Reference: "ch_e2e"}}
	s := newStack(t, charger)
	s.subscribe(t, true)

	w := s.request(t, http.MethodPost, "/v1/consultations", gin.H{
		"subject": validSubject,
		"types":   []string{"protestos"},
	}, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var result consultationdomain.Result
	decodeInto(t, w, &result)
	assert.Equal(t, int64(1500), result.TotalCostMinor)
	assert.Equal(t, int64(8500), result.BalanceAfterMinor)
	assert.Equal(t, 1, charger.calls)

	w = s.request(t, http.MethodGet, "/v1/credits/transactions", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	var ledger struct {
		Transactions []creditdomain.CreditTransaction `json:"transactions"`
	}
	decodeInto(t, w, &ledger)
	require.Len(t, ledger.Transactions, 2)
	assert.Equal(t, creditdomain.KindUsage, ledger.Transactions[0].Kind)
	assert.Equal(t, creditdomain.KindAutoRenewal, ledger.Transactions[1].Kind)
	assert.Equal(t, int64(10000), ledger.Transactions[1].AmountMinor)
}

func TestConsultationRenewalDeclined(t *testing.T) {
	charger := &fakeCharger{result: payment.ChargeResult{Approved: false, Reason: "card_declined"}}
	s := newStack(t, charger)
	s.subscribe(t, true)

	w := s.request(t, http.MethodPost, "/v1/consultations", gin.H{
		"subject": validSubject,
		"types":   []string{"protestos"},
	}, true)
	require.Equal(t, http.StatusPaymentRequired, w.Code, w.Body.String())

	var resp struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	decodeInto(t, w, &resp)
	assert.Equal(t, "renewal_failed", resp.Error.Type)
	assert.Equal(t, 1, charger.calls)
}
