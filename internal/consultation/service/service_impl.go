package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/consultapj/consultapj/internal/catalog/domain"
	"github.com/consultapj/consultapj/internal/config"
	consultationdomain "github.com/consultapj/consultapj/internal/consultation/domain"
	creditdomain "github.com/consultapj/consultapj/internal/credit/domain"
	obsmetrics "github.com/consultapj/consultapj/internal/observability/metrics"
	"github.com/consultapj/consultapj/internal/provider"
	providerdomain "github.com/consultapj/consultapj/internal/provider/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Cfg     config.Config
	Catalog catalogdomain.Service
	Routing provider.Routing
	Credits creditdomain.Service
	Repo    consultationdomain.Repository
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	catalog      catalogdomain.Service
	routing      provider.Routing
	credits      creditdomain.Service
	repo         consultationdomain.Repository
	metrics      *obsmetrics.Metrics
	deadline     time.Duration
	chargeFailed bool
}

func New(p Params) consultationdomain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("consultation.service"),
		genID:        p.GenID,
		catalog:      p.Catalog,
		routing:      p.Routing,
		credits:      p.Credits,
		repo:         p.Repo,
		metrics:      p.Metrics,
		deadline:     p.Cfg.ConsultationDeadline,
		chargeFailed: p.Cfg.ChargeFailedLookups,
	}
}

// pricedType is one requested type after alias resolution and pricing.
type pricedType struct {
	requestCode string
	cost        catalogdomain.Cost
	skipped     bool
	skipReason  string
}

func (s *Service) Run(ctx context.Context, req consultationdomain.Request) (*consultationdomain.Result, error) {
	started := time.Now()

	subject := consultationdomain.NormalizeCNPJ(req.Subject)
	if !consultationdomain.ValidCNPJ(subject) {
		return nil, consultationdomain.ErrInvalidSubject
	}

	codes := dedupe(req.Types)
	if len(codes) == 0 {
		return nil, consultationdomain.ErrNoTypesRequested
	}

	priced, err := s.price(ctx, codes)
	if err != nil {
		return nil, err
	}

	outcomes := s.fanOut(ctx, subject, priced, req.ForceFresh)

	consultationID := s.genID.Generate()
	result := s.assemble(ctx, consultationID, subject, priced, outcomes)

	// The debit and the log write must survive the request deadline and
	// client disconnects once the lookups have been attempted.
	recordCtx := context.WithoutCancel(ctx)

	if result.TotalCostMinor > 0 {
		description := fmt.Sprintf("consultation of %s", subject)
		tx, err := s.credits.Debit(recordCtx, req.UserID, result.TotalCostMinor, &consultationID, description)
		if err != nil {
			return nil, err
		}
		result.CreditTransactionID = &tx.ID
		result.BalanceAfterMinor = tx.BalanceAfterMinor
	} else if balance, err := s.credits.CurrentBalance(recordCtx, req.UserID); err == nil {
		result.BalanceAfterMinor = balance
	}

	result.LatencyMS = time.Since(started).Milliseconds()
	s.record(recordCtx, req.UserID, result, priced)

	s.metrics.RecordConsultation(ctx, string(result.Status))
	s.log.Info("consultation completed",
		zap.String("consultation_id", consultationID.String()),
		zap.String("user_id", req.UserID.String()),
		zap.String("status", string(result.Status)),
		zap.Int64("total_cost_minor", result.TotalCostMinor),
		zap.Int64("latency_ms", result.LatencyMS),
	)
	return result, nil
}

// price resolves aliases and attaches a catalog cost to every requested code.
// Unknown or inactive types are skipped, never sold at a zero price.
func (s *Service) price(ctx context.Context, codes []string) ([]pricedType, error) {
	if err := s.catalog.RefreshIfStale(ctx); err != nil {
		s.log.Warn("catalog refresh failed, serving last snapshot", zap.Error(err))
	}

	priced := make([]pricedType, 0, len(codes))
	for _, code := range codes {
		catalogCode := s.catalog.ResolveAlias(code)
		cost, ok, err := s.catalog.GetCost(ctx, catalogCode)
		if err == catalogdomain.ErrCatalogUnavailable {
			cost, ok = catalogdomain.FallbackCost(catalogCode)
			if ok {
				s.log.Warn("catalog unavailable, using fallback price",
					zap.String("code", catalogCode),
					zap.Int64("cost_minor", cost.CostMinor),
				)
			}
			err = nil
		}
		if err != nil {
			return nil, err
		}
		entry := pricedType{requestCode: code, cost: cost}
		switch {
		case !ok:
			entry.skipped = true
			entry.skipReason = "unknown consultation type"
		case !cost.Active:
			entry.skipped = true
			entry.skipReason = "consultation type is inactive"
		}
		priced = append(priced, entry)
	}
	return priced, nil
}

// fanOut calls each involved provider once, in parallel, under the
// consultation deadline. Every attempted group gets an outcome; a provider
// that cannot be routed fails all its groups with a typed error.
func (s *Service) fanOut(ctx context.Context, subject string, priced []pricedType, forceFresh bool) map[providerdomain.FieldGroup]providerdomain.FieldResult {
	byProvider := make(map[catalogdomain.Provider][]providerdomain.FieldGroup)
	for _, entry := range priced {
		if entry.skipped {
			continue
		}
		group := providerdomain.FieldGroup(entry.cost.Code)
		byProvider[entry.cost.Provider] = append(byProvider[entry.cost.Provider], group)
	}
	if len(byProvider) == 0 {
		return nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.deadline)
	defer cancel()

	strategy := providerdomain.Strategy{ForceFresh: forceFresh}

	var mu sync.Mutex
	var wg sync.WaitGroup
	outcomes := make(map[providerdomain.FieldGroup]providerdomain.FieldResult)

	for providerTag, groups := range byProvider {
		fetcher, ok := s.routing[providerTag]
		if !ok {
			s.log.Error("no adapter routed for provider", zap.String("provider", string(providerTag)))
			failed := providerdomain.Failed(groups, &providerdomain.FieldError{
				Code:    providerdomain.FailureUnknown,
				Message: "no adapter configured for provider",
			})
			mu.Lock()
			for group, outcome := range failed {
				outcomes[group] = outcome
			}
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(fetcher providerdomain.Fetcher, groups []providerdomain.FieldGroup) {
			defer wg.Done()
			partial := fetcher.Fetch(fetchCtx, subject, groups, strategy)
			mu.Lock()
			for group, outcome := range partial {
				outcomes[group] = outcome
			}
			mu.Unlock()
		}(fetcher, groups)
	}
	wg.Wait()
	return outcomes
}

// assemble folds pricing and provider outcomes into the caller-facing result
// and computes the charged total under the billing policy.
func (s *Service) assemble(
	ctx context.Context,
	consultationID snowflake.ID,
	subject string,
	priced []pricedType,
	outcomes map[providerdomain.FieldGroup]providerdomain.FieldResult,
) *consultationdomain.Result {
	result := &consultationdomain.Result{
		ID:      consultationID,
		Subject: subject,
		Types:   make([]consultationdomain.TypeResult, 0, len(priced)),
	}

	attempted, succeeded := 0, 0
	for _, entry := range priced {
		typeResult := consultationdomain.TypeResult{
			Code:      entry.requestCode,
			CostMinor: entry.cost.CostMinor,
		}
		if entry.skipped {
			typeResult.Skipped = true
			typeResult.CostMinor = 0
			typeResult.Error = entry.skipReason
			result.Types = append(result.Types, typeResult)
			continue
		}

		attempted++
		outcome, ok := outcomes[providerdomain.FieldGroup(entry.cost.Code)]
		if !ok {
			outcome = providerdomain.FieldResult{Err: &providerdomain.FieldError{
				Code:    providerdomain.FailureUnknown,
				Message: "no outcome produced",
			}}
		}

		typeResult.CacheHit = outcome.CacheHit
		if outcome.CacheHit {
			result.CacheUsed = true
		}
		if outcome.Err != nil {
			typeResult.Error = outcome.Err.Error()
			s.metrics.RecordProviderFailure(ctx, string(entry.cost.Provider), string(outcome.Err.Code))
		} else {
			typeResult.Success = true
			typeResult.Payload = outcome.Data
			succeeded++
		}

		// The charge covers the lookup attempt, not its outcome, unless the
		// deployment opts into success-only billing.
		if s.chargeFailed || typeResult.Success {
			typeResult.Charged = true
			result.TotalCostMinor += entry.cost.CostMinor
		}
		result.Types = append(result.Types, typeResult)
	}

	switch {
	case attempted > 0 && succeeded == attempted:
		result.Status = consultationdomain.StatusSuccess
	case succeeded > 0:
		result.Status = consultationdomain.StatusPartial
	default:
		result.Status = consultationdomain.StatusError
	}
	return result
}

func (s *Service) History(ctx context.Context, userID snowflake.ID, limit int) ([]consultationdomain.Consultation, map[snowflake.ID][]consultationdomain.ConsultationDetail, error) {
	consultations, err := s.repo.ListByUser(ctx, s.db, userID, limit)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]snowflake.ID, 0, len(consultations))
	for _, consultation := range consultations {
		ids = append(ids, consultation.ID)
	}
	details, err := s.repo.DetailsFor(ctx, s.db, ids)
	if err != nil {
		return nil, nil, err
	}
	grouped := make(map[snowflake.ID][]consultationdomain.ConsultationDetail, len(consultations))
	for _, detail := range details {
		grouped[detail.ConsultationID] = append(grouped[detail.ConsultationID], detail)
	}
	return consultations, grouped, nil
}

func dedupe(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		if code == "" {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out
}
