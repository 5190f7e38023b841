package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	catalogdomain "github.com/consultapj/consultapj/internal/catalog/domain"
	"github.com/consultapj/consultapj/internal/clock"
	"github.com/consultapj/consultapj/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Cfg   config.Config
	Clock clock.Clock
	Repo  catalogdomain.Repository
}

// snapshot is an immutable view of the catalog. Readers load it through an
// atomic pointer and never observe a partially refreshed state.
type snapshot struct {
	byCode   map[string]catalogdomain.Cost
	loadedAt time.Time
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  catalogdomain.Repository
	ttl   time.Duration

	current   atomic.Pointer[snapshot]
	refreshMu sync.Mutex
}

func New(p Params) catalogdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("catalog.service"),
		clock: p.Clock,
		repo:  p.Repo,
		ttl:   p.Cfg.CatalogTTL,
	}
}

func (s *Service) GetCost(ctx context.Context, code string) (catalogdomain.Cost, bool, error) {
	snap, err := s.snapshotFor(ctx)
	if err != nil {
		return catalogdomain.Cost{}, false, err
	}
	cost, ok := snap.byCode[code]
	return cost, ok, nil
}

func (s *Service) ResolveAlias(code string) string {
	return catalogdomain.Alias(code)
}

func (s *Service) RefreshIfStale(ctx context.Context) error {
	if snap := s.current.Load(); snap != nil && !s.stale(snap) {
		return nil
	}
	return s.refresh(ctx)
}

func (s *Service) ListActive(ctx context.Context) ([]catalogdomain.Cost, error) {
	snap, err := s.snapshotFor(ctx)
	if err != nil {
		return nil, err
	}
	costs := make([]catalogdomain.Cost, 0, len(snap.byCode))
	for _, cost := range snap.byCode {
		if cost.Active {
			costs = append(costs, cost)
		}
	}
	return costs, nil
}

// snapshotFor returns a usable snapshot, refreshing when stale. A stale
// snapshot is still served when the refresh fails; the failure is only fatal
// when no snapshot was ever loaded.
func (s *Service) snapshotFor(ctx context.Context) (*snapshot, error) {
	snap := s.current.Load()
	if snap != nil && !s.stale(snap) {
		return snap, nil
	}

	if err := s.refresh(ctx); err != nil {
		if snap != nil {
			s.log.Warn("serving stale catalog snapshot",
				zap.Error(err),
				zap.Time("loaded_at", snap.loadedAt),
			)
			return snap, nil
		}
		s.log.Error("catalog unavailable and no snapshot loaded", zap.Error(err))
		return nil, catalogdomain.ErrCatalogUnavailable
	}
	return s.current.Load(), nil
}

func (s *Service) stale(snap *snapshot) bool {
	return s.clock.Now().Sub(snap.loadedAt) >= s.ttl
}

func (s *Service) refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	// Another caller may have refreshed while we waited on the mutex.
	if snap := s.current.Load(); snap != nil && !s.stale(snap) {
		return nil
	}

	items, err := s.repo.List(ctx, s.db)
	if err != nil {
		return err
	}

	byCode := make(map[string]catalogdomain.Cost, len(items))
	for _, item := range items {
		if _, exists := byCode[item.Code]; exists {
			// Duplicate codes are a configuration error; first one wins.
			s.log.Warn("duplicate catalog code ignored", zap.String("code", item.Code))
			continue
		}
		byCode[item.Code] = catalogdomain.Cost{
			TypeID:    item.ID,
			Code:      item.Code,
			CostMinor: item.CostMinor,
			Provider:  item.Provider,
			Active:    item.Active,
		}
	}

	s.current.Store(&snapshot{byCode: byCode, loadedAt: s.clock.Now()})
	s.log.Debug("catalog snapshot refreshed", zap.Int("types", len(byCode)))
	return nil
}
