package provider

import (
	"context"
	"fmt"

	catalogdomain "github.com/consultapj/consultapj/internal/catalog/domain"
	providerdomain "github.com/consultapj/consultapj/internal/provider/domain"
	"github.com/consultapj/consultapj/internal/provider/protesto"
	"github.com/consultapj/consultapj/internal/provider/registry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Routing maps catalog provider tags to their adapters.
type Routing map[catalogdomain.Provider]providerdomain.Fetcher

func NewRouting(protestoAdapter *protesto.Adapter, registryAdapter *registry.Adapter) Routing {
	return Routing{
		protestoAdapter.Provider(): protestoAdapter,
		registryAdapter.Provider(): registryAdapter,
	}
}

// validateRouting refuses to start when an active catalog entry points at a
// provider with no adapter; such a type would be priced but never served.
// A catalog store that is down at startup only defers the check.
func validateRouting(lc fx.Lifecycle, log *zap.Logger, catalog catalogdomain.Service, routing Routing) {
	log = log.Named("provider.routing")
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := catalog.RefreshIfStale(ctx); err != nil {
				log.Warn("catalog unavailable at startup, routing check deferred", zap.Error(err))
				return nil
			}
			costs, err := catalog.ListActive(ctx)
			if err != nil {
				log.Warn("catalog unavailable at startup, routing check deferred", zap.Error(err))
				return nil
			}
			for _, cost := range costs {
				if _, ok := routing[cost.Provider]; !ok {
					return fmt.Errorf("consultation type %s routes to unknown provider %s", cost.Code, cost.Provider)
				}
			}
			return nil
		},
	})
}

var Module = fx.Module("provider.adapters",
	fx.Provide(protesto.New),
	fx.Provide(registry.New),
	fx.Provide(NewRouting),
	fx.Invoke(validateRouting),
)
