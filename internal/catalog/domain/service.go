package domain

import (
	"context"
	"errors"
)

type Service interface {
	// GetCost resolves the price and routing for a catalog code. It returns
	// ErrCatalogUnavailable when no snapshot could ever be loaded; callers
	// must then use FallbackCost, never a zero price.
	GetCost(ctx context.Context, code string) (Cost, bool, error)
	// ResolveAlias maps a request-facing code to its catalog code.
	ResolveAlias(code string) string
	// RefreshIfStale reloads the snapshot when the TTL has elapsed.
	RefreshIfStale(ctx context.Context) error
	// ListActive returns the active catalog entries from the current snapshot.
	ListActive(ctx context.Context) ([]Cost, error)
}

var (
	ErrCatalogUnavailable = errors.New("catalog_unavailable")
)

// aliases maps request vocabulary to catalog codes. The mapping is static
// and maintained explicitly; it is never inferred from string similarity.
var aliases = map[string]string{
	"registrations": "cadastro_contribuintes",
	"geocoding":     "geocodificacao",
	"protests":      "protestos",
	"tax_status":    "receita_federal",
	"simples":       "simples_nacional",
}

// Alias resolves a request-facing code to its catalog code. Unknown codes
// pass through unchanged.
func Alias(code string) string {
	if catalogCode, ok := aliases[code]; ok {
		return catalogCode
	}
	return code
}

// fallbackCosts is the documented last-resort price table used when the
// catalog store is unreachable and no snapshot was ever loaded. Prices are
// deliberately conservative; a missing entry means the type cannot be sold
// while the catalog is down.
var fallbackCosts = map[string]Cost{
	"protestos":              {Code: "protestos", CostMinor: 1500, Provider: ProviderProtesto, Active: true},
	"receita_federal":        {Code: "receita_federal", CostMinor: 500, Provider: ProviderRegistry, Active: true},
	"cadastro_contribuintes": {Code: "cadastro_contribuintes", CostMinor: 500, Provider: ProviderRegistry, Active: true},
	"geocodificacao":         {Code: "geocodificacao", CostMinor: 300, Provider: ProviderRegistry, Active: true},
	"suframa":                {Code: "suframa", CostMinor: 500, Provider: ProviderRegistry, Active: true},
	"simples_nacional":       {Code: "simples_nacional", CostMinor: 500, Provider: ProviderRegistry, Active: true},
}

// FallbackCost returns the documented fallback price for a catalog code.
func FallbackCost(code string) (Cost, bool) {
	cost, ok := fallbackCosts[code]
	return cost, ok
}
