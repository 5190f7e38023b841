package renewal

import (
	"github.com/consultapj/consultapj/internal/renewal/service"
	"go.uber.org/fx"
)

var Module = fx.Module("renewal.service",
	fx.Provide(service.New),
)
