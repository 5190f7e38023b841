package catalog

import (
	"github.com/consultapj/consultapj/internal/catalog/repository"
	"github.com/consultapj/consultapj/internal/catalog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
