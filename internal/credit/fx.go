package credit

import (
	"github.com/consultapj/consultapj/internal/credit/repository"
	"github.com/consultapj/consultapj/internal/credit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("credit.service",
	fx.Provide(
		repository.Provide,
		service.New,
	),
)
