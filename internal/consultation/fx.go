package consultation

import (
	"github.com/consultapj/consultapj/internal/consultation/repository"
	"github.com/consultapj/consultapj/internal/consultation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("consultation.service",
	fx.Provide(
		repository.Provide,
		service.New,
	),
)
