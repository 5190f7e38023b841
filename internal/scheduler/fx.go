package scheduler

import (
	"context"

	"github.com/consultapj/consultapj/internal/alert"
	"github.com/consultapj/consultapj/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	alert.Module,
	fx.Provide(New),
	fx.Invoke(Start),
)

func Start(lc fx.Lifecycle, cfg config.Config, sched *Scheduler) {
	if !cfg.SchedulerEnabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go sched.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
