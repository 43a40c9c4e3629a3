package warm

import (
	"context"

	"github.com/gaiaguardians/walking/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("cache.warm",
	fx.Provide(NewWorker),
	fx.Invoke(runWorker),
)

func runWorker(lc fx.Lifecycle, cfg config.Config, worker *Worker) {
	if !cfg.Warm.Enabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go worker.RunForever(ctx)

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
