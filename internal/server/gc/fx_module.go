package gc

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("gc",
	fx.Provide(NewWorker),
	fx.Invoke(func(lc fx.Lifecycle, worker *Worker) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return worker.Start(ctx)
			},
			OnStop: func(ctx context.Context) error {
				return worker.Stop(ctx)
			},
		})
	}),
)
