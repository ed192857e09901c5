package biz

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("biz",
	fx.Provide(NewService),
	fx.Provide(NewMatchingJob),
	fx.Invoke(func(lc fx.Lifecycle, job *MatchingJob) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return job.Start(ctx)
			},
		})
	}),
)
