package dependencies

import (
	"context"

	"github.com/zhenzou/executors"
	"go.uber.org/fx"

	sdk "go.opentelemetry.io/otel/sdk/metric"

	"github.com/charm-corp/ai-value-matching-sub001/internal/docstore"
	"github.com/charm-corp/ai-value-matching-sub001/internal/log"
	"github.com/charm-corp/ai-value-matching-sub001/internal/matching"
	"github.com/charm-corp/ai-value-matching-sub001/internal/metrics"
	"github.com/charm-corp/ai-value-matching-sub001/internal/rls"
	"github.com/charm-corp/ai-value-matching-sub001/internal/server/db"
)

var Module = fx.Module("dependencies",
	fx.Provide(newLogger),
	fx.Provide(db.NewStore),
	fx.Provide(newRecorder),
	fx.Provide(newCatalogue),
	fx.Provide(NewExecutors),
	fx.Invoke(func(lc fx.Lifecycle, executor executors.ScheduledExecutor) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return executor.Shutdown(ctx)
			},
		})
	}),
)

// newLogger installs the configured logger as the process logger, so package
// level log calls and the audit trail of system operations go through it.
func newLogger(lc fx.Lifecycle, cfg log.Config) *log.Logger {
	logger := log.New(cfg)
	log.SetDefault(logger)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			_ = logger.Sync()
			return nil
		},
	})

	return logger
}

type recorderParams struct {
	fx.In

	Provider *sdk.MeterProvider `optional:"true"`
}

func newRecorder(params recorderParams) (*metrics.Recorder, error) {
	if params.Provider == nil {
		return metrics.Default(), nil
	}

	return metrics.NewRecorder(params.Provider)
}

type catalogueParams struct {
	fx.In

	Store    docstore.Store
	Recorder *metrics.Recorder
	// Logger is requested so the process logger is installed first.
	Logger *log.Logger
}

func newCatalogue(params catalogueParams) (*rls.Catalogue, error) {
	catalogue, err := matching.NewCatalogue(params.Store, rls.WithRecorder(params.Recorder))
	if err != nil {
		return nil, err
	}

	log.Info(context.Background(), "resource catalogue ready", log.Int("types", len(catalogue.Types())))

	return catalogue, nil
}
