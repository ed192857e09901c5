// Package metrics exposes the OpenTelemetry instruments of the authorization
// engine and the meter provider the process exports them with.
package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdk "go.opentelemetry.io/otel/sdk/metric"

	"github.com/charm-corp/ai-value-matching-sub001/internal/log"
)

// NewProvider builds the meter provider described by cfg. It returns nil when
// metrics are disabled.
func NewProvider(cfg Config) (*sdk.MeterProvider, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	var reader sdk.Reader

	switch cfg.Exporter {
	case "", "stdout":
		exporter, err := stdoutmetric.New(stdoutmetric.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}

		interval := cfg.Interval
		if interval <= 0 {
			interval = time.Minute
		}

		reader = sdk.NewPeriodicReader(exporter, sdk.WithInterval(interval))
	default:
		return nil, fmt.Errorf("unsupported metrics exporter: %s", cfg.Exporter)
	}

	return sdk.NewMeterProvider(sdk.WithReader(reader)), nil
}

// SetupMetrics installs provider as the global meter provider and rebinds the
// default recorder to it.
func SetupMetrics(provider *sdk.MeterProvider, serviceName string) error {
	otel.SetMeterProvider(provider)

	recorder, err := NewRecorder(provider)
	if err != nil {
		return err
	}

	SetDefault(recorder)

	log.Info(context.Background(), "metrics enabled", log.String("service", serviceName))

	return nil
}
