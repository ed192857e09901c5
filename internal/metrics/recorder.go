package metrics

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/charm-corp/ai-value-matching-sub001/rls"

// Recorder holds the engine instruments.
type Recorder struct {
	decisions  metric.Int64Counter
	redactions metric.Int64Counter
}

func NewRecorder(mp metric.MeterProvider) (*Recorder, error) {
	meter := mp.Meter(meterName)

	decisions, err := meter.Int64Counter(
		"rls.policy.decisions",
		metric.WithDescription("Policy decisions by resource, operation and outcome"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rls.policy.decisions counter: %w", err)
	}

	redactions, err := meter.Int64Counter(
		"rls.redactions",
		metric.WithDescription("Documents returned with fields removed"),
		metric.WithUnit("{document}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rls.redactions counter: %w", err)
	}

	return &Recorder{decisions: decisions, redactions: redactions}, nil
}

// RecordDecision counts one policy outcome: allow, deny or error.
func (r *Recorder) RecordDecision(ctx context.Context, resource, operation, decision string) {
	if r == nil {
		return
	}

	r.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("resource", resource),
		attribute.String("operation", operation),
		attribute.String("decision", decision),
	))
}

func (r *Recorder) RecordRedaction(ctx context.Context, resource string) {
	if r == nil {
		return
	}

	r.redactions.Add(ctx, 1, metric.WithAttributes(attribute.String("resource", resource)))
}

var defaultRecorder atomic.Pointer[Recorder]

func init() {
	// The global provider delegates to whatever provider is installed later.
	r, err := NewRecorder(otel.GetMeterProvider())
	if err != nil {
		panic(err)
	}

	defaultRecorder.Store(r)
}

// Default returns the process wide recorder.
func Default() *Recorder {
	return defaultRecorder.Load()
}

func SetDefault(r *Recorder) {
	if r != nil {
		defaultRecorder.Store(r)
	}
}
