package tracing

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/charm-corp/ai-value-matching-sub001/internal/contexts"
)

// GenerateTraceID generate trace id, format as mt-{{uuid}}.
func GenerateTraceID() string {
	id := uuid.New()
	return fmt.Sprintf("mt-%s", id.String())
}

// WithTraceID store trace id to context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return contexts.WithTraceID(ctx, traceID)
}

// GetTraceID get trace id from context.
func GetTraceID(ctx context.Context) (string, bool) {
	return contexts.GetTraceID(ctx)
}

// WithOperationName store operation name to context.
func WithOperationName(ctx context.Context, name string) context.Context {
	return contexts.WithOperationName(ctx, name)
}

// GetOperationName get operation name from context.
func GetOperationName(ctx context.Context) (string, bool) {
	return contexts.GetOperationName(ctx)
}

// EnsureTraceID returns ctx unchanged when it already carries a trace id,
// otherwise a derived context with a freshly generated one.
func EnsureTraceID(ctx context.Context) context.Context {
	if _, ok := contexts.GetTraceID(ctx); ok {
		return ctx
	}

	return contexts.WithTraceID(ctx, GenerateTraceID())
}

// GenerateRunID generate the id of one scheduled job run, format as run-{{uuid}}.
func GenerateRunID() string {
	return "run-" + uuid.NewString()
}

// StartRun prepares the context of one job run: the trace id is kept or
// generated, and a fresh run id becomes the request id the log hooks report.
func StartRun(ctx context.Context) context.Context {
	return contexts.WithRequestID(EnsureTraceID(ctx), GenerateRunID())
}

// GetRunID get the run id from context.
func GetRunID(ctx context.Context) (string, bool) {
	return contexts.GetRequestID(ctx)
}
