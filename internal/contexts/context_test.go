package contexts

import (
	"context"
	"sync"
	"testing"
)

func TestWithTraceID(t *testing.T) {
	ctx := t.Context()
	traceID := "mt-1234567890abcdef"

	newCtx := WithTraceID(ctx, traceID)
	if newCtx == ctx {
		t.Error("WithTraceID should return a new context")
	}

	retrieved, ok := GetTraceID(newCtx)
	if !ok {
		t.Error("GetTraceID should return true for existing trace ID")
	}

	if retrieved != traceID {
		t.Errorf("expected trace ID %s, got %s", traceID, retrieved)
	}
}

func TestGetTraceID(t *testing.T) {
	ctx := t.Context()

	traceID, ok := GetTraceID(ctx)
	if ok {
		t.Error("GetTraceID should return false for empty context")
	}

	if traceID != "" {
		t.Errorf("expected empty trace ID, got %s", traceID)
	}
}

func TestWithRequestID(t *testing.T) {
	ctx := WithRequestID(t.Context(), "req-1")

	requestID, ok := GetRequestID(ctx)
	if !ok || requestID != "req-1" {
		t.Errorf("expected request ID req-1, got %q (ok=%v)", requestID, ok)
	}
}

func TestWithOperationName(t *testing.T) {
	ctx := WithOperationName(t.Context(), "match_pair.find_one")

	name, ok := GetOperationName(ctx)
	if !ok || name != "match_pair.find_one" {
		t.Errorf("expected operation name match_pair.find_one, got %q (ok=%v)", name, ok)
	}
}

func TestMultipleValues(t *testing.T) {
	ctx := t.Context()
	ctx = WithTraceID(ctx, "mt-1")
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithOperationName(ctx, "op")

	if v, _ := GetTraceID(ctx); v != "mt-1" {
		t.Errorf("trace id lost, got %q", v)
	}

	if v, _ := GetRequestID(ctx); v != "req-1" {
		t.Errorf("request id lost, got %q", v)
	}

	if v, _ := GetOperationName(ctx); v != "op" {
		t.Errorf("operation name lost, got %q", v)
	}
}

func TestDerivedContextDoesNotLeakIntoParent(t *testing.T) {
	parent := WithTraceID(t.Context(), "parent")
	child := WithTraceID(parent, "child")

	if v, _ := GetTraceID(parent); v != "parent" {
		t.Errorf("parent trace id changed to %q", v)
	}

	if v, _ := GetTraceID(child); v != "child" {
		t.Errorf("child trace id = %q, want child", v)
	}
}

func TestConcurrentDerivation(t *testing.T) {
	base := WithTraceID(context.Background(), "base")

	var wg sync.WaitGroup

	for i := range 32 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			ctx := WithOperationName(base, "op")
			if v, _ := GetTraceID(ctx); v != "base" {
				t.Errorf("goroutine %d: trace id = %q", i, v)
			}
		}()
	}

	wg.Wait()

	if _, ok := GetOperationName(base); ok {
		t.Error("base context should not carry an operation name")
	}
}
