package contexts

import (
	"context"
)

// contextContainer contains all values in the context.
// Containers are copied on write, so a derived context never changes its parent.
type contextContainer struct {
	TraceID       *string
	RequestID     *string
	OperationName *string
}

// getContainer returns a copy of the container stored in ctx, or an empty one.
func getContainer(ctx context.Context) contextContainer {
	if container, ok := ctx.Value(containerContextKey).(*contextContainer); ok && container != nil {
		return *container
	}

	return contextContainer{}
}

func withContainer(ctx context.Context, container contextContainer) context.Context {
	return context.WithValue(ctx, containerContextKey, &container)
}
