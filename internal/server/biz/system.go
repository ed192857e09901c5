package biz

import (
	"context"

	"github.com/charm-corp/ai-value-matching-sub001/internal/authz"
)

// ExecuteAsSystem runs fn with a freshly built system principal. It is the
// only escalation path and every call is audited under reason, which must be
// a stable name of the call site.
func ExecuteAsSystem[T any](ctx context.Context, reason string, fn func(ctx context.Context, system authz.Principal) (T, error)) (T, error) {
	return authz.RunAsSystem(ctx, reason, fn)
}
