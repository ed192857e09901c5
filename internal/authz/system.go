package authz

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charm-corp/ai-value-matching-sub001/internal/contexts"
	"github.com/charm-corp/ai-value-matching-sub001/internal/log"
)

var (
	ErrUnauthenticated = errors.New("authz: authentication required")
	ErrNotSystem       = errors.New("authz: operation requires system principal")
	ErrMissingReason   = errors.New("authz: escalation requires a reason")
)

// SystemPrincipal returns a fresh principal for internal operations.
func SystemPrincipal() Principal {
	p := NewPrincipal("", RoleSystem, PermissionAll)
	p.tokenType = TokenTypeInternal

	return p
}

// RunAsSystem runs fn with a freshly constructed system principal. The caller's
// principal is untouched; fn receives the system principal as an argument.
//
// Example usage:
//
//	pair, err := authz.RunAsSystem(ctx, "matching-job", func(ctx context.Context, p authz.Principal) (objects.Document, error) {
//	    return svc.Create(ctx, p, matching.MatchPair, doc)
//	})
func RunAsSystem[T any](ctx context.Context, reason string, fn func(ctx context.Context, p Principal) (T, error)) (T, error) {
	if reason == "" {
		var zero T
		return zero, ErrMissingReason
	}

	p := SystemPrincipal()

	recordAudit(ctx, AuditRecord{
		Timestamp: time.Now(),
		Principal: p.String(),
		Reason:    reason,
		Operation: "run-as-system",
	})

	return fn(contexts.WithOperationName(ctx, "system:"+reason), p)
}

// AuditRecord describes one privilege escalation.
type AuditRecord struct {
	Timestamp time.Time
	Principal string
	Reason    string
	Operation string
}

// AuditLogger receives every escalation.
type AuditLogger func(ctx context.Context, record AuditRecord)

var auditLogger atomic.Pointer[AuditLogger]

// SetAuditLogger replaces the audit sink. Passing nil restores logging through
// the process logger.
func SetAuditLogger(fn AuditLogger) {
	if fn == nil {
		auditLogger.Store(nil)
		return
	}

	auditLogger.Store(&fn)
}

func recordAudit(ctx context.Context, record AuditRecord) {
	if fn := auditLogger.Load(); fn != nil {
		(*fn)(ctx, record)
		return
	}

	log.Info(ctx, "authz: system escalation",
		log.String("principal", record.Principal),
		log.String("reason", record.Reason),
		log.String("operation", record.Operation),
	)
}

// RequireAuthenticated fails for anonymous principals.
func RequireAuthenticated(p Principal) error {
	if !p.IsAuthenticated() {
		return ErrUnauthenticated
	}

	return nil
}

// RequireSystem protects internal maintenance operations.
func RequireSystem(p Principal) error {
	if !p.IsSystem() {
		return fmt.Errorf("%w, got %s", ErrNotSystem, p.String())
	}

	return nil
}
