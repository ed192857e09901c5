package authz

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charm-corp/ai-value-matching-sub001/internal/contexts"
)

func TestSystemPrincipal(t *testing.T) {
	p := SystemPrincipal()

	assert.True(t, p.IsSystem())
	assert.Equal(t, []string{PermissionAll}, p.Permissions())
	assert.Equal(t, TokenTypeInternal, p.TokenType())
	require.NoError(t, RequireSystem(p))
	require.NoError(t, RequireAuthenticated(p))
}

func TestRunAsSystem(t *testing.T) {
	var records []AuditRecord

	SetAuditLogger(func(_ context.Context, record AuditRecord) {
		records = append(records, record)
	})
	t.Cleanup(func() { SetAuditLogger(nil) })

	caller := NewPrincipal("u1", RoleUser)

	result, err := RunAsSystem(context.Background(), "matching-job", func(ctx context.Context, p Principal) (string, error) {
		assert.True(t, p.IsSystem())

		op, ok := contexts.GetOperationName(ctx)
		assert.True(t, ok)
		assert.Equal(t, "system:matching-job", op)

		return "done", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "done", result)

	// The caller's principal is a value and cannot have been escalated.
	assert.False(t, caller.IsPrivileged())

	require.Len(t, records, 1)
	assert.Equal(t, "matching-job", records[0].Reason)
	assert.Equal(t, "system", records[0].Principal)
	assert.False(t, records[0].Timestamp.IsZero())
}

func TestRunAsSystem_ErrorPropagation(t *testing.T) {
	SetAuditLogger(func(context.Context, AuditRecord) {})
	t.Cleanup(func() { SetAuditLogger(nil) })

	boom := errors.New("boom")

	_, err := RunAsSystem(context.Background(), "cleanup", func(context.Context, Principal) (int, error) {
		return 0, boom
	})
	require.ErrorIs(t, err, boom)
}

func TestRunAsSystem_RequiresReason(t *testing.T) {
	called := false

	_, err := RunAsSystem(context.Background(), "", func(context.Context, Principal) (int, error) {
		called = true
		return 1, nil
	})
	require.ErrorIs(t, err, ErrMissingReason)
	assert.False(t, called)
}

func TestRunAsSystem_ConcurrentCallersStayIsolated(t *testing.T) {
	SetAuditLogger(func(context.Context, AuditRecord) {})
	t.Cleanup(func() { SetAuditLogger(nil) })

	user := NewPrincipal("u1", RoleUser)

	var wg sync.WaitGroup

	for range 32 {
		wg.Add(2)

		go func() {
			defer wg.Done()

			_, _ = RunAsSystem(context.Background(), "job", func(_ context.Context, p Principal) (bool, error) {
				return p.IsSystem(), nil
			})
		}()

		go func() {
			defer wg.Done()

			assert.False(t, user.IsPrivileged())
			assert.ErrorIs(t, RequireSystem(user), ErrNotSystem)
		}()
	}

	wg.Wait()
}

func TestRequireAuthenticated(t *testing.T) {
	require.ErrorIs(t, RequireAuthenticated(Anonymous()), ErrUnauthenticated)
	require.ErrorIs(t, RequireAuthenticated(Principal{}), ErrUnauthenticated)
	require.NoError(t, RequireAuthenticated(NewPrincipal("u1", RoleUser)))
}
