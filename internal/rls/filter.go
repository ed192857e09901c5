package rls

import (
	"context"
	"fmt"
	"sync"

	"github.com/charm-corp/ai-value-matching-sub001/internal/authz"
	"github.com/charm-corp/ai-value-matching-sub001/internal/objects"
	"github.com/charm-corp/ai-value-matching-sub001/internal/query"
)

// FilterFunc computes the documents of one resource type a non-privileged,
// authenticated principal may see.
type FilterFunc func(ctx context.Context, p authz.Principal) (query.Filter, error)

// OwnerScope restricts to documents whose field is the principal.
func OwnerScope(field string) FilterFunc {
	return func(_ context.Context, p authz.Principal) (query.Filter, error) {
		id, _ := p.SubjectID()
		return query.Eq(field, id), nil
	}
}

// PairScope restricts to documents where the principal is either side.
func PairScope(fieldA, fieldB string) FilterFunc {
	return func(_ context.Context, p authz.Principal) (query.Filter, error) {
		id, _ := p.SubjectID()
		return query.Or(query.Eq(fieldA, id), query.Eq(fieldB, id)), nil
	}
}

// MemberScope restricts to documents whose id set at field holds the principal.
func MemberScope(field string) FilterFunc {
	return func(_ context.Context, p authz.Principal) (query.Filter, error) {
		id, _ := p.SubjectID()
		return query.Contains(field, id), nil
	}
}

// ParentScope restricts child documents to parents resolved up front: field
// must reference one of the ids resolve returns for the principal.
func ParentScope(field string, resolve func(ctx context.Context, subject objects.ID) ([]objects.ID, error)) FilterFunc {
	return func(ctx context.Context, p authz.Principal) (query.Filter, error) {
		id, _ := p.SubjectID()

		parents, err := resolve(ctx, id)
		if err != nil {
			return query.Filter{}, err
		}

		return query.InIDs(field, parents), nil
	}
}

type scopeEntry struct {
	scope       FilterFunc
	deletedFlag string
}

// FilterBuilder injects row level conditions into caller filters.
type FilterBuilder struct {
	mu     sync.RWMutex
	scopes map[ResourceType]scopeEntry
}

func NewFilterBuilder() *FilterBuilder {
	return &FilterBuilder{scopes: make(map[ResourceType]scopeEntry)}
}

// Set registers the scope of rt. deletedFlag, when not empty, hides
// soft-deleted documents from non-privileged principals.
func (b *FilterBuilder) Set(rt ResourceType, scope FilterFunc, deletedFlag string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.scopes[rt] = scopeEntry{scope: scope, deletedFlag: deletedFlag}
}

// Build returns the filter to run for p. Privileged principals get caller
// unchanged. Unauthenticated principals and types without a scope match
// nothing. Otherwise the result is caller AND scope, so a caller filter can
// only narrow what the scope allows.
func (b *FilterBuilder) Build(ctx context.Context, p authz.Principal, rt ResourceType, caller query.Filter) (query.Filter, error) {
	if p.IsPrivileged() {
		return caller, nil
	}

	if !p.IsAuthenticated() {
		return query.None(), nil
	}

	b.mu.RLock()
	entry, ok := b.scopes[rt]
	b.mu.RUnlock()

	if !ok || entry.scope == nil {
		return query.None(), nil
	}

	scope, err := entry.scope(ctx, p)
	if err != nil {
		return query.None(), fmt.Errorf("%w: scope of %s: %w", ErrEvaluation, rt, err)
	}

	if entry.deletedFlag != "" {
		scope = query.And(scope, query.Ne(entry.deletedFlag, true))
	}

	return query.And(caller, scope), nil
}
