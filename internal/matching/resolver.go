package matching

import (
	"context"
	"fmt"
	"slices"

	"github.com/samber/lo"

	"github.com/charm-corp/ai-value-matching-sub001/internal/docstore"
	"github.com/charm-corp/ai-value-matching-sub001/internal/objects"
	"github.com/charm-corp/ai-value-matching-sub001/internal/query"
)

// Resolver answers the relationship questions policies and scopes ask. It
// reads the store directly, never through the row level checks, and joins
// the transaction found in the context.
type Resolver struct {
	store docstore.Store
}

func NewResolver(store docstore.Store) *Resolver {
	return &Resolver{store: store}
}

func (r *Resolver) db(ctx context.Context) docstore.Store {
	if tx := docstore.FromContext(ctx); tx != nil {
		return tx
	}

	return r.store
}

func mutualOf(subject objects.ID) query.Filter {
	return query.And(
		query.Eq(FieldStatus, StatusMutual),
		query.Or(query.Eq(FieldUserA, subject), query.Eq(FieldUserB, subject)),
	)
}

// MutualPartners returns the users subject has a mutual match with.
func (r *Resolver) MutualPartners(ctx context.Context, subject objects.ID) ([]objects.ID, error) {
	if subject.IsZero() {
		return nil, nil
	}

	pairs, err := r.db(ctx).Find(ctx, CollectionMatchPairs, mutualOf(subject))
	if err != nil {
		return nil, fmt.Errorf("resolve mutual partners of %s: %w", subject, err)
	}

	partners := lo.FilterMap(pairs, func(pair objects.Document, _ int) (objects.ID, bool) {
		a, _ := pair.IDField(FieldUserA)
		b, _ := pair.IDField(FieldUserB)

		switch {
		case a == subject:
			return b, !b.IsZero()
		case b == subject:
			return a, !a.IsZero()
		default:
			return "", false
		}
	})

	slices.Sort(partners)

	return slices.Compact(partners), nil
}

func mutualBetween(a, b objects.ID) query.Filter {
	return query.And(
		query.Eq(FieldStatus, StatusMutual),
		query.Or(
			query.And(query.Eq(FieldUserA, a), query.Eq(FieldUserB, b)),
			query.And(query.Eq(FieldUserA, b), query.Eq(FieldUserB, a)),
		),
	)
}

// HasMutualMatch reports whether a and b share a mutual match.
func (r *Resolver) HasMutualMatch(ctx context.Context, a, b objects.ID) (bool, error) {
	if a.IsZero() || b.IsZero() || a == b {
		return false, nil
	}

	n, err := r.db(ctx).Count(ctx, CollectionMatchPairs, mutualBetween(a, b))
	if err != nil {
		return false, fmt.Errorf("resolve mutual match %s/%s: %w", a, b, err)
	}

	return n > 0, nil
}

// MutualPairID returns the id of the mutual match pair of a and b.
func (r *Resolver) MutualPairID(ctx context.Context, a, b objects.ID) (objects.ID, bool, error) {
	if a.IsZero() || b.IsZero() || a == b {
		return "", false, nil
	}

	pairs, err := r.db(ctx).Find(ctx, CollectionMatchPairs, mutualBetween(a, b), docstore.WithLimit(1))
	if err != nil {
		return "", false, fmt.Errorf("resolve match pair %s/%s: %w", a, b, err)
	}

	if len(pairs) == 0 {
		return "", false, nil
	}

	return pairs[0].ID(), true, nil
}

// ConversationIDs returns the conversations subject takes part in.
func (r *Resolver) ConversationIDs(ctx context.Context, subject objects.ID) ([]objects.ID, error) {
	if subject.IsZero() {
		return nil, nil
	}

	convs, err := r.db(ctx).Find(ctx, CollectionConversations, query.Contains(FieldParticipantIDs, subject))
	if err != nil {
		return nil, fmt.Errorf("resolve conversations of %s: %w", subject, err)
	}

	return lo.Map(convs, func(c objects.Document, _ int) objects.ID {
		return c.ID()
	}), nil
}

// ConversationMembers returns the participants of a conversation. A missing
// conversation has no members.
func (r *Resolver) ConversationMembers(ctx context.Context, conversationID objects.ID) ([]objects.ID, error) {
	if conversationID.IsZero() {
		return nil, nil
	}

	conv, err := r.db(ctx).FindOne(ctx, CollectionConversations, conversationID)
	if err != nil {
		if docstore.IsNotFound(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("resolve members of conversation %s: %w", conversationID, err)
	}

	return conv.IDs(FieldParticipantIDs), nil
}

// IsConversationMember reports whether subject takes part in the conversation.
func (r *Resolver) IsConversationMember(ctx context.Context, conversationID, subject objects.ID) (bool, error) {
	if subject.IsZero() {
		return false, nil
	}

	members, err := r.ConversationMembers(ctx, conversationID)
	if err != nil {
		return false, err
	}

	return slices.Contains(members, subject), nil
}
