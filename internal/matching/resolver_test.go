package matching

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charm-corp/ai-value-matching-sub001/internal/docstore"
	"github.com/charm-corp/ai-value-matching-sub001/internal/docstore/memory"
	"github.com/charm-corp/ai-value-matching-sub001/internal/objects"
	"github.com/charm-corp/ai-value-matching-sub001/internal/query"
)

func TestResolver(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seed(t, store)

	r := NewResolver(store)

	partners, err := r.MutualPartners(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []objects.ID{"u2"}, partners)

	partners, err = r.MutualPartners(ctx, "u3")
	require.NoError(t, err)
	assert.Empty(t, partners)

	ok, err := r.HasMutualMatch(ctx, "u2", "u1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.HasMutualMatch(ctx, "u1", "u3")
	require.NoError(t, err)
	assert.False(t, ok, "pending pairs are not mutual")

	ok, err = r.HasMutualMatch(ctx, "u1", "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	convs, err := r.ConversationIDs(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, []objects.ID{"c1"}, convs)

	members, err := r.ConversationMembers(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []objects.ID{"u1", "u2"}, members)

	members, err = r.ConversationMembers(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, members)

	member, err := r.IsConversationMember(ctx, "c1", "u3")
	require.NoError(t, err)
	assert.False(t, member)
}

func TestResolverUsesTransactionFromContext(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seed(t, store)

	r := NewResolver(store)

	err := store.RunInTx(ctx, func(ctx context.Context, tx docstore.Store) error {
		_, err := tx.Insert(ctx, CollectionMatchPairs, objects.Document{
			"id": "m23", FieldUserA: "u2", FieldUserB: "u3", FieldStatus: StatusMutual,
		})
		require.NoError(t, err)

		ok, err := r.HasMutualMatch(ctx, "u3", "u2")
		require.NoError(t, err)
		assert.True(t, ok, "uncommitted pair is visible inside the transaction")

		return errors.New("rollback")
	})
	require.Error(t, err)

	ok, err := r.HasMutualMatch(ctx, "u3", "u2")
	require.NoError(t, err)
	assert.False(t, ok)
}

type failingStore struct {
	docstore.Store
}

func (failingStore) Find(context.Context, string, query.Filter, ...docstore.FindOption) ([]objects.Document, error) {
	return nil, errors.New("connection reset")
}

func (failingStore) Count(context.Context, string, query.Filter) (int64, error) {
	return 0, errors.New("connection reset")
}

func TestResolverPropagatesStoreErrors(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(failingStore{Store: memory.New()})

	_, err := r.MutualPartners(ctx, "u1")
	require.ErrorContains(t, err, "connection reset")

	_, err = r.HasMutualMatch(ctx, "u1", "u2")
	require.ErrorContains(t, err, "connection reset")

	_, err = r.ConversationIDs(ctx, "u1")
	require.ErrorContains(t, err, "connection reset")
}
