// Package storetest holds the behaviour every docstore.Store implementation must share.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charm-corp/ai-value-matching-sub001/internal/docstore"
	"github.com/charm-corp/ai-value-matching-sub001/internal/objects"
	"github.com/charm-corp/ai-value-matching-sub001/internal/query"
)

const collection = "match_pairs"

// Run executes the conformance suite against stores built by newStore.
// newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) docstore.Store) {
	t.Helper()

	t.Run("insert and find one", func(t *testing.T) { testInsertFindOne(t, newStore(t)) })
	t.Run("insert conflict", func(t *testing.T) { testInsertConflict(t, newStore(t)) })
	t.Run("find filters", func(t *testing.T) { testFindFilters(t, newStore(t)) })
	t.Run("find options", func(t *testing.T) { testFindOptions(t, newStore(t)) })
	t.Run("update", func(t *testing.T) { testUpdate(t, newStore(t)) })
	t.Run("delete", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("count", func(t *testing.T) { testCount(t, newStore(t)) })
	t.Run("transaction commit", func(t *testing.T) { testTxCommit(t, newStore(t)) })
	t.Run("transaction rollback", func(t *testing.T) { testTxRollback(t, newStore(t)) })
	t.Run("concurrent updates", func(t *testing.T) { testConcurrentUpdates(t, newStore(t)) })
}

func seed(t *testing.T, s docstore.Store) {
	t.Helper()

	ctx := context.Background()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	docs := []objects.Document{
		{"id": "m1", "userA": "u1", "userB": "u2", "status": "mutual", "score": 91, "tags": []any{"hiking", "jazz"}, "createdAt": created},
		{"id": "m2", "userA": "u1", "userB": "u3", "status": "pending", "score": 64, "tags": []any{"jazz"}, "createdAt": created.Add(time.Hour)},
		{"id": "m3", "userA": "u4", "userB": "u2", "status": "mutual", "score": 77, "tags": []any{}, "createdAt": created.Add(2 * time.Hour)},
		{"id": "m4", "userA": "u5", "userB": "u6", "status": "declined", "score": 12, "createdAt": created.Add(3 * time.Hour)},
	}

	for _, doc := range docs {
		_, err := s.Insert(ctx, collection, doc)
		require.NoError(t, err)
	}
}

func ids(docs []objects.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID().String()
	}

	return out
}

func testInsertFindOne(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	seed(t, s)

	doc, err := s.FindOne(ctx, collection, "m1")
	require.NoError(t, err)
	assert.Equal(t, "u1", doc.String("userA"))
	assert.Equal(t, "mutual", doc.String("status"))

	score, ok := doc.Float("score")
	require.True(t, ok)
	assert.InDelta(t, 91, score, 0.0001)

	createdAt, ok := doc.Time("createdAt")
	require.True(t, ok)
	assert.True(t, createdAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))

	_, err = s.FindOne(ctx, collection, "missing")
	require.ErrorIs(t, err, docstore.ErrNotFound)

	_, err = s.FindOne(ctx, "other_collection", "m1")
	require.ErrorIs(t, err, docstore.ErrNotFound)

	// Returned documents are copies.
	doc["status"] = "tampered"
	again, err := s.FindOne(ctx, collection, "m1")
	require.NoError(t, err)
	assert.Equal(t, "mutual", again.String("status"))
}

func testInsertConflict(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	seed(t, s)

	_, err := s.Insert(ctx, collection, objects.Document{"id": "m1", "userA": "u9"})
	require.ErrorIs(t, err, docstore.ErrConflict)

	_, err = s.Insert(ctx, collection, objects.Document{"userA": "u9"})
	require.Error(t, err)
}

func testFindFilters(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	seed(t, s)

	tests := []struct {
		name   string
		filter query.Filter
		want   []string
	}{
		{"all", query.All(), []string{"m1", "m2", "m3", "m4"}},
		{"none", query.None(), []string{}},
		{"eq", query.Eq("status", "mutual"), []string{"m1", "m3"}},
		{"pair scope", query.Or(query.Eq("userA", "u2"), query.Eq("userB", "u2")), []string{"m1", "m3"}},
		{"caller and rls", query.And(query.Eq("status", "mutual"), query.Or(query.Eq("userA", "u1"), query.Eq("userB", "u1"))), []string{"m1"}},
		{"in", query.In("id", "m2", "m4", "m9"), []string{"m2", "m4"}},
		{"in empty", query.In("id"), []string{}},
		{"contains", query.Contains("tags", "jazz"), []string{"m1", "m2"}},
		{"ne", query.Ne("status", "mutual"), []string{"m2", "m4"}},
		{"gte number", query.Gte("score", 70), []string{"m1", "m3"}},
		{"exists", query.Exists("tags"), []string{"m1", "m2", "m3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := s.Find(ctx, collection, tt.filter)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, ids(docs))
		})
	}
}

func testFindOptions(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	seed(t, s)

	docs, err := s.Find(ctx, collection, query.All(), docstore.WithSort("score", true), docstore.WithLimit(2))
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m3"}, ids(docs))

	docs, err = s.Find(ctx, collection, query.All(), docstore.WithSort("createdAt", false), docstore.WithSkip(1), docstore.WithLimit(2))
	require.NoError(t, err)
	assert.Equal(t, []string{"m2", "m3"}, ids(docs))

	docs, err = s.Find(ctx, collection, query.All(), docstore.WithSkip(10))
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func testUpdate(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	seed(t, s)

	updated, err := s.Update(ctx, collection, "m2", objects.Document{"status": "mutual", "id": "hijack"})
	require.NoError(t, err)
	assert.Equal(t, "mutual", updated.String("status"))
	assert.Equal(t, "m2", updated.ID().String())
	assert.Equal(t, "u3", updated.String("userB"))

	stored, err := s.FindOne(ctx, collection, "m2")
	require.NoError(t, err)
	assert.Equal(t, "mutual", stored.String("status"))

	_, err = s.FindOne(ctx, collection, "hijack")
	require.ErrorIs(t, err, docstore.ErrNotFound)

	_, err = s.Update(ctx, collection, "missing", objects.Document{"status": "x"})
	require.ErrorIs(t, err, docstore.ErrNotFound)
}

func testDelete(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	seed(t, s)

	require.NoError(t, s.Delete(ctx, collection, "m4"))

	_, err := s.FindOne(ctx, collection, "m4")
	require.ErrorIs(t, err, docstore.ErrNotFound)

	require.ErrorIs(t, s.Delete(ctx, collection, "m4"), docstore.ErrNotFound)
}

func testCount(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	seed(t, s)

	n, err := s.Count(ctx, collection, query.Eq("status", "mutual"))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = s.Count(ctx, collection, query.None())
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func testTxCommit(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	seed(t, s)

	err := s.RunInTx(ctx, func(ctx context.Context, tx docstore.Store) error {
		if _, err := tx.Insert(ctx, collection, objects.Document{"id": "m5", "userA": "u1", "userB": "u6", "status": "pending"}); err != nil {
			return err
		}

		if _, err := tx.Update(ctx, collection, "m2", objects.Document{"status": "expired"}); err != nil {
			return err
		}

		if err := tx.Delete(ctx, collection, "m4"); err != nil {
			return err
		}

		// The transaction observes its own writes.
		docs, err := tx.Find(ctx, collection, query.Or(query.Eq("userA", "u1"), query.Eq("userB", "u1")))
		if err != nil {
			return err
		}

		assert.ElementsMatch(t, []string{"m1", "m2", "m5"}, ids(docs))

		doc, err := tx.FindOne(ctx, collection, "m2")
		if err != nil {
			return err
		}

		assert.Equal(t, "expired", doc.String("status"))

		_, err = tx.FindOne(ctx, collection, "m4")
		assert.ErrorIs(t, err, docstore.ErrNotFound)

		return nil
	})
	require.NoError(t, err)

	doc, err := s.FindOne(ctx, collection, "m5")
	require.NoError(t, err)
	assert.Equal(t, "pending", doc.String("status"))

	doc, err = s.FindOne(ctx, collection, "m2")
	require.NoError(t, err)
	assert.Equal(t, "expired", doc.String("status"))

	_, err = s.FindOne(ctx, collection, "m4")
	require.ErrorIs(t, err, docstore.ErrNotFound)
}

func testTxRollback(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	seed(t, s)

	boom := errors.New("boom")

	err := s.RunInTx(ctx, func(ctx context.Context, tx docstore.Store) error {
		if _, err := tx.Insert(ctx, collection, objects.Document{"id": "m5", "userA": "u1"}); err != nil {
			return err
		}

		if _, err := tx.Update(ctx, collection, "m1", objects.Document{"status": "declined"}); err != nil {
			return err
		}

		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.FindOne(ctx, collection, "m5")
	require.ErrorIs(t, err, docstore.ErrNotFound)

	doc, err := s.FindOne(ctx, collection, "m1")
	require.NoError(t, err)
	assert.Equal(t, "mutual", doc.String("status"))
}

func testConcurrentUpdates(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	seed(t, s)

	var wg sync.WaitGroup

	for i := range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := s.Update(ctx, collection, "m1", objects.Document{"note": i})
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	doc, err := s.FindOne(ctx, collection, "m1")
	require.NoError(t, err)
	assert.True(t, doc.Has("note"))
	assert.Equal(t, "mutual", doc.String("status"))
}
