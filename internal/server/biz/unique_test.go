package biz

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charm-corp/ai-value-matching-sub001/internal/authz"
	"github.com/charm-corp/ai-value-matching-sub001/internal/docstore"
	"github.com/charm-corp/ai-value-matching-sub001/internal/docstore/memory"
	"github.com/charm-corp/ai-value-matching-sub001/internal/docstore/redisdoc"
	"github.com/charm-corp/ai-value-matching-sub001/internal/matching"
	"github.com/charm-corp/ai-value-matching-sub001/internal/objects"
	"github.com/charm-corp/ai-value-matching-sub001/internal/query"
)

func TestService_ConcurrentCreateKeepsOneProfile(t *testing.T) {
	overlayStores := map[string]func(t *testing.T) docstore.Store{
		"memory": func(t *testing.T) docstore.Store {
			return memory.New()
		},
		"redis": func(t *testing.T) docstore.Store {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })

			return redisdoc.New(client, "test")
		},
	}

	for name, open := range overlayStores {
		t.Run(name, func(t *testing.T) {
			f := newFixtureWith(t, open(t))
			ctx := context.Background()
			p9 := authz.NewPrincipal("u9", authz.RoleUser)

			const workers = 24

			var (
				wg    sync.WaitGroup
				start = make(chan struct{})
				errs  = make([]error, workers)
			)

			for i := range workers {
				wg.Add(1)

				go func() {
					defer wg.Done()
					<-start

					_, errs[i] = f.svc.Create(ctx, p9, matching.TypeProfile, objects.Document{"displayName": "Nine"})
				}()
			}

			close(start)
			wg.Wait()

			created := 0

			for _, err := range errs {
				if err == nil {
					created++
					continue
				}

				assert.True(t, IsConflict(err), "got %v", err)
			}

			assert.Equal(t, 1, created)

			n, err := f.store.Count(ctx, matching.CollectionProfiles, query.Eq("userId", "u9"))
			require.NoError(t, err)
			assert.EqualValues(t, 1, n)
		})
	}
}

func TestService_UniqueClaims(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		p5 := authz.NewPrincipal("u5", authz.RoleUser)
		d, _ := f.svc.Catalogue().Lookup(matching.TypeProfile)
		claim := claimID(d, "userId", "u5")

		first, err := f.svc.Create(ctx, p5, matching.TypeProfile, objects.Document{"displayName": "Five"})
		require.NoError(t, err)

		held, err := f.store.FindOne(ctx, UniqueKeysCollection, claim)
		require.NoError(t, err)
		assert.Equal(t, first.ID(), claimHolder(held))

		require.NoError(t, f.svc.Delete(ctx, p5, matching.TypeProfile, first.ID()))

		_, err = f.store.FindOne(ctx, UniqueKeysCollection, claim)
		assert.True(t, docstore.IsNotFound(err), "deleting the profile releases the claim, got %v", err)

		second, err := f.svc.Create(ctx, p5, matching.TypeProfile, objects.Document{"displayName": "Five again"})
		require.NoError(t, err)

		held, err = f.store.FindOne(ctx, UniqueKeysCollection, claim)
		require.NoError(t, err)
		assert.Equal(t, second.ID(), claimHolder(held))

		// A claim whose holder is gone does not block the value.
		_, err = f.store.Insert(ctx, UniqueKeysCollection, objects.Document{
			"id":         claimID(d, "userId", "u7"),
			"collection": matching.CollectionProfiles,
			"field":      "userId",
			"value":      "u7",
			"documentId": "vanished",
		})
		require.NoError(t, err)

		u7 := authz.NewPrincipal("u7", authz.RoleUser)
		third, err := f.svc.Create(ctx, u7, matching.TypeProfile, objects.Document{"displayName": "Seven"})
		require.NoError(t, err)

		held, err = f.store.FindOne(ctx, UniqueKeysCollection, claimID(d, "userId", "u7"))
		require.NoError(t, err)
		assert.Equal(t, third.ID(), claimHolder(held))
	})
}

func claimHolder(claim objects.Document) objects.ID {
	id, _ := claim.IDField("documentId")
	return id
}
