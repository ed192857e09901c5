package biz

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charm-corp/ai-value-matching-sub001/internal/authz"
	"github.com/charm-corp/ai-value-matching-sub001/internal/docstore"
	"github.com/charm-corp/ai-value-matching-sub001/internal/docstore/memory"
	"github.com/charm-corp/ai-value-matching-sub001/internal/docstore/sqldoc"
	"github.com/charm-corp/ai-value-matching-sub001/internal/matching"
	"github.com/charm-corp/ai-value-matching-sub001/internal/objects"
	"github.com/charm-corp/ai-value-matching-sub001/internal/query"
	"github.com/charm-corp/ai-value-matching-sub001/internal/rls"
)

var (
	u1        = authz.NewPrincipal("u1", authz.RoleUser)
	u2        = authz.NewPrincipal("u2", authz.RoleUser)
	u3        = authz.NewPrincipal("u3", authz.RoleUser)
	admin     = authz.NewPrincipal("root", authz.RoleAdmin)
	moderator = authz.NewPrincipal("mod", authz.RoleModerator, matching.PermissionModerateMessages)
	system    = authz.SystemPrincipal()
	anon      = authz.Anonymous()

	users = []authz.Principal{u1, u2, u3}

	epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

type fixture struct {
	store docstore.Store
	svc   *Service
	clock *testClock
}

var fixtureDocs = map[string][]objects.Document{
	matching.CollectionProfiles: {
		{"id": "p1", "userId": "u1", "displayName": "One", "email": "one@example.com", "income": 10.0, "location": map[string]any{"lat": 37.5665, "lng": 126.978}, "values": []any{"family", "travel"}},
		{"id": "p2", "userId": "u2", "displayName": "Two", "email": "two@example.com", "values": []any{"family", "travel"}},
		{"id": "p3", "userId": "u3", "displayName": "Three", "email": "three@example.com", "values": []any{"career"}},
		{"id": "p4", "userId": "u4", "displayName": "Gone", "deleted": true},
	},
	matching.CollectionMatchPairs: {
		{"id": "m12", "userA": "u1", "userB": "u2", "status": "mutual", "score": 88.0, "analysis": "shared values", "breakdown": map[string]any{"values": 88.0}},
		{"id": "m13", "userA": "u3", "userB": "u1", "status": "pending", "score": 61.0, "analysis": "some overlap", "breakdown": map[string]any{"values": 61.0}},
	},
	matching.CollectionConversations: {
		{"id": "c1", "participantIds": []any{"u1", "u2"}, "matchPairId": "m12"},
	},
	matching.CollectionMessages: {
		{"id": "msg1", "conversationId": "c1", "senderId": "u1", "content": "hi", "createdAt": epoch},
		{"id": "msg2", "conversationId": "c1", "senderId": "u2", "content": "hello", "createdAt": epoch},
	},
	matching.CollectionAssessments: {
		{"id": "a1", "userId": "u1", "kind": "values"},
		{"id": "a3", "userId": "u3", "kind": "values"},
	},
}

var stores = map[string]func(t *testing.T) docstore.Store{
	"memory": func(t *testing.T) docstore.Store {
		return memory.New()
	},
	"sqlite": func(t *testing.T) docstore.Store {
		s, err := sqldoc.Open(context.Background(), sqldoc.SQLite, ":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })

		return s
	},
}

func newFixtureWith(t *testing.T, store docstore.Store) *fixture {
	t.Helper()

	ctx := context.Background()

	for collection, docs := range fixtureDocs {
		for _, doc := range docs {
			_, err := store.Insert(ctx, collection, doc.Clone())
			require.NoError(t, err)
		}
	}

	clock := &testClock{now: epoch}

	catalogue, err := matching.NewCatalogue(store, rls.WithClock(clock.Now))
	require.NoError(t, err)

	return &fixture{
		store: store,
		svc:   NewService(ServiceParams{Store: store, Catalogue: catalogue, Clock: clock.Now}),
		clock: clock,
	}
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, memory.New())
}

// eachStore runs fn against every document store implementation.
func eachStore(t *testing.T, fn func(t *testing.T, f *fixture)) {
	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			fn(t, newFixtureWith(t, open(t)))
		})
	}
}

func ids(docs []objects.Document) []objects.ID {
	out := make([]objects.ID, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID())
	}

	slices.Sort(out)

	return out
}

var resourceTypes = []rls.ResourceType{
	matching.TypeProfile,
	matching.TypeMatchPair,
	matching.TypeConversation,
	matching.TypeMessage,
	matching.TypeAssessment,
}

func TestService_FilterSoundness(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()

		for _, rt := range resourceTypes {
			d, ok := f.svc.Catalogue().Lookup(rt)
			require.True(t, ok)

			all, err := f.store.Find(ctx, d.CollectionName(), query.All())
			require.NoError(t, err)

			for _, p := range users {
				for _, caller := range []query.Filter{query.All(), query.Exists("id")} {
					got, err := f.svc.Find(ctx, p, rt, caller)
					require.NoError(t, err)

					want := []objects.ID{}

					for _, doc := range all {
						if _, err := f.svc.FindOne(ctx, p, rt, doc.ID()); err == nil {
							want = append(want, doc.ID())
						}
					}

					slices.Sort(want)
					assert.Equal(t, want, ids(got), "%s as %s", rt, p)
				}
			}
		}
	})
}

func TestService_BypassReturnsEverything(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()

		for _, rt := range resourceTypes {
			d, _ := f.svc.Catalogue().Lookup(rt)

			all, err := f.store.Find(ctx, d.CollectionName(), query.All())
			require.NoError(t, err)

			for _, p := range []authz.Principal{admin, system} {
				got, err := f.svc.Find(ctx, p, rt, query.All())
				require.NoError(t, err)
				assert.Equal(t, ids(all), ids(got), "%s as %s", rt, p)

				for _, doc := range all {
					one, err := f.svc.FindOne(ctx, p, rt, doc.ID())
					require.NoError(t, err)
					assert.Equal(t, len(doc), len(one), "nothing redacted for %s", p)
				}
			}
		}
	})
}

func TestService_MatchPairScenario(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()

		mutual, err := f.svc.FindOne(ctx, u1, matching.TypeMatchPair, "m12")
		require.NoError(t, err)
		assert.Equal(t, "shared values", mutual["analysis"])
		assert.Contains(t, mutual, "breakdown")

		pending, err := f.svc.FindOne(ctx, u1, matching.TypeMatchPair, "m13")
		require.NoError(t, err)
		assert.NotContains(t, pending, "analysis")
		assert.NotContains(t, pending, "breakdown")
		assert.NotContains(t, pending, "score")
		assert.Equal(t, "pending", pending["status"])

		_, err = f.svc.FindOne(ctx, u3, matching.TypeMatchPair, "m12")
		assert.True(t, IsForbidden(err), "got %v", err)

		_, err = f.svc.FindOne(ctx, u1, matching.TypeMatchPair, "nope")
		assert.True(t, IsNotFound(err), "got %v", err)
	})
}

func TestService_CreateMatchPair(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		data := objects.Document{"userA": "u2", "userB": "u3", "score": 70.0}

		_, err := f.svc.Create(ctx, u2, matching.TypeMatchPair, data)
		assert.True(t, IsForbidden(err), "got %v", err)

		created, err := f.svc.Create(ctx, system, matching.TypeMatchPair, data)
		require.NoError(t, err)
		assert.False(t, created.ID().IsZero())
		assert.Equal(t, "pending", created["status"])

		_, err = f.svc.Create(ctx, system, matching.TypeMatchPair, objects.Document{"userA": "u2", "userB": "u2"})
		assert.True(t, IsValidationFailed(err), "got %v", err)
	})
}

func TestService_FindProfilesScenario(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()

		got, err := f.svc.Find(ctx, u1, matching.TypeProfile, query.All())
		require.NoError(t, err)
		assert.Equal(t, []objects.ID{"p1", "p2"}, ids(got))

		for _, doc := range got {
			if doc.ID() == "p2" {
				assert.NotContains(t, doc, "email", "partner contact details are redacted")
			} else {
				assert.Equal(t, "one@example.com", doc["email"])
			}
		}

		got, err = f.svc.Find(ctx, u1, matching.TypeProfile, query.Eq("userId", "u3"))
		require.NoError(t, err)
		assert.Empty(t, got, "a caller filter never widens access")

		got, err = f.svc.Find(ctx, u3, matching.TypeProfile, query.All())
		require.NoError(t, err)
		assert.Equal(t, []objects.ID{"p3"}, ids(got))
	})
}

func TestService_Unauthenticated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Find(ctx, anon, matching.TypeProfile, query.All())
	assert.True(t, IsUnauthenticated(err))

	_, err = f.svc.FindOne(ctx, authz.Principal{}, matching.TypeProfile, "p1")
	assert.True(t, IsUnauthenticated(err))

	_, err = f.svc.Create(ctx, anon, matching.TypeProfile, objects.Document{"displayName": "x"})
	assert.True(t, IsUnauthenticated(err))

	_, err = f.svc.Count(ctx, anon, matching.TypeMessage, query.All())
	assert.True(t, IsUnauthenticated(err))
}

func TestService_UnknownResourceType(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Find(context.Background(), u1, "Invoice", query.All())
	assert.True(t, IsInternal(err))
}

func TestService_MutationRecheck(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()

		conv, err := f.svc.FindOne(ctx, u2, matching.TypeConversation, "c1")
		require.NoError(t, err)
		assert.Contains(t, conv, "participantIds")

		_, err = f.svc.Update(ctx, system, matching.TypeConversation, "c1", objects.Document{"participantIds": []any{"u1", "u3"}})
		require.NoError(t, err)

		_, err = f.svc.Update(ctx, u2, matching.TypeConversation, "c1", objects.Document{"title": "ours"})
		assert.True(t, IsForbidden(err), "got %v", err)

		_, err = f.svc.FindOne(ctx, u1, matching.TypeProfile, "p2")
		require.NoError(t, err)

		declined, err := f.svc.Update(ctx, u1, matching.TypeMatchPair, "m12", objects.Document{"acceptedByA": false})
		require.NoError(t, err)
		assert.Equal(t, "declined", declined["status"])

		_, err = f.svc.FindOne(ctx, u1, matching.TypeProfile, "p2")
		assert.True(t, IsForbidden(err), "declined partners lose access, got %v", err)
	})
}

func TestService_MessageWindows(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()

		f.clock.now = epoch.Add(29 * time.Minute)
		edited, err := f.svc.Update(ctx, u1, matching.TypeMessage, "msg1", objects.Document{"content": "hi there"})
		require.NoError(t, err)
		assert.Equal(t, "hi there", edited["content"])

		f.clock.now = epoch.Add(31 * time.Minute)
		_, err = f.svc.Update(ctx, u1, matching.TypeMessage, "msg1", objects.Document{"content": "too late"})
		assert.True(t, IsForbidden(err), "got %v", err)

		f.clock.now = epoch.Add(24*time.Hour + time.Minute)
		err = f.svc.Delete(ctx, u1, matching.TypeMessage, "msg1")
		assert.True(t, IsForbidden(err), "got %v", err)

		f.clock.now = epoch.Add(23*time.Hour + 59*time.Minute)
		require.NoError(t, f.svc.Delete(ctx, u1, matching.TypeMessage, "msg1"))

		_, err = f.svc.FindOne(ctx, u2, matching.TypeMessage, "msg1")
		assert.True(t, IsNotFound(err), "soft-deleted messages are gone for members, got %v", err)

		tombstone, err := f.svc.FindOne(ctx, admin, matching.TypeMessage, "msg1")
		require.NoError(t, err)
		assert.Equal(t, true, tombstone["deleted"])
		assert.Contains(t, tombstone, "deletedAt")

		got, err := f.svc.Find(ctx, u2, matching.TypeMessage, query.All())
		require.NoError(t, err)
		assert.Equal(t, []objects.ID{"msg2"}, ids(got))

		f.clock.now = epoch.Add(72 * time.Hour)
		require.NoError(t, f.svc.Delete(ctx, moderator, matching.TypeMessage, "msg2"))
	})
}

func TestService_CreateMessage(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		f.clock.now = epoch.Add(time.Hour)

		msg, err := f.svc.Create(ctx, u2, matching.TypeMessage, objects.Document{"conversationId": "c1", "content": "dinner?"})
		require.NoError(t, err)
		assert.Equal(t, "u2", msg.String("senderId"))

		conv, err := f.store.FindOne(ctx, matching.CollectionConversations, "c1")
		require.NoError(t, err)

		last, ok := conv.Time("lastMessageAt")
		require.True(t, ok, "post-create hook touches the conversation")
		assert.True(t, last.Equal(f.clock.now))

		_, err = f.svc.Create(ctx, u3, matching.TypeMessage, objects.Document{"conversationId": "c1", "content": "let me in"})
		assert.True(t, IsForbidden(err), "got %v", err)

		_, err = f.svc.Create(ctx, u2, matching.TypeMessage, objects.Document{"conversationId": "c1"})
		assert.True(t, IsValidationFailed(err), "validation runs before the policy, got %v", err)
	})
}

func TestService_CreateProfile(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		p5 := authz.NewPrincipal("u5", authz.RoleUser)

		created, err := f.svc.Create(ctx, p5, matching.TypeProfile, objects.Document{
			"id":          "chosen",
			"displayName": "Five",
			"deleted":     true,
		})
		require.NoError(t, err)
		assert.Equal(t, "u5", created.String("userId"), "owner forced to the caller")
		assert.NotEqual(t, objects.ID("chosen"), created.ID(), "users do not pick ids")
		assert.False(t, created.Bool("deleted"))
		assert.Equal(t, true, created["active"])

		count, ok := created.Float("matchCount")
		require.True(t, ok)
		assert.Zero(t, count)

		_, err = f.svc.Create(ctx, p5, matching.TypeProfile, objects.Document{"displayName": "Again"})
		assert.True(t, IsConflict(err), "got %v", err)

		_, err = f.svc.Create(ctx, p5, matching.TypeProfile, objects.Document{"userId": "u1", "displayName": "Spoof"})
		assert.True(t, IsForbidden(err), "got %v", err)

		// u4's profile is soft-deleted, so the user id is free again.
		u4 := authz.NewPrincipal("u4", authz.RoleUser)
		_, err = f.svc.Create(ctx, u4, matching.TypeProfile, objects.Document{"displayName": "Back"})
		require.NoError(t, err)
	})
}

func TestService_ProtectedFields(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()

		updated, err := f.svc.Update(ctx, u1, matching.TypeProfile, "p1", objects.Document{
			"userId":      "u9",
			"matchCount":  99.0,
			"createdAt":   "2020-01-01T00:00:00Z",
			"displayName": "Uno",
		})
		require.NoError(t, err)
		assert.Equal(t, "u1", updated.String("userId"))
		assert.Equal(t, "Uno", updated["displayName"])
		assert.NotContains(t, updated, "matchCount")

		updated, err = f.svc.Update(ctx, system, matching.TypeProfile, "p1", objects.Document{"matchCount": 3.0})
		require.NoError(t, err)

		count, _ := updated.Float("matchCount")
		assert.Equal(t, 3.0, count)

		_, err = f.svc.Update(ctx, u1, matching.TypeMatchPair, "m12", objects.Document{"userB": "u3", "score": 100.0})
		assert.True(t, IsForbidden(err), "participants only answer for their side, got %v", err)

		pair, err := f.store.FindOne(ctx, matching.CollectionMatchPairs, "m12")
		require.NoError(t, err)
		assert.Equal(t, "u2", pair.String("userB"))

		score, _ := pair.Float("score")
		assert.Equal(t, 88.0, score)
	})
}

func TestService_DeleteProfile(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()

		err := f.svc.Delete(ctx, u1, matching.TypeProfile, "p2")
		assert.True(t, IsForbidden(err), "got %v", err)

		require.NoError(t, f.svc.Delete(ctx, u2, matching.TypeProfile, "p2"))

		got, err := f.svc.Find(ctx, u1, matching.TypeProfile, query.All())
		require.NoError(t, err)
		assert.Equal(t, []objects.ID{"p1"}, ids(got))

		err = f.svc.Delete(ctx, u2, matching.TypeProfile, "p2")
		assert.True(t, IsNotFound(err), "got %v", err)

		require.NoError(t, f.svc.Delete(ctx, admin, matching.TypeMatchPair, "m13"))

		_, err = f.store.FindOne(ctx, matching.CollectionMatchPairs, "m13")
		assert.True(t, docstore.IsNotFound(err), "match pairs are hard deleted")
	})
}

func TestService_CountAndAggregate(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()

		n, err := f.svc.Count(ctx, u1, matching.TypeMatchPair, query.All())
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)

		n, err = f.svc.Count(ctx, u3, matching.TypeMessage, query.All())
		require.NoError(t, err)
		assert.Zero(t, n)

		n, err = f.svc.Count(ctx, admin, matching.TypeProfile, query.All())
		require.NoError(t, err)
		assert.EqualValues(t, 4, n)

		byStatus, err := f.svc.Aggregate(ctx, u1, matching.TypeMatchPair, query.All(), "status")
		require.NoError(t, err)
		assert.Equal(t, map[string]int64{"mutual": 1, "pending": 1}, byStatus)

		byEmail, err := f.svc.Aggregate(ctx, u1, matching.TypeProfile, query.All(), "email")
		require.NoError(t, err)
		assert.Equal(t, map[string]int64{"one@example.com": 1, "": 1}, byEmail, "redacted fields do not leak through groups")
	})
}

// lookupFailingStore fails relationship lookups on match pairs.
type lookupFailingStore struct {
	docstore.Store
}

func (s lookupFailingStore) Find(ctx context.Context, collection string, filter query.Filter, opts ...docstore.FindOption) ([]objects.Document, error) {
	if collection == matching.CollectionMatchPairs {
		return nil, errors.New("connection refused")
	}

	return s.Store.Find(ctx, collection, filter, opts...)
}

func (s lookupFailingStore) Count(ctx context.Context, collection string, filter query.Filter) (int64, error) {
	if collection == matching.CollectionMatchPairs {
		return 0, errors.New("connection refused")
	}

	return s.Store.Count(ctx, collection, filter)
}

func TestService_LookupFailureIsInternal(t *testing.T) {
	f := newFixtureWith(t, lookupFailingStore{Store: memory.New()})
	ctx := context.Background()

	_, err := f.svc.FindOne(ctx, u1, matching.TypeProfile, "p2")
	require.Error(t, err)
	assert.True(t, IsInternal(err), "got %v", err)
	assert.False(t, IsForbidden(err))
	assert.NotContains(t, err.Error(), "connection refused")

	_, err = f.svc.Find(ctx, u1, matching.TypeProfile, query.All())
	assert.True(t, IsInternal(err), "got %v", err)

	own, err := f.svc.FindOne(ctx, u1, matching.TypeProfile, "p1")
	require.NoError(t, err, "owner check needs no lookup")
	assert.Equal(t, objects.ID("p1"), own.ID())
}

func TestService_RunInTransaction(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		boom := errors.New("boom")

		err := f.svc.RunInTransaction(ctx, func(ctx context.Context) error {
			_, err := f.svc.Create(ctx, system, matching.TypeMatchPair, objects.Document{"id": "m23", "userA": "u2", "userB": "u3"})
			require.NoError(t, err)

			got, err := f.svc.FindOne(ctx, u2, matching.TypeMatchPair, "m23")
			require.NoError(t, err, "writes are visible inside the transaction")
			assert.Equal(t, objects.ID("m23"), got.ID())

			return boom
		})
		require.ErrorIs(t, err, boom)

		_, err = f.svc.FindOne(ctx, system, matching.TypeMatchPair, "m23")
		assert.True(t, IsNotFound(err), "rolled back, got %v", err)

		err = f.svc.RunInTransaction(ctx, func(ctx context.Context) error {
			return f.svc.RunInTransaction(ctx, func(ctx context.Context) error {
				_, err := f.svc.Create(ctx, system, matching.TypeMatchPair, objects.Document{"id": "m23", "userA": "u2", "userB": "u3"})
				return err
			})
		})
		require.NoError(t, err)

		_, err = f.svc.FindOne(ctx, system, matching.TypeMatchPair, "m23")
		require.NoError(t, err)
	})
}

func TestExecuteAsSystem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var records []authz.AuditRecord

	authz.SetAuditLogger(func(_ context.Context, r authz.AuditRecord) {
		records = append(records, r)
	})
	t.Cleanup(func() { authz.SetAuditLogger(nil) })

	pair, err := ExecuteAsSystem(ctx, "test-seed", func(ctx context.Context, p authz.Principal) (objects.Document, error) {
		return f.svc.Create(ctx, p, matching.TypeMatchPair, objects.Document{"userA": "u2", "userB": "u3"})
	})
	require.NoError(t, err)
	assert.False(t, pair.ID().IsZero())

	require.Len(t, records, 1)
	assert.Equal(t, "test-seed", records[0].Reason)

	_, err = f.svc.Create(ctx, u2, matching.TypeMatchPair, objects.Document{"userA": "u2", "userB": "u3"})
	assert.True(t, IsForbidden(err), "the caller's own principal is untouched")
}

func TestPurge(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()

		require.NoError(t, f.svc.Delete(ctx, u1, matching.TypeMessage, "msg1"))

		_, err := f.svc.Purge(ctx, u1, matching.TypeMessage, epoch, 10)
		require.ErrorIs(t, err, ErrForbidden)

		_, err = f.svc.Purge(ctx, admin, matching.TypeMessage, epoch, 10)
		require.ErrorIs(t, err, ErrForbidden)

		n, err := f.svc.Purge(ctx, system, matching.TypeMessage, epoch.Add(-time.Hour), 10)
		require.NoError(t, err)
		assert.Zero(t, n)

		n, err = f.svc.Purge(ctx, system, matching.TypeMessage, epoch, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = f.store.FindOne(ctx, matching.CollectionMessages, "msg1")
		require.True(t, docstore.IsNotFound(err))

		_, err = f.store.FindOne(ctx, matching.CollectionMessages, "msg2")
		require.NoError(t, err)

		n, err = f.svc.Purge(ctx, system, matching.TypeConversation, epoch, 10)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestService_MatchPairAnswers(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		conversation := objects.Document{"participantIds": []any{"u1", "u3"}, "matchPairId": "m12"}

		_, err := f.svc.Update(ctx, u1, matching.TypeMatchPair, "m13", objects.Document{"status": "mutual"})
		assert.True(t, IsForbidden(err), "got %v", err)

		answered, err := f.svc.Update(ctx, u1, matching.TypeMatchPair, "m13", objects.Document{"acceptedByB": true})
		require.NoError(t, err)
		assert.Equal(t, "pending", answered["status"], "one acceptance is not a mutual match")
		assert.NotContains(t, answered, "breakdown")
		assert.NotContains(t, answered, "analysis")

		_, err = f.svc.FindOne(ctx, u1, matching.TypeProfile, "p3")
		assert.True(t, IsForbidden(err), "got %v", err)

		_, err = f.svc.Create(ctx, u1, matching.TypeConversation, conversation)
		assert.True(t, IsForbidden(err), "got %v", err)

		_, err = f.svc.Update(ctx, u1, matching.TypeMatchPair, "m13", objects.Document{"acceptedByA": true})
		assert.True(t, IsForbidden(err), "the other side's answer is not the caller's, got %v", err)

		mutual, err := f.svc.Update(ctx, u3, matching.TypeMatchPair, "m13", objects.Document{"acceptedByA": true})
		require.NoError(t, err)
		assert.Equal(t, "mutual", mutual["status"])
		assert.Equal(t, "some overlap", mutual["analysis"])

		_, err = f.svc.FindOne(ctx, u1, matching.TypeProfile, "p3")
		require.NoError(t, err)

		conv, err := f.svc.Create(ctx, u1, matching.TypeConversation, conversation)
		require.NoError(t, err)
		pairID, _ := conv.IDField("matchPairId")
		assert.Equal(t, objects.ID("m13"), pairID, "the pair id comes from the mutual match")

		declined, err := f.svc.Update(ctx, u1, matching.TypeMatchPair, "m13", objects.Document{"acceptedByB": false})
		require.NoError(t, err)
		assert.Equal(t, "declined", declined["status"])

		_, err = f.svc.Update(ctx, u1, matching.TypeMatchPair, "m13", objects.Document{"acceptedByB": true})
		assert.True(t, IsForbidden(err), "declined pairs are final, got %v", err)

		_, err = f.svc.Update(ctx, admin, matching.TypeMatchPair, "m13", objects.Document{"status": "pending"})
		require.NoError(t, err)
	})
}

func TestService_CreateProtectedFields(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		p5 := authz.NewPrincipal("u5", authz.RoleUser)

		created, err := f.svc.Create(ctx, p5, matching.TypeProfile, objects.Document{"displayName": "Five", "matchCount": 500.0})
		require.NoError(t, err)

		count, _ := created.Float("matchCount")
		assert.Zero(t, count, "users cannot seed the system maintained counter")

		seeded, err := f.svc.Create(ctx, system, matching.TypeProfile, objects.Document{"userId": "u6", "displayName": "Six", "matchCount": 5.0})
		require.NoError(t, err)

		count, _ = seeded.Float("matchCount")
		assert.Equal(t, 5.0, count)

		conv, err := f.svc.Create(ctx, u1, matching.TypeConversation, objects.Document{
			"participantIds": []any{"u1", "u2"},
			"matchPairId":    "m13",
		})
		require.NoError(t, err)
		pairID, _ := conv.IDField("matchPairId")
		assert.Equal(t, objects.ID("m12"), pairID)
	})
}
