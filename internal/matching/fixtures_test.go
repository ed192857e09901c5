package matching

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charm-corp/ai-value-matching-sub001/internal/authz"
	"github.com/charm-corp/ai-value-matching-sub001/internal/docstore"
	"github.com/charm-corp/ai-value-matching-sub001/internal/docstore/memory"
	"github.com/charm-corp/ai-value-matching-sub001/internal/objects"
	"github.com/charm-corp/ai-value-matching-sub001/internal/rls"
)

var (
	u1        = authz.NewPrincipal("u1", authz.RoleUser)
	u2        = authz.NewPrincipal("u2", authz.RoleUser)
	u3        = authz.NewPrincipal("u3", authz.RoleUser)
	admin     = authz.NewPrincipal("root", authz.RoleAdmin)
	moderator = authz.NewPrincipal("mod", authz.RoleModerator, PermissionModerateMessages)
	system    = authz.SystemPrincipal()
	anon      = authz.Anonymous()

	epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

// clock is a settable test clock.
type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time {
	return c.now
}

// seed inserts the fixture graph: u1 and u2 matched mutually, u1 and u3
// pending, a conversation c1 between u1 and u2 with one message by u1.
func seed(t *testing.T, store docstore.Store) {
	t.Helper()

	ctx := context.Background()
	docs := map[string][]objects.Document{
		CollectionProfiles: {
			{"id": "p1", FieldUserID: "u1", "displayName": "One", FieldEmail: "one@example.com", FieldPhone: "1", FieldIncome: 10.0, FieldLocation: map[string]any{"lat": 37.5665, "lng": 126.978}},
			{"id": "p2", FieldUserID: "u2", "displayName": "Two", FieldEmail: "two@example.com"},
			{"id": "p3", FieldUserID: "u3", "displayName": "Three", FieldEmail: "three@example.com"},
		},
		CollectionMatchPairs: {
			{"id": "m12", FieldUserA: "u1", FieldUserB: "u2", FieldStatus: StatusMutual, FieldScore: 88.0, FieldAnalysis: "shared values"},
			{"id": "m13", FieldUserA: "u3", FieldUserB: "u1", FieldStatus: StatusPending, FieldScore: 61.0, FieldAnalysis: "some overlap"},
		},
		CollectionConversations: {
			{"id": "c1", FieldParticipantIDs: []any{"u1", "u2"}, FieldMatchPairID: "m12"},
		},
		CollectionMessages: {
			{"id": "msg1", FieldConversationID: "c1", FieldSenderID: "u1", "content": "hi", objects.FieldCreatedAt: epoch},
		},
	}

	for collection, list := range docs {
		for _, doc := range list {
			_, err := store.Insert(ctx, collection, doc)
			require.NoError(t, err)
		}
	}
}

func newFixture(t *testing.T) (docstore.Store, *rls.Catalogue, *clock) {
	t.Helper()

	store := memory.New()
	seed(t, store)

	clk := &clock{now: epoch}

	c, err := NewCatalogue(store, rls.WithClock(clk.Now))
	require.NoError(t, err)

	return store, c, clk
}

func mustFind(t *testing.T, store docstore.Store, collection string, id objects.ID) objects.Document {
	t.Helper()

	doc, err := store.FindOne(context.Background(), collection, id)
	require.NoError(t, err)

	return doc
}
