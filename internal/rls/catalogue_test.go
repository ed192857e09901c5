package rls

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charm-corp/ai-value-matching-sub001/internal/objects"
	"github.com/charm-corp/ai-value-matching-sub001/internal/query"
)

func noteDescriptor() Descriptor {
	return Descriptor{
		Type:       note,
		Collection: "notes",
		OwnerField: "ownerId",
		Policies: map[Operation]Policy{
			OpRead:   {AllowOwner("ownerId")},
			OpUpdate: {AllowOwner("ownerId")},
		},
		Strict:     []Operation{OpUpdate},
		Redact:     Unless(IsOwner("ownerId"), DropFields("secret")),
		SoftDelete: &SoftDelete{Flag: "deleted", At: "deletedAt"},
		Protected:  []string{"score"},
	}
}

func TestCatalogue_Add(t *testing.T) {
	c := NewCatalogue()
	require.NoError(t, c.Add(noteDescriptor()))

	require.Error(t, c.Add(noteDescriptor()))
	require.Error(t, c.Add(Descriptor{}))

	d, ok := c.Lookup(note)
	require.True(t, ok)
	assert.Equal(t, "notes", d.CollectionName())
	assert.Equal(t, []string{"createdAt", "deleted", "deletedAt", "id", "ownerId", "score"}, d.ProtectedFields(alice))
	assert.Equal(t, []string{"createdAt", "deleted", "deletedAt", "id", "ownerId"}, d.ProtectedFields(system))
	assert.True(t, d.IsStrict(OpUpdate))
	assert.False(t, d.IsStrict(OpRead))
	assert.Equal(t, []ResourceType{note}, c.Types())

	_, ok = c.Lookup(draft)
	assert.False(t, ok)

	c.Freeze()
	require.ErrorIs(t, c.Add(Descriptor{Type: draft}), ErrFrozen)
}

func TestCatalogue_WiresEngine(t *testing.T) {
	ctx := context.Background()
	c := NewCatalogue().MustAdd(noteDescriptor()).Freeze()

	stored := objects.Document{"id": "n1", "ownerId": "alice", "secret": "x"}

	ok, err := c.Registry().Evaluate(ctx, note, OpUpdate, admin, Subject{Current: stored})
	require.NoError(t, err)
	assert.False(t, ok, "strict update must not honour the admin bypass")

	ok, err = c.Registry().Evaluate(ctx, note, OpRead, admin, Subject{Current: stored})
	require.NoError(t, err)
	assert.True(t, ok)

	f, err := c.Filters().Build(ctx, alice, note, query.All())
	require.NoError(t, err)
	assert.True(t, f.Match(stored))
	assert.False(t, f.Match(objects.Document{"id": "n2", "ownerId": "alice", "deleted": true}))

	assert.NotContains(t, c.Redactor().Redact(ctx, bob, note, stored), "secret")
}

func TestDescriptor_DefaultScopes(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		d     Descriptor
		doc   objects.Document
		match bool
	}{
		{"owner", Descriptor{OwnerField: "ownerId"}, objects.Document{"ownerId": "alice"}, true},
		{"pair", Descriptor{ParticipantFields: []string{"userA", "userB"}}, objects.Document{"userA": "bob", "userB": "alice"}, true},
		{"member", Descriptor{MemberField: "participantIds"}, objects.Document{"participantIds": []any{"bob"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope := tt.d.defaultScope()
			require.NotNil(t, scope)

			f, err := scope(ctx, alice)
			require.NoError(t, err)
			assert.Equal(t, tt.match, f.Match(tt.doc))
		})
	}

	assert.Nil(t, (&Descriptor{}).defaultScope())
}

func TestDescriptor_Participants(t *testing.T) {
	d := Descriptor{OwnerField: "ownerId", ParticipantFields: []string{"userA", "userB"}, MemberField: "members"}
	doc := objects.Document{"ownerId": "alice", "userA": "bob", "userB": "alice", "members": []any{"carol"}}

	assert.Equal(t, []objects.ID{"alice", "bob", "carol"}, d.Participants(doc))

	owner, ok := d.Owner(doc)
	assert.True(t, ok)
	assert.Equal(t, objects.ID("alice"), owner)
}

func TestCatalogue_ConcurrentEvaluation(t *testing.T) {
	ctx := context.Background()
	c := NewCatalogue().MustAdd(noteDescriptor()).Freeze()
	stored := objects.Document{"id": "n1", "ownerId": "alice"}

	var wg sync.WaitGroup

	for range 16 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			ok, err := c.Registry().Evaluate(ctx, note, OpRead, alice, Subject{Current: stored})
			assert.NoError(t, err)
			assert.True(t, ok)

			ok, err = c.Registry().Evaluate(ctx, note, OpRead, bob, Subject{Current: stored})
			assert.NoError(t, err)
			assert.False(t, ok)
		}()
	}

	wg.Wait()
}
