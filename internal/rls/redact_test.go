package rls

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/charm-corp/ai-value-matching-sub001/internal/authz"
	"github.com/charm-corp/ai-value-matching-sub001/internal/objects"
)

func TestRedactor(t *testing.T) {
	ctx := context.Background()

	r := NewRedactor()
	r.Set(note, Unless(IsOwner("ownerId"), Chain(
		DropFields("secret"),
		MaskFields(map[string]Masker{"location": CoarsenPoint(1)}),
	)))
	r.Set(draft, Unless(FieldEquals("status", "published"), KeepOnly("id", "status")))

	doc := objects.Document{
		"id":       "n1",
		"ownerId":  "alice",
		"secret":   "s3cr3t",
		"body":     "hello",
		"location": map[string]any{"lat": 37.56654, "lng": 126.97796},
	}
	original := doc.Clone()

	tests := []struct {
		name string
		p    authz.Principal
		rt   ResourceType
		in   objects.Document
		want objects.Document
	}{
		{
			name: "owner sees everything",
			p:    alice,
			rt:   note,
			in:   doc,
			want: original,
		},
		{
			name: "admin sees everything",
			p:    admin,
			rt:   note,
			in:   doc,
			want: original,
		},
		{
			name: "stranger loses secret and precision",
			p:    bob,
			rt:   note,
			in:   doc,
			want: objects.Document{
				"id":       "n1",
				"ownerId":  "alice",
				"body":     "hello",
				"location": map[string]any{"lat": 37.6, "lng": 127.0},
			},
		},
		{
			name: "unpublished draft keeps only coarse fields",
			p:    bob,
			rt:   draft,
			in:   objects.Document{"id": "d1", "status": "draft", "analysis": "long text"},
			want: objects.Document{"id": "d1", "status": "draft"},
		},
		{
			name: "published draft is untouched",
			p:    bob,
			rt:   draft,
			in:   objects.Document{"id": "d1", "status": "published", "analysis": "long text"},
			want: objects.Document{"id": "d1", "status": "published", "analysis": "long text"},
		},
		{
			name: "type without rule is untouched",
			p:    bob,
			rt:   "Other",
			in:   objects.Document{"id": "o1", "x": 1},
			want: objects.Document{"id": "o1", "x": 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Redact(ctx, tt.p, tt.rt, tt.in)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Redact() mismatch (-want +got):\n%s", diff)
			}

			again := r.Redact(ctx, tt.p, tt.rt, got)
			if diff := cmp.Diff(got, again); diff != "" {
				t.Errorf("Redact() is not idempotent (-first +second):\n%s", diff)
			}
		})
	}

	// The input document is never modified.
	assert.Empty(t, cmp.Diff(original, doc))
	assert.Nil(t, r.Redact(ctx, bob, note, nil))
}
