package docstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/charm-corp/ai-value-matching-sub001/internal/objects"
	"github.com/charm-corp/ai-value-matching-sub001/internal/query"
)

// Change is a buffered write. Doc is nil when the document was deleted.
type Change struct {
	Collection string
	ID         objects.ID
	Doc        objects.Document
	// Created reports the document did not exist in the base store when the
	// transaction wrote it first.
	Created bool
}

type changeKey struct {
	collection string
	id         objects.ID
}

// Overlay buffers writes on top of a base store. Reads observe the buffered
// writes first. Stores without native transactions use it to implement RunInTx
// and apply the collected changes atomically on commit.
type Overlay struct {
	base Store

	mu      sync.Mutex
	order   []changeKey
	changes map[changeKey]*Change
}

func NewOverlay(base Store) *Overlay {
	return &Overlay{
		base:    base,
		changes: make(map[changeKey]*Change),
	}
}

// Changes returns the buffered writes in first-write order.
func (o *Overlay) Changes() []Change {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]Change, 0, len(o.order))
	for _, k := range o.order {
		c := *o.changes[k]
		if c.Doc != nil {
			c.Doc = c.Doc.Clone()
		}

		out = append(out, c)
	}

	return out
}

func (o *Overlay) lookup(collection string, id objects.ID) (Change, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	c, ok := o.changes[changeKey{collection, id}]
	if !ok {
		return Change{}, false
	}

	return *c, true
}

func (o *Overlay) record(collection string, id objects.ID, doc objects.Document, created bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	k := changeKey{collection, id}
	if existing, ok := o.changes[k]; ok {
		existing.Doc = doc
		return
	}

	o.order = append(o.order, k)
	o.changes[k] = &Change{Collection: collection, ID: id, Doc: doc, Created: created}
}

func (o *Overlay) Find(ctx context.Context, collection string, filter query.Filter, opts ...FindOption) ([]objects.Document, error) {
	docs, err := o.base.Find(ctx, collection, filter)
	if err != nil {
		return nil, err
	}

	touched := make(map[objects.ID]struct{})

	var buffered []objects.Document

	o.mu.Lock()
	for k, c := range o.changes {
		if k.collection != collection {
			continue
		}

		touched[k.id] = struct{}{}

		if c.Doc != nil && filter.Match(c.Doc) {
			buffered = append(buffered, c.Doc.Clone())
		}
	}
	o.mu.Unlock()

	out := make([]objects.Document, 0, len(docs)+len(buffered))

	for _, doc := range docs {
		if _, ok := touched[doc.ID()]; ok {
			continue
		}

		out = append(out, doc)
	}

	out = append(out, buffered...)

	return ApplyOptions(out, opts...), nil
}

func (o *Overlay) FindOne(ctx context.Context, collection string, id objects.ID) (objects.Document, error) {
	if c, ok := o.lookup(collection, id); ok {
		if c.Doc == nil {
			return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
		}

		return c.Doc.Clone(), nil
	}

	return o.base.FindOne(ctx, collection, id)
}

func (o *Overlay) Insert(ctx context.Context, collection string, doc objects.Document) (objects.Document, error) {
	id := doc.ID()
	if id.IsZero() {
		return nil, fmt.Errorf("docstore: insert into %s without id", collection)
	}

	_, err := o.FindOne(ctx, collection, id)

	switch {
	case err == nil:
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrConflict)
	case !IsNotFound(err):
		return nil, err
	}

	stored := doc.Clone()
	o.record(collection, id, stored, true)

	return stored.Clone(), nil
}

func (o *Overlay) Update(ctx context.Context, collection string, id objects.ID, patch objects.Document) (objects.Document, error) {
	current, err := o.FindOne(ctx, collection, id)
	if err != nil {
		return nil, err
	}

	for k, v := range patch {
		if k == objects.FieldID {
			continue
		}

		current[k] = v
	}

	o.record(collection, id, current, false)

	return current.Clone(), nil
}

func (o *Overlay) Delete(ctx context.Context, collection string, id objects.ID) error {
	if _, err := o.FindOne(ctx, collection, id); err != nil {
		return err
	}

	o.record(collection, id, nil, false)

	return nil
}

func (o *Overlay) Count(ctx context.Context, collection string, filter query.Filter) (int64, error) {
	docs, err := o.Find(ctx, collection, filter)
	if err != nil {
		return 0, err
	}

	return int64(len(docs)), nil
}

// RunInTx joins the enclosing transaction.
func (o *Overlay) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return fn(ctx, o)
}

func (o *Overlay) Close() error {
	return nil
}

// RunOverlayTx runs fn on an overlay of base and hands the buffered changes to
// commit when fn succeeds. Nothing is written when fn fails.
func RunOverlayTx(ctx context.Context, base Store, fn func(ctx context.Context, tx Store) error, commit func(ctx context.Context, changes []Change) error) error {
	overlay := NewOverlay(base)

	if err := fn(NewContext(ctx, overlay), overlay); err != nil {
		return err
	}

	changes := overlay.Changes()
	if len(changes) == 0 {
		return nil
	}

	if err := commit(ctx, changes); err != nil {
		return fmt.Errorf("%w: %w", ErrTxAborted, err)
	}

	return nil
}
