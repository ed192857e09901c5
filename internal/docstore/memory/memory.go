// Package memory implements docstore.Store in process memory.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/charm-corp/ai-value-matching-sub001/internal/docstore"
	"github.com/charm-corp/ai-value-matching-sub001/internal/objects"
	"github.com/charm-corp/ai-value-matching-sub001/internal/query"
)

type Store struct {
	mu          sync.RWMutex
	collections map[string]map[objects.ID]objects.Document
}

var _ docstore.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		collections: make(map[string]map[objects.ID]objects.Document),
	}
}

func (s *Store) Find(ctx context.Context, collection string, filter query.Filter, opts ...docstore.FindOption) ([]objects.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]objects.Document, 0)

	for _, doc := range s.collections[collection] {
		if filter.Match(doc) {
			docs = append(docs, doc.Clone())
		}
	}

	return docstore.ApplyOptions(docs, opts...), nil
}

func (s *Store) FindOne(ctx context.Context, collection string, id objects.ID) (objects.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
	}

	return doc.Clone(), nil
}

func (s *Store) Insert(ctx context.Context, collection string, doc objects.Document) (objects.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := doc.ID()
	if id.IsZero() {
		return nil, fmt.Errorf("docstore: insert into %s without id", collection)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.collection(collection)
	if _, exists := docs[id]; exists {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrConflict)
	}

	stored := doc.Clone()
	docs[id] = stored

	return stored.Clone(), nil
}

func (s *Store) Update(ctx context.Context, collection string, id objects.ID, patch objects.Document) (objects.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.collections[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
	}

	updated := current.Clone()

	for k, v := range patch {
		if k == objects.FieldID {
			continue
		}

		updated[k] = v
	}

	s.collections[collection][id] = updated.Clone()

	return updated, nil
}

func (s *Store) Delete(ctx context.Context, collection string, id objects.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection][id]; !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
	}

	delete(s.collections[collection], id)

	return nil
}

func (s *Store) Count(ctx context.Context, collection string, filter query.Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64

	for _, doc := range s.collections[collection] {
		if filter.Match(doc) {
			n++
		}
	}

	return n, nil
}

// RunInTx buffers the writes of fn and applies them under a single lock.
// Documents created by the transaction must still be absent at commit time.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx docstore.Store) error) error {
	return docstore.RunOverlayTx(ctx, s, fn, s.apply)
}

func (s *Store) apply(_ context.Context, changes []docstore.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range changes {
		if !c.Created || c.Doc == nil {
			continue
		}

		if _, exists := s.collections[c.Collection][c.ID]; exists {
			return fmt.Errorf("%s/%s: %w", c.Collection, c.ID, docstore.ErrConflict)
		}
	}

	for _, c := range changes {
		if c.Doc == nil {
			delete(s.collections[c.Collection], c.ID)
			continue
		}

		s.collection(c.Collection)[c.ID] = c.Doc.Clone()
	}

	return nil
}

func (s *Store) Close() error {
	return nil
}

// collection must be called with the write lock held.
func (s *Store) collection(name string) map[objects.ID]objects.Document {
	docs, ok := s.collections[name]
	if !ok {
		docs = make(map[objects.ID]objects.Document)
		s.collections[name] = docs
	}

	return docs
}
