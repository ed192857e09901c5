// Package docstore defines the document-store primitives the authorization
// engine runs on. Implementations live in the sub packages.
package docstore

import (
	"context"
	"errors"

	"github.com/charm-corp/ai-value-matching-sub001/internal/objects"
	"github.com/charm-corp/ai-value-matching-sub001/internal/query"
)

var (
	ErrNotFound  = errors.New("docstore: document not found")
	ErrConflict  = errors.New("docstore: document already exists")
	ErrTxAborted = errors.New("docstore: transaction aborted")
)

// Store is a schemaless document store. Single document writes are atomic.
// Documents returned by a Store are owned by the caller.
type Store interface {
	Find(ctx context.Context, collection string, filter query.Filter, opts ...FindOption) ([]objects.Document, error)
	FindOne(ctx context.Context, collection string, id objects.ID) (objects.Document, error)
	Insert(ctx context.Context, collection string, doc objects.Document) (objects.Document, error)
	// Update sets the top-level fields of patch on the stored document.
	Update(ctx context.Context, collection string, id objects.ID, patch objects.Document) (objects.Document, error)
	Delete(ctx context.Context, collection string, id objects.ID) error
	Count(ctx context.Context, collection string, filter query.Filter) (int64, error)
	// RunInTx runs fn against a transactional view of the store. Writes made
	// through tx are committed together when fn returns nil.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
	Close() error
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

type storeKey struct{}

// NewContext returns a context carrying the store, used to thread a
// transactional store through nested calls.
func NewContext(ctx context.Context, s Store) context.Context {
	return context.WithValue(ctx, storeKey{}, s)
}

// FromContext returns the store attached by NewContext, or nil.
func FromContext(ctx context.Context) Store {
	s, _ := ctx.Value(storeKey{}).(Store)
	return s
}
