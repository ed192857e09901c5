package biz

import (
	"context"
	"errors"
	"fmt"

	"github.com/charm-corp/ai-value-matching-sub001/internal/docstore"
)

type AbstractService struct {
	store docstore.Store
}

// storeFromContext returns the transaction in ctx, or the base store.
func (a *AbstractService) storeFromContext(ctx context.Context) docstore.Store {
	if tx := docstore.FromContext(ctx); tx != nil {
		return tx
	}

	return a.store
}

// RunInTransaction runs fn so that every write it makes through the service
// commits or fails together. Inside an existing transaction fn joins it.
// A commit the store aborts is reported as ErrConflict.
func (a *AbstractService) RunInTransaction(ctx context.Context, fn func(context.Context) error) error {
	if tx := docstore.FromContext(ctx); tx != nil {
		return fn(ctx)
	}

	err := a.store.RunInTx(ctx, func(txCtx context.Context, _ docstore.Store) error {
		return fn(txCtx)
	})
	if errors.Is(err, docstore.ErrTxAborted) {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}

	return err
}
