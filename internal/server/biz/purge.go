package biz

import (
	"context"
	"fmt"
	"time"

	"github.com/charm-corp/ai-value-matching-sub001/internal/authz"
	"github.com/charm-corp/ai-value-matching-sub001/internal/docstore"
	"github.com/charm-corp/ai-value-matching-sub001/internal/log"
	"github.com/charm-corp/ai-value-matching-sub001/internal/query"
	"github.com/charm-corp/ai-value-matching-sub001/internal/rls"
)

// Purge removes up to limit documents of rt that were soft deleted before
// cutoff and returns how many it removed. Only the system principal purges.
func (svc *Service) Purge(ctx context.Context, p authz.Principal, rt rls.ResourceType, cutoff time.Time, limit int) (int, error) {
	if err := authz.RequireSystem(p); err != nil {
		log.Debug(ctx, "purge denied", log.String("resource", rt.String()), log.Cause(err))
		return 0, fmt.Errorf("purge %s: %w", rt, ErrForbidden)
	}

	d, err := svc.descriptor(rt, p)
	if err != nil {
		return 0, err
	}

	if d.SoftDelete == nil || d.SoftDelete.At == "" {
		return 0, nil
	}

	purged := 0

	err = svc.RunInTransaction(ctx, func(ctx context.Context) error {
		db := svc.storeFromContext(ctx)

		docs, err := db.Find(ctx, d.CollectionName(), query.And(
			query.Eq(d.SoftDelete.Flag, true),
			query.Lte(d.SoftDelete.At, cutoff),
		), docstore.WithSort(d.SoftDelete.At, false), docstore.WithLimit(limit))
		if err != nil {
			return storeError(ctx, "purge", d, err)
		}

		for _, doc := range docs {
			if err := db.Delete(ctx, d.CollectionName(), doc.ID()); err != nil {
				return storeError(ctx, "purge", d, err)
			}
		}

		purged = len(docs)

		return nil
	})
	if err != nil {
		return 0, err
	}

	return purged, nil
}
