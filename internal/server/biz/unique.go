package biz

import (
	"context"
	"fmt"

	"github.com/charm-corp/ai-value-matching-sub001/internal/docstore"
	"github.com/charm-corp/ai-value-matching-sub001/internal/log"
	"github.com/charm-corp/ai-value-matching-sub001/internal/objects"
	"github.com/charm-corp/ai-value-matching-sub001/internal/query"
	"github.com/charm-corp/ai-value-matching-sub001/internal/rls"
)

// UniqueKeysCollection holds one claim per unique value of a live document.
// Claim ids derive from the value, so two transactions claiming the same
// value collide on the id and the later commit fails.
const UniqueKeysCollection = "unique_keys"

const (
	claimCollection = "collection"
	claimField      = "field"
	claimValue      = "value"
	claimDocumentID = "documentId"
)

func uniqueKey(doc objects.Document, field string) (objects.ID, bool) {
	v, ok := doc.Get(field)
	if !ok {
		return "", false
	}

	return objects.ToID(v)
}

func claimID(d *rls.Descriptor, field string, key objects.ID) objects.ID {
	return objects.NameID(d.CollectionName(), field, key.String())
}

// checkUnique rejects values already held by a live document. It also covers
// documents written before claims existed.
func (svc *Service) checkUnique(ctx context.Context, db docstore.Store, d *rls.Descriptor, action string, doc objects.Document, fields ...string) error {
	for _, field := range fields {
		v, ok := doc.Get(field)
		if !ok {
			continue
		}

		f := query.Eq(field, v)
		if d.SoftDelete != nil {
			f = query.And(f, query.Ne(d.SoftDelete.Flag, true))
		}

		n, err := db.Count(ctx, d.CollectionName(), f)
		if err != nil {
			return storeError(ctx, action, d, err)
		}

		if n > 0 {
			return fmt.Errorf("%s %s: %s already taken: %w", action, d.Type, field, ErrConflict)
		}
	}

	return nil
}

// claimUnique records doc as the holder of its unique values. A claim left
// behind by a document that is gone or deleted is taken over.
func claimUnique(ctx context.Context, db docstore.Store, d *rls.Descriptor, action string, doc objects.Document, fields ...string) error {
	for _, field := range fields {
		key, ok := uniqueKey(doc, field)
		if !ok {
			continue
		}

		id := claimID(d, field, key)

		claim, err := db.FindOne(ctx, UniqueKeysCollection, id)

		switch {
		case err == nil:
			holder, _ := claim.IDField(claimDocumentID)
			if holder != doc.ID() && holdsClaim(ctx, db, d, holder, field, key) {
				return fmt.Errorf("%s %s: %s already taken: %w", action, d.Type, field, ErrConflict)
			}

			log.Debug(ctx, "stale unique claim taken over",
				log.String("resource", d.Type.String()),
				log.String("field", field),
				log.String("previous", holder.String()),
			)

			if _, err := db.Update(ctx, UniqueKeysCollection, id, objects.Document{claimDocumentID: doc.ID()}); err != nil {
				return storeError(ctx, action, d, err)
			}

			continue
		case !docstore.IsNotFound(err):
			return storeError(ctx, action, d, err)
		}

		_, err = db.Insert(ctx, UniqueKeysCollection, objects.Document{
			objects.FieldID: id,
			claimCollection: d.CollectionName(),
			claimField:      field,
			claimValue:      key.String(),
			claimDocumentID: doc.ID(),
		})
		if docstore.IsConflict(err) {
			return fmt.Errorf("%s %s: %s already taken: %w", action, d.Type, field, ErrConflict)
		}

		if err != nil {
			return storeError(ctx, action, d, err)
		}
	}

	return nil
}

// holdsClaim reports whether the document still exists, is live and carries
// the claimed value.
func holdsClaim(ctx context.Context, db docstore.Store, d *rls.Descriptor, holder objects.ID, field string, key objects.ID) bool {
	if holder.IsZero() {
		return false
	}

	doc, err := db.FindOne(ctx, d.CollectionName(), holder)
	if err != nil {
		return !docstore.IsNotFound(err)
	}

	current, _ := uniqueKey(doc, field)

	return !isDeleted(d, doc) && current == key
}

// releaseUnique drops the claims doc holds.
func releaseUnique(ctx context.Context, db docstore.Store, d *rls.Descriptor, action string, doc objects.Document, fields ...string) error {
	for _, field := range fields {
		key, ok := uniqueKey(doc, field)
		if !ok {
			continue
		}

		id := claimID(d, field, key)

		claim, err := db.FindOne(ctx, UniqueKeysCollection, id)
		if docstore.IsNotFound(err) {
			continue
		}

		if err != nil {
			return storeError(ctx, action, d, err)
		}

		if holder, _ := claim.IDField(claimDocumentID); holder != doc.ID() {
			continue
		}

		if err := db.Delete(ctx, UniqueKeysCollection, id); err != nil && !docstore.IsNotFound(err) {
			return storeError(ctx, action, d, err)
		}
	}

	return nil
}

// moveUnique claims the unique values an update changes and releases the old
// ones.
func (svc *Service) moveUnique(ctx context.Context, db docstore.Store, d *rls.Descriptor, current, changes objects.Document) error {
	if isDeleted(d, current) {
		return nil
	}

	for _, field := range d.Unique {
		next, ok := uniqueKey(changes, field)
		if !ok {
			continue
		}

		if prev, _ := uniqueKey(current, field); prev == next {
			continue
		}

		if err := svc.checkUnique(ctx, db, d, "update", changes, field); err != nil {
			return err
		}

		moved := current.Clone()
		moved.Set(field, next)

		if err := claimUnique(ctx, db, d, "update", moved, field); err != nil {
			return err
		}

		if err := releaseUnique(ctx, db, d, "update", current, field); err != nil {
			return err
		}
	}

	return nil
}
