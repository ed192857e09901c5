package biz

import (
	"context"
	"fmt"
	"time"

	"dario.cat/mergo"
	"github.com/samber/lo"
	"go.uber.org/fx"

	"github.com/charm-corp/ai-value-matching-sub001/internal/authz"
	"github.com/charm-corp/ai-value-matching-sub001/internal/docstore"
	"github.com/charm-corp/ai-value-matching-sub001/internal/log"
	"github.com/charm-corp/ai-value-matching-sub001/internal/objects"
	"github.com/charm-corp/ai-value-matching-sub001/internal/query"
	"github.com/charm-corp/ai-value-matching-sub001/internal/rls"
)

type ServiceParams struct {
	fx.In

	Store     docstore.Store
	Catalogue *rls.Catalogue
	Clock     rls.Clock `optional:"true"`
}

// Service is the generic CRUD service over the protected resource types.
// Every call takes the acting principal explicitly.
type Service struct {
	*AbstractService

	catalogue *rls.Catalogue
	clock     rls.Clock
}

func NewService(params ServiceParams) *Service {
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Service{
		AbstractService: &AbstractService{
			store: params.Store,
		},
		catalogue: params.Catalogue,
		clock:     clock,
	}
}

func (svc *Service) Catalogue() *rls.Catalogue {
	return svc.catalogue
}

// descriptor resolves rt and rejects principals that may not reach its
// policies at all.
func (svc *Service) descriptor(rt rls.ResourceType, p authz.Principal) (*rls.Descriptor, error) {
	d, ok := svc.catalogue.Lookup(rt)
	if !ok {
		return nil, fmt.Errorf("%w: unknown resource type %s", ErrInternal, rt)
	}

	if !p.IsAuthenticated() && !d.AllowAnonymous {
		return nil, ErrUnauthenticated
	}

	return d, nil
}

func (svc *Service) authorize(ctx context.Context, p authz.Principal, d *rls.Descriptor, subject rls.Subject) error {
	allowed, err := svc.catalogue.Registry().Evaluate(ctx, d.Type, subject.Op, p, subject)
	if err != nil {
		log.Error(ctx, "policy evaluation failed",
			log.String("resource", d.Type.String()),
			log.String("operation", subject.Op.String()),
			log.String("principal", p.String()),
			log.Cause(err),
		)

		return fmt.Errorf("%s %s: %w", subject.Op, d.Type, ErrInternal)
	}

	if !allowed {
		return fmt.Errorf("%s %s: %w", subject.Op, d.Type, ErrForbidden)
	}

	return nil
}

func (svc *Service) filter(ctx context.Context, p authz.Principal, d *rls.Descriptor, caller query.Filter) (query.Filter, error) {
	f, err := svc.catalogue.Filters().Build(ctx, p, d.Type, caller)
	if err != nil {
		log.Error(ctx, "build row filter failed",
			log.String("resource", d.Type.String()),
			log.String("principal", p.String()),
			log.Cause(err),
		)

		return query.None(), fmt.Errorf("read %s: %w", d.Type, ErrInternal)
	}

	return f, nil
}

// storeError maps store failures onto the service error kinds.
func storeError(ctx context.Context, action string, d *rls.Descriptor, err error) error {
	switch {
	case docstore.IsNotFound(err):
		return fmt.Errorf("%s %s: %w", action, d.Type, ErrNotFound)
	case docstore.IsConflict(err):
		return fmt.Errorf("%s %s: %w", action, d.Type, ErrConflict)
	default:
		log.Error(ctx, "document store failure",
			log.String("resource", d.Type.String()),
			log.String("action", action),
			log.Cause(err),
		)

		return fmt.Errorf("%s %s: %w", action, d.Type, ErrInternal)
	}
}

func isDeleted(d *rls.Descriptor, doc objects.Document) bool {
	return d.SoftDelete != nil && doc.Bool(d.SoftDelete.Flag)
}

// fetch loads a document for a single document operation. Soft-deleted
// documents only exist for privileged principals.
func (svc *Service) fetch(ctx context.Context, p authz.Principal, d *rls.Descriptor, action string, id objects.ID) (objects.Document, error) {
	doc, err := svc.storeFromContext(ctx).FindOne(ctx, d.CollectionName(), id)
	if err != nil {
		return nil, storeError(ctx, action, d, err)
	}

	if isDeleted(d, doc) && !p.IsPrivileged() {
		return nil, fmt.Errorf("%s %s: %w", action, d.Type, ErrNotFound)
	}

	return doc, nil
}

func (svc *Service) validate(d *rls.Descriptor, op rls.Operation, doc objects.Document) error {
	if d.Validate == nil {
		return nil
	}

	if err := d.Validate(op, doc); err != nil {
		return fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	return nil
}

// runHooks runs post mutation hooks. Failures are logged, never returned.
func runHooks(ctx context.Context, p authz.Principal, d *rls.Descriptor, stage string, hooks []rls.Hook, doc objects.Document) {
	for _, hook := range hooks {
		if err := hook(ctx, p, doc.Clone()); err != nil {
			log.Warn(ctx, "hook failed",
				log.String("resource", d.Type.String()),
				log.String("stage", stage),
				log.String("id", doc.ID().String()),
				log.Cause(err),
			)
		}
	}
}

// Find returns the documents matching caller that p may read, redacted for p.
func (svc *Service) Find(ctx context.Context, p authz.Principal, rt rls.ResourceType, caller query.Filter, opts ...docstore.FindOption) ([]objects.Document, error) {
	d, err := svc.descriptor(rt, p)
	if err != nil {
		return nil, err
	}

	f, err := svc.filter(ctx, p, d, caller)
	if err != nil {
		return nil, err
	}

	if f.IsNone() {
		return []objects.Document{}, nil
	}

	docs, err := svc.storeFromContext(ctx).Find(ctx, d.CollectionName(), f, opts...)
	if err != nil {
		return nil, storeError(ctx, "find", d, err)
	}

	redactor := svc.catalogue.Redactor()

	return lo.Map(docs, func(doc objects.Document, _ int) objects.Document {
		return redactor.Redact(ctx, p, rt, doc)
	}), nil
}

// FindOne fetches a document by id and re-checks the read policy on it.
func (svc *Service) FindOne(ctx context.Context, p authz.Principal, rt rls.ResourceType, id objects.ID) (objects.Document, error) {
	d, err := svc.descriptor(rt, p)
	if err != nil {
		return nil, err
	}

	doc, err := svc.fetch(ctx, p, d, "read", id)
	if err != nil {
		return nil, err
	}

	if err := svc.authorize(ctx, p, d, rls.Subject{Type: rt, Op: rls.OpRead, Current: doc}); err != nil {
		return nil, err
	}

	return svc.catalogue.Redactor().Redact(ctx, p, rt, doc), nil
}

// Create validates data, checks the create policy against it and stores it.
func (svc *Service) Create(ctx context.Context, p authz.Principal, rt rls.ResourceType, data objects.Document) (objects.Document, error) {
	d, err := svc.descriptor(rt, p)
	if err != nil {
		return nil, err
	}

	doc := data.Clone()
	if doc == nil {
		doc = objects.Document{}
	}

	if err := svc.validate(d, rls.OpCreate, doc); err != nil {
		return nil, err
	}

	if err := svc.authorize(ctx, p, d, rls.Subject{Type: rt, Op: rls.OpCreate, Proposed: doc}); err != nil {
		return nil, err
	}

	if err := svc.prepareCreate(ctx, p, d, doc); err != nil {
		return nil, err
	}

	var created objects.Document

	err = svc.RunInTransaction(ctx, func(ctx context.Context) error {
		db := svc.storeFromContext(ctx)

		if err := svc.checkUnique(ctx, db, d, "create", doc, d.Unique...); err != nil {
			return err
		}

		var err error

		created, err = db.Insert(ctx, d.CollectionName(), doc)
		if err != nil {
			return storeError(ctx, "create", d, err)
		}

		return claimUnique(ctx, db, d, "create", created, d.Unique...)
	})
	if err != nil {
		return nil, err
	}

	log.Debug(ctx, "document created",
		log.String("resource", rt.String()),
		log.String("id", created.ID().String()),
		log.String("principal", p.String()),
	)

	runHooks(ctx, p, d, "post-create", d.PostCreate, created)

	return svc.catalogue.Redactor().Redact(ctx, p, rt, created), nil
}

// prepareCreate fills the server owned fields of a new document.
func (svc *Service) prepareCreate(ctx context.Context, p authz.Principal, d *rls.Descriptor, doc objects.Document) error {
	if d.OwnerField != "" && !doc.Has(d.OwnerField) {
		if subject, ok := p.SubjectID(); ok {
			doc.Set(d.OwnerField, subject)
		}
	}

	if !p.IsPrivileged() {
		doc.Delete(objects.FieldID)
		doc.Delete(d.CreateProtected...)

		if d.SoftDelete != nil {
			doc.Delete(d.SoftDelete.Flag, d.SoftDelete.At)
		}
	}

	if doc.ID().IsZero() {
		doc.Set(objects.FieldID, objects.NewID())
	}

	now := svc.clock()
	doc.Set(objects.FieldCreatedAt, now)
	doc.Set(objects.FieldUpdatedAt, now)

	if len(d.Defaults) > 0 {
		if err := mergo.Merge(&doc, d.Defaults.Clone()); err != nil {
			return fmt.Errorf("create %s: apply defaults: %w", d.Type, ErrInternal)
		}
	}

	for _, hook := range d.PreCreate {
		if err := hook(ctx, p, doc); err != nil {
			return fmt.Errorf("create %s: %w: %w", d.Type, ErrValidationFailed, err)
		}
	}

	return nil
}

// Update re-checks the update policy on the freshly fetched document and
// applies patch without its protected fields.
func (svc *Service) Update(ctx context.Context, p authz.Principal, rt rls.ResourceType, id objects.ID, patch objects.Document) (objects.Document, error) {
	d, err := svc.descriptor(rt, p)
	if err != nil {
		return nil, err
	}

	changes := patch.Clone()
	if changes == nil {
		changes = objects.Document{}
	}

	if err := svc.validate(d, rls.OpUpdate, changes); err != nil {
		return nil, err
	}

	var updated objects.Document

	err = svc.RunInTransaction(ctx, func(ctx context.Context) error {
		current, err := svc.fetch(ctx, p, d, "update", id)
		if err != nil {
			return err
		}

		if err := svc.authorize(ctx, p, d, rls.Subject{Type: rt, Op: rls.OpUpdate, Current: current, Proposed: changes}); err != nil {
			return err
		}

		if stripped := lo.Filter(d.ProtectedFields(p), func(f string, _ int) bool { return changes.Has(f) }); len(stripped) > 0 {
			log.Debug(ctx, "protected fields dropped from update",
				log.String("resource", rt.String()),
				log.Strings("fields", stripped),
			)
			changes.Delete(stripped...)
		}

		for _, hook := range d.PreUpdate {
			if err := hook(ctx, p, current.Clone(), changes); err != nil {
				return fmt.Errorf("update %s: %w: %w", d.Type, ErrValidationFailed, err)
			}
		}

		changes.Set(objects.FieldUpdatedAt, svc.clock())

		db := svc.storeFromContext(ctx)

		if err := svc.moveUnique(ctx, db, d, current, changes); err != nil {
			return err
		}

		updated, err = db.Update(ctx, d.CollectionName(), id, changes)
		if err != nil {
			return storeError(ctx, "update", d, err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	runHooks(ctx, p, d, "post-update", d.PostUpdate, updated)

	return svc.catalogue.Redactor().Redact(ctx, p, rt, updated), nil
}

// Delete re-checks the delete policy on the freshly fetched document, then
// flags or removes it.
func (svc *Service) Delete(ctx context.Context, p authz.Principal, rt rls.ResourceType, id objects.ID) error {
	d, err := svc.descriptor(rt, p)
	if err != nil {
		return err
	}

	var deleted objects.Document

	err = svc.RunInTransaction(ctx, func(ctx context.Context) error {
		current, err := svc.fetch(ctx, p, d, "delete", id)
		if err != nil {
			return err
		}

		if err := svc.authorize(ctx, p, d, rls.Subject{Type: rt, Op: rls.OpDelete, Current: current}); err != nil {
			return err
		}

		db := svc.storeFromContext(ctx)

		if err := releaseUnique(ctx, db, d, "delete", current, d.Unique...); err != nil {
			return err
		}

		if d.SoftDelete == nil {
			if err := db.Delete(ctx, d.CollectionName(), id); err != nil {
				return storeError(ctx, "delete", d, err)
			}

			deleted = current

			return nil
		}

		now := svc.clock()
		marks := objects.Document{d.SoftDelete.Flag: true, objects.FieldUpdatedAt: now}

		if d.SoftDelete.At != "" {
			marks.Set(d.SoftDelete.At, now)
		}

		deleted, err = db.Update(ctx, d.CollectionName(), id, marks)
		if err != nil {
			return storeError(ctx, "delete", d, err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	runHooks(ctx, p, d, "post-delete", d.PostDelete, deleted)

	return nil
}

// Count counts the documents matching caller that p may read.
func (svc *Service) Count(ctx context.Context, p authz.Principal, rt rls.ResourceType, caller query.Filter) (int64, error) {
	d, err := svc.descriptor(rt, p)
	if err != nil {
		return 0, err
	}

	f, err := svc.filter(ctx, p, d, caller)
	if err != nil {
		return 0, err
	}

	if f.IsNone() {
		return 0, nil
	}

	n, err := svc.storeFromContext(ctx).Count(ctx, d.CollectionName(), f)
	if err != nil {
		return 0, storeError(ctx, "count", d, err)
	}

	return n, nil
}

// Aggregate counts the documents p may read by the value of groupBy. Values
// are taken from the redacted view, so fields hidden from p group as "".
func (svc *Service) Aggregate(ctx context.Context, p authz.Principal, rt rls.ResourceType, caller query.Filter, groupBy string) (map[string]int64, error) {
	docs, err := svc.Find(ctx, p, rt, caller)
	if err != nil {
		return nil, err
	}

	counts := lo.CountValuesBy(docs, func(doc objects.Document) string {
		return doc.String(groupBy)
	})

	return lo.MapValues(counts, func(n int, _ string) int64 {
		return int64(n)
	}), nil
}
