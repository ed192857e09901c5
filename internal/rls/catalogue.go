package rls

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/charm-corp/ai-value-matching-sub001/internal/authz"
	"github.com/charm-corp/ai-value-matching-sub001/internal/objects"
)

// SoftDelete marks a resource type whose deletes only flag the document.
type SoftDelete struct {
	// Flag is set to true on delete.
	Flag string
	// At receives the deletion time.
	At string
}

// Hook runs around a mutation. Pre-create hooks may modify doc.
type Hook func(ctx context.Context, p authz.Principal, doc objects.Document) error

// UpdateHook runs before an update is stored. It may modify changes, which
// already lack the protected fields.
type UpdateHook func(ctx context.Context, p authz.Principal, current, changes objects.Document) error

// Descriptor is the catalogue entry of one resource type: its relationship
// fields, policies, scope, redaction and lifecycle hooks.
type Descriptor struct {
	Type ResourceType
	// Collection defaults to the type name.
	Collection string

	OwnerField        string
	ParticipantFields []string
	MemberField       string

	// Scope narrows list queries. When nil it is derived from the
	// relationship fields.
	Scope    FilterFunc
	Policies map[Operation]Policy
	// Strict lists operations the admin/system bypass does not apply to.
	Strict []Operation
	Redact RedactFunc

	SoftDelete *SoftDelete
	// Protected fields are stripped from non-privileged update payloads. The
	// id, the creation time and the owner field are always protected.
	Protected []string
	// CreateProtected fields are system maintained and stripped from
	// non-privileged create payloads.
	CreateProtected []string
	// Unique fields must not repeat across live documents.
	Unique []string
	// AllowAnonymous lets unauthenticated principals reach the policies.
	AllowAnonymous bool

	Validate func(op Operation, doc objects.Document) error
	// Defaults fill the fields a create payload leaves empty.
	Defaults objects.Document

	PreCreate  []Hook
	PreUpdate  []UpdateHook
	PostCreate []Hook
	PostUpdate []Hook
	PostDelete []Hook
}

// CollectionName is the store collection documents of the type live in.
func (d *Descriptor) CollectionName() string {
	if d.Collection != "" {
		return d.Collection
	}

	return string(d.Type)
}

// Owner returns the owner reference of doc.
func (d *Descriptor) Owner(doc objects.Document) (objects.ID, bool) {
	if d.OwnerField == "" {
		return "", false
	}

	return doc.IDField(d.OwnerField)
}

// Participants returns every principal id doc relates to.
func (d *Descriptor) Participants(doc objects.Document) []objects.ID {
	var out []objects.ID

	if owner, ok := d.Owner(doc); ok {
		out = append(out, owner)
	}

	for _, f := range d.ParticipantFields {
		if id, ok := doc.IDField(f); ok {
			out = append(out, id)
		}
	}

	if d.MemberField != "" {
		out = append(out, doc.IDs(d.MemberField)...)
	}

	slices.Sort(out)

	return slices.Compact(out)
}

// ProtectedFields returns the fields an update payload from p may not set.
// Identity, ownership and deletion markers are protected for everyone; the
// descriptor's extra fields only for non-privileged principals.
func (d *Descriptor) ProtectedFields(p authz.Principal) []string {
	fields := []string{objects.FieldID, objects.FieldCreatedAt}
	if d.OwnerField != "" {
		fields = append(fields, d.OwnerField)
	}

	if d.SoftDelete != nil {
		fields = append(fields, d.SoftDelete.Flag)
		if d.SoftDelete.At != "" {
			fields = append(fields, d.SoftDelete.At)
		}
	}

	if !p.IsPrivileged() {
		fields = append(fields, d.Protected...)
	}

	slices.Sort(fields)

	return slices.Compact(fields)
}

func (d *Descriptor) IsStrict(op Operation) bool {
	return slices.Contains(d.Strict, op)
}

func (d *Descriptor) defaultScope() FilterFunc {
	switch {
	case d.Scope != nil:
		return d.Scope
	case d.OwnerField != "":
		return OwnerScope(d.OwnerField)
	case len(d.ParticipantFields) == 2:
		return PairScope(d.ParticipantFields[0], d.ParticipantFields[1])
	case d.MemberField != "":
		return MemberScope(d.MemberField)
	default:
		return nil
	}
}

// Catalogue is the static table of protected resource types. Adding a
// descriptor populates the registry, the filter builder and the redactor.
type Catalogue struct {
	mu          sync.RWMutex
	descriptors map[ResourceType]*Descriptor
	order       []ResourceType

	registry *Registry
	filters  *FilterBuilder
	redactor *Redactor
}

func NewCatalogue(opts ...Option) *Catalogue {
	return &Catalogue{
		descriptors: make(map[ResourceType]*Descriptor),
		registry:    NewRegistry(opts...),
		filters:     NewFilterBuilder(),
		redactor:    NewRedactor(opts...),
	}
}

func (c *Catalogue) Add(d Descriptor) error {
	if d.Type == "" {
		return fmt.Errorf("rls: descriptor without type")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.descriptors[d.Type]; exists {
		return fmt.Errorf("rls: resource type %s already declared", d.Type)
	}

	if err := c.registry.Declare(d.Type); err != nil {
		return err
	}

	for op, policy := range d.Policies {
		register := c.registry.Register
		if d.IsStrict(op) {
			register = c.registry.RegisterStrict
		}

		if err := register(d.Type, op, policy...); err != nil {
			return err
		}
	}

	var deletedFlag string
	if d.SoftDelete != nil {
		deletedFlag = d.SoftDelete.Flag
	}

	c.filters.Set(d.Type, d.defaultScope(), deletedFlag)
	c.redactor.Set(d.Type, d.Redact)

	c.descriptors[d.Type] = &d
	c.order = append(c.order, d.Type)

	return nil
}

// MustAdd is Add for start up code.
func (c *Catalogue) MustAdd(descriptors ...Descriptor) *Catalogue {
	for _, d := range descriptors {
		if err := c.Add(d); err != nil {
			panic(err)
		}
	}

	return c
}

// Freeze makes the catalogue read-only.
func (c *Catalogue) Freeze() *Catalogue {
	c.registry.Freeze()
	return c
}

func (c *Catalogue) Lookup(rt ResourceType) (*Descriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.descriptors[rt]

	return d, ok
}

// Types returns the declared types in declaration order.
func (c *Catalogue) Types() []ResourceType {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return slices.Clone(c.order)
}

func (c *Catalogue) Registry() *Registry {
	return c.registry
}

func (c *Catalogue) Filters() *FilterBuilder {
	return c.filters
}

func (c *Catalogue) Redactor() *Redactor {
	return c.redactor
}
