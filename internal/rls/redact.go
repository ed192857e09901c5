package rls

import (
	"context"
	"sync"

	"github.com/charm-corp/ai-value-matching-sub001/internal/authz"
	"github.com/charm-corp/ai-value-matching-sub001/internal/metrics"
	"github.com/charm-corp/ai-value-matching-sub001/internal/objects"
)

// RedactFunc returns the view of doc p is entitled to. doc is a private copy
// the function may modify.
type RedactFunc func(p authz.Principal, doc objects.Document) objects.Document

// Masker rewrites a single field value.
type Masker func(v any) any

// DropFields removes fields.
func DropFields(fields ...string) RedactFunc {
	return func(_ authz.Principal, doc objects.Document) objects.Document {
		doc.Delete(fields...)
		return doc
	}
}

// KeepOnly removes every field except fields.
func KeepOnly(fields ...string) RedactFunc {
	return func(_ authz.Principal, doc objects.Document) objects.Document {
		out := make(objects.Document, len(fields))

		for _, f := range fields {
			if v, ok := doc[f]; ok {
				out[f] = v
			}
		}

		return out
	}
}

// MaskFields rewrites the present fields with their maskers.
func MaskFields(maskers map[string]Masker) RedactFunc {
	return func(_ authz.Principal, doc objects.Document) objects.Document {
		for field, mask := range maskers {
			if v, ok := doc[field]; ok {
				doc[field] = mask(v)
			}
		}

		return doc
	}
}

// CoarsenPoint rounds a geo point to decimals places. Other values are dropped
// to nil.
func CoarsenPoint(decimals int) Masker {
	return func(v any) any {
		pt, ok := objects.ToPoint(v)
		if !ok {
			return nil
		}

		return pt.Coarse(decimals).Map()
	}
}

// Unless skips redact when keep reports true.
func Unless(keep func(p authz.Principal, doc objects.Document) bool, redact RedactFunc) RedactFunc {
	return func(p authz.Principal, doc objects.Document) objects.Document {
		if keep(p, doc) {
			return doc
		}

		return redact(p, doc)
	}
}

// Chain applies redactions in order.
func Chain(redactions ...RedactFunc) RedactFunc {
	return func(p authz.Principal, doc objects.Document) objects.Document {
		for _, r := range redactions {
			doc = r(p, doc)
		}

		return doc
	}
}

// IsOwner reports whether the principal is referenced by field.
func IsOwner(field string) func(p authz.Principal, doc objects.Document) bool {
	return func(p authz.Principal, doc objects.Document) bool {
		id, ok := doc.IDField(field)
		return ok && p.Is(id)
	}
}

// FieldEquals reports whether field holds value.
func FieldEquals(field, value string) func(p authz.Principal, doc objects.Document) bool {
	return func(_ authz.Principal, doc objects.Document) bool {
		return doc.String(field) == value
	}
}

// Redactor applies the per type redaction rules.
type Redactor struct {
	mu       sync.RWMutex
	rules    map[ResourceType]RedactFunc
	recorder *metrics.Recorder
}

func NewRedactor(opts ...Option) *Redactor {
	o := buildOptions(opts)

	return &Redactor{
		rules:    make(map[ResourceType]RedactFunc),
		recorder: o.recorder,
	}
}

func (r *Redactor) Set(rt ResourceType, fn RedactFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rules[rt] = fn
}

// Redact returns a redacted copy of doc; doc itself is never modified.
// Privileged principals see every field. Redacting twice yields the same view.
func (r *Redactor) Redact(ctx context.Context, p authz.Principal, rt ResourceType, doc objects.Document) objects.Document {
	if doc == nil {
		return nil
	}

	out := doc.Clone()
	if p.IsPrivileged() {
		return out
	}

	r.mu.RLock()
	fn, ok := r.rules[rt]
	r.mu.RUnlock()

	if !ok || fn == nil {
		return out
	}

	before := len(out)

	out = fn(p, out)
	if len(out) < before {
		r.recorder.RecordRedaction(ctx, rt.String())
	}

	return out
}
