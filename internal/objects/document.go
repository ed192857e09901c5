package objects

import (
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Well-known document fields.
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// Document is a schemaless record as stored by the document store.
type Document map[string]any

// ID returns the document identifier.
func (d Document) ID() ID {
	id, _ := ToID(d[FieldID])
	return id
}

// Get resolves a dotted path, e.g. "location.lat".
func (d Document) Get(path string) (any, bool) {
	if d == nil {
		return nil, false
	}

	if v, ok := d[path]; ok {
		return v, true
	}

	parts := strings.Split(path, ".")
	if len(parts) == 1 {
		return nil, false
	}

	var cur any = map[string]any(d)

	for _, part := range parts {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}

		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}

	return cur, true
}

func (d Document) Has(path string) bool {
	_, ok := d.Get(path)
	return ok
}

func (d Document) String(path string) string {
	v, ok := d.Get(path)
	if !ok {
		return ""
	}

	return cast.ToString(v)
}

func (d Document) IDField(path string) (ID, bool) {
	v, ok := d.Get(path)
	if !ok {
		return "", false
	}

	return ToID(v)
}

func (d Document) IDs(path string) []ID {
	v, ok := d.Get(path)
	if !ok {
		return nil
	}

	return ToIDs(v)
}

func (d Document) Bool(path string) bool {
	v, ok := d.Get(path)
	if !ok {
		return false
	}

	return cast.ToBool(v)
}

func (d Document) Float(path string) (float64, bool) {
	v, ok := d.Get(path)
	if !ok || v == nil {
		return 0, false
	}

	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, false
	}

	return f, true
}

func (d Document) Time(path string) (time.Time, bool) {
	v, ok := d.Get(path)
	if !ok || v == nil {
		return time.Time{}, false
	}

	t, err := cast.ToTimeE(v)
	if err != nil || t.IsZero() {
		return time.Time{}, false
	}

	return t, true
}

// Set assigns a top-level field.
func (d Document) Set(field string, v any) {
	d[field] = v
}

// Delete removes top-level fields.
func (d Document) Delete(fields ...string) {
	for _, f := range fields {
		delete(d, f)
	}
}

// Clone returns a deep copy of maps and slices held by the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}

	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}

	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case Document:
		return val.Clone()
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}

		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}

		return out
	case []string:
		return append([]string(nil), val...)
	case []ID:
		return append([]ID(nil), val...)
	case []float64:
		return append([]float64(nil), val...)
	default:
		return v
	}
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Document:
		return m, true
	default:
		return nil, false
	}
}

// Fields returns the top-level field names of the document.
func (d Document) Fields() []string {
	out := make([]string, 0, len(d))
	for k := range d {
		out = append(out, k)
	}

	return out
}
