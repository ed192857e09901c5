package docstore

import (
	"sort"

	"github.com/charm-corp/ai-value-matching-sub001/internal/objects"
)

type FindOptions struct {
	SortField string
	SortDesc  bool
	Skip      int
	Limit     int
}

type FindOption func(*FindOptions)

func WithSort(field string, desc bool) FindOption {
	return func(o *FindOptions) {
		o.SortField = field
		o.SortDesc = desc
	}
}

func WithSkip(n int) FindOption {
	return func(o *FindOptions) {
		o.Skip = n
	}
}

func WithLimit(n int) FindOption {
	return func(o *FindOptions) {
		o.Limit = n
	}
}

func BuildFindOptions(opts ...FindOption) FindOptions {
	var o FindOptions
	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// ApplyOptions sorts and pages docs in place. Without a sort field documents
// are ordered by id so paging is stable.
func ApplyOptions(docs []objects.Document, opts ...FindOption) []objects.Document {
	o := BuildFindOptions(opts...)

	field := o.SortField
	if field == "" {
		field = objects.FieldID
	}

	sort.SliceStable(docs, func(i, j int) bool {
		if o.SortDesc {
			return lessValue(docs[j], docs[i], field)
		}

		return lessValue(docs[i], docs[j], field)
	})

	if o.Skip > 0 {
		if o.Skip >= len(docs) {
			return docs[:0]
		}

		docs = docs[o.Skip:]
	}

	if o.Limit > 0 && o.Limit < len(docs) {
		docs = docs[:o.Limit]
	}

	return docs
}

func lessValue(a, b objects.Document, field string) bool {
	if fa, ok := a.Float(field); ok {
		if fb, ok := b.Float(field); ok {
			return fa < fb
		}
	}

	if ta, ok := a.Time(field); ok {
		if tb, ok := b.Time(field); ok {
			return ta.Before(tb)
		}
	}

	return a.String(field) < b.String(field)
}
