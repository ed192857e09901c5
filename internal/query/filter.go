// Package query provides the composable filter expressions shared by callers,
// the row-level security filter builder and the document stores.
package query

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/charm-corp/ai-value-matching-sub001/internal/objects"
)

type Op string

const (
	// OpNone matches no document.
	OpNone     Op = "none"
	OpEq       Op = "eq"
	OpNe       Op = "ne"
	OpIn       Op = "in"
	OpContains Op = "contains"
	OpGte      Op = "gte"
	OpLte      Op = "lte"
	OpExists   Op = "exists"
	OpNear     Op = "near"
	OpAnd      Op = "and"
	OpOr       Op = "or"
)

// Filter is an immutable predicate over document fields.
// The zero value is the empty filter and matches every document.
type Filter struct {
	op       Op
	field    string
	value    any
	values   []any
	children []Filter
	point    objects.Point
	radiusKm float64
}

// All returns the empty filter.
func All() Filter {
	return Filter{}
}

// None returns a filter matching nothing.
func None() Filter {
	return Filter{op: OpNone}
}

func Eq(field string, value any) Filter {
	return Filter{op: OpEq, field: field, value: value}
}

// Ne matches documents whose field differs from value, including documents without the field.
func Ne(field string, value any) Filter {
	return Filter{op: OpNe, field: field, value: value}
}

// In matches documents whose scalar field equals one of values.
// An empty value list matches nothing.
func In(field string, values ...any) Filter {
	return Filter{op: OpIn, field: field, values: values}
}

// InIDs is In over a list of identifiers.
func InIDs(field string, ids []objects.ID) Filter {
	return In(field, lo.Map(ids, func(id objects.ID, _ int) any { return string(id) })...)
}

// Contains matches documents whose list field holds value.
func Contains(field string, value any) Filter {
	return Filter{op: OpContains, field: field, value: value}
}

func Gte(field string, value any) Filter {
	return Filter{op: OpGte, field: field, value: value}
}

func Lte(field string, value any) Filter {
	return Filter{op: OpLte, field: field, value: value}
}

func Exists(field string) Filter {
	return Filter{op: OpExists, field: field}
}

// Near matches documents whose point field lies within radiusKm of center.
func Near(field string, center objects.Point, radiusKm float64) Filter {
	return Filter{op: OpNear, field: field, point: center, radiusKm: radiusKm}
}

// And is the conjunction of filters. Empty operands are dropped; a None operand
// makes the whole conjunction None.
func And(filters ...Filter) Filter {
	children := make([]Filter, 0, len(filters))

	for _, f := range filters {
		switch {
		case f.IsEmpty():
			continue
		case f.op == OpNone:
			return None()
		case f.op == OpAnd:
			children = append(children, f.children...)
		default:
			children = append(children, f)
		}
	}

	switch len(children) {
	case 0:
		return All()
	case 1:
		return children[0]
	default:
		return Filter{op: OpAnd, children: children}
	}
}

// Or is the disjunction of filters. An empty operand matches everything, so the
// disjunction does too; None operands are dropped.
func Or(filters ...Filter) Filter {
	children := make([]Filter, 0, len(filters))

	for _, f := range filters {
		switch {
		case f.IsEmpty():
			return All()
		case f.op == OpNone:
			continue
		case f.op == OpOr:
			children = append(children, f.children...)
		default:
			children = append(children, f)
		}
	}

	switch len(children) {
	case 0:
		return None()
	case 1:
		return children[0]
	default:
		return Filter{op: OpOr, children: children}
	}
}

func (f Filter) IsEmpty() bool {
	return f.op == ""
}

func (f Filter) IsNone() bool {
	return f.op == OpNone
}

func (f Filter) Op() Op {
	return f.op
}

func (f Filter) Field() string {
	return f.field
}

func (f Filter) Value() any {
	return f.value
}

func (f Filter) Values() []any {
	return f.values
}

func (f Filter) Children() []Filter {
	return f.children
}

func (f Filter) Center() objects.Point {
	return f.point
}

func (f Filter) RadiusKm() float64 {
	return f.radiusKm
}

func (f Filter) String() string {
	switch f.op {
	case "":
		return "{}"
	case OpNone:
		return "none"
	case OpAnd, OpOr:
		parts := lo.Map(f.children, func(c Filter, _ int) string { return c.String() })
		return "(" + strings.Join(parts, " "+strings.ToUpper(string(f.op))+" ") + ")"
	case OpIn:
		return fmt.Sprintf("%s in %v", f.field, f.values)
	case OpExists:
		return fmt.Sprintf("exists(%s)", f.field)
	case OpNear:
		return fmt.Sprintf("%s near (%g,%g) <= %gkm", f.field, f.point.Lat, f.point.Lng, f.radiusKm)
	default:
		return fmt.Sprintf("%s %s %v", f.field, f.op, f.value)
	}
}
