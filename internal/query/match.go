package query

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cast"

	"github.com/charm-corp/ai-value-matching-sub001/internal/objects"
)

// Match evaluates the filter against doc.
func (f Filter) Match(doc objects.Document) bool {
	switch f.op {
	case "":
		return true
	case OpNone:
		return false
	case OpAnd:
		for _, c := range f.children {
			if !c.Match(doc) {
				return false
			}
		}

		return true
	case OpOr:
		for _, c := range f.children {
			if c.Match(doc) {
				return true
			}
		}

		return false
	}

	v, ok := doc.Get(f.field)

	switch f.op {
	case OpExists:
		return ok && v != nil
	case OpEq:
		return ok && Equal(v, f.value)
	case OpNe:
		return !ok || !Equal(v, f.value)
	case OpIn:
		if !ok {
			return false
		}

		for _, candidate := range f.values {
			if Equal(v, candidate) {
				return true
			}
		}

		return false
	case OpContains:
		if !ok {
			return false
		}

		for _, item := range listItems(v) {
			if Equal(item, f.value) {
				return true
			}
		}

		return false
	case OpGte:
		c, comparable := compare(v, f.value)
		return ok && comparable && c >= 0
	case OpLte:
		c, comparable := compare(v, f.value)
		return ok && comparable && c <= 0
	case OpNear:
		p, isPoint := objects.ToPoint(v)
		return ok && isPoint && p.DistanceKm(f.point) <= f.radiusKm
	default:
		return false
	}
}

// Equal compares two stored values, normalising identifiers, numbers and times.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if isNumber(a) && isNumber(b) {
		return cast.ToFloat64(a) == cast.ToFloat64(b)
	}

	if ta, ok := a.(time.Time); ok {
		tb, err := cast.ToTimeE(b)
		return err == nil && ta.Equal(tb)
	}

	if tb, ok := b.(time.Time); ok {
		ta, err := cast.ToTimeE(a)
		return err == nil && ta.Equal(tb)
	}

	sa, okA := stringLike(a)
	sb, okB := stringLike(b)

	if okA && okB {
		return sa == sb
	}

	if ba, ok := a.(bool); ok {
		bb, isBool := b.(bool)
		return isBool && ba == bb
	}

	return reflect.DeepEqual(a, b)
}

func compare(a, b any) (int, bool) {
	if isNumber(a) && isNumber(b) {
		fa, fb := cast.ToFloat64(a), cast.ToFloat64(b)

		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		default:
			return 0, true
		}
	}

	_, aTime := a.(time.Time)
	_, bTime := b.(time.Time)

	if aTime || bTime {
		ta, errA := cast.ToTimeE(a)
		tb, errB := cast.ToTimeE(b)

		if errA != nil || errB != nil {
			return 0, false
		}

		return ta.Compare(tb), true
	}

	sa, okA := stringLike(a)
	sb, okB := stringLike(b)

	if !okA || !okB {
		return 0, false
	}

	switch {
	case sa < sb:
		return -1, true
	case sa > sb:
		return 1, true
	default:
		return 0, true
	}
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	default:
		return false
	}
}

func stringLike(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case objects.ID:
		return string(val), true
	case fmt.Stringer:
		return val.String(), true
	default:
		return "", false
	}
}

func listItems(v any) []any {
	switch val := v.(type) {
	case []any:
		return val
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}

		return out
	case []objects.ID:
		out := make([]any, len(val))
		for i, id := range val {
			out[i] = id
		}

		return out
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return nil
		}

		out := make([]any, rv.Len())
		for i := range rv.Len() {
			out[i] = rv.Index(i).Interface()
		}

		return out
	}
}
