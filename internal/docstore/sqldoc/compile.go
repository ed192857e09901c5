package sqldoc

import (
	"strings"

	"github.com/charm-corp/ai-value-matching-sub001/internal/objects"
	"github.com/charm-corp/ai-value-matching-sub001/internal/query"
)

const (
	sqlTrue  = "1=1"
	sqlFalse = "1=0"
)

// compile translates the parts of filter the dialect can evaluate on JSON text
// into a WHERE fragment. The fragment selects a superset of the matching
// documents: nodes it cannot express compile to true and are settled by
// query.Filter.Match after decoding.
func compile(d Dialect, f query.Filter) (string, []any) {
	switch f.Op() {
	case "":
		return sqlTrue, nil
	case query.OpNone:
		return sqlFalse, nil
	case query.OpAnd:
		parts := make([]string, 0, len(f.Children()))

		var args []any

		for _, c := range f.Children() {
			clause, cargs := compile(d, c)
			if clause == sqlTrue {
				continue
			}

			if clause == sqlFalse {
				return sqlFalse, nil
			}

			parts = append(parts, clause)
			args = append(args, cargs...)
		}

		if len(parts) == 0 {
			return sqlTrue, nil
		}

		return "(" + strings.Join(parts, " AND ") + ")", args
	case query.OpOr:
		parts := make([]string, 0, len(f.Children()))

		var args []any

		for _, c := range f.Children() {
			clause, cargs := compile(d, c)
			if clause == sqlTrue {
				return sqlTrue, nil
			}

			if clause == sqlFalse {
				continue
			}

			parts = append(parts, clause)
			args = append(args, cargs...)
		}

		if len(parts) == 0 {
			return sqlFalse, nil
		}

		return "(" + strings.Join(parts, " OR ") + ")", args
	case query.OpEq:
		s, ok := textValue(f.Value())
		if !ok {
			return sqlTrue, nil
		}

		expr, ok := d.fieldExpr(f.Field())
		if !ok {
			return sqlTrue, nil
		}

		return expr + " = ?", []any{s}
	case query.OpIn:
		if len(f.Values()) == 0 {
			return sqlFalse, nil
		}

		expr, ok := d.fieldExpr(f.Field())
		if !ok {
			return sqlTrue, nil
		}

		args := make([]any, 0, len(f.Values()))

		for _, v := range f.Values() {
			s, ok := textValue(v)
			if !ok {
				return sqlTrue, nil
			}

			args = append(args, s)
		}

		return expr + " IN (" + strings.TrimSuffix(strings.Repeat("?,", len(args)), ",") + ")", args
	case query.OpContains:
		s, ok := textValue(f.Value())
		if !ok {
			return sqlTrue, nil
		}

		expr, ok := d.containsExpr(f.Field())
		if !ok {
			return sqlTrue, nil
		}

		return expr, []any{s}
	default:
		return sqlTrue, nil
	}
}

func textValue(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case objects.ID:
		return string(val), true
	default:
		return "", false
	}
}
