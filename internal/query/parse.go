package query

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cast"

	"github.com/charm-corp/ai-value-matching-sub001/internal/objects"
)

// ErrInvalidFilter is returned when a caller supplied filter cannot be parsed.
var ErrInvalidFilter = errors.New("invalid filter")

// FromMap parses a document-store style filter, e.g.
//
//	{"status": "mutual", "age": {"$gte": 25}, "$or": [{"city": "Seoul"}, {"city": "Busan"}]}
//
// Supported operators: $eq, $ne, $in, $contains, $gte, $lte, $exists, $near, $and, $or.
func FromMap(m map[string]any) (Filter, error) {
	if len(m) == 0 {
		return All(), nil
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	var (
		filters []Filter
		errs    *multierror.Error
	)

	for _, key := range keys {
		f, err := parseEntry(key, m[key])
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}

		filters = append(filters, f)
	}

	if err := errs.ErrorOrNil(); err != nil {
		return Filter{}, fmt.Errorf("%w: %w", ErrInvalidFilter, err)
	}

	return And(filters...), nil
}

func parseEntry(key string, raw any) (Filter, error) {
	switch key {
	case "$and", "$or":
		items, ok := raw.([]any)
		if !ok {
			if maps, isMaps := raw.([]map[string]any); isMaps {
				items = make([]any, len(maps))
				for i, item := range maps {
					items[i] = item
				}
			} else {
				return Filter{}, fmt.Errorf("%s expects a list", key)
			}
		}

		children := make([]Filter, 0, len(items))

		for _, item := range items {
			m, isMap := item.(map[string]any)
			if !isMap {
				return Filter{}, fmt.Errorf("%s expects a list of objects", key)
			}

			child, err := FromMap(m)
			if err != nil {
				return Filter{}, err
			}

			children = append(children, child)
		}

		if key == "$and" {
			return And(children...), nil
		}

		if len(children) == 0 {
			return Filter{}, errors.New("$or expects at least one condition")
		}

		return Or(children...), nil
	}

	if strings.HasPrefix(key, "$") {
		return Filter{}, fmt.Errorf("unknown operator %s", key)
	}

	ops, ok := raw.(map[string]any)
	if !ok || !isOperatorMap(ops) {
		return Eq(key, raw), nil
	}

	names := make([]string, 0, len(ops))
	for op := range ops {
		names = append(names, op)
	}

	sort.Strings(names)

	filters := make([]Filter, 0, len(ops))

	for _, op := range names {
		f, err := parseOperator(key, op, ops[op])
		if err != nil {
			return Filter{}, err
		}

		filters = append(filters, f)
	}

	return And(filters...), nil
}

func isOperatorMap(m map[string]any) bool {
	if len(m) == 0 {
		return false
	}

	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}

	return true
}

func parseOperator(field, op string, arg any) (Filter, error) {
	switch op {
	case "$eq":
		return Eq(field, arg), nil
	case "$ne":
		return Ne(field, arg), nil
	case "$in":
		values, err := cast.ToSliceE(arg)
		if err != nil {
			return Filter{}, fmt.Errorf("%s: $in expects a list", field)
		}

		return In(field, values...), nil
	case "$contains":
		return Contains(field, arg), nil
	case "$gte":
		return Gte(field, arg), nil
	case "$lte":
		return Lte(field, arg), nil
	case "$exists":
		want, err := cast.ToBoolE(arg)
		if err != nil {
			return Filter{}, fmt.Errorf("%s: $exists expects a boolean", field)
		}

		if !want {
			return Filter{}, fmt.Errorf("%s: $exists false is not supported", field)
		}

		return Exists(field), nil
	case "$near":
		args, ok := arg.(map[string]any)
		if !ok {
			return Filter{}, fmt.Errorf("%s: $near expects an object", field)
		}

		center, ok := objects.ToPoint(args)
		if !ok {
			return Filter{}, fmt.Errorf("%s: $near expects lat and lng", field)
		}

		radius, err := cast.ToFloat64E(args["maxDistanceKm"])
		if err != nil || radius <= 0 {
			return Filter{}, fmt.Errorf("%s: $near expects a positive maxDistanceKm", field)
		}

		return Near(field, center, radius), nil
	default:
		return Filter{}, fmt.Errorf("%s: unknown operator %s", field, op)
	}
}
