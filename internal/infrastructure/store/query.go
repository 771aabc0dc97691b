// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package store

import (
	"cmp"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/linuxfoundation/lfx-v2-meeting-scheduler/internal/domain"
)

// toFields flattens a record into its JSON field map.
func toFields(item any) (map[string]any, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// normalize converts v into the shape encoding/json produces when decoding
// into any, so typed values compare equal to decoded fields.
func normalize(v any) any {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

// whereValues reports whether v is a set-membership value and returns its
// normalised members, or the single normalised value otherwise.
func whereValues(v any) ([]any, bool) {
	rv := reflect.ValueOf(v)
	if rv.IsValid() && (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type().Elem().Kind() != reflect.Uint8 {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out, true
	}
	return []any{normalize(v)}, false
}

func matchesWhere(fields map[string]any, where map[string]any) bool {
	for key, want := range where {
		got := fields[key]
		values, _ := whereValues(want)
		matched := false
		for _, v := range values {
			if reflect.DeepEqual(got, v) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// compareValues orders two decoded JSON values. nil sorts first; RFC 3339
// strings compare as instants.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	switch av := a.(type) {
	case float64:
		if bv, ok := b.(float64); ok {
			return cmp.Compare(av, bv)
		}
	case string:
		if bv, ok := b.(string); ok {
			at, aErr := time.Parse(time.RFC3339Nano, av)
			bt, bErr := time.Parse(time.RFC3339Nano, bv)
			if aErr == nil && bErr == nil {
				return at.Compare(bt)
			}
			return strings.Compare(av, bv)
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			default:
				return 1
			}
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// paginate applies offset then limit; a zero limit keeps everything.
func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return []T{}
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// applyQuery filters, sorts and paginates items in memory.
func applyQuery[T domain.Record](items []T, q *domain.Query) ([]T, error) {
	if q == nil {
		return items, nil
	}

	if len(q.Where) > 0 || q.OrderBy != nil {
		type row struct {
			item   T
			fields map[string]any
		}
		rows := make([]row, 0, len(items))
		for _, item := range items {
			fields, err := toFields(item)
			if err != nil {
				return nil, err
			}
			if len(q.Where) > 0 && !matchesWhere(fields, q.Where) {
				continue
			}
			rows = append(rows, row{item: item, fields: fields})
		}

		if q.OrderBy != nil && q.OrderBy.Field != "" {
			field := q.OrderBy.Field
			desc := q.OrderBy.Direction == domain.SortDesc
			slices.SortStableFunc(rows, func(a, b row) int {
				c := compareValues(a.fields[field], b.fields[field])
				if desc {
					return -c
				}
				return c
			})
		}

		items = make([]T, len(rows))
		for i, r := range rows {
			items[i] = r.item
		}
	}

	return paginate(items, q.Limit, q.Offset), nil
}

// countMatching counts the records matching the query's where clause.
// Ordering and pagination do not affect the count.
func countMatching[T domain.Record](items []T, q *domain.Query) (int, error) {
	if q == nil || len(q.Where) == 0 {
		return len(items), nil
	}
	matched, err := applyQuery(items, &domain.Query{Where: q.Where})
	if err != nil {
		return 0, err
	}
	return len(matched), nil
}
