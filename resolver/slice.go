package resolver

import (
	"cmp"
	"context"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
)

// FieldFunc returns the value of column for item, and false when the item
// has no such column.
type FieldFunc[T any] func(item T, column string) (any, bool)

// SliceFetcher serves a collection from memory. It applies filters,
// ordering, offset and limit the way the SQL fetcher does.
type SliceFetcher[T any] struct {
	field FieldFunc[T]

	mu    sync.RWMutex
	items []T
}

// NewSliceFetcher creates an in-memory fetcher over items.
func NewSliceFetcher[T any](field FieldFunc[T], items ...T) *SliceFetcher[T] {
	return &SliceFetcher[T]{
		field: field,
		items: slices.Clone(items),
	}
}

// Add appends items.
func (f *SliceFetcher[T]) Add(items ...T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, items...)
}

// Len returns the number of stored items.
func (f *SliceFetcher[T]) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.items)
}

// Fetch implements Fetcher.
func (f *SliceFetcher[T]) Fetch(ctx context.Context, params FetchParams) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	matched := f.match(params.Filters)

	if len(params.OrderBy) > 0 {
		slices.SortStableFunc(matched, func(a, b T) int {
			for _, o := range params.OrderBy {
				av, _ := f.field(a, o.Column)
				bv, _ := f.field(b, o.Column)
				c := compareValues(av, bv)
				if o.Desc {
					c = -c
				}
				if c != 0 {
					return c
				}
			}
			return 0
		})
	}

	if params.Offset >= len(matched) {
		return []T{}, nil
	}
	matched = matched[params.Offset:]

	if params.Limit > 0 && params.Limit < len(matched) {
		matched = matched[:params.Limit]
	}

	return matched, nil
}

// Count implements Fetcher.
func (f *SliceFetcher[T]) Count(ctx context.Context, params FetchParams) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return int64(len(f.match(params.Filters))), nil
}

func (f *SliceFetcher[T]) match(filters map[string]any) []T {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return lo.Filter(f.items, func(item T, _ int) bool {
		for column, want := range filters {
			got, ok := f.field(item, column)
			if !ok || !matchesValue(got, want) {
				return false
			}
		}
		return true
	})
}

// matchesValue reports whether got equals want, or any element of want
// when want is a slice.
func matchesValue(got, want any) bool {
	if want == nil {
		return got == nil
	}

	rv := reflect.ValueOf(want)
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
		for i := range rv.Len() {
			if compareValues(got, rv.Index(i).Interface()) == 0 {
				return true
			}
		}
		return false
	}

	return compareValues(got, want) == 0
}

// compareValues orders numbers numerically, times chronologically and
// everything else by its formatted text. nil sorts first.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			return at.Compare(bt)
		}
	}

	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return cmp.Compare(af, bf)
		}
	}

	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}
