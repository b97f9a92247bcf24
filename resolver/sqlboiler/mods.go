package sqlboiler

import (
	"reflect"
	"regexp"
	"slices"
	"strings"

	"github.com/aarondl/sqlboiler/v4/queries/qm"
	"github.com/friendsofgo/errors"
	"github.com/samber/lo"

	"github.com/nrfta/multiquery/resolver"
)

// ErrInvalidColumn is returned for filter or order columns that are not
// allowed. Column names are interpolated into SQL, values never are.
var ErrInvalidColumn = errors.New("sqlboiler: invalid column")

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Columns is an allow-list of column names. The zero value accepts any
// plain identifier.
type Columns map[string]struct{}

// NewColumns creates an allow-list.
func NewColumns(columns ...string) Columns {
	return lo.SliceToMap(columns, func(c string) (string, struct{}) {
		return c, struct{}{}
	})
}

func (c Columns) check(column string) error {
	if !identifier.MatchString(column) {
		return errors.Wrapf(ErrInvalidColumn, "%q", column)
	}
	if len(c) > 0 {
		if _, ok := c[column]; !ok {
			return errors.Wrapf(ErrInvalidColumn, "%q is not allowed", column)
		}
	}
	return nil
}

// QueryMods converts FetchParams into SQLBoiler query mods.
//
// The conversion follows these rules:
//   - Filters → qm.Where / qm.WhereIn, one per column in name order
//   - Offset → qm.Offset(n)
//   - Limit → qm.Limit(n)
//   - OrderBy → qm.OrderBy("col1 DESC, col2")
func QueryMods(params resolver.FetchParams, columns Columns) ([]qm.QueryMod, error) {
	mods, err := FilterMods(params.Filters, columns)
	if err != nil {
		return nil, err
	}

	if params.Offset > 0 {
		mods = append(mods, qm.Offset(params.Offset))
	}

	if params.Limit > 0 {
		mods = append(mods, qm.Limit(params.Limit))
	}

	if len(params.OrderBy) > 0 {
		clause, err := buildOrderByClause(params.OrderBy, columns)
		if err != nil {
			return nil, err
		}
		mods = append(mods, qm.OrderBy(clause))
	}

	return mods, nil
}

// FilterMods converts filters into WHERE mods:
//   - nil value → "col IS NULL"
//   - slice value → "col IN (...)"; an empty slice matches nothing
//   - anything else → "col = ?"
func FilterMods(filters map[string]any, columns Columns) ([]qm.QueryMod, error) {
	mods := []qm.QueryMod{}

	keys := lo.Keys(filters)
	slices.Sort(keys)

	for _, column := range keys {
		if err := columns.check(column); err != nil {
			return nil, err
		}

		value := filters[column]
		if value == nil {
			mods = append(mods, qm.Where(column+" IS NULL"))
			continue
		}

		if values, ok := sliceValues(value); ok {
			if len(values) == 0 {
				mods = append(mods, qm.Where("1 = 0"))
				continue
			}
			mods = append(mods, qm.WhereIn(column+" IN ?", values...))
			continue
		}

		mods = append(mods, qm.Where(column+" = ?", value))
	}

	return mods, nil
}

// sliceValues flattens any slice except []byte into []any.
func sliceValues(v any) ([]any, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}

	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// buildOrderByClause constructs an ORDER BY clause from OrderBy directives.
//
// Example:
//
//	[]OrderBy{
//	    {Column: "created_at", Desc: true},
//	    {Column: "id", Desc: false},
//	}
//	→ "created_at DESC, id"
func buildOrderByClause(orderBy []resolver.OrderBy, columns Columns) (string, error) {
	parts := make([]string, len(orderBy))
	for i, o := range orderBy {
		if err := columns.check(o.Column); err != nil {
			return "", err
		}
		if o.Desc {
			parts[i] = o.Column + " DESC"
		} else {
			parts[i] = o.Column
		}
	}
	return strings.Join(parts, ", "), nil
}
