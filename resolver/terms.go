package resolver

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// ViewTerms are list terms decoded for a collection.
// Keys other than view, limit and offset are kept in Extra for the view's
// filter function.
type ViewTerms struct {
	View   string         `mapstructure:"view"`
	Limit  int            `mapstructure:"limit"`
	Offset int            `mapstructure:"offset"`
	Extra  map[string]any `mapstructure:",remain"`
}

// DecodeTerms decodes raw terms. Numbers may arrive as float64 or as
// strings; both decode into the integer fields.
func DecodeTerms(raw map[string]any) (ViewTerms, error) {
	var vt ViewTerms

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &vt,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return vt, fmt.Errorf("create terms decoder: %w", err)
	}

	if err := dec.Decode(raw); err != nil {
		return vt, fmt.Errorf("decode terms: %w", err)
	}

	return vt, nil
}

// View is a named ordering plus the filters it derives from the terms,
// such as "recent" (newest first) or "userPosts" (filtered by userId).
type View struct {
	Name    string
	OrderBy []OrderBy

	// Filters derives FetchParams.Filters from the terms. May be nil.
	Filters func(terms ViewTerms) map[string]any
}

// ExtraFilter is a View.Filters helper copying the given term keys into
// filter columns: ExtraFilter(map[string]string{"userId": "user_id"}).
func ExtraFilter(columns map[string]string) func(ViewTerms) map[string]any {
	return func(terms ViewTerms) map[string]any {
		out := make(map[string]any)
		for key, column := range columns {
			if v, ok := terms.Extra[key]; ok {
				out[column] = v
			}
		}
		return out
	}
}
