// Package resolver answers generated list queries on the server side.
//
// A Collection turns the query input (terms, enableTotal, ...) into
// FetchParams for a storage-agnostic Fetcher, and Server exposes registered
// collections as a client.Transport so list views can run against it
// in-process.
package resolver

import "context"

// Fetcher abstracts storage for a collection.
// This interface allows collections to work with SQLBoiler, in-memory
// slices, or any other store without being coupled to it.
//
// Type parameter T is the stored item type.
type Fetcher[T any] interface {
	// Fetch retrieves the window described by params: filters, ordering,
	// offset and limit applied.
	Fetch(ctx context.Context, params FetchParams) ([]T, error)

	// Count returns the number of items matching params.Filters, ignoring
	// offset and limit.
	Count(ctx context.Context, params FetchParams) (int64, error)
}

// FetchParams contains everything needed to fetch one window.
type FetchParams struct {
	// Limit is the maximum number of items to fetch.
	Limit int

	// Offset is the number of items to skip.
	Offset int

	// Filters maps column names to required values. A slice value means
	// "any of"; a nil value means "is null".
	Filters map[string]any

	// OrderBy specifies the sort order for results.
	OrderBy []OrderBy
}

// OrderBy represents a sort directive.
type OrderBy struct {
	// Column is the name of the column to sort by.
	Column string

	// Desc indicates descending order. False means ascending.
	Desc bool
}

// FilterFunc removes items the current request may not see.
// It receives a batch and returns the subset to keep, in order.
//
// Example:
//
//	visible := func(ctx context.Context, posts []*Post) ([]*Post, error) {
//	    out := posts[:0:0]
//	    for _, p := range posts {
//	        if !p.Draft || p.UserID == currentUserID(ctx) {
//	            out = append(out, p)
//	        }
//	    }
//	    return out, nil
//	}
type FilterFunc[T any] func(ctx context.Context, items []T) ([]T, error)

// MultiInput is the "input" argument of a list query.
type MultiInput struct {
	Terms           map[string]any `mapstructure:"terms"`
	EnableTotal     bool           `mapstructure:"enableTotal"`
	EnableCache     bool           `mapstructure:"enableCache"`
	CreateIfMissing map[string]any `mapstructure:"createIfMissing"`
	ResolverArgs    map[string]any `mapstructure:"resolverArgs"`
}

// MultiOutput is the answer of a list query before field selection.
type MultiOutput struct {
	Results    []any
	TotalCount *int
}

// MultiResolver resolves the root field of a list query.
type MultiResolver interface {
	// TypeName is the GraphQL type of the items ("Post").
	TypeName() string

	// ResolveMulti answers one list query. args holds every field argument,
	// "input" included.
	ResolveMulti(ctx context.Context, input MultiInput, args map[string]any) (*MultiOutput, error)
}
