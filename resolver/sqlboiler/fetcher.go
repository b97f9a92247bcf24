// Package sqlboiler provides a resolver.Fetcher backed by SQLBoiler queries.
//
// The fetcher is ORM-specific but collection-agnostic: it converts
// resolver.FetchParams into query mods and hands them to caller supplied
// functions that run the generated model queries.
//
// Example usage:
//
//	fetcher := sqlboiler.NewFetcher(
//	    func(ctx context.Context, mods ...qm.QueryMod) ([]*models.Post, error) {
//	        return models.Posts(mods...).All(ctx, db)
//	    },
//	    func(ctx context.Context, mods ...qm.QueryMod) (int64, error) {
//	        return models.Posts(mods...).Count(ctx, db)
//	    },
//	    sqlboiler.WithColumns("user_id", "created_at", "id"),
//	)
//
//	posts := resolver.NewCollection[*models.Post]("Post", fetcher)
package sqlboiler

import (
	"context"

	"github.com/aarondl/sqlboiler/v4/queries/qm"
	"github.com/friendsofgo/errors"

	"github.com/nrfta/multiquery/resolver"
)

// QueryFunc executes a SQLBoiler query and returns results.
//
// Type parameter T is the SQLBoiler model type (e.g., *models.Post).
type QueryFunc[T any] func(ctx context.Context, mods ...qm.QueryMod) ([]T, error)

// CountFunc executes a SQLBoiler count query.
type CountFunc func(ctx context.Context, mods ...qm.QueryMod) (int64, error)

// Fetcher implements resolver.Fetcher[T] for SQLBoiler queries.
type Fetcher[T any] struct {
	queryFunc QueryFunc[T]
	countFunc CountFunc
	columns   Columns
}

// Option configures a Fetcher.
type Option func(*options)

type options struct {
	columns Columns
}

// WithColumns restricts filters and ordering to the given columns.
// Without it any plain identifier is accepted.
func WithColumns(columns ...string) Option {
	return func(o *options) {
		o.columns = NewColumns(columns...)
	}
}

// NewFetcher creates a new SQLBoiler fetcher.
//
// Parameters:
//   - queryFunc: Function that executes SQLBoiler queries with query mods
//   - countFunc: Function that counts records with query mods
func NewFetcher[T any](queryFunc QueryFunc[T], countFunc CountFunc, opts ...Option) *Fetcher[T] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	return &Fetcher[T]{
		queryFunc: queryFunc,
		countFunc: countFunc,
		columns:   o.columns,
	}
}

// Fetch retrieves one window using filter, order, offset and limit mods.
func (f *Fetcher[T]) Fetch(ctx context.Context, params resolver.FetchParams) ([]T, error) {
	mods, err := QueryMods(params, f.columns)
	if err != nil {
		return nil, err
	}

	items, err := f.queryFunc(ctx, mods...)
	if err != nil {
		return nil, errors.Wrap(err, "sqlboiler: fetch")
	}
	return items, nil
}

// Count returns the number of rows matching the filters. Offset, limit and
// ordering are not applied.
func (f *Fetcher[T]) Count(ctx context.Context, params resolver.FetchParams) (int64, error) {
	mods, err := FilterMods(params.Filters, f.columns)
	if err != nil {
		return 0, err
	}

	n, err := f.countFunc(ctx, mods...)
	if err != nil {
		return 0, errors.Wrap(err, "sqlboiler: count")
	}
	return n, nil
}
