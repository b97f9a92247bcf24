package multiquery

import (
	"context"

	"github.com/nrfta/multiquery/client"
)

// LoadMoreFunc grows the list window. With no argument the window grows by
// the configured items-per-page; with an argument the window becomes exactly
// that size.
type LoadMoreFunc func(ctx context.Context, limitOverride ...int) error

// LoadMoreProps is the bundle a "Load More" control needs.
type LoadMoreProps struct {
	LoadMore   LoadMoreFunc
	Count      int
	TotalCount *int
	Loading    bool
	Hidden     bool
}

// Result is the uniform contract every list consumer reads.
type Result[T any] struct {
	// Loading is true while any fetch, initial or incremental, is in flight.
	Loading bool

	// LoadingInitial is true during the first fetch only.
	LoadingInitial bool

	// LoadingMore is true during a LoadMore fetch only.
	LoadingMore bool

	// Results is nil until data arrives, and never longer than Limit.
	Results []T

	Count int

	// TotalCount is set only when the list was created WithEnableTotal.
	TotalCount *int

	Error error

	ShowLoadMore  bool
	LoadMoreProps LoadMoreProps
	LoadMore      LoadMoreFunc
	Refetch       func(ctx context.Context) error

	Limit         int
	NetworkStatus client.NetworkStatus
}

// Page is one decoded list answer.
type Page[T any] struct {
	Results    []T  `json:"results"`
	TotalCount *int `json:"totalCount"`
}

// ProjectInput is everything the load-state projection depends on.
type ProjectInput[T any] struct {
	State client.QueryState

	// Page is the decoded data, nil when there is none.
	Page *Page[T]

	Limit              int
	EnableTotal        bool
	AlwaysShowLoadMore bool
}

// Project derives the consumer contract from the raw query state.
//
// ShowLoadMore is true when it is forced, or with totals enabled when fewer
// than TotalCount items are loaded, or without totals when a full window
// came back. The last rule is a heuristic: a collection holding exactly
// Limit items shows the control once more and the next LoadMore returns
// nothing new.
func Project[T any](in ProjectInput[T]) *Result[T] {
	status := in.State.NetworkStatus

	res := &Result[T]{
		Loading:        in.State.Loading || status == client.StatusFetchMore,
		LoadingInitial: status == client.StatusLoading,
		LoadingMore:    status == client.StatusFetchMore,
		Error:          in.State.Error,
		Limit:          in.Limit,
		NetworkStatus:  status,
	}

	if in.Page != nil {
		results := in.Page.Results
		if results == nil {
			results = []T{}
		}
		if len(results) > in.Limit {
			results = results[:in.Limit]
		}
		res.Results = results
		res.Count = len(results)

		if in.EnableTotal {
			res.TotalCount = in.Page.TotalCount
		}
	}

	switch {
	case in.AlwaysShowLoadMore:
		res.ShowLoadMore = true
	case in.EnableTotal:
		res.ShowLoadMore = res.TotalCount != nil && res.Count < *res.TotalCount
	default:
		res.ShowLoadMore = res.Count >= in.Limit && in.Limit > 0
	}

	res.LoadMoreProps = LoadMoreProps{
		Count:      res.Count,
		TotalCount: res.TotalCount,
		Loading:    res.Loading,
		Hidden:     !res.ShowLoadMore,
	}

	return res
}
