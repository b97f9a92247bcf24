// Package multiquery fetches paginated lists of a collection through
// generated GraphQL list queries and grows them with "load more".
//
// A List is the state of one rendered list: the window size requested so
// far (the limit), the terms it was last used with, and the watched query
// answering it. Every consumer reads the same Result contract, so loading
// flags, counts and the "show load more" decision are derived in one place.
//
// Example usage:
//
//	list, err := multiquery.NewList[PostsList](gql, registry, "Posts", "PostsList",
//	    multiquery.WithEnableTotal(),
//	)
//	if err != nil {
//	    return err // unknown collection/fragment or a query that does not compile
//	}
//
//	res := list.Use(ctx, multiquery.Terms{"view": "recent"})
//	for res.ShowLoadMore && res.Error == nil {
//	    if err := res.LoadMore(ctx); err != nil {
//	        break
//	    }
//	    res = list.Result()
//	}
package multiquery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"

	"github.com/nrfta/multiquery/client"
	"github.com/nrfta/multiquery/query"
	"github.com/nrfta/multiquery/schema"
)

// ErrNotStarted is returned by LoadMore and Refetch before the first Use.
var ErrNotStarted = errors.New("multiquery: list has not been used yet")

// ErrLoadMoreInFlight is returned by a LoadMore that joined an in-flight
// LoadMore for a different window size. Its override was not applied.
var ErrLoadMoreInFlight = errors.New("multiquery: another load more is in flight")

// Watcher creates watched queries. *client.Client implements it.
type Watcher interface {
	Watch(opts client.WatchOptions) *client.ObservableQuery
}

// List is the pagination state of one list view.
// All methods are safe for concurrent use.
type List[T any] struct {
	watcher Watcher
	doc     *query.Document
	cfg     *config
	logger  zerolog.Logger

	mu         sync.Mutex
	query      *client.ObservableQuery
	terms      Terms
	termsKey   string
	seen       bool
	limit      int
	generation uint64
	varsKey    string

	loadMoreGroup singleflight.Group
}

// NewList builds the list query for a collection and fragment.
// Unknown names and documents that do not compile are returned as errors
// here; nothing is fetched until Use.
func NewList[T any](
	w Watcher,
	reg *schema.Registry,
	collectionName string,
	fragmentName string,
	opts ...Option,
) (*List[T], error) {
	cfg := newConfig(opts...)
	if cfg.callSite == "" {
		if _, file, line, ok := runtime.Caller(1); ok {
			cfg.callSite = fmt.Sprintf("%s:%d", filepath.Base(file), line)
		}
	}

	coll, err := reg.Collection(collectionName)
	if err != nil {
		return nil, err
	}

	fragment, err := reg.FragmentText(fragmentName)
	if err != nil {
		return nil, err
	}

	doc, err := query.Build(query.Spec{
		CollectionName: coll.Name,
		TypeName:       coll.TypeName,
		ResolverName:   coll.MultiResolverName,
		FragmentName:   fragmentName,
		Fragment:       fragment,
		ExtraVariables: cfg.extraVariables,
	})
	if err != nil {
		return nil, err
	}

	return &List[T]{
		watcher: w,
		doc:     doc,
		cfg:     cfg,
		logger: cfg.logger.With().
			Str("collection", coll.Name).
			Str("fragment", fragmentName).
			Str("call_site", cfg.callSite).
			Logger(),
	}, nil
}

// Document returns the compiled list query.
func (l *List[T]) Document() *query.Document {
	return l.doc
}

// Use renders the list for terms. When the terms differ from the previous
// call the limit goes back to its default, dropping any LoadMore progress.
// When the resulting query variables changed, the query is (re)issued and
// Use blocks until that request settles. The returned Result still reports
// Loading while an earlier LoadMore is in flight; its answer is dropped.
//
// The terms are deep-copied, so the caller may reuse or mutate them after
// Use returns.
func (l *List[T]) Use(ctx context.Context, terms Terms) *Result[T] {
	terms = terms.Clone()

	key, err := l.cfg.cacheKey(terms)
	if err != nil {
		return l.failed(fmt.Errorf("multiquery: terms key: %w", err), terms)
	}

	defaultLimit := l.defaultLimit(terms)
	vars := l.variables(terms, defaultLimit)
	varsKey, err := canonicalKey(vars)
	if err != nil {
		return l.failed(fmt.Errorf("multiquery: variables key: %w", err), terms)
	}

	l.mu.Lock()
	if !l.seen || key != l.termsKey {
		l.seen = true
		l.termsKey = key
		l.limit = defaultLimit
		l.generation++
	}
	l.terms = terms

	var fetch func(context.Context) error
	q := l.query
	switch {
	case q == nil:
		q = l.watcher.Watch(client.WatchOptions{
			Query:         l.doc.Text,
			OperationName: l.doc.OperationName,
			Variables:     vars,
			Skip:          l.cfg.skip,
		})
		l.query = q
		l.varsKey = varsKey
		fetch = q.Start
	case varsKey != l.varsKey:
		l.varsKey = varsKey
		fetch = func(ctx context.Context) error {
			return q.SetVariables(ctx, vars)
		}
	}
	l.mu.Unlock()

	if fetch != nil {
		if err := fetch(ctx); err != nil && !errors.Is(err, client.ErrSuperseded) {
			l.logError(err, terms, "list query failed")
		}
	}

	return l.Result()
}

// LoadMore grows the window to limitOverride, or by the items-per-page when
// no override is given, and fetches it. The limit only changes when the
// fetch succeeds and the terms did not change meanwhile.
//
// Calls made while a LoadMore is in flight join it instead of issuing
// another fetch and share its result. A joining call whose override asks
// for a different window gets ErrLoadMoreInFlight.
func (l *List[T]) LoadMore(ctx context.Context, limitOverride ...int) error {
	if l.cfg.skip {
		return nil
	}

	v, err, shared := l.loadMoreGroup.Do("loadMore", func() (any, error) {
		return l.loadMore(ctx, limitOverride...)
	})
	if err != nil {
		return err
	}

	if shared && len(limitOverride) > 0 && limitOverride[0] > 0 {
		if target, _ := v.(int); target != l.cfg.capLimit(limitOverride[0]) {
			return ErrLoadMoreInFlight
		}
	}
	return nil
}

func (l *List[T]) loadMore(ctx context.Context, limitOverride ...int) (int, error) {
	l.mu.Lock()
	q := l.query
	if q == nil {
		l.mu.Unlock()
		return 0, ErrNotStarted
	}

	newLimit := l.limit + l.cfg.itemsPerPage
	if len(limitOverride) > 0 && limitOverride[0] > 0 {
		newLimit = limitOverride[0]
	}
	newLimit = l.cfg.capLimit(newLimit)
	terms := l.terms
	generation := l.generation
	l.mu.Unlock()

	l.mirrorLimit(newLimit)

	err := q.FetchMore(ctx, client.FetchMoreOptions{
		Variables:   l.variables(terms, newLimit),
		UpdateQuery: replaceWindow,
	})
	if errors.Is(err, client.ErrSuperseded) {
		return newLimit, nil
	}
	if err != nil {
		l.logError(err, terms, "load more failed")
		return newLimit, err
	}

	l.mu.Lock()
	if l.generation == generation {
		l.limit = newLimit
	}
	l.mu.Unlock()

	return newLimit, nil
}

// Refetch fetches the current window again.
func (l *List[T]) Refetch(ctx context.Context) error {
	l.mu.Lock()
	q := l.query
	terms := l.terms
	limit := l.limit
	l.mu.Unlock()

	if q == nil {
		return ErrNotStarted
	}

	err := q.Refetch(ctx, l.variables(terms, limit))
	if errors.Is(err, client.ErrSuperseded) {
		return nil
	}
	if err != nil {
		l.logError(err, terms, "refetch failed")
		return err
	}
	return nil
}

// Result returns the current projection. It can be called while a fetch is
// in flight to observe the loading flags.
func (l *List[T]) Result() *Result[T] {
	l.mu.Lock()
	q := l.query
	limit := l.limit
	l.mu.Unlock()

	var state client.QueryState
	if q != nil {
		state = q.State()
	}

	page, err := l.decode(state.Data)
	if err != nil && state.Error == nil {
		state.Error = err
	}

	res := Project(ProjectInput[T]{
		State:              state,
		Page:               page,
		Limit:              limit,
		EnableTotal:        l.cfg.enableTotal,
		AlwaysShowLoadMore: l.cfg.alwaysShowLoadMore,
	})
	res.LoadMore = l.LoadMore
	res.LoadMoreProps.LoadMore = l.LoadMore
	res.Refetch = l.Refetch

	return res
}

// Limit returns the current window size.
func (l *List[T]) Limit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}

func (l *List[T]) failed(err error, terms Terms) *Result[T] {
	l.logError(err, terms, "invalid list terms")
	res := l.Result()
	res.Error = err
	return res
}

// defaultLimit picks the initial window: the URL parameter when mirroring
// is on, then the terms, then the configured fallback.
func (l *List[T]) defaultLimit(terms Terms) int {
	if l.cfg.queryLimitName != "" && l.cfg.location != nil {
		raw := l.cfg.location.Query().Get(l.cfg.queryLimitName)
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return l.cfg.capLimit(n)
		}
	}

	if n, ok := terms.Limit(); ok {
		return l.cfg.capLimit(n)
	}

	return l.cfg.capLimit(l.cfg.limit)
}

func (l *List[T]) variables(terms Terms, limit int) map[string]any {
	input := map[string]any{
		"terms":       map[string]any(terms.WithLimit(limit)),
		"enableCache": l.cfg.enableCache,
		"enableTotal": l.cfg.enableTotal,
	}
	if l.cfg.createIfMissing != nil {
		input["createIfMissing"] = l.cfg.createIfMissing
	}

	vars := map[string]any{"input": input}

	extra := lo.PickByKeys(l.cfg.extraValues, l.doc.ExtraVariables)
	if len(extra) > 0 {
		input["resolverArgs"] = extra
		maps.Copy(vars, extra)
	}

	return vars
}

func (l *List[T]) mirrorLimit(limit int) {
	if l.cfg.queryLimitName == "" || l.cfg.location == nil {
		return
	}

	values := l.cfg.location.Query()
	values.Set(l.cfg.queryLimitName, strconv.Itoa(limit))
	if err := l.cfg.location.Replace(values); err != nil {
		l.logger.Warn().Err(err).Int("limit", limit).Msg("could not mirror list limit into the URL")
	}
}

func (l *List[T]) decode(data json.RawMessage) (*Page[T], error) {
	if len(data) == 0 {
		return nil, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("multiquery: decode data: %w", err)
	}

	raw, ok := envelope[l.doc.ResolverName]
	if !ok || string(raw) == "null" {
		return nil, nil
	}

	var page Page[T]
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("multiquery: decode %s: %w", l.doc.ResolverName, err)
	}
	return &page, nil
}

func (l *List[T]) logError(err error, terms Terms, msg string) {
	l.mu.Lock()
	limit := l.limit
	l.mu.Unlock()

	l.logger.Error().
		Err(err).
		Str("operation", l.doc.OperationName).
		Interface("terms", terms).
		Int("limit", limit).
		Msg(msg)
}

// replaceWindow keeps the whole new window: every LoadMore fetches the
// window from the start, so the answer is a superset of the previous one.
func replaceWindow(prev, next json.RawMessage) json.RawMessage {
	if len(next) == 0 {
		return prev
	}
	return next
}
