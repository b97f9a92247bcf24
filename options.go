package multiquery

import (
	"maps"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultLimit is the initial window size when neither the URL nor the
	// terms specify one.
	DefaultLimit = 10

	// DefaultItemsPerPage is how much LoadMore grows the window by default.
	DefaultItemsPerPage = 10
)

// Option configures a List.
//
// Example:
//
//	list, err := multiquery.NewList[PostsList](c, reg, "Posts", "PostsList",
//	    multiquery.WithLimit(20),
//	    multiquery.WithEnableTotal(),
//	)
type Option func(*config)

// config holds list configuration.
type config struct {
	limit              int
	itemsPerPage       int
	maxLimit           int
	enableTotal        bool
	enableCache        bool
	alwaysShowLoadMore bool
	skip               bool
	queryLimitName     string
	location           Location
	extraVariables     map[string]string
	extraValues        map[string]any
	createIfMissing    map[string]any
	cacheKey           func(Terms) (string, error)
	logger             zerolog.Logger
	callSite           string
}

func newConfig(opts ...Option) *config {
	cfg := &config{
		limit:        DefaultLimit,
		itemsPerPage: DefaultItemsPerPage,
		cacheKey:     Terms.Key,
		logger:       log.Logger,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	return cfg
}

// WithLimit sets the fallback window size used when neither the URL nor the
// terms carry a limit. Default: 10.
func WithLimit(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.limit = n
		}
	}
}

// WithItemsPerPage sets how much LoadMore grows the window. Default: 10.
func WithItemsPerPage(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.itemsPerPage = n
		}
	}
}

// WithMaxLimit caps every window size requested by the list.
// Larger values are capped, not rejected. Default: no cap.
func WithMaxLimit(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxLimit = n
		}
	}
}

// WithEnableTotal requests totalCount with every fetch. ShowLoadMore is then
// exact instead of the full-page heuristic.
func WithEnableTotal() Option {
	return func(c *config) {
		c.enableTotal = true
	}
}

// WithEnableCache sets enableCache in the query input.
func WithEnableCache() Option {
	return func(c *config) {
		c.enableCache = true
	}
}

// WithAlwaysShowLoadMore forces ShowLoadMore to true.
func WithAlwaysShowLoadMore() Option {
	return func(c *config) {
		c.alwaysShowLoadMore = true
	}
}

// WithSkip creates a list that never fetches.
func WithSkip() Option {
	return func(c *config) {
		c.skip = true
	}
}

// WithQueryLimitName mirrors the window size into the URL query parameter
// name of loc. The parameter also seeds the initial limit, so reloading the
// page keeps the pagination depth.
func WithQueryLimitName(name string, loc Location) Option {
	return func(c *config) {
		c.queryLimitName = name
		c.location = loc
	}
}

// WithExtraVariables declares resolver arguments beyond the input object.
// types maps a variable name to its GraphQL type; values holds the values.
// Values with no declared type are dropped.
func WithExtraVariables(types map[string]string, values map[string]any) Option {
	return func(c *config) {
		c.extraVariables = maps.Clone(types)
		c.extraValues = maps.Clone(values)
	}
}

// WithCreateIfMissing passes a document the resolver creates when the
// terms match nothing.
func WithCreateIfMissing(doc map[string]any) Option {
	return func(c *config) {
		c.createIfMissing = maps.Clone(doc)
	}
}

// WithCacheKey replaces the terms key used to detect that the caller
// switched to different terms. Default: Terms.Key.
func WithCacheKey(fn func(Terms) (string, error)) Option {
	return func(c *config) {
		if fn != nil {
			c.cacheKey = fn
		}
	}
}

// WithLogger sets the logger errors are reported to.
func WithLogger(l zerolog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithCallSite labels log entries of this list. Default: the file and line
// that called NewList.
func WithCallSite(site string) Option {
	return func(c *config) {
		c.callSite = site
	}
}

func (c *config) capLimit(n int) int {
	if c.maxLimit > 0 && n > c.maxLimit {
		return c.maxLimit
	}
	return n
}
