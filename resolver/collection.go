package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Default access-filter safeguards.
const (
	defaultMaxIterations      = 5
	defaultMaxRecordsExamined = 1000
	defaultTimeout            = 3 * time.Second
)

// Default adaptive backoff multipliers (Fibonacci-like progression)
var defaultBackoffMultipliers = []int{1, 2, 3, 5, 8}

// Safeguard identifiers reported when a filtered window stops early.
const (
	SafeguardTimeout       = "timeout"
	SafeguardMaxRecords    = "max_records"
	SafeguardMaxIterations = "max_iterations"
)

// ErrUnknownView is returned when the terms name a view the collection lacks.
var ErrUnknownView = errors.New("resolver: unknown view")

// CollectionOption configures a Collection.
type CollectionOption func(*collectionConfig)

type collectionConfig struct {
	limits             *LimitConfig
	maxIterations      int
	maxRecordsExamined int
	timeout            time.Duration
	backoffMultipliers []int
	logger             zerolog.Logger
}

// WithLimits sets the window size defaults and cap.
func WithLimits(limits *LimitConfig) CollectionOption {
	return func(c *collectionConfig) {
		if limits != nil {
			c.limits = limits
		}
	}
}

// WithMaxIterations sets the maximum number of fetch iterations used to
// fill a window when an access filter drops items.
// Default: 5
func WithMaxIterations(n int) CollectionOption {
	return func(c *collectionConfig) {
		c.maxIterations = n
	}
}

// WithMaxRecordsExamined sets the maximum number of stored records examined
// to fill one filtered window.
// Default: 1000
func WithMaxRecordsExamined(n int) CollectionOption {
	return func(c *collectionConfig) {
		c.maxRecordsExamined = n
	}
}

// WithTimeout bounds the time spent filling one filtered window.
// Default: 3 seconds
func WithTimeout(d time.Duration) CollectionOption {
	return func(c *collectionConfig) {
		c.timeout = d
	}
}

// WithBackoffMultipliers sets the batch growth per iteration.
// Default: [1, 2, 3, 5, 8]
//
// Iteration 1 fetches exactly what is missing; later iterations overscan
// by the multiplier, since the filter already dropped items once.
func WithBackoffMultipliers(multipliers []int) CollectionOption {
	return func(c *collectionConfig) {
		if len(multipliers) > 0 {
			c.backoffMultipliers = multipliers
		}
	}
}

// WithCollectionLogger sets the logger used to report safeguard hits.
func WithCollectionLogger(l zerolog.Logger) CollectionOption {
	return func(c *collectionConfig) {
		c.logger = l
	}
}

// Collection resolves list queries for one item type on top of a Fetcher.
//
// Views select ordering and filters from the terms. An optional access
// filter removes items the caller may not see; the collection keeps
// fetching until the window is full or a safeguard trips.
type Collection[T any] struct {
	typeName     string
	fetcher      Fetcher[T]
	views        map[string]View
	defaultView  string
	accessFilter FilterFunc[T]
	cfg          collectionConfig
}

// NewCollection creates a collection of typeName items served by fetcher.
func NewCollection[T any](typeName string, fetcher Fetcher[T], opts ...CollectionOption) *Collection[T] {
	cfg := collectionConfig{
		limits:             NewLimitConfig(),
		maxIterations:      defaultMaxIterations,
		maxRecordsExamined: defaultMaxRecordsExamined,
		timeout:            defaultTimeout,
		backoffMultipliers: defaultBackoffMultipliers,
		logger:             zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return &Collection[T]{
		typeName: typeName,
		fetcher:  fetcher,
		views:    make(map[string]View),
		cfg:      cfg,
	}
}

// View registers a view and returns the collection for chaining.
// The first registered view answers terms that name none.
func (c *Collection[T]) View(v View) *Collection[T] {
	if c.defaultView == "" {
		c.defaultView = v.Name
	}
	c.views[v.Name] = v
	return c
}

// AccessFilter sets the filter applied to every fetched batch.
func (c *Collection[T]) AccessFilter(f FilterFunc[T]) *Collection[T] {
	c.accessFilter = f
	return c
}

// TypeName implements MultiResolver.
func (c *Collection[T]) TypeName() string {
	return c.typeName
}

// ResolveMulti implements MultiResolver.
//
// TotalCount counts stored items matching the view filters; items removed
// by the access filter are still counted.
func (c *Collection[T]) ResolveMulti(ctx context.Context, input MultiInput, _ map[string]any) (*MultiOutput, error) {
	terms, err := DecodeTerms(input.Terms)
	if err != nil {
		return nil, err
	}

	params, err := c.FetchParams(terms)
	if err != nil {
		return nil, err
	}

	items, err := c.fetchWindow(ctx, params)
	if err != nil {
		return nil, err
	}

	out := &MultiOutput{
		Results: lo.Map(items, func(item T, _ int) any { return item }),
	}

	if input.EnableTotal {
		total, err := c.fetcher.Count(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", c.typeName, err)
		}
		out.TotalCount = lo.ToPtr(int(total))
	}

	return out, nil
}

// FetchParams converts decoded terms into the parameters of a fetch.
func (c *Collection[T]) FetchParams(terms ViewTerms) (FetchParams, error) {
	name := terms.View
	if name == "" {
		name = c.defaultView
	}

	var view View
	if name != "" {
		v, ok := c.views[name]
		if !ok {
			return FetchParams{}, fmt.Errorf("%w: %q on %s", ErrUnknownView, name, c.typeName)
		}
		view = v
	}

	params := FetchParams{
		Limit:   c.cfg.limits.EffectiveLimit(terms.Limit),
		Offset:  max(terms.Offset, 0),
		OrderBy: view.OrderBy,
	}
	if view.Filters != nil {
		params.Filters = view.Filters(terms)
	}

	return params, nil
}

func (c *Collection[T]) fetchWindow(ctx context.Context, params FetchParams) ([]T, error) {
	if c.accessFilter == nil {
		items, err := c.fetcher.Fetch(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", c.typeName, err)
		}
		return items, nil
	}

	return c.fill(ctx, params)
}

// fillState tracks state across fetch iterations.
type fillState[T any] struct {
	kept          []T
	examinedCount int
	iteration     int
	offset        int
	noMoreData    bool
}

// fill fetches batches and applies the access filter until params.Limit
// items are kept or a safeguard trips. Partial windows are returned as is.
func (c *Collection[T]) fill(ctx context.Context, params FetchParams) ([]T, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.cfg.timeout)
	defer cancel()

	state := &fillState[T]{offset: params.Offset}
	safeguard := ""

	for len(state.kept) < params.Limit && !state.noMoreData {
		if state.iteration >= c.cfg.maxIterations {
			safeguard = SafeguardMaxIterations
			break
		}

		hit, err := c.fillIteration(timeoutCtx, params, state)
		if err != nil {
			return nil, err
		}
		if hit != "" {
			safeguard = hit
			break
		}
	}

	if safeguard != "" {
		c.cfg.logger.Warn().
			Str("type", c.typeName).
			Str("safeguard", safeguard).
			Int("kept", len(state.kept)).
			Int("examined", state.examinedCount).
			Int("iterations", state.iteration).
			Msg("filtered window returned partially")
	}

	if len(state.kept) > params.Limit {
		state.kept = state.kept[:params.Limit]
	}
	return state.kept, nil
}

func (c *Collection[T]) fillIteration(ctx context.Context, params FetchParams, state *fillState[T]) (string, error) {
	select {
	case <-ctx.Done():
		return SafeguardTimeout, nil
	default:
	}

	remaining := params.Limit - len(state.kept)
	batchSize := remaining * c.multiplier(state.iteration)

	if state.examinedCount+batchSize > c.cfg.maxRecordsExamined {
		batchSize = c.cfg.maxRecordsExamined - state.examinedCount
		if batchSize <= 0 {
			return SafeguardMaxRecords, nil
		}
	}

	batch := params
	batch.Offset = state.offset
	batch.Limit = batchSize

	items, err := c.fetcher.Fetch(ctx, batch)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return SafeguardTimeout, nil
		}
		return "", fmt.Errorf("fetch %s batch (iteration %d): %w", c.typeName, state.iteration+1, err)
	}

	filtered, err := c.accessFilter(ctx, items)
	if err != nil {
		return "", fmt.Errorf("filter %s batch (iteration %d): %w", c.typeName, state.iteration+1, err)
	}

	state.kept = append(state.kept, filtered...)
	state.examinedCount += len(items)
	state.offset += len(items)
	state.iteration++

	if len(items) < batchSize {
		state.noMoreData = true
	}

	return "", nil
}

func (c *Collection[T]) multiplier(iteration int) int {
	m := c.cfg.backoffMultipliers[min(iteration, len(c.cfg.backoffMultipliers)-1)]
	return max(m, 1)
}
