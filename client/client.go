// Package client is a small GraphQL client built around watched queries.
//
// A watched query (ObservableQuery) owns the latest result of one operation
// and the network status of the request that produced it. It supports the
// incremental-fetch primitive list views need: FetchMore runs the operation
// with different variables and merges the answer into the current result
// through a caller supplied UpdateQueryFunc.
//
// Example usage:
//
//	c := client.New(client.NewHTTPTransport("https://example.com/graphql"))
//	q := c.Watch(client.WatchOptions{Query: doc, Variables: vars})
//	if err := q.Start(ctx); err != nil {
//	    // err is also available from q.State().Error
//	}
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// ErrSuperseded is returned by FetchMore and Refetch when SetVariables was
// called while they were in flight. Their answer is dropped.
var ErrSuperseded = errors.New("client: request superseded by new variables")

// Client executes operations through a Transport.
type Client struct {
	transport Transport
	logger    zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for request lifecycle events.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New creates a Client on top of the given transport.
func New(transport Transport, opts ...Option) *Client {
	c := &Client{
		transport: transport,
		logger:    log.Logger,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Execute runs a single request. GraphQL errors in the response are
// returned as *ResponseError.
func (c *Client) Execute(ctx context.Context, req *Request) (*Response, error) {
	resp, err := c.transport.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("execute %s: %w", req.OperationName, err)
	}

	if len(resp.Errors) > 0 {
		return nil, &ResponseError{OperationName: req.OperationName, Errors: resp.Errors}
	}

	return resp, nil
}

// WatchOptions describes the operation a watched query runs.
type WatchOptions struct {
	Query         string
	OperationName string
	Variables     map[string]any

	// Skip creates the watched query without ever fetching it.
	Skip bool
}

// Watch creates a watched query. No request is sent until Start is called.
func (c *Client) Watch(opts WatchOptions) *ObservableQuery {
	q := &ObservableQuery{
		client:        c,
		query:         opts.Query,
		operationName: opts.OperationName,
		variables:     maps.Clone(opts.Variables),
		skip:          opts.Skip,
		inflight:      make(map[uint64]NetworkStatus),
		settled:       StatusReady,
	}

	if !opts.Skip {
		q.state.Loading = true
		q.state.NetworkStatus = StatusLoading
	}

	return q
}

// QueryState is a snapshot of a watched query.
type QueryState struct {
	// Data is the raw "data" object of the last successful response,
	// or nil if no request has succeeded yet.
	Data json.RawMessage

	// Loading is true while any request is in flight. NetworkStatus is
	// then the status of the newest one.
	Loading       bool
	NetworkStatus NetworkStatus

	// Error is the error of the last request, cleared by the next success.
	Error error
}

// UpdateQueryFunc merges the result of a FetchMore into the previous data.
type UpdateQueryFunc func(prev, next json.RawMessage) json.RawMessage

// FetchMoreOptions configures an incremental fetch.
type FetchMoreOptions struct {
	// Variables replace the query variables for this request only.
	Variables map[string]any

	// UpdateQuery merges the new data into the previous data.
	// When nil the new data replaces the previous data.
	UpdateQuery UpdateQueryFunc
}

// ObservableQuery holds the latest result of one operation.
// All methods are safe for concurrent use.
//
// Start and SetVariables begin a new generation. An answer from an older
// generation never reaches the state.
type ObservableQuery struct {
	client        *Client
	query         string
	operationName string
	skip          bool

	mu         sync.RWMutex
	variables  map[string]any
	state      QueryState
	generation uint64
	seq        uint64
	inflight   map[uint64]NetworkStatus
	settled    NetworkStatus
}

// State returns a snapshot of the query.
func (q *ObservableQuery) State() QueryState {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.state
}

// Variables returns a copy of the current variables.
func (q *ObservableQuery) Variables() map[string]any {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return maps.Clone(q.variables)
}

// Start runs the initial fetch. It is a no-op for skipped queries.
func (q *ObservableQuery) Start(ctx context.Context) error {
	if q.skip {
		return nil
	}
	return q.run(ctx, StatusLoading, q.Variables(), nil, true)
}

// SetVariables stores new variables and fetches with them.
func (q *ObservableQuery) SetVariables(ctx context.Context, vars map[string]any) error {
	q.mu.Lock()
	q.variables = maps.Clone(vars)
	q.mu.Unlock()

	if q.skip {
		return nil
	}
	return q.run(ctx, StatusSetVariables, vars, nil, true)
}

// Refetch runs the operation again and replaces the data.
// When vars is non-nil it is used for this request only; the stored
// variables are left untouched.
func (q *ObservableQuery) Refetch(ctx context.Context, vars map[string]any) error {
	if q.skip {
		return nil
	}
	if vars == nil {
		vars = q.Variables()
	}
	return q.run(ctx, StatusRefetch, vars, nil, false)
}

// FetchMore runs the operation with opts.Variables and merges the answer
// with opts.UpdateQuery. On failure the previous data is kept.
func (q *ObservableQuery) FetchMore(ctx context.Context, opts FetchMoreOptions) error {
	if q.skip {
		return nil
	}

	vars := opts.Variables
	if vars == nil {
		vars = q.Variables()
	}
	return q.run(ctx, StatusFetchMore, vars, opts.UpdateQuery, false)
}

func (q *ObservableQuery) run(
	ctx context.Context,
	status NetworkStatus,
	vars map[string]any,
	update UpdateQueryFunc,
	newGeneration bool,
) error {
	q.mu.Lock()
	if newGeneration {
		q.generation++
	}
	generation := q.generation
	q.seq++
	id := q.seq
	q.inflight[id] = status
	q.refreshStatus()
	q.mu.Unlock()

	q.client.logger.Debug().
		Str("operation", q.operationName).
		Stringer("network_status", status).
		Msg("fetching watched query")

	resp, err := q.client.Execute(ctx, &Request{
		Query:         q.query,
		OperationName: q.operationName,
		Variables:     vars,
	})

	q.mu.Lock()
	defer q.mu.Unlock()
	defer q.refreshStatus()

	delete(q.inflight, id)

	if generation != q.generation {
		q.client.logger.Debug().
			Str("operation", q.operationName).
			Stringer("network_status", status).
			Msg("dropping superseded answer")
		return ErrSuperseded
	}

	if err != nil {
		q.state.Error = err
		q.settled = StatusError
		return err
	}

	data := resp.Data
	if update != nil {
		data = update(q.state.Data, resp.Data)
	}

	q.state.Data = data
	q.state.Error = nil
	q.settled = StatusReady
	return nil
}

// refreshStatus derives the loading flag and network status from the
// requests in flight. Callers hold q.mu.
func (q *ObservableQuery) refreshStatus() {
	if len(q.inflight) == 0 {
		q.state.Loading = false
		q.state.NetworkStatus = q.settled
		return
	}

	newest := lo.Max(lo.Keys(q.inflight))
	q.state.Loading = true
	q.state.NetworkStatus = q.inflight[newest]
}
