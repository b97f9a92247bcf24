package client

import (
	"context"
	"encoding/json"
	"strings"
)

// Request is a single GraphQL operation sent to a Transport.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// Response is the decoded GraphQL response envelope.
// Data is kept raw so that callers decode it into their own result shapes.
type Response struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Errors []GraphQLError  `json:"errors,omitempty"`
}

// GraphQLError is one entry of the "errors" array of a GraphQL response.
type GraphQLError struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// ResponseError is returned when the server answered with GraphQL errors.
type ResponseError struct {
	OperationName string
	Errors        []GraphQLError
}

func (e *ResponseError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, gqlErr := range e.Errors {
		msgs = append(msgs, gqlErr.Message)
	}
	return "graphql: " + e.OperationName + ": " + strings.Join(msgs, "; ")
}

// Transport executes GraphQL requests.
// Implementations include HTTPTransport and resolver.Server.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

// Do calls f(ctx, req).
func (f TransportFunc) Do(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}
