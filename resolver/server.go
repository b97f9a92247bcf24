package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/nrfta/multiquery/client"
	"github.com/nrfta/multiquery/query"
)

const typenameField = "__typename"

// ErrUnknownResolver is reported for root fields with no registered resolver.
var ErrUnknownResolver = errors.New("resolver: unknown root field")

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the logger used for failed resolutions.
func WithServerLogger(l zerolog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = l
	}
}

// Server answers list queries from registered resolvers. It implements
// client.Transport for in-process use and http.Handler for remote clients.
type Server struct {
	mu        sync.RWMutex
	resolvers map[string]MultiResolver
	logger    zerolog.Logger
}

// NewServer creates a server with no resolvers.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		resolvers: make(map[string]MultiResolver),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register serves r under the root field name, usually
// query.ResolverName(r.TypeName()).
func (s *Server) Register(fieldName string, r MultiResolver) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolvers[fieldName] = r
	return s
}

// Do implements client.Transport.
//
// Malformed documents fail the call. Resolver failures are reported as
// GraphQL errors with the field set to null, like a GraphQL server would.
func (s *Server) Do(ctx context.Context, req *client.Request) (*client.Response, error) {
	doc, err := parser.Parse(parser.ParseParams{Source: req.Query})
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", req.OperationName, err)
	}

	op, fragments, err := splitDocument(doc, req.OperationName)
	if err != nil {
		return nil, err
	}

	vars, err := wireVariables(req.Variables)
	if err != nil {
		return nil, err
	}

	data := make(map[string]any)
	var gqlErrors []client.GraphQLError

	for _, sel := range op.SelectionSet.Selections {
		field, ok := sel.(*ast.Field)
		if !ok {
			continue
		}
		key := responseKey(field)

		value, err := s.resolveField(ctx, field, vars, fragments)
		if err != nil {
			s.logger.Error().Err(err).Str("field", field.Name.Value).Msg("list query resolution failed")
			data[key] = nil
			gqlErrors = append(gqlErrors, client.GraphQLError{
				Message: err.Error(),
				Path:    []any{key},
			})
			continue
		}
		data[key] = value
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}

	return &client.Response{Data: raw, Errors: gqlErrors}, nil
}

// ServeHTTP accepts JSON POST requests shaped like client.Request.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req client.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, &client.Response{
			Errors: []client.GraphQLError{{Message: "invalid request body: " + err.Error()}},
		})
		return
	}

	resp, err := s.Do(r.Context(), &req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, &client.Response{
			Errors: []client.GraphQLError{{Message: err.Error()}},
		})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, resp *client.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) resolveField(
	ctx context.Context,
	field *ast.Field,
	vars map[string]any,
	fragments map[string]*ast.FragmentDefinition,
) (any, error) {
	s.mu.RLock()
	r, ok := s.resolvers[field.Name.Value]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownResolver, field.Name.Value)
	}

	args := make(map[string]any, len(field.Arguments))
	for _, arg := range field.Arguments {
		v, err := valueFromAST(arg.Value, vars)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", arg.Name.Value, err)
		}
		args[arg.Name.Value] = v
	}

	var input MultiInput
	if raw, ok := args["input"].(map[string]any); ok {
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &input,
			WeaklyTypedInput: true,
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(raw); err != nil {
			return nil, fmt.Errorf("decode input: %w", err)
		}
	}

	out, err := r.ResolveMulti(ctx, input, args)
	if err != nil {
		return nil, err
	}

	results := make([]any, 0, len(out.Results))
	for _, item := range out.Results {
		obj, err := toObject(item)
		if err != nil {
			return nil, err
		}
		if _, ok := obj[typenameField]; !ok {
			obj[typenameField] = r.TypeName()
		}
		results = append(results, obj)
	}

	root := map[string]any{
		"results":     results,
		"totalCount":  out.TotalCount,
		typenameField: query.OutputTypeName(r.TypeName()),
	}

	if field.SelectionSet == nil {
		return root, nil
	}
	return selectFields(field.SelectionSet, root, fragments)
}

func splitDocument(doc *ast.Document, operationName string) (*ast.OperationDefinition, map[string]*ast.FragmentDefinition, error) {
	var ops []*ast.OperationDefinition
	fragments := make(map[string]*ast.FragmentDefinition)

	for _, def := range doc.Definitions {
		switch d := def.(type) {
		case *ast.OperationDefinition:
			ops = append(ops, d)
		case *ast.FragmentDefinition:
			fragments[d.Name.Value] = d
		}
	}

	if operationName == "" {
		if len(ops) != 1 {
			return nil, nil, fmt.Errorf("document has %d operations, an operation name is required", len(ops))
		}
		return ops[0], fragments, nil
	}

	op, ok := lo.Find(ops, func(o *ast.OperationDefinition) bool {
		return o.Name != nil && o.Name.Value == operationName
	})
	if !ok {
		return nil, nil, fmt.Errorf("unknown operation %q", operationName)
	}
	return op, fragments, nil
}

// wireVariables gives in-process callers the same value shapes an HTTP
// request would have: JSON objects, arrays, float64 numbers.
func wireVariables(vars map[string]any) (map[string]any, error) {
	if len(vars) == 0 {
		return map[string]any{}, nil
	}

	raw, err := json.Marshal(vars)
	if err != nil {
		return nil, fmt.Errorf("encode variables: %w", err)
	}

	out := make(map[string]any)
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode variables: %w", err)
	}
	return out, nil
}

func valueFromAST(v ast.Value, vars map[string]any) (any, error) {
	switch val := v.(type) {
	case *ast.Variable:
		return vars[val.Name.Value], nil
	case *ast.IntValue:
		return strconv.ParseInt(val.Value, 10, 64)
	case *ast.FloatValue:
		return strconv.ParseFloat(val.Value, 64)
	case *ast.StringValue:
		return val.Value, nil
	case *ast.BooleanValue:
		return val.Value, nil
	case *ast.EnumValue:
		return val.Value, nil
	case *ast.ListValue:
		out := make([]any, 0, len(val.Values))
		for _, item := range val.Values {
			iv, err := valueFromAST(item, vars)
			if err != nil {
				return nil, err
			}
			out = append(out, iv)
		}
		return out, nil
	case *ast.ObjectValue:
		out := make(map[string]any, len(val.Fields))
		for _, f := range val.Fields {
			fv, err := valueFromAST(f.Value, vars)
			if err != nil {
				return nil, err
			}
			out[f.Name.Value] = fv
		}
		return out, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported value kind %s", v.GetKind())
	}
}

// toObject turns an item into its JSON object form.
func toObject(item any) (map[string]any, error) {
	if m, ok := item.(map[string]any); ok {
		return lo.Assign(m), nil
	}

	raw, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("encode item: %w", err)
	}

	out := make(map[string]any)
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("item is not an object: %w", err)
	}
	return out, nil
}

// selectFields keeps the selected fields of obj, following fragment
// spreads and inline fragments. Missing fields are null.
func selectFields(set *ast.SelectionSet, obj map[string]any, fragments map[string]*ast.FragmentDefinition) (map[string]any, error) {
	out := make(map[string]any)
	typeName, _ := obj[typenameField].(string)

	for _, sel := range set.Selections {
		switch s := sel.(type) {
		case *ast.Field:
			key := responseKey(s)
			value, err := selectValue(s, obj[s.Name.Value], fragments)
			if err != nil {
				return nil, err
			}
			out[key] = value

		case *ast.FragmentSpread:
			def, ok := fragments[s.Name.Value]
			if !ok {
				return nil, fmt.Errorf("unknown fragment %q", s.Name.Value)
			}
			if !typeMatches(def.TypeCondition, typeName) {
				continue
			}
			sub, err := selectFields(def.SelectionSet, obj, fragments)
			if err != nil {
				return nil, err
			}
			out = lo.Assign(out, sub)

		case *ast.InlineFragment:
			if !typeMatches(s.TypeCondition, typeName) {
				continue
			}
			sub, err := selectFields(s.SelectionSet, obj, fragments)
			if err != nil {
				return nil, err
			}
			out = lo.Assign(out, sub)
		}
	}

	return out, nil
}

func selectValue(field *ast.Field, value any, fragments map[string]*ast.FragmentDefinition) (any, error) {
	if field.SelectionSet == nil || value == nil {
		return value, nil
	}

	switch v := value.(type) {
	case map[string]any:
		return selectFields(field.SelectionSet, v, fragments)
	case []any:
		out := make([]any, 0, len(v))
		for _, item := range v {
			sub, err := selectValue(field, item, fragments)
			if err != nil {
				return nil, err
			}
			out = append(out, sub)
		}
		return out, nil
	default:
		return value, nil
	}
}

func typeMatches(cond *ast.Named, typeName string) bool {
	return cond == nil || typeName == "" || cond.Name.Value == typeName
}

func responseKey(field *ast.Field) string {
	if field.Alias != nil && field.Alias.Value != "" {
		return field.Alias.Value
	}
	return field.Name.Value
}
