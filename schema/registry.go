// Package schema holds the metadata list queries are built from: which
// GraphQL type and resolver back each collection, and the text of every
// named fragment.
//
// The registry does not check that a fragment fits a collection. A
// mismatch surfaces as a server-side GraphQL error when the query runs.
package schema

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"

	"github.com/nrfta/multiquery/query"
)

var (
	// ErrUnknownCollection is returned for collection names that were never registered.
	ErrUnknownCollection = errors.New("schema: unknown collection")

	// ErrUnknownFragment is returned for fragment names that were never registered.
	ErrUnknownFragment = errors.New("schema: unknown fragment")
)

// Collection maps a logical collection to its GraphQL names.
type Collection struct {
	Name              string
	TypeName          string
	MultiResolverName string
}

// Fragment is a registered named fragment.
type Fragment struct {
	Name     string
	TypeName string
	Text     string

	// Spreads lists the fragments this fragment spreads, in order of appearance.
	Spreads []string
}

// Registry is a concurrency-safe store of collections and fragments.
type Registry struct {
	mu          sync.RWMutex
	collections map[string]Collection
	fragments   map[string]*Fragment
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		collections: make(map[string]Collection),
		fragments:   make(map[string]*Fragment),
	}
}

// RegisterCollection registers a collection. An empty resolverName defaults
// to query.ResolverName(typeName).
func (r *Registry) RegisterCollection(name, typeName, resolverName string) error {
	if name == "" || typeName == "" {
		return fmt.Errorf("schema: collection name and type name are required")
	}

	if resolverName == "" {
		resolverName = query.ResolverName(typeName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.collections[name] = Collection{
		Name:              name,
		TypeName:          typeName,
		MultiResolverName: resolverName,
	}
	return nil
}

// RegisterFragment parses text and registers the single fragment it defines.
func (r *Registry) RegisterFragment(text string) (*Fragment, error) {
	doc, err := parser.Parse(parser.ParseParams{Source: text})
	if err != nil {
		return nil, fmt.Errorf("schema: parse fragment: %w", err)
	}

	if len(doc.Definitions) != 1 {
		return nil, fmt.Errorf("schema: fragment text must contain exactly one definition, got %d", len(doc.Definitions))
	}

	def, ok := doc.Definitions[0].(*ast.FragmentDefinition)
	if !ok || def.Name == nil {
		return nil, fmt.Errorf("schema: fragment text must define a named fragment")
	}

	frag := &Fragment{
		Name: def.Name.Value,
		Text: strings.TrimSpace(text),
	}
	if def.TypeCondition != nil && def.TypeCondition.Name != nil {
		frag.TypeName = def.TypeCondition.Name.Value
	}
	collectSpreads(def.SelectionSet, &frag.Spreads)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.fragments[frag.Name] = frag
	return frag, nil
}

// Collection looks up a collection by name.
func (r *Registry) Collection(name string) (Collection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.collections[name]
	if !ok {
		return Collection{}, fmt.Errorf("%w: %s", ErrUnknownCollection, name)
	}
	return c, nil
}

// Fragment looks up a fragment by name.
func (r *Registry) Fragment(name string) (*Fragment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.fragments[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFragment, name)
	}
	return f, nil
}

// FragmentText returns the named fragment followed by every fragment it
// transitively spreads, each exactly once.
func (r *Registry) FragmentText(name string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var parts []string
	seen := make(map[string]bool)

	var visit func(string) error
	visit = func(n string) error {
		if seen[n] {
			return nil
		}
		seen[n] = true

		f, ok := r.fragments[n]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownFragment, n)
		}
		parts = append(parts, f.Text)

		for _, dep := range f.Spreads {
			if err := visit(dep); err != nil {
				return err
			}
		}
		return nil
	}

	if err := visit(name); err != nil {
		return "", err
	}
	return strings.Join(parts, "\n\n"), nil
}

// Collections returns all registered collections.
func (r *Registry) Collections() []Collection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Collection, 0, len(r.collections))
	for _, c := range r.collections {
		out = append(out, c)
	}
	return out
}

func collectSpreads(set *ast.SelectionSet, out *[]string) {
	if set == nil {
		return
	}

	for _, sel := range set.Selections {
		switch s := sel.(type) {
		case *ast.FragmentSpread:
			if s.Name != nil {
				*out = append(*out, s.Name.Value)
			}
		case *ast.Field:
			collectSpreads(s.SelectionSet, out)
		case *ast.InlineFragment:
			collectSpreads(s.SelectionSet, out)
		}
	}
}
