// Package query builds list ("multi") query documents from collection and
// fragment metadata.
//
// Call sites name a collection and a fragment; Build renders and compiles
// the operation so no call site has to hand-write list query text:
//
//	query multiPostQuery($input: MultiPostInput, $postId: String) {
//	  posts(input: $input, postId: $postId) {
//	    results {
//	      ...PostsList
//	    }
//	    totalCount
//	    __typename
//	  }
//	}
//	fragment PostsList on Post { ... }
package query

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/aarondl/strmangle"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
)

var (
	// ErrMissingTypeName is returned when Spec.TypeName is empty.
	ErrMissingTypeName = errors.New("query: type name is required")

	// ErrMissingFragment is returned when the fragment name or text is empty.
	ErrMissingFragment = errors.New("query: fragment name and text are required")
)

// Spec describes the list query to build.
type Spec struct {
	// CollectionName is the logical collection ("Posts"). Informational only.
	CollectionName string

	// TypeName is the GraphQL type of the collection items ("Post").
	TypeName string

	// ResolverName overrides the root field name. Defaults to ResolverName(TypeName).
	ResolverName string

	// FragmentName is the fragment spread into "results".
	FragmentName string

	// Fragment is the fragment text, including every fragment it spreads.
	Fragment string

	// ExtraVariables declares resolver arguments beyond the input object,
	// as name -> GraphQL type ("String", "[String]", "Int!").
	ExtraVariables map[string]string
}

// Document is a compiled list query.
type Document struct {
	Text           string
	OperationName  string
	ResolverName   string
	TypeName       string
	CollectionName string
	FragmentName   string

	// ExtraVariables lists the declared extra variable names, sorted.
	ExtraVariables []string

	AST *ast.Document
}

// CompileError is returned when the rendered document does not parse or
// does not define the requested fragment.
type CompileError struct {
	OperationName string
	Err           error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("query: compile %s: %v", e.OperationName, e.Err)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// Build renders and compiles the list query for spec.
func Build(spec Spec) (*Document, error) {
	if spec.TypeName == "" {
		return nil, ErrMissingTypeName
	}
	if spec.FragmentName == "" || strings.TrimSpace(spec.Fragment) == "" {
		return nil, ErrMissingFragment
	}

	resolverName := spec.ResolverName
	if resolverName == "" {
		resolverName = ResolverName(spec.TypeName)
	}

	extra := slices.Sorted(maps.Keys(spec.ExtraVariables))
	operationName := OperationName(spec.TypeName)
	text := render(spec, operationName, resolverName, extra)

	doc, err := parser.Parse(parser.ParseParams{Source: text})
	if err != nil {
		return nil, &CompileError{OperationName: operationName, Err: err}
	}

	if !definesFragment(doc, spec.FragmentName) {
		return nil, &CompileError{
			OperationName: operationName,
			Err:           fmt.Errorf("fragment %q is not defined", spec.FragmentName),
		}
	}

	return &Document{
		Text:           text,
		OperationName:  operationName,
		ResolverName:   resolverName,
		TypeName:       spec.TypeName,
		CollectionName: spec.CollectionName,
		FragmentName:   spec.FragmentName,
		ExtraVariables: extra,
		AST:            doc,
	}, nil
}

func render(spec Spec, operationName, resolverName string, extra []string) string {
	var b strings.Builder

	params := []string{"$input: " + InputTypeName(spec.TypeName)}
	args := []string{"input: $input"}
	for _, name := range extra {
		params = append(params, fmt.Sprintf("$%s: %s", name, spec.ExtraVariables[name]))
		args = append(args, fmt.Sprintf("%s: $%s", name, name))
	}

	fmt.Fprintf(&b, "query %s(%s) {\n", operationName, strings.Join(params, ", "))
	fmt.Fprintf(&b, "  %s(%s) {\n", resolverName, strings.Join(args, ", "))
	b.WriteString("    results {\n")
	fmt.Fprintf(&b, "      ...%s\n", spec.FragmentName)
	b.WriteString("    }\n")
	b.WriteString("    totalCount\n")
	b.WriteString("    __typename\n")
	b.WriteString("  }\n")
	b.WriteString("}\n")
	b.WriteString(strings.TrimSpace(spec.Fragment))
	b.WriteString("\n")

	return b.String()
}

func definesFragment(doc *ast.Document, name string) bool {
	for _, def := range doc.Definitions {
		if frag, ok := def.(*ast.FragmentDefinition); ok && frag.Name != nil && frag.Name.Value == name {
			return true
		}
	}
	return false
}

// OperationName returns the operation name for a type: "multi<Type>Query".
func OperationName(typeName string) string {
	return "multi" + typeName + "Query"
}

// InputTypeName returns the input object type name: "Multi<Type>Input".
func InputTypeName(typeName string) string {
	return "Multi" + typeName + "Input"
}

// OutputTypeName returns the output object type name: "Multi<Type>Output".
func OutputTypeName(typeName string) string {
	return "Multi" + typeName + "Output"
}

// ResolverName returns the conventional root field for a type:
// the camelCased plural ("Post" -> "posts", "TagRel" -> "tagRels").
func ResolverName(typeName string) string {
	return lowerFirst(strmangle.Plural(typeName))
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}
