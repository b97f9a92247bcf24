package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/nrfta/multiquery/query"
	"github.com/nrfta/multiquery/resolver"
)

// DataFile is the YAML layout of a data file served by the serve command:
//
//	collections:
//	  - typeName: Post
//	    views:
//	      - name: recent
//	        orderBy: [{column: createdAt, desc: true}]
//	      - name: userPosts
//	        orderBy: [{column: createdAt, desc: true}]
//	        filters: {userId: userId}
//	    items:
//	      - {_id: "1", title: Hello, userId: u1, createdAt: "2024-01-01"}
type DataFile struct {
	Collections []DataCollection `yaml:"collections"`
}

// DataCollection is one collection of a data file.
type DataCollection struct {
	TypeName     string           `yaml:"typeName"`
	ResolverName string           `yaml:"resolverName,omitempty"`
	MaxLimit     int              `yaml:"maxLimit,omitempty"`
	Views        []DataView       `yaml:"views"`
	Items        []map[string]any `yaml:"items"`
}

// DataView is a view of a data collection. Filters maps term keys to item
// fields.
type DataView struct {
	Name    string            `yaml:"name"`
	OrderBy []DataOrderBy     `yaml:"orderBy"`
	Filters map[string]string `yaml:"filters,omitempty"`
}

// DataOrderBy is a sort directive of a data view.
type DataOrderBy struct {
	Column string `yaml:"column"`
	Desc   bool   `yaml:"desc,omitempty"`
}

// LoadData reads a data file and registers its collections on a new server.
func LoadData(path string, logger zerolog.Logger) (*resolver.Server, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read data file: %w", err)
	}

	var f DataFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode data file: %w", err)
	}

	server := resolver.NewServer(resolver.WithServerLogger(logger))

	for i, dc := range f.Collections {
		if dc.TypeName == "" {
			return nil, fmt.Errorf("collection %d: typeName is required", i)
		}

		coll := resolver.NewCollection[map[string]any](
			dc.TypeName,
			resolver.NewSliceFetcher(itemField, dc.Items...),
			resolver.WithLimits(resolver.NewLimitConfig().WithMaxSize(dc.MaxLimit)),
			resolver.WithCollectionLogger(logger),
		)

		for _, dv := range dc.Views {
			view := resolver.View{Name: dv.Name}
			for _, o := range dv.OrderBy {
				view.OrderBy = append(view.OrderBy, resolver.OrderBy{Column: o.Column, Desc: o.Desc})
			}
			if len(dv.Filters) > 0 {
				view.Filters = resolver.ExtraFilter(dv.Filters)
			}
			coll.View(view)
		}

		name := dc.ResolverName
		if name == "" {
			name = query.ResolverName(dc.TypeName)
		}
		server.Register(name, coll)

		logger.Debug().
			Str("type", dc.TypeName).
			Str("resolver", name).
			Int("items", len(dc.Items)).
			Msg("registered collection")
	}

	return server, nil
}

func itemField(item map[string]any, column string) (any, bool) {
	v, ok := item[column]
	return v, ok
}
