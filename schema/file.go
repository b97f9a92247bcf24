package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the YAML layout of a schema file:
//
//	collections:
//	  - name: Posts
//	    typeName: Post
//	fragments:
//	  - |
//	    fragment PostsList on Post {
//	      _id
//	      title
//	    }
type File struct {
	Collections []CollectionEntry `yaml:"collections"`
	Fragments   []string          `yaml:"fragments"`
}

// CollectionEntry is one collection of a schema file.
type CollectionEntry struct {
	Name              string `yaml:"name"`
	TypeName          string `yaml:"typeName"`
	MultiResolverName string `yaml:"multiResolverName,omitempty"`
}

// Load reads a YAML schema file into a new registry.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML schema data into a new registry.
func Parse(data []byte) (*Registry, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("schema: decode yaml: %w", err)
	}

	r := NewRegistry()
	for i, c := range f.Collections {
		if err := r.RegisterCollection(c.Name, c.TypeName, c.MultiResolverName); err != nil {
			return nil, fmt.Errorf("collection %d: %w", i, err)
		}
	}

	for i, text := range f.Fragments {
		if _, err := r.RegisterFragment(text); err != nil {
			return nil, fmt.Errorf("fragment %d: %w", i, err)
		}
	}

	return r, nil
}
