package pipeline

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed definitions/*.yaml
var builtinFS embed.FS

// Parse decodes, normalizes and validates a YAML pipeline definition.
func Parse(data []byte) (*Pipeline, error) {
	var p Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline definition: %w", err)
	}
	p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Load reads a pipeline definition from a file.
func Load(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline definition %s: %w", path, err)
	}
	return Parse(data)
}

// Registry holds the known pipeline definitions by name.
type Registry struct {
	pipelines map[string]*Pipeline
}

// NewRegistry builds a registry from the embedded builtin definitions,
// plus any *.yaml definitions found in dir (may be empty). Definitions
// in dir override builtins with the same name.
func NewRegistry(dir string) (*Registry, error) {
	r := &Registry{pipelines: make(map[string]*Pipeline)}

	entries, err := builtinFS.ReadDir("definitions")
	if err != nil {
		return nil, fmt.Errorf("failed to read builtin definitions: %w", err)
	}
	for _, e := range entries {
		data, err := builtinFS.ReadFile("definitions/" + e.Name())
		if err != nil {
			return nil, err
		}
		p, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("builtin definition %s: %w", e.Name(), err)
		}
		r.pipelines[p.Name] = p
	}

	if dir != "" {
		matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
		if err != nil {
			return nil, err
		}
		for _, path := range matches {
			p, err := Load(path)
			if err != nil {
				return nil, err
			}
			r.pipelines[p.Name] = p
		}
	}

	return r, nil
}

// Get returns the pipeline with the given name.
func (r *Registry) Get(name string) (*Pipeline, error) {
	p, ok := r.pipelines[name]
	if !ok {
		return nil, fmt.Errorf("unknown pipeline %q", name)
	}
	return p, nil
}

// List returns all registered pipelines sorted by name.
func (r *Registry) List() []*Pipeline {
	names := make([]string, 0, len(r.pipelines))
	for name := range r.pipelines {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*Pipeline, 0, len(names))
	for _, name := range names {
		out = append(out, r.pipelines[name])
	}
	return out
}

// Names returns the registered pipeline names, sorted.
func (r *Registry) Names() string {
	names := make([]string, 0, len(r.pipelines))
	for name := range r.pipelines {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
