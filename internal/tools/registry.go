package tools

import (
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// Registry is the static set of tools available to the model. It is
// built once at startup and never mutated afterwards, so lookups need
// no locking.
type Registry struct {
	tools map[string]*Tool
	order []string
}

// NewRegistry builds a registry from tools, failing fast on a nil tool,
// an empty name, or a duplicate name.
func NewRegistry(tools ...*Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]*Tool, len(tools))}
	for _, t := range tools {
		if t == nil {
			return nil, fmt.Errorf("registry: nil tool")
		}
		if t.name == "" {
			return nil, fmt.Errorf("registry: tool with empty name")
		}
		if _, exists := r.tools[t.name]; exists {
			return nil, fmt.Errorf("registry: duplicate tool %q", t.name)
		}
		r.tools[t.name] = t
		r.order = append(r.order, t.name)
	}
	return r, nil
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.order) }

// Define registers every tool with Genkit and returns the references
// to attach to generate requests.
func (r *Registry) Define(g *genkit.Genkit) []ai.ToolRef {
	refs := make([]ai.ToolRef, 0, len(r.order))
	for _, name := range r.order {
		refs = append(refs, r.tools[name].Define(g))
	}
	return refs
}
