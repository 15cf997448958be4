package tool

import (
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	ai "github.com/spetersoncode/loom"
)

// registeredTool combines a tool with its compiled input schema.
type registeredTool struct {
	tool   Tool
	schema *jsonschema.Resolved
}

// Registry holds the tools a loop may call. It is safe for concurrent use;
// loops only read from it.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]registeredTool
	order []string
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]registeredTool),
	}
}

// Register adds a tool. It fails for a duplicate name or an input schema
// that cannot be compiled.
func (r *Registry) Register(t Tool) error {
	def := t.Definition()
	if def.Name == "" {
		return fmt.Errorf("tool: name is required")
	}
	schema, err := compileSchema(def.InputSchema)
	if err != nil {
		return fmt.Errorf("tool: %s: invalid input schema: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		return &ErrAlreadyRegistered{Name: def.Name}
	}
	r.tools[def.Name] = registeredTool{tool: t, schema: schema}
	r.order = append(r.order, def.Name)
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(t Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Add registers tools and returns the registry for chaining.
// Panics if a tool cannot be registered.
//
// Example:
//
//	registry := tool.NewRegistry().Add(
//	    tool.Func("weather", "Get weather", weatherFn),
//	    tool.Func("search", "Search web", searchFn),
//	)
func (r *Registry) Add(tools ...Tool) *Registry {
	for _, t := range tools {
		r.MustRegister(t)
	}
	return r
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rt, ok := r.tools[name]
	return rt.tool, ok
}

func (r *Registry) lookup(name string) (registeredTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rt, ok := r.tools[name]
	return rt, ok
}

// Definitions returns the definitions of all tools in registration order.
// This is what gets passed to the model.
func (r *Registry) Definitions() []ai.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]ai.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].tool.Definition())
	}
	return defs
}

// Names returns the names of all tools in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
