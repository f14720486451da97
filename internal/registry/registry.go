package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/yourname/llmgate/internal/assert"
)

// ErrNotFound marks a tools/call naming a tool that was never registered.
// Distinct from a handler failure: lookup errors map to method-not-found on
// the wire, handler errors to internal/provider errors.
var ErrNotFound = errors.New("tool not found")

// ErrInvalidParams marks a handler rejection of the caller-supplied
// arguments. Handlers wrap it so the dispatch layer can answer with the
// invalid-params code instead of a generic internal error.
var ErrInvalidParams = errors.New("invalid params")

// Property describes one parameter in a tool's input schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Schema is the JSON-schema-like shape of a tool's arguments object.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required"`
}

// Definition is the immutable, wire-visible description of a tool.
type Definition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema Schema `json:"inputSchema"`
}

// Handler executes one tool invocation. The returned string is the text
// content of the tools/call result.
type Handler func(ctx context.Context, args map[string]interface{}) (string, error)

type entry struct {
	def     Definition
	handler Handler
}

// Registry is a static name-to-handler table. All registration happens at
// startup before the serve loop starts, so lookups need no locking.
type Registry struct {
	order   []string
	entries map[string]entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a tool. Duplicate names and nil handlers are configuration
// bugs and rejected outright.
func (r *Registry) Register(def Definition, h Handler) error {
	if err := assert.Check(def.Name != "", "tool name must not be empty"); err != nil {
		return err
	}
	if err := assert.NotNil(h, "handler"); err != nil {
		return err
	}
	if _, dup := r.entries[def.Name]; dup {
		return fmt.Errorf("tool %q already registered", def.Name)
	}
	r.entries[def.Name] = entry{def: def, handler: h}
	r.order = append(r.order, def.Name)
	return nil
}

// Get returns the definition and handler for name, or ErrNotFound.
func (r *Registry) Get(name string) (Definition, Handler, error) {
	e, ok := r.entries[name]
	if !ok {
		return Definition{}, nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return e.def, e.handler, nil
}

// List returns all definitions in registration order. The slice is a copy;
// the definitions themselves are immutable.
func (r *Registry) List() []Definition {
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.entries[name].def)
	}
	return defs
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.order)
}
