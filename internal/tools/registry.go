// Package tools implements the order-management and code-inspection tools the
// model can invoke, plus the registry the chat orchestrator dispatches
// through.
//
// Every tool implements Handler. Handlers validate their own arguments and
// report failures as error-shaped Results rather than Go errors, so a bad
// call never aborts the surrounding conversation.
package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/kibocha/orderdesk/internal/llm"
)

// ErrUnknownTool indicates a tool name with no registered handler.
var ErrUnknownTool = errors.New("unknown tool")

// Handler is one callable tool.
type Handler interface {
	// Name returns the tool identifier the model calls it by.
	Name() string

	// Description tells the model what the tool does and when to use it.
	Description() string

	// Parameters returns the JSON schema of the tool's arguments.
	Parameters() *jsonschema.Schema

	// Handle executes the tool. Failures are returned as error-shaped
	// Results; Handle never returns a Go error to the dispatcher.
	Handle(ctx context.Context, args map[string]any) Result
}

// Registry maps tool names to handlers. It is built once at startup and
// immutable afterwards; no dynamic registration at runtime.
type Registry struct {
	handlers map[string]Handler
	order    []string
}

// NewRegistry builds a registry from handlers. Duplicate names are a
// programming error and rejected.
func NewRegistry(handlers ...Handler) (*Registry, error) {
	r := &Registry{handlers: make(map[string]Handler, len(handlers))}
	for _, h := range handlers {
		name := h.Name()
		if _, exists := r.handlers[name]; exists {
			return nil, fmt.Errorf("duplicate tool name %q", name)
		}
		r.handlers[name] = h
		r.order = append(r.order, name)
	}
	return r, nil
}

// Resolve returns the handler registered under name.
func (r *Registry) Resolve(name string) (Handler, error) {
	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return h, nil
}

// Definitions returns the tool schema advertised to the model, in
// registration order.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		h := r.handlers[name]
		defs = append(defs, llm.ToolDefinition{
			Name:        h.Name(),
			Description: h.Description(),
			Parameters:  h.Parameters(),
		})
	}
	return defs
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
