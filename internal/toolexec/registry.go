// Package toolexec maps tool names to handlers and provides the builtin
// exec and fetch tools.
package toolexec

import (
	"context"
	"log/slog"
	"sort"

	"github.com/me/toolflow/internal/scheduler"
	"github.com/me/toolflow/pkg/model"
)

// Registry maps tool names to their handlers.
// Registration happens at startup before concurrent access, so no mutex is needed.
type Registry struct {
	handlers map[string]scheduler.Handler
	logger   *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		handlers: make(map[string]scheduler.Handler),
		logger:   logger.With("component", "tool-registry"),
	}
}

// NewDefaultRegistry creates a Registry with the builtin tools registered.
func NewDefaultRegistry(logger *slog.Logger) *Registry {
	r := NewRegistry(logger)
	r.Register("exec", ExecTool(logger))
	r.Register("fetch", FetchTool(logger, nil))
	return r
}

// Register adds a handler under the given tool name, replacing any
// previous registration.
func (r *Registry) Register(name string, h scheduler.Handler) {
	r.handlers[name] = h
	r.logger.Info("tool registered", "tool", name)
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether a handler is registered for the tool name.
func (r *Registry) Has(name string) bool {
	_, ok := r.handlers[name]
	return ok
}

// Dispatch routes a call to the handler registered for its tool name. An
// unknown tool name fails the call without retries.
func (r *Registry) Dispatch(ctx context.Context, call *model.ToolCall) (any, error) {
	h, ok := r.handlers[call.Name]
	if !ok {
		return nil, &model.UnknownToolError{Tool: call.Name}
	}
	return h(ctx, call)
}
