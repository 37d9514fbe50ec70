package automation

import (
	"context"
	"sort"
	"sync"

	"github.com/nerrad567/deskpilot/internal/result"
)

// Logger is satisfied by *logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// StepHandler executes one step type.
type StepHandler interface {
	Handle(ctx context.Context, r *Run, step ActionStep) result.Result
}

// HandlerFunc adapts a function to StepHandler.
type HandlerFunc func(ctx context.Context, r *Run, step ActionStep) result.Result

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, r *Run, step ActionStep) result.Result {
	return f(ctx, r, step)
}

// Registry maps step type tags to handlers.
//
// All public methods are thread-safe.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]StepHandler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]StepHandler)}
}

// Register adds or replaces the handler for typ.
func (r *Registry) Register(typ string, h StepHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[typ] = h
}

// Lookup returns the handler for typ.
func (r *Registry) Lookup(typ string) (StepHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[typ]
	return h, ok
}

// Types returns the registered type tags, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
