package auction

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/stigmergy/internal/entity"
)

// Request is what a winning system receives.
type Request struct {
	RoundID string
	Seq     int64
	Entity  entity.Entity
	System  string
	Bid     float64
	View    *View
}

// Invoker executes a winning system. Implementations should return when
// ctx is done; the engine abandons the invocation at its deadline either
// way, and the View rejects later calls.
type Invoker interface {
	Invoke(ctx context.Context, req Request) error
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, req Request) error

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, req Request) error {
	return f(ctx, req)
}

// ErrNoHandler is returned (wrapped) by Registry.Invoke for a system with
// no handler and no fallback.
var ErrNoHandler = errors.New("no handler registered")

// Registry routes invocations to per-system handlers, with an optional
// fallback for systems that have none. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Invoker
	fallback Invoker
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Invoker{}}
}

// Register sets the handler for a system, replacing any previous one.
func (r *Registry) Register(system string, inv Invoker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[system] = inv
}

// SetFallback sets the handler used for systems without their own.
func (r *Registry) SetFallback(inv Invoker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = inv
}

// Lookup returns the handler for system.
func (r *Registry) Lookup(system string) (Invoker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if inv, ok := r.handlers[system]; ok {
		return inv, true
	}
	return r.fallback, r.fallback != nil
}

// Systems lists the systems with a dedicated handler, sorted.
func (r *Registry) Systems() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Invoke implements Invoker by dispatching on req.System.
func (r *Registry) Invoke(ctx context.Context, req Request) error {
	inv, ok := r.Lookup(req.System)
	if !ok {
		return fmt.Errorf("system %s: %w", req.System, ErrNoHandler)
	}
	return inv.Invoke(ctx, req)
}
