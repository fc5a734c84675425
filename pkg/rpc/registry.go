package rpc

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/hetcore/pkg/domain"
)

// Handler implements a remote function. It reads its In and InOut params,
// fills its Out and InOut params and returns the function's own status.
type Handler func(ctx context.Context, params []Param) domain.Status

// Function is one registered entry point.
type Function struct {
	domain.EntryPoint
	Signature Signature
	Handler   Handler
}

// Registry maps entry point names to indexes and handlers. Indexes are
// handed out in registration order.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]*Function
	byIndex []*Function
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]*Function),
	}
}

// Register adds a function and returns its index. Registering a name twice
// replaces the handler and keeps the index.
func (r *Registry) Register(name string, load uint32, sig Signature, fn Handler) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.byName[name]; ok {
		f.Load = load
		f.Signature = sig
		f.Handler = fn
		return f.Index
	}
	f := &Function{
		EntryPoint: domain.EntryPoint{Name: name, Index: len(r.byIndex), Load: load},
		Signature:  sig,
		Handler:    fn,
	}
	r.byName[name] = f
	r.byIndex = append(r.byIndex, f)
	return f.Index
}

// Lookup returns the function registered at index.
func (r *Registry) Lookup(index int) (*Function, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if index < 0 || index >= len(r.byIndex) {
		return nil, fmt.Errorf("%w: index %d", domain.ErrUnknownFunc, index)
	}
	return r.byIndex[index], nil
}

// Resolve returns the index registered for name.
func (r *Registry) Resolve(name string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.byName[name]
	if !ok {
		return -1, fmt.Errorf("%w: %s", domain.ErrUnknownFunc, name)
	}
	return f.Index, nil
}

// Functions lists the registered entry points by index.
func (r *Registry) Functions() []domain.EntryPoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.EntryPoint, len(r.byIndex))
	for i, f := range r.byIndex {
		out[i] = f.EntryPoint
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}
