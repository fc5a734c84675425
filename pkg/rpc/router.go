package rpc

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/hetcore/pkg/domain"
	"github.com/aretw0/hetcore/pkg/ports"
)

// Router is a ports.Transport that picks a transport per core, so simulated
// cores and cores hosted by another engine can be driven by one Client.
type Router struct {
	mu       sync.RWMutex
	routes   map[domain.Core]ports.Transport
	fallback ports.Transport
}

// NewRouter creates a router sending cores without a route to fallback,
// which may be nil.
func NewRouter(fallback ports.Transport) *Router {
	return &Router{routes: make(map[domain.Core]ports.Transport), fallback: fallback}
}

// Route sends every call for core through t.
func (r *Router) Route(core domain.Core, t ports.Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[core] = t
}

func (r *Router) transport(core domain.Core) (ports.Transport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.routes[core]; ok {
		return t, nil
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("%w: no route to %s", domain.ErrTransport, core)
}

// Invoke forwards the call to core's transport.
func (r *Router) Invoke(ctx context.Context, core domain.Core, fn int, msg []byte) (domain.Status, []byte, error) {
	t, err := r.transport(core)
	if err != nil {
		return domain.StatusCoreUnavailable, nil, err
	}
	return t.Invoke(ctx, core, fn, msg)
}

// Functions asks core's transport for the entry points.
func (r *Router) Functions(ctx context.Context, core domain.Core) ([]domain.EntryPoint, error) {
	t, err := r.transport(core)
	if err != nil {
		return nil, err
	}
	return t.Functions(ctx, core)
}
