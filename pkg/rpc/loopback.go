package rpc

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/hetcore/pkg/domain"
)

// Loopback is an in-process ports.Transport that hands requests straight to
// each core's Server.
type Loopback struct {
	mu      sync.RWMutex
	servers map[domain.Core]*Server
}

// NewLoopback creates a transport serving the given servers.
func NewLoopback(servers ...*Server) *Loopback {
	l := &Loopback{servers: make(map[domain.Core]*Server)}
	for _, s := range servers {
		l.servers[s.Core()] = s
	}
	return l
}

// Attach adds or replaces the server for its core.
func (l *Loopback) Attach(s *Server) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.servers[s.Core()] = s
}

// Detach makes core unreachable.
func (l *Loopback) Detach(core domain.Core) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.servers, core)
}

func (l *Loopback) server(core domain.Core) (*Server, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.servers[core]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not reachable", domain.ErrTransport, core)
	}
	return s, nil
}

// Invoke runs the call on the core's server. A call still running when ctx
// ends completes in the background and its result is dropped.
func (l *Loopback) Invoke(ctx context.Context, core domain.Core, fn int, msg []byte) (domain.Status, []byte, error) {
	s, err := l.server(core)
	if err != nil {
		return domain.StatusCoreUnavailable, nil, err
	}
	type result struct {
		status domain.Status
		resp   []byte
		err    error
	}
	done := make(chan result, 1)
	go func() {
		status, resp, err := s.Serve(context.WithoutCancel(ctx), fn, msg)
		done <- result{status, resp, err}
	}()
	select {
	case r := <-done:
		return r.status, r.resp, r.err
	case <-ctx.Done():
		return domain.StatusTimeout, nil, ctx.Err()
	}
}

// Functions lists core's entry points.
func (l *Loopback) Functions(ctx context.Context, core domain.Core) ([]domain.EntryPoint, error) {
	s, err := l.server(core)
	if err != nil {
		return nil, err
	}
	return s.Registry().Functions(), nil
}

// Serve exposes a core's server for transports that relay requests, such as
// the HTTP adapter.
func (l *Loopback) Serve(ctx context.Context, core domain.Core, fn int, msg []byte) (domain.Status, []byte, error) {
	s, err := l.server(core)
	if err != nil {
		return domain.StatusCoreUnavailable, nil, err
	}
	return s.Serve(ctx, fn, msg)
}
