package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/hetcore/internal/logging"
	"github.com/aretw0/hetcore/pkg/domain"
)

// Server is the receiving end of a core: it decodes requests against the
// registered signatures and runs one call at a time.
type Server struct {
	core     domain.Core
	registry *Registry
	mu       sync.Mutex
	logger   *slog.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger configures a logger for the Server.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a server for core backed by registry.
func NewServer(core domain.Core, registry *Registry, opts ...ServerOption) *Server {
	s := &Server{core: core, registry: registry, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Core returns the core the server runs on.
func (s *Server) Core() domain.Core { return s.core }

// Registry returns the server's entry points.
func (s *Server) Registry() *Registry { return s.registry }

// Serve runs function fn on msg and returns its status and response bytes.
// Errors mean the request never reached the function.
func (s *Server) Serve(ctx context.Context, fn int, msg []byte) (domain.Status, []byte, error) {
	f, err := s.registry.Lookup(fn)
	if err != nil {
		return domain.StatusUnknownFunction, nil, err
	}
	params, err := f.Signature.Decode(msg)
	if err != nil {
		return domain.StatusTransportFailure, nil, fmt.Errorf("%s: %w", f.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	status := f.Handler(ctx, params)
	s.logger.Debug("Served call", "core", s.core, "fn", f.Name, "status", status)
	return status, f.Signature.Encode(params), nil
}
