// Package http exposes the engine's admin API and relays RPC calls to the
// cores it hosts, so another engine can reach them through Transport.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/aretw0/hetcore/internal/logging"
	"github.com/aretw0/hetcore/internal/scheduler"
	"github.com/aretw0/hetcore/internal/xlate"
	"github.com/aretw0/hetcore/pkg/domain"
	"github.com/aretw0/hetcore/pkg/ports"
	"github.com/go-chi/chi/v5"
)

// StatusHeader carries the remote function's status on relayed calls.
const StatusHeader = "X-Hetcore-Status"

// MaxRequestBytes bounds a relayed call body.
const MaxRequestBytes = 64 << 20

// Engine is the part of the engine the admin API exposes.
type Engine interface {
	QueryCores() []scheduler.CoreInfo
	Translations() xlate.Stats
	CoreStats(ctx context.Context, core domain.Core) (domain.CoreStats, error)
	Runs() ports.RunStore
	Watch(ctx context.Context) (<-chan *domain.RunRecord, error)
	// Relay runs a call on a core hosted by this engine.
	Relay(ctx context.Context, core domain.Core, fn int, msg []byte) (domain.Status, []byte, error)
	Functions(ctx context.Context, core domain.Core) ([]domain.EntryPoint, error)
}

// Server serves the admin API for one Engine.
type Server struct {
	Engine  Engine
	metrics http.Handler
	version string
	logger  *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithMetrics mounts h on GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithVersion sets the version reported by GET /health.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler creates a new HTTP handler for the engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	s := &Server{Engine: engine, version: "dev", logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Get("/health", s.GetHealth)
	r.Get("/cores", s.GetCores)
	r.Get("/stats", s.GetStats)
	r.Get("/runs", s.ListRuns)
	r.Get("/runs/{id}", s.GetRun)
	r.Get("/events", s.SubscribeEvents)
	r.Get("/rpc/{core}/functions", s.GetFunctions)
	r.Post("/rpc/{core}/{fn}", s.Invoke)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, op string, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encode failed", "op", op, "err", err)
	}
}

func coreParam(w http.ResponseWriter, r *http.Request) (domain.Core, bool) {
	core, err := domain.ParseCore(chi.URLParam(r, "core"))
	if err != nil || !core.Valid() {
		http.Error(w, fmt.Sprintf("unknown core %q", chi.URLParam(r, "core")), http.StatusNotFound)
		return domain.CoreAny, false
	}
	return core, true
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, "health", map[string]string{
		"status":  "ok",
		"app":     "hetcore",
		"version": s.version,
	})
}

// GetCores handles GET /cores.
func (s *Server) GetCores(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, "cores", s.Engine.QueryCores())
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	Translations xlate.Stats                 `json:"translations"`
	Cores        map[string]domain.CoreStats `json:"cores"`
	Errors       map[string]string           `json:"errors,omitempty"`
}

// GetStats handles GET /stats. Cores that cannot report are listed under
// errors instead of failing the whole request.
func (s *Server) GetStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		Translations: s.Engine.Translations(),
		Cores:        make(map[string]domain.CoreStats),
	}
	for _, info := range s.Engine.QueryCores() {
		if !info.Enabled || !info.Core.Remote() {
			continue
		}
		st, err := s.Engine.CoreStats(r.Context(), info.Core)
		if err != nil {
			if resp.Errors == nil {
				resp.Errors = make(map[string]string)
			}
			resp.Errors[info.ID] = err.Error()
			continue
		}
		resp.Cores[info.ID] = st
	}
	s.writeJSON(w, "stats", resp)
}

// ListRuns handles GET /runs.
func (s *Server) ListRuns(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Engine.Runs().List(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("List error: %v", err), http.StatusInternalServerError)
		s.logger.Error("List runs failed", "err", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	s.writeJSON(w, "runs", ids)
}

// GetRun handles GET /runs/{id}.
func (s *Server) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.Engine.Runs().Load(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, domain.ErrRunNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Load error: %v", err), http.StatusInternalServerError)
		s.logger.Error("Load run failed", "err", err)
		return
	}
	s.writeJSON(w, "run", run)
}

// GetFunctions handles GET /rpc/{core}/functions.
func (s *Server) GetFunctions(w http.ResponseWriter, r *http.Request) {
	core, ok := coreParam(w, r)
	if !ok {
		return
	}
	fns, err := s.Engine.Functions(r.Context(), core)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, "functions", fns)
}

// Invoke handles POST /rpc/{core}/{fn}. The body is the marshaled request;
// the reply body is the marshaled response and the status travels in
// StatusHeader. {fn} is an entry point index or name.
func (s *Server) Invoke(w http.ResponseWriter, r *http.Request) {
	core, ok := coreParam(w, r)
	if !ok {
		return
	}
	fn, err := s.resolve(r.Context(), core, chi.URLParam(r, "fn"))
	if err != nil {
		w.Header().Set(StatusHeader, strconv.Itoa(int(domain.StatusUnknownFunction)))
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	msg, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBytes))
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("Invoke: Invalid request body", "err", err)
		return
	}

	status, resp, err := s.Engine.Relay(r.Context(), core, fn, msg)
	w.Header().Set(StatusHeader, strconv.Itoa(int(status)))
	if err != nil {
		code := http.StatusBadGateway
		switch {
		case errors.Is(err, domain.ErrUnknownFunc):
			code = http.StatusNotFound
		case errors.Is(err, domain.ErrShortResponse), errors.Is(err, domain.ErrBadPayload):
			code = http.StatusBadRequest
		case status == domain.StatusCoreUnavailable:
			code = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), code)
		s.logger.Warn("Relayed call failed", "core", core, "fn", fn, "status", status, "err", err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := w.Write(resp); err != nil {
		s.logger.Error("Invoke response write failed", "err", err)
	}
}

func (s *Server) resolve(ctx context.Context, core domain.Core, fn string) (int, error) {
	if i, err := strconv.Atoi(fn); err == nil {
		return i, nil
	}
	fns, err := s.Engine.Functions(ctx, core)
	if err != nil {
		return -1, err
	}
	for _, f := range fns {
		if f.Name == fn {
			return f.Index, nil
		}
	}
	return -1, fmt.Errorf("%w: %s", domain.ErrUnknownFunc, fn)
}

// SubscribeEvents handles GET /events (SSE). Every finished run is pushed as
// a "run" event.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}

	runs, err := s.Engine.Watch(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("Watch error: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected")
			return
		case run, ok := <-runs:
			if !ok {
				return
			}
			data, err := json.Marshal(run)
			if err != nil {
				s.logger.Warn("SSE: dropping unencodable run", "run", run.ID, "err", err)
				continue
			}
			fmt.Fprintf(w, "event: run\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}
