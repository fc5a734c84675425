// Package mcp exposes the engine to MCP clients: core inventory,
// translation statistics, manifest runs and run history.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aretw0/hetcore/internal/logging"
	"github.com/aretw0/hetcore/internal/scheduler"
	"github.com/aretw0/hetcore/internal/xlate"
	"github.com/aretw0/hetcore/pkg/domain"
	"github.com/aretw0/hetcore/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Engine defines what the MCP server needs from the engine.
type Engine interface {
	QueryCores() []scheduler.CoreInfo
	Translations() xlate.Stats
	RunManifest(ctx context.Context, name string) (*domain.RunRecord, error)
	Runs() ports.RunStore
}

// RunResponse is the structured result of run_manifest.
type RunResponse struct {
	Run      *domain.RunRecord `json:"run" jsonschema_description:"The recorded run"`
	Complete bool              `json:"complete" jsonschema_description:"True when every node executed"`
}

// Server wraps the engine and exposes it as an MCP Server.
type Server struct {
	engine    Engine
	loader    ports.ManifestLoader
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance. loader may be nil, in which
// case the manifests resource is not offered.
func NewServer(engine Engine, loader ports.ManifestLoader, version string, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		loader:    loader,
		mcpServer: server.NewMCPServer("hetcore-mcp", version),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode failed: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_cores",
		mcp.WithDescription("List every core with its priority, load, state and supported kernels."),
	), s.handleListCores)

	s.mcpServer.AddTool(mcp.NewTool("translation_stats",
		mcp.WithDescription("Report translation cache hits, misses, failures and live entries per core and memory class."),
	), s.handleTranslationStats)

	runTool := mcp.NewTool("run_manifest",
		mcp.WithDescription("Allocate and execute a graph manifest, returning the run record."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Manifest name")),
		mcp.WithOutputSchema[RunResponse](),
	)
	s.mcpServer.AddTool(runTool, mcp.NewStructuredToolHandler(s.handleRunManifest))

	s.mcpServer.AddTool(mcp.NewTool("list_runs",
		mcp.WithDescription("List stored runs, oldest first, with their outcome."),
	), s.handleListRuns)
}

func (s *Server) handleListCores(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.engine.QueryCores())
}

func (s *Server) handleTranslationStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.engine.Translations())
}

func (s *Server) handleRunManifest(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (RunResponse, error) {
	name, _ := args["name"].(string)
	if name == "" {
		return RunResponse{}, fmt.Errorf("name is required")
	}
	run, err := s.engine.RunManifest(ctx, name)
	if err != nil && run == nil {
		return RunResponse{}, fmt.Errorf("run %s failed: %w", name, err)
	}
	if err != nil {
		s.logger.Warn("MCP run finished with error", "manifest", name, "run", run.ID, "err", err)
	}
	return RunResponse{Run: run, Complete: run.Complete()}, nil
}

// runSummary is one line of list_runs.
type runSummary struct {
	ID       string `json:"id"`
	Graph    string `json:"graph"`
	Executed int    `json:"executed"`
	Nodes    int    `json:"nodes"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) handleListRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	store := s.engine.Runs()
	ids, err := store.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
	}
	out := make([]runSummary, 0, len(ids))
	for _, id := range ids {
		run, err := store.Load(ctx, id)
		if err != nil {
			// Expired between List and Load.
			continue
		}
		out = append(out, runSummary{ID: run.ID, Graph: run.Graph, Executed: run.Executed, Nodes: run.Nodes, Error: run.Error})
	}
	return jsonResult(out)
}

func (s *Server) registerResources() {
	if s.loader == nil {
		return
	}
	s.mcpServer.AddResource(mcp.NewResource("hetcore://manifests", "Graph Manifests",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		names, err := s.loader.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list manifests: %w", err)
		}
		data, _ := json.Marshal(names)
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "hetcore://manifests",
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}
