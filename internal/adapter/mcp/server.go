// Package mcp exposes projects and agent runs over the Model Context
// Protocol so AI assistants can inspect and steer runs through tools.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/agentdeck/agentdeck/internal/config"
	"github.com/agentdeck/agentdeck/internal/domain/project"
)

// ProjectReader is the subset of the project service the MCP tools need.
type ProjectReader interface {
	List(ctx context.Context) ([]project.Project, error)
	Get(ctx context.Context, id string) (*project.Project, error)
}

// RunController starts and steers agent runs.
type RunController interface {
	StartRun(ctx context.Context, projectID, prompt string) (*project.Project, error)
	ContinueRun(ctx context.Context, projectID, prompt string) (*project.Project, error)
	ConfirmPlan(ctx context.Context, projectID string) (*project.Project, error)
}

// ServerDeps carries the services the MCP server exposes. Nil fields make
// the corresponding tools report a configuration error instead of panicking.
type ServerDeps struct {
	Projects ProjectReader
	Runs     RunController
}

// Server hosts the MCP tool surface over streamable HTTP.
type Server struct {
	cfg        config.MCP
	deps       ServerDeps
	mcpServer  *mcpserver.MCPServer
	streamable *mcpserver.StreamableHTTPServer
	httpSrv    *http.Server
	ln         net.Listener
}

// NewServer builds the MCP server and registers all tools and resources.
func NewServer(cfg config.MCP, deps ServerDeps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mcpServer: mcpserver.NewMCPServer(
			"agentdeck",
			"0.1.0",
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithResourceCapabilities(false, false),
		),
	}
	s.registerTools()
	s.registerResources()
	s.streamable = mcpserver.NewStreamableHTTPServer(s.mcpServer)
	return s
}

// MCPServer returns the underlying MCP server, mainly for tests.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// Handler returns the HTTP handler serving the MCP endpoint, wrapped with
// API-key auth when one is configured.
func (s *Server) Handler() http.Handler {
	return AuthMiddleware(s.cfg.APIKey, s.streamable)
}

// Start serves the MCP endpoint in the background. The served handler goes
// through Handler(), so a configured API key is enforced on every request.
func (s *Server) Start() error {
	if s.cfg.Addr == "" {
		return errors.New("mcp server address is empty")
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("mcp listen %s: %w", s.cfg.Addr, err)
	}
	s.ln = ln
	s.httpSrv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("mcp server listening", "addr", ln.Addr().String())
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mcp server stopped", "error", err)
		}
	}()
	return nil
}

// Addr reports the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop shuts the MCP endpoint down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
