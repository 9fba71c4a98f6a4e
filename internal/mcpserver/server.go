// Package mcpserver exposes the command engine as MCP tools over streamable
// HTTP, so agents and other tools can drive voiceops.
package mcpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/mark3labs/mcp-go/server"
	"github.com/mark3labs/voiceops/internal/health"
	"github.com/mark3labs/voiceops/internal/logger"
	"github.com/mark3labs/voiceops/internal/orchestrator"
	"github.com/mark3labs/voiceops/internal/readmodel"
)

var log = logger.Named("mcp")

// Engine is the orchestrator surface used by the tools.
// *orchestrator.Engine implements it.
type Engine interface {
	Submit(ctx context.Context, text string) error
	Confirm(ctx context.Context) error
	Clear(ctx context.Context) error
	Snapshot() orchestrator.Snapshot
	Wait(ctx context.Context) (orchestrator.Snapshot, error)
}

// Monitor is the connectivity surface used by the tools.
// *health.Monitor implements it.
type Monitor interface {
	Reconnect(ctx context.Context) error
	Wait(ctx context.Context) error
	State() health.State
}

// Server manages the MCP HTTP server.
type Server struct {
	engine  Engine
	monitor Monitor
	views   readmodel.Source

	mcpServer  *server.MCPServer
	httpServer *server.StreamableHTTPServer
	stdServer  *http.Server
	addr       string
	mu         sync.Mutex
}

// New creates a server. It is not listening until Start is called.
func New(engine Engine, monitor Monitor, views readmodel.Source) *Server {
	return &Server{
		engine:  engine,
		monitor: monitor,
		views:   views,
	}
}

// Start listens on addr ("127.0.0.1:0" picks a free port) and serves MCP
// at /mcp in the background. It returns the bound address.
func (s *Server) Start(ctx context.Context, addr string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stdServer != nil {
		return "", fmt.Errorf("server already started")
	}

	s.mcpServer = server.NewMCPServer(
		"voiceops",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)
	if err := s.registerTools(); err != nil {
		return "", fmt.Errorf("failed to register tools: %w", err)
	}

	if addr == "" {
		addr = "127.0.0.1:0"
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.addr = listener.Addr().String()

	mux := http.NewServeMux()
	mcpHandler := server.NewStreamableHTTPServer(
		s.mcpServer,
		server.WithStateLess(true),
	)
	mux.Handle("/mcp", mcpHandler)

	s.stdServer = &http.Server{
		Handler:     mux,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	s.httpServer = mcpHandler

	stdServer := s.stdServer
	go func() {
		if err := stdServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("MCP server error: %v", err)
		}
	}()

	log.Info("MCP server listening on %s", s.addr)
	return s.addr, nil
}

// Stop shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stdServer == nil {
		return nil
	}

	log.Debug("Stopping MCP server")
	if err := s.stdServer.Shutdown(ctx); err != nil {
		log.Warn("Error stopping MCP server: %v", err)
		return fmt.Errorf("failed to stop server: %w", err)
	}

	s.httpServer = nil
	s.stdServer = nil
	s.mcpServer = nil
	return nil
}

// URL returns the MCP endpoint URL.
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("http://%s/mcp", s.addr)
}
