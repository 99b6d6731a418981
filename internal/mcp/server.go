// Package mcp exposes editor control and remote Python execution as MCP
// tools over stdio, plus an optional HTTP debug surface.
package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/chengdagong/ue-mcp-sub001/internal/config"
	"github.com/chengdagong/ue-mcp-sub001/internal/editor"
	"github.com/chengdagong/ue-mcp-sub001/internal/watcher"
	"github.com/chengdagong/ue-mcp-sub001/pkg/events"
)

// Server wires the tool handlers to the editor manager and watcher.
type Server struct {
	mcp     *server.MCPServer
	manager *editor.Manager
	watcher *watcher.Watcher
	cfg     *config.Config
	bus     *events.EventBus
}

func NewServer(version string, manager *editor.Manager, w *watcher.Watcher, cfg *config.Config, bus *events.EventBus) *Server {
	s := &Server{
		mcp: server.NewMCPServer(
			"uemcp",
			version,
			server.WithToolCapabilities(true),
		),
		manager: manager,
		watcher: w,
		cfg:     cfg,
		bus:     bus,
	}
	s.registerTools()
	return s
}

// ServeStdio runs the MCP protocol over stdin/stdout until EOF. All
// diagnostics go to stderr so the protocol stream stays clean.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}
