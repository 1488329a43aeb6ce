// Package mcp exposes the runner to MCP clients over stdio.
// CRC: crc-MCPServer.md
package mcp

import (
	"context"
	"io"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/zot/radial/internal/config"
	"github.com/zot/radial/internal/lua"
)

const serverName = "radial"

// Runner is the part of the script runner the MCP tools drive.
type Runner interface {
	RunSync(ctx context.Context, name string) error
	Actions() []string
	Clear()
	Modules() []lua.Module
}

// Server wraps an MCP server with the radial tools registered.
type Server struct {
	cfg    *config.Config
	runner Runner
	mcp    *mcpserver.MCPServer
}

// NewServer creates a new MCP server.
func NewServer(cfg *config.Config, runner Runner, version string) *Server {
	s := &Server{cfg: cfg, runner: runner}
	s.mcp = mcpserver.NewMCPServer(serverName, version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
		mcpserver.WithInstructions("Run radial menu actions by name. list_actions shows what exists; api describes the Lua functions scripts can call."),
	)
	s.registerTools()
	return s
}

// Log logs a message via the config.
func (s *Server) Log(level int, format string, args ...any) {
	s.cfg.Log(level, format, args...)
}

// MCP returns the underlying server.
func (s *Server) MCP() *mcpserver.MCPServer {
	return s.mcp
}

// Serve processes MCP messages on in and out until ctx is done or in closes.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.Log(1, "MCP server listening on stdio")
	stdio := mcpserver.NewStdioServer(s.mcp)
	err := stdio.Listen(ctx, in, out)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
