// CRC: crc-MCPTool.md
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/zot/radial/internal/lua"
)

const defaultRunTimeout = 30 * time.Second

func (s *Server) registerTools() {
	s.mcp.AddTool(mcpgo.NewTool("run_action",
		mcpgo.WithDescription("Run a menu action by name and wait for it to finish"),
		mcpgo.WithString("name", mcpgo.Required(), mcpgo.Description("Action name, e.g. media/next")),
		mcpgo.WithNumber("timeout_ms", mcpgo.Description("Abort the script after this many milliseconds (default 30000)")),
	), s.handleRunAction)

	s.mcp.AddTool(mcpgo.NewTool("list_actions",
		mcpgo.WithDescription("List every action name, one per line"),
		mcpgo.WithString("prefix", mcpgo.Description("Only list names starting with this prefix")),
		mcpgo.WithReadOnlyHintAnnotation(true),
	), s.handleListActions)

	s.mcp.AddTool(mcpgo.NewTool("clear",
		mcpgo.WithDescription("Pause drawing, empty the shared cache and stop every ticker"),
		mcpgo.WithDestructiveHintAnnotation(true),
	), s.handleClear)

	s.mcp.AddTool(mcpgo.NewTool("api",
		mcpgo.WithDescription("Describe the Lua functions available to action scripts"),
		mcpgo.WithString("module", mcpgo.Description("Only describe this module, e.g. audio")),
		mcpgo.WithReadOnlyHintAnnotation(true),
	), s.handleAPI)
}

func (s *Server) handleRunAction(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	timeout := defaultRunTimeout
	if ms := req.GetFloat("timeout_ms", 0); ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	s.Log(2, "MCP: run_action %s", name)
	if err := s.runner.RunSync(ctx, name); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return mcpgo.NewToolResultErrorf("%s: aborted after %v", name, timeout), nil
		}
		return mcpgo.NewToolResultErrorFromErr(name+" failed", err), nil
	}
	return mcpgo.NewToolResultText(fmt.Sprintf("%s finished in %v", name, time.Since(start).Round(time.Millisecond))), nil
}

func (s *Server) handleListActions(_ context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	prefix := req.GetString("prefix", "")
	var names []string
	for _, name := range s.runner.Actions() {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return mcpgo.NewToolResultText("no actions"), nil
	}
	return mcpgo.NewToolResultText(strings.Join(names, "\n")), nil
}

func (s *Server) handleClear(context.Context, mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	s.runner.Clear()
	return mcpgo.NewToolResultText("cleared"), nil
}

func (s *Server) handleAPI(_ context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	module := req.GetString("module", "")
	var b strings.Builder
	for _, e := range lua.Describe(s.runner.Modules()) {
		if module != "" && e.Module != module {
			continue
		}
		fmt.Fprintf(&b, "%s.%s%s", e.Module, e.Name, e.Args)
		if e.Doc != "" {
			fmt.Fprintf(&b, "  -- %s", e.Doc)
		}
		b.WriteByte('\n')
	}
	if b.Len() == 0 {
		return mcpgo.NewToolResultErrorf("unknown module %q", module), nil
	}
	return mcpgo.NewToolResultText(b.String()), nil
}
