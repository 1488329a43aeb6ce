// Package cli provides the command-line interface for radial.
// It exports Run() and RunWithHooks() so wrapper projects can add modules
// and commands.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/zot/radial/internal/lua"
	"github.com/zot/radial/internal/modules"
)

// Version is reported by `radial version` and the MCP handshake.
const Version = "0.1.0"

// Hooks allows extending the CLI with additional commands and modules.
type Hooks struct {
	// BeforeDispatch is called before command dispatch.
	// Return (handled=true, exitCode) to skip normal dispatch.
	BeforeDispatch func(command string, args []string) (handled bool, exitCode int)

	// CustomHelp returns additional help text to append.
	CustomHelp func() string

	// CustomVersion returns version info to append (optional).
	CustomVersion func() string

	// Modules returns extra host modules installed after the built-in ones.
	Modules func(cfg *Config) []lua.Module

	// Backends overrides the platform backends of the built-in modules.
	Backends func(cfg *Config) modules.Backends
}

// Run executes the CLI with the given arguments.
// Returns exit code (0 = success, non-zero = error).
func Run(args []string) int {
	return RunWithHooks(args, nil)
}

// RunWithHooks executes CLI with extension hooks.
func RunWithHooks(args []string, hooks *Hooks) int {
	return run(args, hooks, os.Stdout, os.Stderr)
}

func run(args []string, hooks *Hooks, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		return runServe(args, hooks, stderr)
	}

	command := args[0]
	cmdArgs := args[1:]

	// Let hooks intercept first
	if hooks != nil && hooks.BeforeDispatch != nil {
		if handled, code := hooks.BeforeDispatch(command, cmdArgs); handled {
			return code
		}
	}

	switch command {
	case "serve":
		return runServe(cmdArgs, hooks, stderr)
	case "run":
		return runAction(cmdArgs, hooks, stdout, stderr)
	case "actions":
		return runActions(cmdArgs, stdout, stderr)
	case "api":
		return runAPI(cmdArgs, hooks, stdout, stderr)
	case "help", "-h", "--help":
		printHelp(stdout, hooks)
		return 0
	case "version", "--version":
		printVersion(stdout, hooks)
		return 0
	default:
		// Check if it's a flag (starts with -)
		if len(command) > 0 && command[0] == '-' {
			return runServe(args, hooks, stderr)
		}
		fmt.Fprintf(stderr, "Unknown command: %s\n", command)
		printHelp(stderr, hooks)
		return 1
	}
}

func printHelp(w io.Writer, hooks *Hooks) {
	fmt.Fprintln(w, `Radial menu scripting host

Usage: radial [command] [options] [args]

Commands:
  serve           Run the host: scripts, event stream and hot reload (default)
  run <action>    Run one action and print the messages it emits
  actions         List action names
  api [module]    Describe the Lua functions available to scripts
  help            Show this help
  version         Show the version

Options:
  --config        TOML configuration file (default: config/radial.toml)
  --scripts       Action scripts directory (default: scripts/)
  --no-watch      Do not reload scripts on change
  --pool-min      Interpreters kept warm (default: 1)
  --pool-max      Maximum concurrent interpreters (default: 4)
  --idle-timeout  Reclaim dynamic interpreters idle this long (default: 2m)
  --ui-size       UI size exposed to scripts as env.uiSize (default: 300)
  --store         Store type: memory, sqlite, postgresql
  --store-path    SQLite database path
  --store-url     PostgreSQL connection URL
  --host          Event stream listen address (default: 127.0.0.1)
  --port          Event stream listen port (default: 7420)
  --mcp           Serve MCP on stdio
  --log-level     Log level: debug, info, warn, error
  -v, -vv, -vvv   Verbosity

Examples:
  radial serve --scripts ~/.config/radial/scripts -v
  radial run media/next
  radial api audio`)

	if hooks != nil && hooks.CustomHelp != nil {
		fmt.Fprintln(w, hooks.CustomHelp())
	}
}

func printVersion(w io.Writer, hooks *Hooks) {
	fmt.Fprintf(w, "radial v%s\n", Version)
	if hooks != nil && hooks.CustomVersion != nil {
		fmt.Fprintln(w, hooks.CustomVersion())
	}
}
