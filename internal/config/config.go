// Package config handles configuration loading from CLI flags, environment variables, and TOML files.
// CRC: crc-Config.md
package config

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all configuration settings for the scripting host.
type Config struct {
	Pool    PoolConfig    `toml:"pool"`
	Scripts ScriptsConfig `toml:"scripts"`
	UI      UIConfig      `toml:"ui"`
	Store   StoreConfig   `toml:"store"`
	Server  ServerConfig  `toml:"server"`
	MCP     MCPConfig     `toml:"mcp"`
	Logging LoggingConfig `toml:"logging"`
}

// PoolConfig holds interpreter pool bounds and reclamation timing.
type PoolConfig struct {
	Min           int      `toml:"min"`
	Max           int      `toml:"max"`
	IdleTimeout   Duration `toml:"idle_timeout"`   // dynamic instances idle longer than this are reclaimed
	SweepInterval Duration `toml:"sweep_interval"` // how often the reclaimer scans
}

// ScriptsConfig holds the action script location.
type ScriptsConfig struct {
	Dir   string `toml:"dir"`
	Watch bool   `toml:"watch"`
}

// UIConfig is the read-only snapshot exposed to scripts through env.
type UIConfig struct {
	Size float64 `toml:"size"`
}

// StoreConfig holds persistent store settings.
type StoreConfig struct {
	Type string `toml:"type"` // "memory", "sqlite", "postgresql"
	Path string `toml:"path"` // SQLite file path
	URL  string `toml:"url"`  // PostgreSQL connection URL
}

// ServerConfig holds event stream server settings.
type ServerConfig struct {
	Host   string  `toml:"host"`
	Port   int     `toml:"port"`
	MaxFPS float64 `toml:"max_fps"` // frame messages per second per client, 0 = unlimited
}

// MCPConfig controls the stdio MCP server.
type MCPConfig struct {
	Enabled bool `toml:"enabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level     string `toml:"level"`     // "debug", "info", "warn", "error"
	Verbosity int    `toml:"verbosity"` // 0=errors, 1=lifecycle, 2=runs, 3=pool, 4=frames
}

// ErrPoolBounds is returned by Validate when 0 <= min <= max does not hold.
var ErrPoolBounds = errors.New("invalid pool bounds")

// verbosityCounter implements flag.Value for counting -v flags.
type verbosityCounter int

func (v *verbosityCounter) String() string {
	return fmt.Sprintf("%d", *v)
}

func (v *verbosityCounter) Set(string) error {
	*v++
	return nil
}

func (v *verbosityCounter) IsBoolFlag() bool {
	return true
}

// expandVerbosityFlags preprocesses args to expand -vvv into -v -v -v.
func expandVerbosityFlags(args []string) []string {
	result := make([]string, 0, len(args))
	for _, arg := range args {
		if len(arg) > 2 && arg[0] == '-' && arg[1] == 'v' {
			allV := true
			for _, c := range arg[1:] {
				if c != 'v' {
					allV = false
					break
				}
			}
			if allV {
				for range arg[1:] {
					result = append(result, "-v")
				}
				continue
			}
		}
		result = append(result, arg)
	}
	return result
}

// Duration is a time.Duration that can be unmarshaled from TOML strings.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for Duration.
func (d *Duration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(duration)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// DefaultConfig returns a Config with all default values.
func DefaultConfig() *Config {
	return &Config{
		Pool: PoolConfig{
			Min:           1,
			Max:           4,
			IdleTimeout:   Duration(2 * time.Minute),
			SweepInterval: Duration(5 * time.Second),
		},
		Scripts: ScriptsConfig{
			Dir:   "scripts/",
			Watch: true,
		},
		UI: UIConfig{
			Size: 300,
		},
		Store: StoreConfig{
			Type: "memory",
			Path: "radial.db",
		},
		Server: ServerConfig{
			Host:   "127.0.0.1",
			Port:   7420,
			MaxFPS: 30,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Verbosity: 0,
		},
	}
}

// Load loads configuration from CLI flags, environment variables, and TOML file.
// Priority: CLI flags > env vars > TOML file > defaults
// Returns the remaining positional arguments.
func Load(args []string) (*Config, []string, error) {
	cfg := DefaultConfig()

	args = expandVerbosityFlags(args)

	fs := flag.NewFlagSet("radial", flag.ContinueOnError)
	configPath := fs.String("config", "config/radial.toml", "TOML configuration file")

	poolMin := fs.Int("pool-min", -1, "Interpreters kept warm")
	poolMax := fs.Int("pool-max", -1, "Maximum concurrent interpreters")
	idleTimeout := fs.Duration("idle-timeout", 0, "Reclaim dynamic interpreters idle this long")

	scriptsDir := fs.String("scripts", "", "Action scripts directory")
	noWatch := fs.Bool("no-watch", false, "Do not reload scripts on change")
	uiSize := fs.Float64("ui-size", 0, "UI size exposed to scripts")

	store := fs.String("store", "", "Store type: memory, sqlite, postgresql")
	storePath := fs.String("store-path", "", "SQLite database path")
	storeURL := fs.String("store-url", "", "PostgreSQL connection URL")

	host := fs.String("host", "", "Event stream listen address")
	port := fs.Int("port", 0, "Event stream listen port")
	mcp := fs.Bool("mcp", false, "Serve MCP on stdio")

	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error")
	var verbosity verbosityCounter
	fs.Var(&verbosity, "v", "Verbosity level (use -v, -vv, or -vvv)")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	if err := cfg.loadTOML(*configPath); err != nil && !os.IsNotExist(err) {
		return nil, nil, err
	}

	cfg.applyEnv()

	if *poolMin >= 0 {
		cfg.Pool.Min = *poolMin
	}
	if *poolMax >= 0 {
		cfg.Pool.Max = *poolMax
	}
	if *idleTimeout != 0 {
		cfg.Pool.IdleTimeout = Duration(*idleTimeout)
	}
	if *scriptsDir != "" {
		cfg.Scripts.Dir = *scriptsDir
	}
	if *noWatch {
		cfg.Scripts.Watch = false
	}
	if *uiSize != 0 {
		cfg.UI.Size = *uiSize
	}
	if *store != "" {
		cfg.Store.Type = *store
	}
	if *storePath != "" {
		cfg.Store.Path = *storePath
	}
	if *storeURL != "" {
		cfg.Store.URL = *storeURL
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *mcp {
		cfg.MCP.Enabled = true
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if verbosity > 0 {
		cfg.Logging.Verbosity = int(verbosity)
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, fs.Args(), nil
}

// Validate checks settings that must fail at startup rather than first use.
func (c *Config) Validate() error {
	if c.Pool.Min < 0 || c.Pool.Min > c.Pool.Max || c.Pool.Max == 0 {
		return fmt.Errorf("%w: min=%d max=%d", ErrPoolBounds, c.Pool.Min, c.Pool.Max)
	}
	switch c.Store.Type {
	case "memory", "sqlite", "postgresql":
	default:
		return fmt.Errorf("unknown store type %q", c.Store.Type)
	}
	return nil
}

// loadTOML loads configuration from a TOML file.
func (c *Config) loadTOML(path string) error {
	_, err := toml.DecodeFile(path, c)
	return err
}

// applyEnv applies environment variable overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("RADIAL_POOL_MIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pool.Min = n
		}
	}
	if v := os.Getenv("RADIAL_POOL_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pool.Max = n
		}
	}
	if v := os.Getenv("RADIAL_IDLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Pool.IdleTimeout = Duration(d)
		}
	}
	if v := os.Getenv("RADIAL_SCRIPTS"); v != "" {
		c.Scripts.Dir = v
	}
	if v := os.Getenv("RADIAL_UI_SIZE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.UI.Size = f
		}
	}
	if v := os.Getenv("RADIAL_STORE"); v != "" {
		c.Store.Type = v
	}
	if v := os.Getenv("RADIAL_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("RADIAL_STORE_URL"); v != "" {
		c.Store.URL = v
	}
	if v := os.Getenv("RADIAL_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("RADIAL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("RADIAL_MCP"); v != "" {
		c.MCP.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("RADIAL_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("RADIAL_VERBOSITY"); v != "" {
		if verbosity, err := strconv.Atoi(v); err == nil {
			c.Logging.Verbosity = verbosity
		}
	}
}

// Verbosity returns the configured verbosity level (0-4).
func (c *Config) Verbosity() int {
	return c.Logging.Verbosity
}

// Log prints a message when level is within the configured verbosity.
// A nil config logs only level 0.
func (c *Config) Log(level int, format string, args ...interface{}) {
	verbosity := 0
	if c != nil {
		verbosity = c.Logging.Verbosity
	}
	if level > verbosity {
		return
	}
	log.Printf(format, args...)
}
