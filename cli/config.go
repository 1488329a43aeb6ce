// This file re-exports config types from internal/config for public API.
package cli

import (
	"github.com/zot/radial/internal/config"
)

// Re-export config types for public API
type (
	Config        = config.Config
	PoolConfig    = config.PoolConfig
	ScriptsConfig = config.ScriptsConfig
	StoreConfig   = config.StoreConfig
	ServerConfig  = config.ServerConfig
	LoggingConfig = config.LoggingConfig
	Duration      = config.Duration
)

// Re-export config functions for public API
var (
	DefaultConfig = config.DefaultConfig
	Load          = config.Load
)
