// This file re-exports the types wrapper projects need to write host modules.
package cli

import (
	"github.com/zot/radial/internal/lua"
	"github.com/zot/radial/internal/modules"
)

// Re-export module types for extension
type (
	Module   = lua.Module
	Export   = lua.Export
	Func     = lua.Func
	Instance = lua.Instance
	Backends = modules.Backends
)

// Re-export Lua helpers
var (
	GoToLua    = lua.GoToLua
	LuaToGo    = lua.LuaToGo
	PushResult = lua.PushResult
	Async      = lua.Async
)
