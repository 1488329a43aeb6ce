package modules

import (
	"strings"

	lua "github.com/yuin/gopher-lua"

	host "github.com/zot/radial/internal/lua"
	"github.com/zot/radial/internal/protocol"
)

// log levels mapped onto config verbosity
var logLevels = map[string]int{
	"error": 0,
	"warn":  1,
	"info":  1,
	"print": 1,
	"debug": 2,
}

// Log writes script log lines to the host log and the event stream.
type Log struct{}

func (m *Log) Name() string { return "log" }

func (m *Log) Exports() []host.Export {
	return []host.Export{
		{Name: "debug", Args: "(...)", Doc: "Log at debug level", Fn: m.level("debug")},
		{Name: "info", Args: "(...)", Doc: "Log at info level", Fn: m.level("info")},
		{Name: "warn", Args: "(...)", Doc: "Log a warning", Fn: m.level("warn")},
		{Name: "error", Args: "(...)", Doc: "Log an error", Fn: m.level("error")},
		{Name: "print", Args: "(...)", Doc: "Log at info level without a level tag", Fn: m.level("print")},
	}
}

func (m *Log) level(level string) host.Func {
	verbosity := logLevels[level]
	return func(in *host.Instance, L *lua.LState) int {
		parts := make([]string, L.GetTop())
		for i := range parts {
			parts[i] = L.ToStringMeta(L.Get(i + 1)).String()
		}
		text := strings.Join(parts, " ")
		module := in.Env().Module
		in.Log(verbosity, "[%s] %s: %s", level, module, text)
		in.Emit(protocol.MsgLog, protocol.LogMessage{Level: level, Module: module, Text: text})
		return 0
	}
}
