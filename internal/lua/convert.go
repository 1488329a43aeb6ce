package lua

import (
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// GoToLua converts a Go value to Lua. Tables are allocated on L; unknown types
// become their %v string.
func GoToLua(L *lua.LState, val any) lua.LValue {
	switch v := val.(type) {
	case nil:
		return lua.LNil
	case lua.LValue:
		return v
	case bool:
		return lua.LBool(v)
	case int:
		return lua.LNumber(v)
	case int64:
		return lua.LNumber(v)
	case float32:
		return lua.LNumber(v)
	case float64:
		return lua.LNumber(v)
	case string:
		return lua.LString(v)
	case []byte:
		return lua.LString(v)
	case error:
		return lua.LString(v.Error())
	case []string:
		return sliceTable(L, v)
	case []any:
		return sliceTable(L, v)
	case []map[string]any:
		return sliceTable(L, v)
	case map[string]any:
		return mapTable(L, v)
	case map[string]string:
		return mapTable(L, v)
	default:
		return lua.LString(fmt.Sprint(v))
	}
}

func sliceTable[T any](L *lua.LState, items []T) *lua.LTable {
	tbl := L.CreateTable(len(items), 0)
	for _, item := range items {
		tbl.Append(GoToLua(L, item))
	}
	return tbl
}

func mapTable[T any](L *lua.LState, m map[string]T) *lua.LTable {
	tbl := L.CreateTable(0, len(m))
	for k, item := range m {
		tbl.RawSetString(k, GoToLua(L, item))
	}
	return tbl
}

// LuaToGo converts a Lua value to Go. A table keyed only by positive integers
// is a []any up to its largest key; any other table is a map[string]any of
// its string keys. Keys starting with "_" are private and dropped. Functions
// and userdata become nil.
func LuaToGo(val lua.LValue) any {
	switch v := val.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		return float64(v)
	case lua.LString:
		return string(v)
	case *lua.LTable:
		if n := arrayLen(v); n > 0 {
			arr := make([]any, n)
			for i := range arr {
				arr[i] = LuaToGo(v.RawGetInt(i + 1))
			}
			return arr
		}
		m := make(map[string]any)
		v.ForEach(func(key, value lua.LValue) {
			if ks, ok := key.(lua.LString); ok && !strings.HasPrefix(string(ks), "_") {
				m[string(ks)] = LuaToGo(value)
			}
		})
		return m
	default:
		return nil
	}
}

// arrayLen returns the largest integer key of tbl, or 0 when tbl has public
// string keys.
func arrayLen(tbl *lua.LTable) int {
	top := 0
	array := true
	tbl.ForEach(func(key, _ lua.LValue) {
		switch k := key.(type) {
		case lua.LNumber:
			top = max(top, int(k))
		case lua.LString:
			if !strings.HasPrefix(string(k), "_") {
				array = false
			}
		}
	})
	if !array {
		return 0
	}
	return top
}

// StringList reads a Lua array of strings, ignoring other values.
func StringList(tbl *lua.LTable) []string {
	if tbl == nil {
		return nil
	}
	out := make([]string, 0, tbl.Len())
	for i := 1; i <= tbl.Len(); i++ {
		if s, ok := tbl.RawGetInt(i).(lua.LString); ok {
			out = append(out, string(s))
		}
	}
	return out
}
