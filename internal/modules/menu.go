// CRC: crc-MenuModule.md
package modules

import (
	"encoding/json"

	lua "github.com/yuin/gopher-lua"

	"github.com/zot/radial/internal/action"
	host "github.com/zot/radial/internal/lua"
	"github.com/zot/radial/internal/protocol"
)

// Menu turns script calls into menu control messages for the overlay.
type Menu struct{}

func (m *Menu) Name() string { return "menu" }

func (m *Menu) Exports() []host.Export {
	return []host.Export{
		{Name: "open", Args: "([options])", Doc: "Show the menu, optionally replacing its options", Fn: m.open},
		{Name: "close", Args: "()", Doc: "Hide the menu", Fn: m.close},
		{Name: "setOptions", Args: "(options)", Doc: "Replace the options: {{id=, icon=, actionId=}, ...}", Fn: m.setOptions},
		{Name: "setSize", Args: "(size)", Doc: "Resize the menu in pixels", Fn: m.setSize},
		{Name: "message", Args: "(text, [durationMs])", Doc: "Show text in the menu center", Fn: m.message},
		{Name: "focus", Args: "(id)", Doc: "Highlight an option", Fn: m.focus},
	}
}

// checkOptions reads an option list and resolves built-in action ids.
func checkOptions(L *lua.LState, n int) []action.MenuOptionData {
	tbl := L.CheckTable(n)
	data, err := json.Marshal(host.LuaToGo(tbl))
	if err != nil {
		L.ArgError(n, err.Error())
	}
	if tbl.Len() == 0 {
		data = []byte("[]")
	}
	opts, err := action.DecodeOptions(data)
	if err != nil {
		L.ArgError(n, err.Error())
	}
	builtins, err := action.Builtins()
	if err != nil {
		L.RaiseError("%v", err)
	}
	resolved, err := action.Resolve(opts, builtins)
	if err != nil {
		L.ArgError(n, err.Error())
	}
	return resolved
}

func (m *Menu) open(in *host.Instance, L *lua.LState) int {
	var msg protocol.MenuOpenMessage
	if L.GetTop() >= 1 && L.Get(1) != lua.LNil {
		msg.Options = checkOptions(L, 1)
	}
	in.Emit(protocol.MsgMenuOpen, msg)
	return 0
}

func (m *Menu) close(in *host.Instance, _ *lua.LState) int {
	in.Emit(protocol.MsgMenuClose, nil)
	return 0
}

func (m *Menu) setOptions(in *host.Instance, L *lua.LState) int {
	in.Emit(protocol.MsgMenuOptions, protocol.MenuOptionsMessage{Options: checkOptions(L, 1)})
	return 0
}

func (m *Menu) setSize(in *host.Instance, L *lua.LState) int {
	size := L.CheckInt(1)
	if size <= 0 {
		L.ArgError(1, "size must be positive")
	}
	in.Emit(protocol.MsgMenuSize, protocol.MenuSizeMessage{Size: size})
	return 0
}

func (m *Menu) message(in *host.Instance, L *lua.LState) int {
	text := L.CheckString(1)
	ms := L.OptInt(2, 0)
	if ms < 0 {
		L.ArgError(2, "duration must not be negative")
	}
	in.Emit(protocol.MsgMenuMessage, protocol.MenuTextMessage{Text: text, DurationMs: ms})
	return 0
}

func (m *Menu) focus(in *host.Instance, L *lua.LState) int {
	id := checkName(L, 1, "option id")
	in.Emit(protocol.MsgMenuFocus, protocol.MenuFocusMessage{ID: id})
	return 0
}
