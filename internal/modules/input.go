// CRC: crc-InputModule.md
package modules

import (
	"context"
	"strconv"

	lua "github.com/yuin/gopher-lua"

	host "github.com/zot/radial/internal/lua"
)

// InputBackend injects keyboard and mouse events.
type InputBackend interface {
	Key(ctx context.Context, combo string) error
	KeyDown(ctx context.Context, key string) error
	KeyUp(ctx context.Context, key string) error
	Type(ctx context.Context, text string) error
	MouseMove(ctx context.Context, x, y int) error
	Click(ctx context.Context, button int) error
}

// Input is the HID injection module.
type Input struct {
	backend InputBackend
}

func (m *Input) Name() string { return "input" }

func (m *Input) Exports() []host.Export {
	return []host.Export{
		{Name: "key", Args: "(combo)", Doc: "Press and release a key combination such as \"ctrl+c\"", Fn: m.key},
		{Name: "keyDown", Args: "(key)", Doc: "Press a key", Fn: m.keyDown},
		{Name: "keyUp", Args: "(key)", Doc: "Release a key", Fn: m.keyUp},
		{Name: "type", Args: "(text)", Doc: "Type text", Fn: m.typeText},
		{Name: "mouseMove", Args: "(x, y)", Doc: "Move the pointer to screen coordinates", Fn: m.mouseMove},
		{Name: "click", Args: "([button])", Doc: "Click a mouse button, 1 = left", Fn: m.click},
	}
}

func (m *Input) key(in *host.Instance, L *lua.LState) int {
	combo := checkName(L, 1, "key")
	return host.PushResult(L, combo, m.backend.Key(in.Context(), combo))
}

func (m *Input) keyDown(in *host.Instance, L *lua.LState) int {
	key := checkName(L, 1, "key")
	return host.PushResult(L, key, m.backend.KeyDown(in.Context(), key))
}

func (m *Input) keyUp(in *host.Instance, L *lua.LState) int {
	key := checkName(L, 1, "key")
	return host.PushResult(L, key, m.backend.KeyUp(in.Context(), key))
}

func (m *Input) typeText(in *host.Instance, L *lua.LState) int {
	text := L.CheckString(1)
	return host.PushResult(L, len(text), m.backend.Type(in.Context(), text))
}

func (m *Input) mouseMove(in *host.Instance, L *lua.LState) int {
	x, y := L.CheckInt(1), L.CheckInt(2)
	return host.PushResult(L, true, m.backend.MouseMove(in.Context(), x, y))
}

func (m *Input) click(in *host.Instance, L *lua.LState) int {
	button := L.OptInt(1, 1)
	if button < 1 || button > 9 {
		L.ArgError(1, "button must be 1-9")
	}
	return host.PushResult(L, button, m.backend.Click(in.Context(), button))
}

// XdotoolInput drives xdotool.
type XdotoolInput struct {
	exec Commander
}

// NewXdotoolInput returns an input backend running xdotool through c.
func NewXdotoolInput(c Commander) *XdotoolInput {
	return &XdotoolInput{exec: c}
}

func (x *XdotoolInput) run(ctx context.Context, args ...string) error {
	_, err := runOK(ctx, x.exec, "xdotool", args...)
	return err
}

func (x *XdotoolInput) Key(ctx context.Context, combo string) error {
	return x.run(ctx, "key", "--clearmodifiers", combo)
}

func (x *XdotoolInput) KeyDown(ctx context.Context, key string) error {
	return x.run(ctx, "keydown", key)
}

func (x *XdotoolInput) KeyUp(ctx context.Context, key string) error {
	return x.run(ctx, "keyup", key)
}

func (x *XdotoolInput) Type(ctx context.Context, text string) error {
	return x.run(ctx, "type", "--clearmodifiers", "--", text)
}

func (x *XdotoolInput) MouseMove(ctx context.Context, px, py int) error {
	return x.run(ctx, "mousemove", strconv.Itoa(px), strconv.Itoa(py))
}

func (x *XdotoolInput) Click(ctx context.Context, button int) error {
	return x.run(ctx, "click", strconv.Itoa(button))
}
