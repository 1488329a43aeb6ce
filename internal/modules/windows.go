// CRC: crc-WindowsModule.md
package modules

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"

	host "github.com/zot/radial/internal/lua"
)

// ErrWindowNotFound is returned when no window matches.
var ErrWindowNotFound = errors.New("window not found")

// Window describes a top-level window.
type Window struct {
	ID    string
	Title string
}

func (w Window) table() map[string]any {
	return map[string]any{"id": w.ID, "title": w.Title}
}

// WindowBackend manages top-level windows.
type WindowBackend interface {
	Active(ctx context.Context) (Window, error)
	Find(ctx context.Context, title string) ([]Window, error)
	Focus(ctx context.Context, id string) error
	Minimize(ctx context.Context, id string) error
	Maximize(ctx context.Context, id string) error
	Close(ctx context.Context, id string) error
	Move(ctx context.Context, id string, x, y, w, h int) error
	List(ctx context.Context) ([]Window, error)
}

// Windows is the window management module. Every operation returns a Result.
type Windows struct {
	backend WindowBackend
}

func (m *Windows) Name() string { return "windows" }

func (m *Windows) Exports() []host.Export {
	return []host.Export{
		{Name: "active", Args: "()", Doc: "The focused window {id, title}", Fn: m.active},
		{Name: "find", Args: "(title)", Doc: "First window whose title contains title", Fn: m.find},
		{Name: "focus", Args: "(id)", Doc: "Raise and focus a window", Fn: m.op(WindowBackend.Focus)},
		{Name: "minimize", Args: "(id)", Doc: "Minimize a window", Fn: m.op(WindowBackend.Minimize)},
		{Name: "maximize", Args: "(id)", Doc: "Maximize a window", Fn: m.op(WindowBackend.Maximize)},
		{Name: "close", Args: "(id)", Doc: "Close a window", Fn: m.op(WindowBackend.Close)},
		{Name: "move", Args: "(id, x, y, [w, h])", Doc: "Move and optionally resize a window", Fn: m.move},
		{Name: "list", Args: "()", Doc: "All windows", Fn: m.list},
	}
}

func (m *Windows) active(in *host.Instance, L *lua.LState) int {
	w, err := m.backend.Active(in.Context())
	if err != nil {
		return host.PushResult(L, nil, err)
	}
	return host.PushResult(L, w.table(), nil)
}

func (m *Windows) find(in *host.Instance, L *lua.LState) int {
	title := checkName(L, 1, "title")
	found, err := m.backend.Find(in.Context(), title)
	if err == nil && len(found) == 0 {
		err = fmt.Errorf("%w: %q", ErrWindowNotFound, title)
	}
	if err != nil {
		return host.PushResult(L, nil, err)
	}
	return host.PushResult(L, found[0].table(), nil)
}

func (m *Windows) op(fn func(WindowBackend, context.Context, string) error) host.Func {
	return func(in *host.Instance, L *lua.LState) int {
		id := checkName(L, 1, "window id")
		return host.PushResult(L, id, fn(m.backend, in.Context(), id))
	}
}

func (m *Windows) move(in *host.Instance, L *lua.LState) int {
	id := checkName(L, 1, "window id")
	x, y := L.CheckInt(2), L.CheckInt(3)
	w, h := L.OptInt(4, 0), L.OptInt(5, 0)
	if w < 0 || h < 0 {
		L.ArgError(4, "size must not be negative")
	}
	return host.PushResult(L, id, m.backend.Move(in.Context(), id, x, y, w, h))
}

func (m *Windows) list(in *host.Instance, L *lua.LState) int {
	wins, err := m.backend.List(in.Context())
	if err != nil {
		return host.PushResult(L, nil, err)
	}
	out := make([]any, len(wins))
	for i, w := range wins {
		out[i] = w.table()
	}
	return host.PushResult(L, out, nil)
}

// XdotoolWindows drives xdotool for window management.
type XdotoolWindows struct {
	exec Commander
}

// NewXdotoolWindows returns a window backend running xdotool through c.
func NewXdotoolWindows(c Commander) *XdotoolWindows {
	return &XdotoolWindows{exec: c}
}

func (x *XdotoolWindows) run(ctx context.Context, args ...string) (string, error) {
	return runOK(ctx, x.exec, "xdotool", args...)
}

func (x *XdotoolWindows) title(ctx context.Context, id string) string {
	out, err := x.run(ctx, "getwindowname", id)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

func (x *XdotoolWindows) describe(ctx context.Context, out string) []Window {
	var wins []Window
	for _, id := range strings.Fields(out) {
		wins = append(wins, Window{ID: id, Title: x.title(ctx, id)})
	}
	return wins
}

func (x *XdotoolWindows) Active(ctx context.Context) (Window, error) {
	out, err := x.run(ctx, "getactivewindow")
	if err != nil {
		return Window{}, err
	}
	wins := x.describe(ctx, out)
	if len(wins) == 0 {
		return Window{}, ErrWindowNotFound
	}
	return wins[0], nil
}

func (x *XdotoolWindows) Find(ctx context.Context, title string) ([]Window, error) {
	out, err := x.run(ctx, "search", "--onlyvisible", "--name", title)
	if err != nil && strings.TrimSpace(out) == "" {
		// xdotool search exits 1 when nothing matches
		return nil, nil
	}
	return x.describe(ctx, out), nil
}

func (x *XdotoolWindows) Focus(ctx context.Context, id string) error {
	_, err := x.run(ctx, "windowactivate", "--sync", id)
	return err
}

func (x *XdotoolWindows) Minimize(ctx context.Context, id string) error {
	_, err := x.run(ctx, "windowminimize", id)
	return err
}

func (x *XdotoolWindows) Maximize(ctx context.Context, id string) error {
	_, err := x.run(ctx, "windowsize", id, "100%", "100%")
	return err
}

func (x *XdotoolWindows) Close(ctx context.Context, id string) error {
	_, err := x.run(ctx, "windowclose", id)
	return err
}

func (x *XdotoolWindows) Move(ctx context.Context, id string, px, py, w, h int) error {
	if _, err := x.run(ctx, "windowmove", id, strconv.Itoa(px), strconv.Itoa(py)); err != nil {
		return err
	}
	if w > 0 && h > 0 {
		_, err := x.run(ctx, "windowsize", id, strconv.Itoa(w), strconv.Itoa(h))
		return err
	}
	return nil
}

func (x *XdotoolWindows) List(ctx context.Context) ([]Window, error) {
	out, err := x.run(ctx, "search", "--onlyvisible", "--name", "")
	if err != nil && strings.TrimSpace(out) == "" {
		return nil, nil
	}
	return x.describe(ctx, out), nil
}
