// Test Design: test-HostModules.md
package modules

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	lua "github.com/yuin/gopher-lua"

	host "github.com/zot/radial/internal/lua"
	"github.com/zot/radial/internal/protocol"
)

// recorder is a test module collecting values passed to record(v).
type recorder struct {
	mu   sync.Mutex
	seen []any
}

func (r *recorder) Name() string { return "t" }

func (r *recorder) Exports() []host.Export {
	return []host.Export{
		{Name: "record", Fn: func(_ *host.Instance, L *lua.LState) int {
			r.mu.Lock()
			r.seen = append(r.seen, host.LuaToGo(L.Get(1)))
			r.mu.Unlock()
			return 0
		}},
	}
}

func (r *recorder) values() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.seen...)
}

func (r *recorder) waitFor(t *testing.T, n int) []any {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if v := r.values(); len(v) >= n {
			return v
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d values, have %v", n, r.values())
	return nil
}

// fakeCommander answers commands from a table keyed by the full command line.
type fakeCommander struct {
	mu      sync.Mutex
	outputs map[string]Output
	calls   []string
}

func (f *fakeCommander) Run(_ context.Context, name string, args ...string) (Output, error) {
	line := name
	for _, a := range args {
		line += " " + a
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, line)
	out, ok := f.outputs[line]
	if !ok {
		return Output{}, fmt.Errorf("%s: not found", name)
	}
	return out, nil
}

type harness struct {
	set   *Set
	rec   *recorder
	queue *protocol.Queue
	in    *host.Instance
}

func newHarness(t *testing.T, b Backends) *harness {
	t.Helper()
	if b.Exec == nil {
		b.Exec = &fakeCommander{}
	}
	if b.Audio == nil {
		b.Audio = newFakeAudio()
	}
	h := &harness{set: New(b, nil), rec: &recorder{}, queue: protocol.NewQueue()}
	in, err := host.NewInstance(host.Options{
		ID:      1,
		Modules: append(append([]host.Module(nil), h.set.All...), h.rec),
		Emitter: h.queue,
		UISize:  64,
	})
	if err != nil {
		t.Fatal(err)
	}
	h.in = in
	t.Cleanup(func() {
		in.Close()
		h.set.Close()
	})
	return h
}

func (h *harness) run(t *testing.T, src string) error {
	t.Helper()
	return h.in.Run(context.Background(), host.Env{Module: "test/action", UISize: 64}, "test/action", src)
}

func (h *harness) mustRun(t *testing.T, src string) {
	t.Helper()
	if err := h.run(t, src); err != nil {
		t.Fatalf("script failed: %v", err)
	}
}

func (h *harness) messages(typ protocol.MessageType) []*protocol.Message {
	var out []*protocol.Message
	for _, m := range h.queue.Drain() {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func TestEveryModuleRegistered(t *testing.T) {
	h := newHarness(t, Backends{})
	want := []string{"audio", "input", "windows", "fs", "system", "media", "log", "cache", "store", "timer", "menu", "canvas"}
	if len(h.set.All) != len(want) {
		t.Fatalf("got %d modules", len(h.set.All))
	}
	for i, m := range h.set.All {
		if m.Name() != want[i] {
			t.Errorf("module %d = %s, want %s", i, m.Name(), want[i])
		}
		if len(m.Exports()) == 0 {
			t.Errorf("%s exports nothing", m.Name())
		}
	}
	for _, name := range want {
		h.mustRun(t, fmt.Sprintf("assert(type(%s) == 'table')", name))
	}
}

func TestLogEmitsLines(t *testing.T) {
	h := newHarness(t, Backends{})
	h.mustRun(t, `log.info("hello", 42)`)
	msgs := h.messages(protocol.MsgLog)
	if len(msgs) != 1 {
		t.Fatalf("got %d log messages", len(msgs))
	}
	var line protocol.LogMessage
	if err := msgs[0].Decode(&line); err != nil {
		t.Fatal(err)
	}
	if line.Level != "info" || line.Module != "test/action" || line.Text != "hello 42" {
		t.Errorf("line = %+v", line)
	}
}

func TestSystemExec(t *testing.T) {
	cmd := &fakeCommander{outputs: map[string]Output{
		"echo hi": {Stdout: "hi\n", Code: 0},
		"false":   {Code: 1},
	}}
	h := newHarness(t, Backends{Exec: cmd})
	h.mustRun(t, `
		local r = system.exec("echo", {"hi"}):wait()
		t.record(r.value.stdout)
		t.record(system.exec("false"):wait().value.code)
		t.record(system.exec("missing"):wait().ok)
	`)
	got := h.rec.values()
	if len(got) != 3 || got[0] != "hi\n" || got[1] != float64(1) || got[2] != false {
		t.Errorf("got %v", got)
	}
	if err := h.run(t, `system.exec("")`); err == nil {
		t.Error("empty command accepted")
	}
}

func TestRunOKReportsStderr(t *testing.T) {
	cmd := &fakeCommander{outputs: map[string]Output{"x y": {Stderr: "bad thing\n", Code: 2}}}
	_, err := runOK(context.Background(), cmd, "x", "y")
	if err == nil || err.Error() != "x y: bad thing" {
		t.Errorf("err = %v", err)
	}
	if _, err := runOK(context.Background(), cmd, "z"); err == nil {
		t.Error("missing program not reported")
	}
}

func TestMediaCommands(t *testing.T) {
	cmd := &fakeCommander{outputs: map[string]Output{
		"playerctl play-pause": {},
		"playerctl status":     {Stdout: "Playing\n"},
		"playerctl metadata --format {{artist}}\t{{title}}\t{{album}}\t{{mpris:length}}": {
			Stdout: "Artist\tSong\tAlbum\t1000\n",
		},
	}}
	h := newHarness(t, Backends{Exec: cmd})
	h.mustRun(t, `
		t.record(media.toggle():wait().ok)
		t.record(media.status():wait().value)
		t.record(media.metadata():wait().value.title)
		t.record(media.next():wait().ok)
	`)
	got := h.rec.values()
	if len(got) != 4 || got[0] != true || got[1] != "Playing" || got[2] != "Song" || got[3] != false {
		t.Errorf("got %v", got)
	}
}

func TestInputCommands(t *testing.T) {
	cmd := &fakeCommander{outputs: map[string]Output{
		"xdotool key --clearmodifiers ctrl+c": {},
		"xdotool mousemove 10 20":             {},
	}}
	h := newHarness(t, Backends{Exec: cmd})
	h.mustRun(t, `
		t.record(input.key("ctrl+c").ok)
		t.record(input.mouseMove(10, 20).ok)
		t.record(input.click(3).ok)
	`)
	got := h.rec.values()
	if len(got) != 3 || got[0] != true || got[1] != true || got[2] != false {
		t.Errorf("got %v", got)
	}
	if err := h.run(t, `input.key("")`); err == nil {
		t.Error("empty key accepted")
	}
	if err := h.run(t, `input.click(12)`); err == nil {
		t.Error("bad button accepted")
	}
}

type fakeWindows struct {
	wins    []Window
	focused string
}

func (f *fakeWindows) Active(context.Context) (Window, error) { return f.wins[0], nil }

func (f *fakeWindows) Find(_ context.Context, title string) ([]Window, error) {
	var out []Window
	for _, w := range f.wins {
		if w.Title == title {
			out = append(out, w)
		}
	}
	return out, nil
}

func (f *fakeWindows) Focus(_ context.Context, id string) error {
	for _, w := range f.wins {
		if w.ID == id {
			f.focused = id
			return nil
		}
	}
	return ErrWindowNotFound
}

func (f *fakeWindows) Minimize(context.Context, string) error { return nil }
func (f *fakeWindows) Maximize(context.Context, string) error { return nil }
func (f *fakeWindows) Close(context.Context, string) error    { return errors.New("refused") }

func (f *fakeWindows) Move(context.Context, string, int, int, int, int) error { return nil }

func (f *fakeWindows) List(context.Context) ([]Window, error) { return f.wins, nil }

func TestWindowsResults(t *testing.T) {
	wins := &fakeWindows{wins: []Window{{ID: "1", Title: "Editor"}, {ID: "2", Title: "Browser"}}}
	h := newHarness(t, Backends{Windows: wins})
	h.mustRun(t, `
		local w = windows.find("Browser"):unwrap()
		t.record(windows.focus(w.id).ok)
		local missing = windows.find("Nothing")
		t.record(missing.ok)
		t.record(missing.err)
		t.record(windows.close("1").err)
		t.record(#windows.list().value)
		t.record(windows.active().value.title)
	`)
	got := h.rec.values()
	if len(got) != 6 || got[0] != true || got[1] != false {
		t.Fatalf("got %v", got)
	}
	if got[2] != `window not found: "Nothing"` || got[3] != "refused" || got[4] != float64(2) || got[5] != "Editor" {
		t.Errorf("got %v", got)
	}
	if wins.focused != "2" {
		t.Errorf("focused %q", wins.focused)
	}
	if err := h.run(t, `windows.focus("")`); err == nil {
		t.Error("empty id accepted")
	}
}

func TestMenuMessages(t *testing.T) {
	h := newHarness(t, Backends{})
	h.mustRun(t, `
		menu.open({
			{id = "vol", actionId = "builtin:volume-up"},
			{id = "term", icon = "icons/term.png", actionId = "apps/terminal"},
		})
		menu.setSize(240)
		menu.message("Muted", 800)
		menu.focus("vol")
		menu.close()
	`)
	all := h.queue.Drain()
	types := make([]protocol.MessageType, len(all))
	for i, m := range all {
		types[i] = m.Type
	}
	want := []protocol.MessageType{protocol.MsgMenuOpen, protocol.MsgMenuSize, protocol.MsgMenuMessage, protocol.MsgMenuFocus, protocol.MsgMenuClose}
	if fmt.Sprint(types) != fmt.Sprint(want) {
		t.Fatalf("types = %v", types)
	}
	var open protocol.MenuOpenMessage
	if err := all[0].Decode(&open); err != nil {
		t.Fatal(err)
	}
	if len(open.Options) != 2 {
		t.Fatalf("options = %+v", open.Options)
	}
	if open.Options[0].ActionID == "builtin:volume-up" || open.Options[0].Icon.Ref != "volume-up" {
		t.Errorf("built-in not resolved: %+v", open.Options[0])
	}
	if open.Options[1].ActionID != "apps/terminal" || open.Options[1].Icon.Ref != "icons/term.png" {
		t.Errorf("plain option changed: %+v", open.Options[1])
	}
	if err := h.run(t, `menu.setOptions({{id = "x", actionId = "builtin:nope"}})`); err == nil {
		t.Error("unknown built-in accepted")
	}
	if err := h.run(t, `menu.setSize(0)`); err == nil {
		t.Error("zero size accepted")
	}
}
