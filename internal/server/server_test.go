// Test Design: test-Server.md
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zot/radial/internal/action"
	"github.com/zot/radial/internal/config"
	"github.com/zot/radial/internal/pool"
	"github.com/zot/radial/internal/protocol"
)

type fakeRunner struct {
	mu      sync.Mutex
	runs    []string
	clears  int
	actions map[string]action.ActionModule
}

func newFakeRunner(names ...string) *fakeRunner {
	r := &fakeRunner{actions: make(map[string]action.ActionModule)}
	for _, n := range names {
		r.actions[n] = action.Parse(n, "")
	}
	return r
}

func (r *fakeRunner) Run(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, name)
}

func (r *fakeRunner) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clears++
}

func (r *fakeRunner) Lookup(name string) (action.ActionModule, bool) {
	m, ok := r.actions[name]
	return m, ok
}

func (r *fakeRunner) Actions() []string {
	var names []string
	for n := range r.actions {
		names = append(names, n)
	}
	return names
}

func (r *fakeRunner) Stats() pool.Stats { return pool.Stats{Live: 1, Static: 1} }

func (r *fakeRunner) snapshot() ([]string, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.runs...), r.clears
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Logging.Verbosity = 0
	return cfg
}

type fixture struct {
	srv    *Server
	runner *fakeRunner
	fanout *protocol.Fanout
	http   *httptest.Server
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	f := &fixture{runner: newFakeRunner("volume/up", "media/next"), fanout: protocol.NewFanout()}
	f.srv = New(cfg, f.runner, f.fanout)
	f.http = httptest.NewServer(f.srv.Handler())
	t.Cleanup(func() {
		f.srv.Close()
		f.http.Close()
	})
	return f
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	deadline := time.Now().Add(time.Second)
	for f.fanout.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType protocol.MessageType, data any) {
	t.Helper()
	msg, err := protocol.NewMessage(msgType, data)
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := msg.Encode()
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatal(err)
	}
}

func receive(t *testing.T, conn *websocket.Conn) *protocol.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return msg
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
	return true
}

func TestEmittedMessagesReachClients(t *testing.T) {
	f := newFixture(t, testConfig())
	a := f.dial(t)
	b := f.dial(t)
	if !waitFor(func() bool { return f.fanout.Len() == 2 }) {
		t.Fatalf("fanout has %d subscribers", f.fanout.Len())
	}

	protocol.Send(f.fanout, protocol.MsgMenuFocus, protocol.MenuFocusMessage{ID: "opt-1"})
	for _, conn := range []*websocket.Conn{a, b} {
		msg := receive(t, conn)
		var focus protocol.MenuFocusMessage
		if err := msg.Decode(&focus); err != nil {
			t.Fatal(err)
		}
		if msg.Type != protocol.MsgMenuFocus || focus.ID != "opt-1" {
			t.Errorf("got %s %+v", msg.Type, focus)
		}
	}
}

func TestRunAndClearRequests(t *testing.T) {
	f := newFixture(t, testConfig())
	conn := f.dial(t)

	send(t, conn, protocol.MsgRun, protocol.RunMessage{Action: "volume/up"})
	send(t, conn, protocol.MsgClearAll, nil)

	if !waitFor(func() bool {
		runs, clears := f.runner.snapshot()
		return len(runs) == 1 && clears == 1
	}) {
		runs, clears := f.runner.snapshot()
		t.Fatalf("runs=%v clears=%d", runs, clears)
	}
	runs, _ := f.runner.snapshot()
	if runs[0] != "volume/up" {
		t.Errorf("ran %q", runs[0])
	}
}

func TestRejectedMessagesGetErrors(t *testing.T) {
	f := newFixture(t, testConfig())
	conn := f.dial(t)

	cases := []struct {
		raw  string
		code string
	}{
		{`not json`, "parse"},
		{`{"type":"run","data":{"action":"nope"}}`, "unknown-action"},
		{`{"type":"run"}`, "invalid"},
		{`{"type":"menu.open"}`, "unsupported"},
	}
	for _, tc := range cases {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(tc.raw)); err != nil {
			t.Fatal(err)
		}
		msg := receive(t, conn)
		var e protocol.ErrorMessage
		if msg.Type != protocol.MsgError {
			t.Fatalf("%s: got %s, want error", tc.raw, msg.Type)
		}
		if err := msg.Decode(&e); err != nil {
			t.Fatal(err)
		}
		if e.Code != tc.code {
			t.Errorf("%s: code %q, want %q", tc.raw, e.Code, tc.code)
		}
	}
	if runs, _ := f.runner.snapshot(); len(runs) != 0 {
		t.Errorf("rejected messages ran %v", runs)
	}
}

func TestFramesAreThrottledToLatest(t *testing.T) {
	cfg := testConfig()
	cfg.Server.MaxFPS = 5
	f := newFixture(t, cfg)
	conn := f.dial(t)

	for i := byte(1); i <= 10; i++ {
		protocol.Send(f.fanout, protocol.MsgFrame, protocol.FrameMessage{Width: 1, Height: 1, Pixels: []byte{i, 0, 0, 255}})
	}
	protocol.Send(f.fanout, protocol.MsgMenuClose, nil)

	var frames []byte
	for {
		msg := receive(t, conn)
		if msg.Type == protocol.MsgMenuClose {
			break
		}
		var fr protocol.FrameMessage
		if err := msg.Decode(&fr); err != nil {
			t.Fatal(err)
		}
		frames = append(frames, fr.Pixels[0])
	}
	if len(frames) == 0 || len(frames) > 3 {
		t.Fatalf("received frames %v, want the burst coalesced", frames)
	}
	if frames[len(frames)-1] != 10 {
		t.Errorf("last frame %d, want 10", frames[len(frames)-1])
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	f := newFixture(t, testConfig())
	conn := f.dial(t)
	conn.Close()
	if !waitFor(func() bool { return f.fanout.Len() == 0 && f.srv.Clients() == 0 }) {
		t.Errorf("client still registered: fanout=%d clients=%d", f.fanout.Len(), f.srv.Clients())
	}
}

func TestCloseDisconnectsClients(t *testing.T) {
	f := newFixture(t, testConfig())
	conn := f.dial(t)
	done := make(chan struct{})
	go func() {
		f.srv.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection still open after Close")
	}
}

func TestStatus(t *testing.T) {
	f := newFixture(t, testConfig())
	f.dial(t)
	resp, err := http.Get(f.http.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Clients != 1 || len(st.Actions) != 2 || st.Pool.Live != 1 {
		t.Errorf("status = %+v", st)
	}
}

func TestServeStopsWithContext(t *testing.T) {
	runner := newFakeRunner()
	srv := New(testConfig(), runner, protocol.NewFanout())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ctx, ln) }()

	if !waitFor(func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/status")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}) {
		t.Fatal("server never answered")
	}
	cancel()
	select {
	case err := <-errc:
		if err != nil {
			t.Errorf("Serve = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return")
	}
}
