// Test Design: test-HostModules.md
package modules

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	lua "github.com/yuin/gopher-lua"

	host "github.com/zot/radial/internal/lua"
	"github.com/zot/radial/internal/protocol"
	"github.com/zot/radial/internal/storage"
)

func TestFS(t *testing.T) {
	h := newHarness(t, Backends{})
	dir := t.TempDir()
	h.in.L.SetGlobal("dir", host.GoToLua(h.in.L, dir))
	h.mustRun(t, `
		local sub = dir .. "/a/b"
		t.record(fs.mkdir(sub).ok)
		t.record(fs.write(sub .. "/x.txt", "one").ok)
		fs.append(sub .. "/x.txt", "+two")
		t.record(fs.read(sub .. "/x.txt").value)
		t.record(fs.exists(sub .. "/x.txt").value)
		t.record(fs.list(sub).value[1].name)
		t.record(fs.remove(sub .. "/x.txt").ok)
		t.record(fs.exists(sub .. "/x.txt").value)
		t.record(fs.read(sub .. "/missing").ok)
	`)
	got := h.rec.values()
	want := []any{true, true, "one+two", true, "x.txt", true, false, false}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("value %d = %v, want %v", i, got[i], want[i])
		}
	}
	if err := h.run(t, `fs.read("")`); err == nil || !strings.Contains(err.Error(), "path must not be empty") {
		t.Errorf("empty path: %v", err)
	}
}

func TestCacheSharedAcrossInstances(t *testing.T) {
	h := newHarness(t, Backends{})
	other, err := host.NewInstance(host.Options{ID: 2, Modules: h.set.All})
	if err != nil {
		t.Fatal(err)
	}
	defer other.Close()

	h.mustRun(t, `cache.set("count", 3); cache.set("list", {1, 2})`)
	err = other.Run(context.Background(), host.Env{}, "other", `
		assert(cache.get("count") == 3)
		assert(cache.get("list")[2] == 2)
		assert(cache.get("missing", "dflt") == "dflt")
		cache.set("count", 4)
	`)
	if err != nil {
		t.Fatal(err)
	}
	h.mustRun(t, `
		t.record(cache.get("count"))
		t.record(cache.exists("list"))
		t.record(cache.remove("list"))
		t.record(cache.exists("list"))
	`)
	got := h.rec.values()
	if len(got) != 4 || got[0] != float64(4) || got[1] != true || got[2] != true || got[3] != false {
		t.Errorf("got %v", got)
	}
	if err := h.run(t, `cache.set("f", function() end)`); err == nil {
		t.Error("function cached")
	}

	h.set.Clear()
	if n := h.set.Cache.Len(); n != 0 {
		t.Errorf("cache has %d keys after Clear", n)
	}
}

func TestCacheExclusive(t *testing.T) {
	h := newHarness(t, Backends{})
	other, err := host.NewInstance(host.Options{ID: 2, Modules: h.set.All})
	if err != nil {
		t.Fatal(err)
	}
	defer other.Close()

	entered := make(chan struct{})
	h.in.L.SetGlobal("entered", h.in.L.NewFunction(func(L *lua.LState) int {
		close(entered)
		return 0
	}))
	done := make(chan error, 1)
	go func() {
		done <- h.run(t, `
			local n = cache.exclusive(function()
				cache.set("n", 1)
				entered()
				timer.delay(50)
				cache.set("n", cache.get("n") + 1)
				return cache.get("n")
			end)
			t.record(n)
		`)
	}()
	<-entered

	start := time.Now()
	err = other.Run(context.Background(), host.Env{}, "other", `assert(cache.get("n") == 2)`)
	if err != nil {
		t.Errorf("reader saw a partial update: %v", err)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Error("reader did not wait for the exclusive section")
	}
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if got := h.rec.values(); len(got) != 1 || got[0] != float64(2) {
		t.Errorf("got %v", got)
	}
}

func TestCacheExclusiveReleasesOnError(t *testing.T) {
	h := newHarness(t, Backends{})
	if err := h.run(t, `cache.exclusive(function() error("boom") end)`); err == nil {
		t.Fatal("error swallowed")
	}
	h.set.Cache.Set("k", "v")
	if v, ok := h.set.Cache.Get("k"); !ok || v != "v" {
		t.Error("cache still locked")
	}
}

func TestStoreModule(t *testing.T) {
	backend, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatal(err)
	}
	h := newHarness(t, Backends{Store: backend})
	h.mustRun(t, `
		store.set("menu/last", {id = "vol", count = 2}):unwrap()
		store.set("menu/size", 240)
		store.set("other", "x")
		local v = store.get("menu/last"):unwrap()
		t.record(v.id)
		t.record(v.count)
		t.record(store.get("missing").value)
		t.record(#store.keys("menu/").value)
		store.remove("menu/size")
		t.record(store.keys("menu/").value[1])
	`)
	got := h.rec.values()
	if len(got) != 5 || got[0] != "vol" || got[1] != float64(2) || got[2] != nil || got[3] != float64(2) || got[4] != "menu/last" {
		t.Errorf("got %v", got)
	}
}

func TestTickerThreadsState(t *testing.T) {
	h := newHarness(t, Backends{})
	h.mustRun(t, `
		local tk = timer.ticker(5, function(state, self)
			local n = (state or 0) + 1
			t.record(n)
			if n == 3 then self:done() end
			return n
		end)
		t.record(tk:status())
		tk:start()
		t.record(tk:start())
	`)
	got := h.rec.waitFor(t, 5)
	if got[0] != "created" || got[1] != false {
		t.Fatalf("got %v", got)
	}
	for i, want := range []float64{1, 2, 3} {
		if got[i+2] != want {
			t.Errorf("tick %d state = %v", i, got[i+2])
		}
	}
	deadline := time.Now().Add(time.Second)
	for h.in.Tickers().Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	if h.in.HasBackgroundWork() {
		t.Error("ticker still live after done")
	}
	time.Sleep(20 * time.Millisecond)
	if n := len(h.rec.values()); n != 5 {
		t.Errorf("ticks after done: %d values", n)
	}
}

func TestTickerNilReturnKeepsState(t *testing.T) {
	h := newHarness(t, Backends{})
	h.mustRun(t, `
		local n = 0
		timer.ticker(5, function(state, self)
			n = n + 1
			if n == 1 then return "kept" end
			t.record(state)
			if n == 3 then self:done() end
		end):start()
	`)
	got := h.rec.waitFor(t, 2)
	if got[0] != "kept" || got[1] != "kept" {
		t.Errorf("states = %v, want [kept kept]", got)
	}
}

func TestTickerErrorStops(t *testing.T) {
	h := newHarness(t, Backends{})
	h.mustRun(t, `
		timer.ticker(5, function()
			t.record("tick")
			error("broken")
		end):start()
	`)
	h.rec.waitFor(t, 1)
	time.Sleep(30 * time.Millisecond)
	if n := len(h.rec.values()); n != 1 {
		t.Errorf("ticker ran %d times after failing", n)
	}
	if h.in.Tickers().Len() != 0 {
		t.Error("failed ticker still registered")
	}
}

func TestTimerClearStopsAllTickers(t *testing.T) {
	h := newHarness(t, Backends{})
	h.mustRun(t, `
		for i = 1, 3 do
			timer.ticker(5, function(s) return (s or 0) + 1 end):start()
		end
		timer.ticker(5, function() end)
	`)
	if n := h.set.Timer.Live(); n != 4 {
		t.Fatalf("live = %d, want 4", n)
	}
	h.set.Clear()
	if n := h.set.Timer.Live(); n != 0 {
		t.Errorf("live after Clear = %d", n)
	}
	if h.in.HasBackgroundWork() {
		t.Error("instance still reports background work")
	}
}

func TestTimerDelay(t *testing.T) {
	h := newHarness(t, Backends{})
	start := time.Now()
	h.mustRun(t, `t.record(timer.delay(20)); t.record(timer.now() > 0)`)
	if time.Since(start) < 20*time.Millisecond {
		t.Error("delay returned early")
	}
	if got := h.rec.values(); got[0] != true || got[1] != true {
		t.Errorf("got %v", got)
	}
	if err := h.run(t, `timer.ticker(0, function() end)`); err == nil {
		t.Error("zero period accepted")
	}
}

func TestCanvasDraw(t *testing.T) {
	h := newHarness(t, Backends{})
	h.mustRun(t, `
		local started = canvas.draw({
			onInit = function(ctx, args)
				ctx:paint("red", {color = "#ff0000"})
				ctx:rect(0, 0, args.width, args.height, "red")
				t.record(args.user.label)
				return 0
			end,
			onUpdate = function(ctx, args, state)
				ctx:circle(32, 32, 10, {color = "#00ff00", style = "stroke"})
				local p = ctx:path():moveTo(0, 0):lineTo(10, 0):lineTo(10, 10):close()
				ctx:drawPath(p, "red")
				if args.frame == 2 then ctx:done() end
				return state + 1
			end,
			onFrameDelay = function(ctx, args)
				ctx:sleep(1)
			end,
		}, {label = "hi"})
		t.record(started)
		local w, h = canvas.size()
		t.record(w)
	`)
	got := h.rec.values()
	if len(got) != 3 || got[0] != "hi" || got[1] != true || got[2] != float64(64) {
		t.Fatalf("got %v", got)
	}
	frames := h.messages(protocol.MsgFrame)
	if len(frames) == 0 {
		t.Fatal("no frame emitted")
	}
	var fr protocol.FrameMessage
	if err := frames[len(frames)-1].Decode(&fr); err != nil {
		t.Fatal(err)
	}
	if fr.Width != 64 || len(fr.Pixels) != 64*64*4 {
		t.Errorf("frame %dx%d with %d bytes", fr.Width, fr.Height, len(fr.Pixels))
	}
	// bottom-right pixel is red
	px := fr.Pixels[len(fr.Pixels)-4:]
	if px[0] != 0xff || px[1] != 0 || px[3] != 0xff {
		t.Errorf("pixel = %v", px)
	}
}

func TestCanvasArgumentErrors(t *testing.T) {
	h := newHarness(t, Backends{})
	for _, src := range []string{
		`canvas.draw({})`,
		`canvas.draw({onInit = function(ctx) ctx:rect(0, 0, 0, 10) end})`,
		`canvas.draw({onInit = function(ctx) ctx:circle(5, 5, -1) end})`,
		`canvas.draw({onInit = function(ctx) ctx:line(0, 0, 1, 1, "nope") end})`,
		`canvas.draw({onInit = function(ctx) ctx:paint("p", {color = "#zz"}) end})`,
		`local saved
		 canvas.draw({onInit = function(ctx) saved = ctx end})
		 saved:line(0, 0, 1, 1)`,
	} {
		if err := h.run(t, src); err == nil {
			t.Errorf("accepted: %s", src)
		}
	}
}

func TestCanvasClearEmits(t *testing.T) {
	h := newHarness(t, Backends{})
	h.mustRun(t, `canvas.clear()`)
	if len(h.messages(protocol.MsgFrame)) == 0 {
		t.Error("clear emitted no frame")
	}
}
