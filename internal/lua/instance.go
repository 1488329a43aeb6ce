// CRC: crc-Instance.md
//
// An Instance is one Lua state with the host modules installed. The pool hands
// an Instance to at most one Run at a time, but ticker callbacks and async
// continuations also enter it from their own goroutines; every entry holds the
// execution lock, which is released only at suspension points (awaiting an
// AsyncResult, timer.delay).
package lua

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/zot/radial/internal/canvas"
	"github.com/zot/radial/internal/protocol"
	"github.com/zot/radial/internal/ticker"
)

// ErrClosed is returned when entering an instance that has been torn down.
var ErrClosed = errors.New("lua instance closed")

// Env is the per-invocation view a script gets of itself, installed as the
// global table env.
type Env struct {
	Module string
	UISize int
}

// Options configures a new Instance.
type Options struct {
	ID      int
	Modules []Module
	Search  func(name string) (string, bool) // resolves require names to source
	Chunks  *ChunkCache
	Emitter protocol.Emitter
	UISize  int
	Log     func(level int, format string, args ...any)
}

// Instance is a Lua state plus the host bindings and background work that
// belong to it.
type Instance struct {
	ID int
	L  *lua.LState

	opts   Options
	life   sync.RWMutex // held shared by every entry, exclusively by Close
	mu     sync.Mutex   // execution lock
	closed bool
	env    Env

	ctx    context.Context
	cancel context.CancelFunc
	loaded *lua.LTable

	tickers *ticker.Registry
	pending atomic.Int32

	canvasMu sync.Mutex
	canvas   *canvas.Session

	closeOnce sync.Once
}

// NewInstance creates a Lua state, opens the safe standard libraries and
// installs every module as a global and as a preloaded require target.
func NewInstance(opts Options) (*Instance, error) {
	if opts.Chunks == nil {
		opts.Chunks = NewChunkCache()
	}
	if opts.Emitter == nil {
		opts.Emitter = protocol.Discard
	}
	if opts.Log == nil {
		opts.Log = func(int, string, ...any) {}
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	in := &Instance{
		ID:      opts.ID,
		L:       L,
		opts:    opts,
		tickers: ticker.NewRegistry(),
	}
	in.ctx, in.cancel = context.WithCancel(context.Background())

	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
		{lua.OsLibName, lua.OpenOs},
		{lua.CoroutineLibName, lua.OpenCoroutine},
	} {
		if err := L.CallByParam(lua.P{Fn: L.NewFunction(lib.fn), NRet: 0, Protect: true}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, fmt.Errorf("opening %s: %w", lib.name, err)
		}
	}

	in.loaded = L.NewTable()
	in.registerRequire()
	in.registerResultTypes()
	for _, m := range opts.Modules {
		in.register(m)
	}
	L.SetGlobal("env", in.envTable(L, Env{UISize: opts.UISize}))
	return in, nil
}

// Log writes through the configured logger.
func (in *Instance) Log(level int, format string, args ...any) {
	in.opts.Log(level, format, args...)
}

// Emit sends a protocol message to the embedder.
func (in *Instance) Emit(msgType protocol.MessageType, data any) {
	if err := protocol.Send(in.opts.Emitter, msgType, data); err != nil {
		in.Log(1, "Instance %d: cannot emit %s: %v", in.ID, msgType, err)
	}
}

// Context is cancelled when the instance is torn down.
func (in *Instance) Context() context.Context {
	return in.ctx
}

// Env returns the environment of the current invocation. Only meaningful
// while holding the execution lock, i.e. from inside a Func.
func (in *Instance) Env() Env {
	return in.env
}

// Tickers returns the registry of tickers created by scripts in this instance.
func (in *Instance) Tickers() *ticker.Registry {
	return in.tickers
}

// HasBackgroundWork reports live tickers or pending continuations; the pool
// keeps such instances instead of reclaiming them.
func (in *Instance) HasBackgroundWork() bool {
	return in.tickers.Len() > 0 || in.pending.Load() > 0
}

// Canvas returns this instance's drawing session, creating it on first use.
func (in *Instance) Canvas() (*canvas.Session, error) {
	in.canvasMu.Lock()
	defer in.canvasMu.Unlock()
	if in.canvas == nil {
		size := in.opts.UISize
		s, err := canvas.NewSession(size, size, func(fr canvas.Frame) {
			in.Emit(protocol.MsgFrame, protocol.FrameMessage{Width: fr.Width, Height: fr.Height, Pixels: fr.Pixels})
		})
		if err != nil {
			return nil, err
		}
		in.canvas = s
	}
	return in.canvas, nil
}

// PauseCanvas stops an in-progress draw. Safe from any goroutine.
func (in *Instance) PauseCanvas() {
	in.canvasMu.Lock()
	s := in.canvas
	in.canvasMu.Unlock()
	if s != nil {
		s.Pause()
	}
}

func (in *Instance) envTable(L *lua.LState, env Env) *lua.LTable {
	tbl := L.NewTable()
	L.SetField(tbl, "module", lua.LString(env.Module))
	L.SetField(tbl, "uiSize", lua.LNumber(env.UISize))
	return tbl
}

func (in *Instance) register(m Module) {
	L := in.L
	tbl := L.NewTable()
	for _, e := range m.Exports() {
		fn := e.Fn
		L.SetField(tbl, e.Name, L.NewFunction(func(L *lua.LState) int {
			return fn(in, L)
		}))
	}
	L.SetGlobal(m.Name(), tbl)
	L.SetField(in.loaded, m.Name(), tbl)
}

// registerRequire installs require backed by Options.Search, caching results
// in package.loaded.
func (in *Instance) registerRequire() {
	L := in.L
	loaded := in.loaded
	L.SetGlobal("require", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		if cached := L.GetField(loaded, name); cached != lua.LNil {
			L.Push(cached)
			return 1
		}
		if in.opts.Search == nil {
			L.RaiseError("module '%s' not found", name)
			return 0
		}
		source, ok := in.opts.Search(name)
		if !ok {
			L.RaiseError("module '%s' not found", name)
			return 0
		}

		// mark first so circular requires terminate
		L.SetField(loaded, name, lua.LTrue)
		fn, err := in.load(L, name, source)
		if err == nil {
			L.Push(fn)
			err = L.PCall(0, 1, nil)
		}
		if err != nil {
			L.SetField(loaded, name, lua.LNil)
			L.RaiseError("error loading module '%s': %v", name, err)
			return 0
		}
		result := L.Get(-1)
		L.Pop(1)
		if result == lua.LNil {
			result = lua.LTrue
		}
		L.SetField(loaded, name, result)
		L.Push(result)
		return 1
	}))

	pkg := L.NewTable()
	L.SetField(pkg, "loaded", loaded)
	L.SetGlobal("package", pkg)
}

func (in *Instance) load(L *lua.LState, name, source string) (*lua.LFunction, error) {
	proto, err := in.opts.Chunks.Compile(name, source)
	if err != nil {
		return nil, err
	}
	return L.NewFunctionFromProto(proto), nil
}

// Run executes source as the body of the named action with a fresh env table.
// It returns when the script returns, fails, or ctx (or the instance) is
// cancelled.
func (in *Instance) Run(ctx context.Context, env Env, name, source string) error {
	if in.ctx.Err() != nil {
		return ErrClosed
	}
	in.life.RLock()
	defer in.life.RUnlock()
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return ErrClosed
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()
	unhook := context.AfterFunc(in.ctx, stop)
	defer unhook()

	L := in.L
	in.env = env
	L.SetGlobal("env", in.envTable(L, env))
	L.SetContext(ctx)
	defer L.RemoveContext()
	defer L.SetTop(0)

	fn, err := in.load(L, name, source)
	if err != nil {
		return err
	}
	L.Push(fn)
	if err := L.PCall(0, 0, nil); err != nil {
		return fmt.Errorf("running %s: %w", name, err)
	}
	return nil
}

// Invoke calls fn from outside a Run, on a new coroutine thread, holding the
// execution lock. args builds the arguments on the calling thread.
func (in *Instance) Invoke(fn *lua.LFunction, args func(L *lua.LState) []lua.LValue) ([]lua.LValue, error) {
	if in.ctx.Err() != nil {
		return nil, ErrClosed
	}
	in.life.RLock()
	defer in.life.RUnlock()
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return nil, ErrClosed
	}

	th, cancel := in.L.NewThread()
	if cancel != nil {
		defer cancel()
	}
	th.SetContext(in.ctx)

	var argv []lua.LValue
	if args != nil {
		argv = args(th)
	}
	top := th.GetTop()
	if err := th.CallByParam(lua.P{Fn: fn, NRet: lua.MultRet, Protect: true}, argv...); err != nil {
		return nil, err
	}
	n := th.GetTop() - top
	ret := make([]lua.LValue, n)
	for i := range ret {
		ret[i] = th.Get(top + 1 + i)
	}
	th.Pop(n)
	return ret, nil
}

// Suspend releases the execution lock while fn blocks, so tickers and
// continuations can run. Only call it from inside a Func.
func (in *Instance) Suspend(fn func()) {
	in.mu.Unlock()
	defer in.mu.Lock()
	fn()
}

// Sleep suspends for d, returning early if the instance is torn down.
// It reports whether the full duration elapsed.
func (in *Instance) Sleep(d time.Duration) bool {
	if d <= 0 {
		return true
	}
	elapsed := false
	in.Suspend(func() {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			elapsed = true
		case <-in.ctx.Done():
		}
	})
	return elapsed
}

// Close stops the instance's tickers and draws, aborts any running script,
// waits for it to unwind and closes the Lua state. It must not be called from
// inside the instance.
func (in *Instance) Close() {
	in.closeOnce.Do(func() {
		in.cancel()
		in.PauseCanvas()
		if n := in.tickers.Clear(); n > 0 {
			in.Log(2, "Instance %d: stopped %d tickers", in.ID, n)
		}
		in.life.Lock()
		in.mu.Lock()
		in.closed = true
		in.L.Close()
		in.mu.Unlock()
		in.life.Unlock()
		in.Log(2, "Instance %d: closed", in.ID)
	})
}
