package lua

import (
	"context"
	"errors"
	"fmt"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/zot/radial/internal/async"
)

const (
	resultTypeName = "radial.Result"
	asyncTypeName  = "radial.AsyncResult"
)

// registerResultTypes installs the metatables behind Result tables and
// AsyncResult userdata.
//
// A Result is a table {ok = bool, value = any, err = string} with methods
// r:unwrap() and r:match(onOk, onErr). An AsyncResult has a:wait([timeoutMs]),
// a:match(onOk, onErr, [timeoutMs]) and a:done().
func (in *Instance) registerResultTypes() {
	L := in.L
	rmt := L.NewTypeMetatable(resultTypeName)
	L.SetField(rmt, "__index", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"unwrap": resultUnwrap,
		"match":  resultMatch,
	}))

	amt := L.NewTypeMetatable(asyncTypeName)
	L.SetField(amt, "__index", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"wait":  in.asyncWait,
		"match": in.asyncMatch,
		"done":  asyncDone,
	}))
	L.SetField(amt, "__tostring", L.NewFunction(func(L *lua.LState) int {
		a := checkAsync(L, 1)
		state := "pending"
		if a.IsDone() {
			state = "done"
		}
		L.Push(lua.LString("AsyncResult<" + state + ">"))
		return 1
	}))
}

// NewResult builds a Result table.
func NewResult(L *lua.LState, value any, err error) *lua.LTable {
	tbl := L.NewTable()
	if err != nil {
		L.SetField(tbl, "ok", lua.LFalse)
		L.SetField(tbl, "err", lua.LString(err.Error()))
	} else {
		L.SetField(tbl, "ok", lua.LTrue)
		L.SetField(tbl, "value", GoToLua(L, value))
	}
	L.SetMetatable(tbl, L.GetTypeMetatable(resultTypeName))
	return tbl
}

// PushResult pushes a Result table and returns 1, for use as a Func's return.
func PushResult(L *lua.LState, value any, err error) int {
	L.Push(NewResult(L, value, err))
	return 1
}

// PushAsync pushes an AsyncResult userdata and returns 1.
func PushAsync(L *lua.LState, a *async.AsyncResult[any]) int {
	ud := L.NewUserData()
	ud.Value = a
	L.SetMetatable(ud, L.GetTypeMetatable(asyncTypeName))
	L.Push(ud)
	return 1
}

// Async runs fn on its own goroutine and pushes its AsyncResult.
func Async(L *lua.LState, fn func() (any, error)) int {
	return PushAsync(L, async.Go(fn))
}

func checkAsync(L *lua.LState, n int) *async.AsyncResult[any] {
	ud := L.CheckUserData(n)
	a, ok := ud.Value.(*async.AsyncResult[any])
	if !ok {
		L.ArgError(n, "AsyncResult expected")
	}
	return a
}

func resultUnwrap(L *lua.LState) int {
	tbl := L.CheckTable(1)
	if L.GetField(tbl, "ok") != lua.LTrue {
		L.RaiseError("%s", lua.LVAsString(L.GetField(tbl, "err")))
		return 0
	}
	L.Push(L.GetField(tbl, "value"))
	return 1
}

func resultMatch(L *lua.LState) int {
	tbl := L.CheckTable(1)
	onOk := L.OptFunction(2, nil)
	onErr := L.OptFunction(3, nil)
	fn, arg := onOk, L.GetField(tbl, "value")
	if L.GetField(tbl, "ok") != lua.LTrue {
		fn, arg = onErr, L.GetField(tbl, "err")
	}
	if fn == nil {
		return 0
	}
	L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: false}, arg)
	return 1
}

func asyncDone(L *lua.LState) int {
	L.Push(lua.LBool(checkAsync(L, 1).IsDone()))
	return 1
}

// asyncWait blocks the script, releasing the execution lock, until the
// operation completes, the optional timeout passes, or the instance closes.
func (in *Instance) asyncWait(L *lua.LState) int {
	a := checkAsync(L, 1)
	timeout := time.Duration(L.OptInt(2, 0)) * time.Millisecond
	var r async.Result[any]
	in.Suspend(func() {
		ctx := in.ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		r = a.WaitContext(ctx)
	})
	if errors.Is(r.Err, context.DeadlineExceeded) {
		r.Err = fmt.Errorf("%w after %v", async.ErrTimeout, timeout)
	}
	return PushResult(L, r.Value, r.Err)
}

// asyncMatch registers continuations that run later on their own thread.
func (in *Instance) asyncMatch(L *lua.LState) int {
	a := checkAsync(L, 1)
	onOk := L.OptFunction(2, nil)
	onErr := L.OptFunction(3, nil)
	timeout := time.Duration(L.OptInt(4, 0)) * time.Millisecond

	in.pending.Add(1)
	call := func(fn *lua.LFunction, arg any) {
		defer in.pending.Add(-1)
		if fn == nil {
			return
		}
		_, err := in.Invoke(fn, func(L *lua.LState) []lua.LValue {
			return []lua.LValue{GoToLua(L, arg)}
		})
		if err != nil && !errors.Is(err, ErrClosed) {
			in.Log(0, "Instance %d: async continuation failed: %v", in.ID, err)
		}
	}
	a.Match(
		func(v any) { call(onOk, v) },
		func(err error) { call(onErr, err.Error()) },
		timeout,
	)
	return 0
}
