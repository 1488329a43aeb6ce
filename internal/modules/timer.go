// CRC: crc-TimerModule.md
package modules

import (
	"errors"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	host "github.com/zot/radial/internal/lua"
	"github.com/zot/radial/internal/ticker"
)

const tickerTypeName = "radial.Ticker"

// Timer creates tickers and delays. It remembers which instances own live
// tickers so Clear can stop all of them.
type Timer struct {
	mu     sync.Mutex
	owners map[*host.Instance]struct{}
}

func (m *Timer) Name() string { return "timer" }

func (m *Timer) Exports() []host.Export {
	return []host.Export{
		{Name: "ticker", Args: "(periodMs, fn)", Doc: "A ticker calling fn(state, t) every period once started", Fn: m.newTicker},
		{Name: "delay", Args: "(ms)", Doc: "Suspend the script; false if interrupted", Fn: m.delay},
		{Name: "now", Args: "()", Doc: "Milliseconds since the Unix epoch", Fn: m.now},
	}
}

// Clear stops every live ticker of every instance and waits for them.
func (m *Timer) Clear() {
	m.mu.Lock()
	owners := make([]*host.Instance, 0, len(m.owners))
	for in := range m.owners {
		owners = append(owners, in)
	}
	clear(m.owners)
	m.mu.Unlock()

	for _, in := range owners {
		if n := in.Tickers().Clear(); n > 0 {
			in.Log(2, "Instance %d: cleared %d tickers", in.ID, n)
		}
	}
}

// Live returns the number of live tickers across instances.
func (m *Timer) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for in := range m.owners {
		n += in.Tickers().Len()
	}
	return n
}

func (m *Timer) track(in *host.Instance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owners == nil {
		m.owners = make(map[*host.Instance]struct{})
	}
	m.owners[in] = struct{}{}
}

func (m *Timer) untrack(in *host.Instance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if in.Tickers().Len() == 0 {
		delete(m.owners, in)
	}
}

func (m *Timer) newTicker(in *host.Instance, L *lua.LState) int {
	period := time.Duration(L.CheckNumber(1) * lua.LNumber(time.Millisecond))
	if period <= 0 {
		L.ArgError(1, "period must be positive")
	}
	fn := L.CheckFunction(2)

	ud := L.NewUserData()
	L.SetMetatable(ud, tickerMetatable(L))
	m.track(in)
	t := in.Tickers().Create(period, func(state any, _ *ticker.Ticker) (any, error) {
		prev, ok := state.(lua.LValue)
		if !ok {
			prev = lua.LNil
		}
		ret, err := in.Invoke(fn, func(*lua.LState) []lua.LValue {
			return []lua.LValue{prev, ud}
		})
		if err != nil {
			return nil, err
		}
		if len(ret) == 0 || ret[0] == lua.LNil {
			return nil, nil
		}
		return ret[0], nil
	}, func(t *ticker.Ticker, err error) {
		if err != nil && !errors.Is(err, host.ErrClosed) {
			in.Log(0, "Instance %d: ticker %s stopped: %v", in.ID, t.ID, err)
		}
		m.untrack(in)
	})
	ud.Value = t
	L.Push(ud)
	return 1
}

func tickerMetatable(L *lua.LState) lua.LValue {
	if mt := L.GetTypeMetatable(tickerTypeName); mt != lua.LNil {
		return mt
	}
	mt := L.NewTypeMetatable(tickerTypeName)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"start": func(L *lua.LState) int {
			L.Push(lua.LBool(checkTicker(L).Start()))
			return 1
		},
		"done": func(L *lua.LState) int {
			checkTicker(L).Done()
			return 0
		},
		"isDone": func(L *lua.LState) int {
			L.Push(lua.LBool(checkTicker(L).IsDone()))
			return 1
		},
		"status": func(L *lua.LState) int {
			L.Push(lua.LString(checkTicker(L).Status().String()))
			return 1
		},
		"state": func(L *lua.LState) int {
			if v, ok := checkTicker(L).State().(lua.LValue); ok {
				L.Push(v)
			} else {
				L.Push(lua.LNil)
			}
			return 1
		},
	}))
	L.SetField(mt, "__tostring", L.NewFunction(func(L *lua.LState) int {
		t := checkTicker(L)
		L.Push(lua.LString("Ticker<" + t.Status().String() + ">"))
		return 1
	}))
	return mt
}

func checkTicker(L *lua.LState) *ticker.Ticker {
	ud := L.CheckUserData(1)
	t, ok := ud.Value.(*ticker.Ticker)
	if !ok {
		L.ArgError(1, "ticker expected")
	}
	return t
}

func (m *Timer) delay(in *host.Instance, L *lua.LState) int {
	d := optMillis(L, 1)
	if d < 0 {
		L.ArgError(1, "delay must not be negative")
	}
	L.Push(lua.LBool(in.Sleep(d)))
	return 1
}

func (m *Timer) now(_ *host.Instance, L *lua.LState) int {
	L.Push(lua.LNumber(time.Now().UnixMilli()))
	return 1
}
