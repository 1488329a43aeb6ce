// CRC: crc-CanvasModule.md
package modules

import (
	"fmt"
	"time"

	"github.com/fogleman/gg"
	lua "github.com/yuin/gopher-lua"

	"github.com/zot/radial/internal/canvas"
	host "github.com/zot/radial/internal/lua"
)

const (
	canvasContextType = "radial.CanvasContext"
	canvasPathType    = "radial.CanvasPath"
)

// Canvas drives the instance's drawing session from a blueprint table
// {onInit = fn(ctx, args), onUpdate = fn(ctx, args, state), onFrameDelay = fn(ctx, args)}.
type Canvas struct{}

func (m *Canvas) Name() string { return "canvas" }

func (m *Canvas) Exports() []host.Export {
	return []host.Export{
		{Name: "draw", Args: "(blueprint, [args])", Doc: "Run a draw loop; false if one is already running", Fn: m.draw},
		{Name: "clear", Args: "()", Doc: "Clear the buffer and emit an empty frame", Fn: m.clear},
		{Name: "size", Args: "()", Doc: "Buffer width and height", Fn: m.size},
	}
}

func (m *Canvas) session(in *host.Instance, L *lua.LState) *canvas.Session {
	s, err := in.Canvas()
	if err != nil {
		L.RaiseError("canvas: %v", err)
	}
	return s
}

func (m *Canvas) draw(in *host.Instance, L *lua.LState) int {
	bpTable := L.CheckTable(1)
	user := L.Get(2)
	onInit, ok := L.GetField(bpTable, "onInit").(*lua.LFunction)
	if !ok {
		L.ArgError(1, "blueprint needs an onInit function")
	}
	onUpdate, _ := L.GetField(bpTable, "onUpdate").(*lua.LFunction)
	onFrameDelay, _ := L.GetField(bpTable, "onFrameDelay").(*lua.LFunction)
	s := m.session(in, L)

	var ctxUD *lua.LUserData
	wrap := func(c *canvas.Context) *lua.LUserData {
		if ctxUD == nil || ctxUD.Value != c {
			ctxUD = newContextUD(in, L, c)
		}
		return ctxUD
	}
	call := func(fn *lua.LFunction, args ...lua.LValue) (lua.LValue, error) {
		if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...); err != nil {
			return nil, err
		}
		ret := L.Get(-1)
		L.Pop(1)
		return ret, nil
	}

	bp := canvas.Blueprint{
		OnInit: func(c *canvas.Context, args *canvas.Args) (any, error) {
			return call(onInit, wrap(c), argsTable(L, args))
		},
	}
	if onUpdate != nil {
		bp.OnUpdate = func(c *canvas.Context, args *canvas.Args, state any) (any, error) {
			prev, ok := state.(lua.LValue)
			if !ok {
				prev = lua.LNil
			}
			return call(onUpdate, wrap(c), argsTable(L, args), prev)
		}
	}
	if onFrameDelay != nil {
		bp.OnFrameDelay = func(c *canvas.Context, args *canvas.Args) error {
			_, err := call(onFrameDelay, wrap(c), argsTable(L, args))
			return err
		}
	}

	started, err := s.Draw(bp, user)
	if ctxUD != nil {
		ctxUD.Value = nil
	}
	if err != nil {
		L.RaiseError("%v", err)
	}
	L.Push(lua.LBool(started))
	return 1
}

func argsTable(L *lua.LState, args *canvas.Args) *lua.LTable {
	tbl := L.NewTable()
	L.SetField(tbl, "deltaTime", lua.LNumber(float64(args.DeltaTime)/float64(time.Millisecond)))
	L.SetField(tbl, "frame", lua.LNumber(args.Frame))
	L.SetField(tbl, "width", lua.LNumber(args.Width))
	L.SetField(tbl, "height", lua.LNumber(args.Height))
	if v, ok := args.User.(lua.LValue); ok {
		L.SetField(tbl, "user", v)
	}
	return tbl
}

func (m *Canvas) clear(in *host.Instance, L *lua.LState) int {
	m.session(in, L).Clear()
	return 0
}

func (m *Canvas) size(in *host.Instance, L *lua.LState) int {
	w, h := m.session(in, L).Size()
	L.Push(lua.LNumber(w))
	L.Push(lua.LNumber(h))
	return 2
}

// contextUD is the script handle for one draw's context. It is invalidated
// when the draw ends.
type contextUD struct {
	in *host.Instance
	c  *canvas.Context
}

func newContextUD(in *host.Instance, L *lua.LState, c *canvas.Context) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = c
	L.SetMetatable(ud, contextMetatable(L, in))
	return ud
}

func contextMetatable(L *lua.LState, in *host.Instance) lua.LValue {
	if mt := L.GetTypeMetatable(canvasContextType); mt != lua.LNil {
		return mt
	}
	mt := L.NewTypeMetatable(canvasContextType)
	methods := map[string]lua.LGFunction{}
	for name, fn := range contextMethods {
		methods[name] = func(L *lua.LState) int {
			return fn(&contextUD{in: in, c: checkContext(L)}, L)
		}
	}
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), methods))
	return mt
}

func checkContext(L *lua.LState) *canvas.Context {
	ud := L.CheckUserData(1)
	c, ok := ud.Value.(*canvas.Context)
	if !ok || c == nil {
		L.ArgError(1, "canvas context is not drawing")
	}
	return c
}

// raise turns drawing errors into script errors.
func raise(L *lua.LState, err error) {
	if err != nil {
		L.RaiseError("%v", err)
	}
}

var contextMethods = map[string]func(u *contextUD, L *lua.LState) int{
	"size": func(u *contextUD, L *lua.LState) int {
		w, h := u.c.Size()
		L.Push(lua.LNumber(w))
		L.Push(lua.LNumber(h))
		return 2
	},
	"done": func(u *contextUD, L *lua.LState) int {
		u.c.Done()
		return 0
	},
	"isDone": func(u *contextUD, L *lua.LState) int {
		L.Push(lua.LBool(u.c.IsDone()))
		return 1
	},
	"sleep": func(u *contextUD, L *lua.LState) int {
		d := optMillis(L, 2)
		completed := true
		u.in.Suspend(func() { completed = u.c.Sleep(d) })
		L.Push(lua.LBool(completed))
		return 1
	},
	"clear": func(u *contextUD, L *lua.LState) int {
		var p *canvas.Paint
		if L.GetTop() >= 2 && L.Get(2) != lua.LNil {
			p = optPaint(u.c, L, 2)
		}
		u.c.Clear(p)
		return 0
	},
	"paint": func(u *contextUD, L *lua.LState) int {
		name := checkName(L, 2, "paint name")
		p, err := paintFromTable(L.CheckTable(3))
		if err != nil {
			L.ArgError(3, err.Error())
		}
		u.c.SetPaint(name, p)
		return 0
	},
	"font": func(u *contextUD, L *lua.LState) int {
		name := checkName(L, 2, "font name")
		path := checkName(L, 3, "font path")
		size := float64(L.CheckNumber(4))
		return host.PushResult(L, name, u.c.LoadFont(name, path, size))
	},
	"line": func(u *contextUD, L *lua.LState) int {
		x1, y1, x2, y2 := num(L, 2), num(L, 3), num(L, 4), num(L, 5)
		u.c.Line(x1, y1, x2, y2, optPaint(u.c, L, 6))
		return 0
	},
	"rect": func(u *contextUD, L *lua.LState) int {
		x, y, w, h := num(L, 2), num(L, 3), num(L, 4), num(L, 5)
		p := optPaint(u.c, L, 6)
		rx := float64(L.OptNumber(7, 0))
		ry := float64(L.OptNumber(8, lua.LNumber(rx)))
		raise(L, u.c.Rect(x, y, w, h, rx, ry, p))
		return 0
	},
	"oval": func(u *contextUD, L *lua.LState) int {
		x, y, w, h := num(L, 2), num(L, 3), num(L, 4), num(L, 5)
		raise(L, u.c.Oval(x, y, w, h, optPaint(u.c, L, 6)))
		return 0
	},
	"circle": func(u *contextUD, L *lua.LState) int {
		cx, cy, r := num(L, 2), num(L, 3), num(L, 4)
		raise(L, u.c.Circle(cx, cy, r, optPaint(u.c, L, 5)))
		return 0
	},
	"arc": func(u *contextUD, L *lua.LState) int {
		cx, cy, r, start, sweep := num(L, 2), num(L, 3), num(L, 4), num(L, 5), num(L, 6)
		raise(L, u.c.Arc(cx, cy, r, start, sweep, optPaint(u.c, L, 7)))
		return 0
	},
	"text": func(u *contextUD, L *lua.LState) int {
		s := L.CheckString(2)
		x, y := num(L, 3), num(L, 4)
		u.c.Text(s, x, y, optPaint(u.c, L, 5))
		return 0
	},
	"measure": func(u *contextUD, L *lua.LState) int {
		w, h := u.c.MeasureText(L.CheckString(2), optPaint(u.c, L, 3))
		L.Push(lua.LNumber(w))
		L.Push(lua.LNumber(h))
		return 2
	},
	"image": func(u *contextUD, L *lua.LState) int {
		path := checkName(L, 2, "image path")
		x, y := num(L, 3), num(L, 4)
		w := float64(L.OptNumber(5, 0))
		h := float64(L.OptNumber(6, 0))
		return host.PushResult(L, path, u.c.Image(path, x, y, w, h))
	},
	"path": func(u *contextUD, L *lua.LState) int {
		ud := L.NewUserData()
		ud.Value = canvas.NewPath()
		L.SetMetatable(ud, pathMetatable(L))
		L.Push(ud)
		return 1
	},
	"drawPath": func(u *contextUD, L *lua.LState) int {
		p := checkPath(L, 2)
		u.c.DrawPath(p, optPaint(u.c, L, 3))
		return 0
	},
	"save": func(u *contextUD, L *lua.LState) int {
		u.c.Save()
		return 0
	},
	"restore": func(u *contextUD, L *lua.LState) int {
		u.c.Restore()
		return 0
	},
	"translate": func(u *contextUD, L *lua.LState) int {
		u.c.Translate(num(L, 2), num(L, 3))
		return 0
	},
	"rotate": func(u *contextUD, L *lua.LState) int {
		u.c.Rotate(num(L, 2))
		return 0
	},
	"scale": func(u *contextUD, L *lua.LState) int {
		x := num(L, 2)
		u.c.Scale(x, float64(L.OptNumber(3, lua.LNumber(x))))
		return 0
	},
}

func num(L *lua.LState, n int) float64 {
	return float64(L.CheckNumber(n))
}

// optPaint accepts a registered paint name, an inline paint table or nil.
func optPaint(c *canvas.Context, L *lua.LState, n int) *canvas.Paint {
	switch v := L.Get(n).(type) {
	case *lua.LNilType:
		return nil
	case lua.LString:
		p, ok := c.Paint(string(v))
		if !ok {
			L.ArgError(n, fmt.Sprintf("unknown paint %q", string(v)))
		}
		return p
	case *lua.LTable:
		p, err := paintFromTable(v)
		if err != nil {
			L.ArgError(n, err.Error())
		}
		return p
	}
	L.ArgError(n, "paint name or table expected")
	return nil
}

// paintFromTable reads {color, strokeColor, style, strokeWidth, cap, join,
// dash, font, align} over the default paint.
func paintFromTable(tbl *lua.LTable) (*canvas.Paint, error) {
	p := canvas.DefaultPaint()
	var err error
	if s, ok := tbl.RawGetString("color").(lua.LString); ok {
		if p.Color, err = canvas.ParseColor(string(s)); err != nil {
			return nil, err
		}
	}
	if s, ok := tbl.RawGetString("strokeColor").(lua.LString); ok {
		if p.StrokeColor, err = canvas.ParseColor(string(s)); err != nil {
			return nil, err
		}
	}
	if s, ok := tbl.RawGetString("style").(lua.LString); ok {
		if p.Style, err = canvas.ParseStyle(string(s)); err != nil {
			return nil, err
		}
	}
	if n, ok := tbl.RawGetString("strokeWidth").(lua.LNumber); ok {
		if n < 0 {
			return nil, fmt.Errorf("%w: strokeWidth must not be negative", canvas.ErrInvalidArgument)
		}
		p.StrokeWidth = float64(n)
	}
	switch tbl.RawGetString("cap") {
	case lua.LString("butt"):
		p.Cap = gg.LineCapButt
	case lua.LString("square"):
		p.Cap = gg.LineCapSquare
	}
	if tbl.RawGetString("join") == lua.LString("bevel") {
		p.Join = gg.LineJoinBevel
	}
	if dash, ok := tbl.RawGetString("dash").(*lua.LTable); ok {
		for i := 1; i <= dash.Len(); i++ {
			if n, ok := dash.RawGetInt(i).(lua.LNumber); ok {
				p.Dash = append(p.Dash, float64(n))
			}
		}
	}
	if s, ok := tbl.RawGetString("font").(lua.LString); ok {
		p.Font = string(s)
	}
	if n, ok := tbl.RawGetString("align").(lua.LNumber); ok {
		p.Align = float64(n)
	}
	return p, nil
}

func pathMetatable(L *lua.LState) lua.LValue {
	if mt := L.GetTypeMetatable(canvasPathType); mt != lua.LNil {
		return mt
	}
	mt := L.NewTypeMetatable(canvasPathType)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), pathMethods))
	return mt
}

func checkPath(L *lua.LState, n int) *canvas.Path {
	ud := L.CheckUserData(n)
	p, ok := ud.Value.(*canvas.Path)
	if !ok {
		L.ArgError(n, "path expected")
	}
	return p
}

// self returns the path userdata so builder calls chain.
func self(L *lua.LState, err error) int {
	raise(L, err)
	L.Push(L.Get(1))
	return 1
}

var pathMethods = map[string]lua.LGFunction{
	"moveTo": func(L *lua.LState) int {
		checkPath(L, 1).MoveTo(num(L, 2), num(L, 3))
		return self(L, nil)
	},
	"lineTo": func(L *lua.LState) int {
		checkPath(L, 1).LineTo(num(L, 2), num(L, 3))
		return self(L, nil)
	},
	"quadTo": func(L *lua.LState) int {
		checkPath(L, 1).QuadTo(num(L, 2), num(L, 3), num(L, 4), num(L, 5))
		return self(L, nil)
	},
	"cubicTo": func(L *lua.LState) int {
		checkPath(L, 1).CubicTo(num(L, 2), num(L, 3), num(L, 4), num(L, 5), num(L, 6), num(L, 7))
		return self(L, nil)
	},
	"arc": func(L *lua.LState) int {
		return self(L, checkPath(L, 1).Arc(num(L, 2), num(L, 3), num(L, 4), num(L, 5), num(L, 6)))
	},
	"arcTo": func(L *lua.LState) int {
		return self(L, checkPath(L, 1).ArcTo(num(L, 2), num(L, 3), num(L, 4), num(L, 5), num(L, 6)))
	},
	"rect": func(L *lua.LState) int {
		return self(L, checkPath(L, 1).Rect(num(L, 2), num(L, 3), num(L, 4), num(L, 5)))
	},
	"roundRect": func(L *lua.LState) int {
		rx := num(L, 6)
		ry := float64(L.OptNumber(7, lua.LNumber(rx)))
		return self(L, checkPath(L, 1).RoundRect(num(L, 2), num(L, 3), num(L, 4), num(L, 5), rx, ry))
	},
	"oval": func(L *lua.LState) int {
		return self(L, checkPath(L, 1).Oval(num(L, 2), num(L, 3), num(L, 4), num(L, 5)))
	},
	"polygon": func(L *lua.LState) int {
		tbl := L.CheckTable(2)
		coords := make([]float64, 0, tbl.Len())
		for i := 1; i <= tbl.Len(); i++ {
			n, ok := tbl.RawGetInt(i).(lua.LNumber)
			if !ok {
				L.ArgError(2, "coordinates must be numbers")
			}
			coords = append(coords, float64(n))
		}
		return self(L, checkPath(L, 1).Polygon(coords, L.OptBool(3, true)))
	},
	"close": func(L *lua.LState) int {
		checkPath(L, 1).Close()
		return self(L, nil)
	},
	"fillRule": func(L *lua.LState) int {
		p := checkPath(L, 1)
		switch L.CheckString(2) {
		case "nonzero", "winding":
			p.SetFillRule(canvas.NonZero)
		case "evenodd":
			p.SetFillRule(canvas.EvenOdd)
		default:
			L.ArgError(2, "fill rule must be \"nonzero\" or \"evenodd\"")
		}
		return self(L, nil)
	},
}
