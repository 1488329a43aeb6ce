// Test Design: test-CanvasSession.md
package canvas

import (
	"errors"
	"image/color"
	"sync"
	"testing"
	"time"
)

type frames struct {
	mu   sync.Mutex
	list []Frame
}

func (f *frames) sink(fr Frame) {
	f.mu.Lock()
	f.list = append(f.list, fr)
	f.mu.Unlock()
}

func (f *frames) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.list)
}

func (f *frames) last() Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.list[len(f.list)-1]
}

func pixel(fr Frame, x, y int) [4]byte {
	i := (y*fr.Width + x) * 4
	return [4]byte{fr.Pixels[i], fr.Pixels[i+1], fr.Pixels[i+2], fr.Pixels[i+3]}
}

func solid(c color.Color) *Paint {
	p := DefaultPaint()
	p.Color = c
	return p
}

func TestNewSessionRejectsEmptySize(t *testing.T) {
	if _, err := NewSession(0, 10, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestInitOnlyEmitsOneFrame(t *testing.T) {
	var f frames
	s, _ := NewSession(8, 8, f.sink)
	ran, err := s.Draw(Blueprint{
		OnInit: func(ctx *Context, args *Args) (any, error) {
			return nil, ctx.Rect(0, 0, 8, 8, 0, 0, solid(color.NRGBA{R: 255, A: 255}))
		},
	}, nil)
	if !ran || err != nil {
		t.Fatalf("Draw = %v, %v", ran, err)
	}
	if f.count() != 1 {
		t.Fatalf("frames = %d, want 1", f.count())
	}
	if got := pixel(f.last(), 4, 4); got != [4]byte{255, 0, 0, 255} {
		t.Errorf("pixel = %v, want opaque red", got)
	}
}

func TestDrawClearsBufferFirst(t *testing.T) {
	var f frames
	s, _ := NewSession(4, 4, f.sink)
	fill := Blueprint{OnInit: func(ctx *Context, _ *Args) (any, error) {
		return nil, ctx.Rect(0, 0, 4, 4, 0, 0, nil)
	}}
	s.Draw(fill, nil)
	s.Draw(Blueprint{OnInit: func(*Context, *Args) (any, error) { return nil, nil }}, nil)
	if got := pixel(f.last(), 1, 1); got[3] != 0 {
		t.Errorf("second draw started from a dirty buffer: %v", got)
	}
}

func TestUpdateLoopThreadsStateUntilDone(t *testing.T) {
	var f frames
	s, _ := NewSession(4, 4, f.sink)
	var seen []int
	ran, err := s.Draw(Blueprint{
		OnInit: func(*Context, *Args) (any, error) { return 10, nil },
		OnUpdate: func(ctx *Context, args *Args, state any) (any, error) {
			n := state.(int)
			seen = append(seen, n)
			if args.Frame == 3 {
				ctx.Done()
			}
			return n + 1, nil
		},
	}, nil)
	if !ran || err != nil {
		t.Fatalf("Draw = %v, %v", ran, err)
	}
	if len(seen) != 3 || seen[0] != 10 || seen[2] != 12 {
		t.Errorf("states = %v, want [10 11 12]", seen)
	}
	if f.count() != 4 {
		t.Errorf("frames = %d, want 4 (init + 3 updates)", f.count())
	}
}

func TestDeltaTimeIncludesFrameDelay(t *testing.T) {
	s, _ := NewSession(2, 2, nil)
	var deltas []time.Duration
	s.Draw(Blueprint{
		OnInit: func(*Context, *Args) (any, error) { return nil, nil },
		OnUpdate: func(ctx *Context, args *Args, _ any) (any, error) {
			deltas = append(deltas, args.DeltaTime)
			if args.Frame == 3 {
				ctx.Done()
			}
			return nil, nil
		},
		OnFrameDelay: func(ctx *Context, _ *Args) error {
			ctx.Sleep(5 * time.Millisecond)
			return nil
		},
	}, nil)
	if deltas[0] != 0 {
		t.Errorf("first delta = %v, want 0", deltas[0])
	}
	for i, d := range deltas[1:] {
		if d < 5*time.Millisecond {
			t.Errorf("delta %d = %v, want >= 5ms", i+1, d)
		}
	}
}

func TestReentrantDrawIsIgnored(t *testing.T) {
	s, _ := NewSession(2, 2, nil)
	entered := make(chan struct{})
	release := make(chan struct{})
	var inits int
	var mu sync.Mutex
	bp := Blueprint{
		OnInit: func(*Context, *Args) (any, error) {
			mu.Lock()
			inits++
			mu.Unlock()
			return nil, nil
		},
		OnUpdate: func(ctx *Context, _ *Args, _ any) (any, error) {
			close(entered)
			<-release
			ctx.Done()
			return nil, nil
		},
	}
	done := make(chan struct{})
	go func() {
		s.Draw(bp, nil)
		close(done)
	}()
	<-entered

	start := time.Now()
	ran, err := s.Draw(bp, nil)
	if ran || err != nil {
		t.Errorf("second Draw = %v, %v, want false, nil", ran, err)
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Error("second Draw blocked")
	}
	close(release)
	<-done
	if inits != 1 {
		t.Errorf("OnInit ran %d times", inits)
	}
	if s.IsDrawing() {
		t.Error("session still drawing")
	}
}

func TestPauseInterruptsSleepAndEndsLoop(t *testing.T) {
	s, _ := NewSession(2, 2, nil)
	sleeping := make(chan struct{})
	var once sync.Once
	var completed bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Draw(Blueprint{
			OnInit:   func(*Context, *Args) (any, error) { return nil, nil },
			OnUpdate: func(*Context, *Args, any) (any, error) { return nil, nil },
			OnFrameDelay: func(ctx *Context, _ *Args) error {
				once.Do(func() { close(sleeping) })
				completed = ctx.Sleep(10 * time.Second)
				return nil
			},
		}, nil)
	}()
	<-sleeping
	s.Pause()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Pause did not end the draw")
	}
	if completed {
		t.Error("Sleep reported full duration after Pause")
	}
}

func TestPauseWhenIdleIsNoop(t *testing.T) {
	s, _ := NewSession(2, 2, nil)
	s.Pause()
	ran, _ := s.Draw(Blueprint{OnInit: func(*Context, *Args) (any, error) { return nil, nil }}, nil)
	if !ran {
		t.Error("Draw after idle Pause should run")
	}
}

func TestShapeArgumentsAreValidated(t *testing.T) {
	s, _ := NewSession(4, 4, nil)
	s.Draw(Blueprint{OnInit: func(ctx *Context, _ *Args) (any, error) {
		cases := map[string]error{
			"rect zero width":  ctx.Rect(0, 0, 0, 2, 0, 0, nil),
			"rect neg radius":  ctx.Rect(0, 0, 2, 2, -1, 0, nil),
			"oval neg height":  ctx.Oval(0, 0, 2, -2, nil),
			"circle zero":      ctx.Circle(1, 1, 0, nil),
			"arc neg radius":   ctx.Arc(1, 1, -1, 0, 90, nil),
			"image neg width":  ctx.Image("x.png", 0, 0, -1, 1),
			"font zero points": ctx.LoadFont("f", "x.ttf", 0),
		}
		for name, err := range cases {
			if !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("%s: err = %v, want ErrInvalidArgument", name, err)
			}
		}
		return nil, nil
	}}, nil)
}

func TestPathFillRule(t *testing.T) {
	for _, tc := range []struct {
		rule   FillRule
		filled bool
	}{
		{NonZero, true},
		{EvenOdd, false},
	} {
		var f frames
		s, _ := NewSession(20, 20, f.sink)
		s.Draw(Blueprint{OnInit: func(ctx *Context, _ *Args) (any, error) {
			p := NewPath().SetFillRule(tc.rule)
			p.Rect(0, 0, 20, 20)
			p.Rect(5, 5, 10, 10)
			ctx.DrawPath(p, nil)
			return nil, nil
		}}, nil)
		center := pixel(f.last(), 10, 10)
		if (center[3] != 0) != tc.filled {
			t.Errorf("rule %v: center alpha = %d, want filled=%v", tc.rule, center[3], tc.filled)
		}
		if edge := pixel(f.last(), 2, 2); edge[3] == 0 {
			t.Errorf("rule %v: ring not filled", tc.rule)
		}
	}
}

func TestPathArgumentsAreValidated(t *testing.T) {
	p := NewPath()
	if err := p.Arc(0, 0, 0, 0, 90); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Arc err = %v", err)
	}
	if err := p.RoundRect(0, 0, 10, 10, 0, 2); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("RoundRect err = %v", err)
	}
	if err := p.Polygon([]float64{1, 2, 3}, true); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Polygon err = %v", err)
	}
	if err := p.ArcTo(1, 1, 2, 2, -1); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("ArcTo err = %v", err)
	}
}

func TestArcToEndsOnSecondTangent(t *testing.T) {
	p := NewPath().MoveTo(0, 0)
	if err := p.ArcTo(10, 0, 10, 10, 5); err != nil {
		t.Fatal(err)
	}
	x, y, _ := p.CurrentPoint()
	if abs(x-10) > 1e-9 || abs(y-5) > 1e-9 {
		t.Errorf("current point = (%v, %v), want (10, 5)", x, y)
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func TestParseColor(t *testing.T) {
	for in, want := range map[string]color.NRGBA{
		"#f00":      {R: 255, A: 255},
		"#00ff00":   {G: 255, A: 255},
		"#0000ff80": {B: 255, A: 128},
	} {
		c, err := ParseColor(in)
		if err != nil {
			t.Errorf("%s: %v", in, err)
			continue
		}
		if c != want {
			t.Errorf("%s = %v, want %v", in, c, want)
		}
	}
	if _, err := ParseColor("#12"); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("bad color err = %v", err)
	}
}

func TestClearEmitsTransparentFrame(t *testing.T) {
	var f frames
	s, _ := NewSession(3, 3, f.sink)
	s.Clear()
	if f.count() != 1 {
		t.Fatalf("frames = %d", f.count())
	}
	for _, b := range f.last().Pixels {
		if b != 0 {
			t.Fatal("frame not transparent")
		}
	}
}
