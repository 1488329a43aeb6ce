package canvas

import (
	"fmt"
	"math"

	"github.com/fogleman/gg"
)

// FillRule selects how overlapping sub-paths are filled.
type FillRule int

const (
	NonZero FillRule = iota
	EvenOdd
)

type pathOp func(dc *gg.Context)

// Path records sub-path commands and replays them onto a drawing context.
// Angles are in degrees.
type Path struct {
	ops      []pathOp
	rule     FillRule
	cur      gg.Point
	start    gg.Point
	hasPoint bool
}

// NewPath returns an empty path using the non-zero fill rule.
func NewPath() *Path {
	return &Path{}
}

// SetFillRule changes the rule used when the path is filled.
func (p *Path) SetFillRule(rule FillRule) *Path {
	p.rule = rule
	return p
}

// FillRule returns the path's fill rule.
func (p *Path) FillRule() FillRule {
	return p.rule
}

// Len returns the number of recorded commands.
func (p *Path) Len() int {
	return len(p.ops)
}

// CurrentPoint returns the pen position, if any.
func (p *Path) CurrentPoint() (x, y float64, ok bool) {
	return p.cur.X, p.cur.Y, p.hasPoint
}

func (p *Path) moved(x, y float64) {
	p.cur = gg.Point{X: x, Y: y}
	p.hasPoint = true
}

// MoveTo starts a new sub-path.
func (p *Path) MoveTo(x, y float64) *Path {
	p.ops = append(p.ops, func(dc *gg.Context) { dc.MoveTo(x, y) })
	p.moved(x, y)
	p.start = p.cur
	return p
}

// LineTo adds a straight segment.
func (p *Path) LineTo(x, y float64) *Path {
	if !p.hasPoint {
		return p.MoveTo(x, y)
	}
	p.ops = append(p.ops, func(dc *gg.Context) { dc.LineTo(x, y) })
	p.moved(x, y)
	return p
}

// QuadTo adds a quadratic Bézier segment.
func (p *Path) QuadTo(cx, cy, x, y float64) *Path {
	if !p.hasPoint {
		p.MoveTo(cx, cy)
	}
	p.ops = append(p.ops, func(dc *gg.Context) { dc.QuadraticTo(cx, cy, x, y) })
	p.moved(x, y)
	return p
}

// CubicTo adds a cubic Bézier segment.
func (p *Path) CubicTo(c1x, c1y, c2x, c2y, x, y float64) *Path {
	if !p.hasPoint {
		p.MoveTo(c1x, c1y)
	}
	p.ops = append(p.ops, func(dc *gg.Context) { dc.CubicTo(c1x, c1y, c2x, c2y, x, y) })
	p.moved(x, y)
	return p
}

// Arc adds a circular arc centered at (cx, cy), connected to the current point.
func (p *Path) Arc(cx, cy, r, startDeg, sweepDeg float64) error {
	if r <= 0 {
		return fmt.Errorf("%w: arc radius must be positive", ErrInvalidArgument)
	}
	a1 := gg.Radians(startDeg)
	a2 := gg.Radians(startDeg + sweepDeg)
	p.ops = append(p.ops, func(dc *gg.Context) { dc.DrawArc(cx, cy, r, a1, a2) })
	p.moved(cx+r*math.Cos(a2), cy+r*math.Sin(a2))
	return nil
}

// ArcTo adds a line toward (x1, y1) ending in an arc of radius r tangent to
// both (cur → x1,y1) and (x1,y1 → x2,y2).
func (p *Path) ArcTo(x1, y1, x2, y2, r float64) error {
	if r < 0 {
		return fmt.Errorf("%w: arcTo radius must not be negative", ErrInvalidArgument)
	}
	if !p.hasPoint {
		p.MoveTo(x1, y1)
		return nil
	}
	x0, y0 := p.cur.X, p.cur.Y
	v1x, v1y := x0-x1, y0-y1
	v2x, v2y := x2-x1, y2-y1
	l1 := math.Hypot(v1x, v1y)
	l2 := math.Hypot(v2x, v2y)
	if r == 0 || l1 == 0 || l2 == 0 {
		p.LineTo(x1, y1)
		return nil
	}
	v1x, v1y = v1x/l1, v1y/l1
	v2x, v2y = v2x/l2, v2y/l2
	cross := v1x*v2y - v1y*v2x
	if math.Abs(cross) < 1e-9 {
		p.LineTo(x1, y1)
		return nil
	}
	theta := math.Acos(math.Max(-1, math.Min(1, v1x*v2x+v1y*v2y)))
	tangent := r / math.Tan(theta/2)
	t1x, t1y := x1+v1x*tangent, y1+v1y*tangent
	t2x, t2y := x1+v2x*tangent, y1+v2y*tangent

	bx, by := v1x+v2x, v1y+v2y
	bl := math.Hypot(bx, by)
	dist := r / math.Sin(theta/2)
	cx, cy := x1+bx/bl*dist, y1+by/bl*dist

	a1 := math.Atan2(t1y-cy, t1x-cx)
	a2 := math.Atan2(t2y-cy, t2x-cx)
	sweep := a2 - a1
	for sweep > math.Pi {
		sweep -= 2 * math.Pi
	}
	for sweep <= -math.Pi {
		sweep += 2 * math.Pi
	}

	p.LineTo(t1x, t1y)
	end := a1 + sweep
	p.ops = append(p.ops, func(dc *gg.Context) { dc.DrawArc(cx, cy, r, a1, end) })
	p.moved(t2x, t2y)
	return nil
}

// Rect adds a closed rectangle sub-path.
func (p *Path) Rect(x, y, w, h float64) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: rect width and height must be positive", ErrInvalidArgument)
	}
	p.MoveTo(x, y)
	p.LineTo(x+w, y)
	p.LineTo(x+w, y+h)
	p.LineTo(x, y+h)
	p.Close()
	return nil
}

// RoundRect adds a closed rectangle with elliptical corners of radii rx, ry.
func (p *Path) RoundRect(x, y, w, h, rx, ry float64) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: rect width and height must be positive", ErrInvalidArgument)
	}
	if rx <= 0 || ry <= 0 {
		return fmt.Errorf("%w: corner radius must be positive", ErrInvalidArgument)
	}
	p.ops = append(p.ops, func(dc *gg.Context) { roundRect(dc, x, y, w, h, rx, ry) })
	p.moved(x, y)
	p.start = p.cur
	return nil
}

// Oval adds a closed ellipse inscribed in the given box.
func (p *Path) Oval(x, y, w, h float64) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: oval width and height must be positive", ErrInvalidArgument)
	}
	p.ops = append(p.ops, func(dc *gg.Context) { dc.DrawEllipse(x+w/2, y+h/2, w/2, h/2) })
	p.moved(x+w, y+h/2)
	p.start = p.cur
	return nil
}

// Polygon adds a sub-path through points given as x1, y1, x2, y2, ...
func (p *Path) Polygon(coords []float64, closed bool) error {
	if len(coords) < 4 || len(coords)%2 != 0 {
		return fmt.Errorf("%w: polygon needs at least two points", ErrInvalidArgument)
	}
	p.MoveTo(coords[0], coords[1])
	for i := 2; i < len(coords); i += 2 {
		p.LineTo(coords[i], coords[i+1])
	}
	if closed {
		p.Close()
	}
	return nil
}

// Close closes the current sub-path.
func (p *Path) Close() *Path {
	p.ops = append(p.ops, func(dc *gg.Context) { dc.ClosePath() })
	p.cur = p.start
	return p
}

// replay draws the recorded commands onto dc as a fresh path.
func (p *Path) replay(dc *gg.Context) {
	dc.ClearPath()
	if p.rule == EvenOdd {
		dc.SetFillRule(gg.FillRuleEvenOdd)
	} else {
		dc.SetFillRule(gg.FillRuleWinding)
	}
	for _, op := range p.ops {
		op(dc)
	}
}

// roundRect draws a rectangle with elliptical corners, clamping radii to half the sides.
func roundRect(dc *gg.Context, x, y, w, h, rx, ry float64) {
	rx = math.Min(rx, w/2)
	ry = math.Min(ry, h/2)
	dc.NewSubPath()
	dc.MoveTo(x+rx, y)
	dc.LineTo(x+w-rx, y)
	dc.DrawEllipticalArc(x+w-rx, y+ry, rx, ry, -math.Pi/2, 0)
	dc.LineTo(x+w, y+h-ry)
	dc.DrawEllipticalArc(x+w-rx, y+h-ry, rx, ry, 0, math.Pi/2)
	dc.LineTo(x+rx, y+h)
	dc.DrawEllipticalArc(x+rx, y+h-ry, rx, ry, math.Pi/2, math.Pi)
	dc.LineTo(x, y+ry)
	dc.DrawEllipticalArc(x+rx, y+ry, rx, ry, math.Pi, 3*math.Pi/2)
	dc.ClosePath()
}
