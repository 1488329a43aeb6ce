package canvas

import (
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"
)

// ErrInvalidArgument marks caller mistakes such as a non-positive radius.
var ErrInvalidArgument = errors.New("invalid argument")

// Context is the drawing surface handed to blueprint callbacks for one Draw.
// Paints, images and fonts loaded through it live until the Draw returns.
type Context struct {
	dc     *gg.Context
	width  int
	height int

	paints map[string]*Paint
	images map[string]image.Image
	fonts  map[string]font.Face

	done   bool
	cancel <-chan struct{}
}

func newContext(buf *image.RGBA, cancel <-chan struct{}) *Context {
	b := buf.Bounds()
	return &Context{
		dc:     gg.NewContextForRGBA(buf),
		width:  b.Dx(),
		height: b.Dy(),
		paints: make(map[string]*Paint),
		images: make(map[string]image.Image),
		fonts:  make(map[string]font.Face),
		cancel: cancel,
	}
}

// Size returns the buffer dimensions.
func (c *Context) Size() (int, int) {
	return c.width, c.height
}

// Done ends the update loop after the current callback returns.
func (c *Context) Done() {
	c.done = true
}

// IsDone reports whether Done was called.
func (c *Context) IsDone() bool {
	return c.done
}

// Sleep pauses the drawing goroutine, returning early if the session is paused.
// It reports whether the full duration elapsed.
func (c *Context) Sleep(d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-c.cancel:
		return false
	}
}

// SetPaint registers a named paint for this draw.
func (c *Context) SetPaint(name string, p *Paint) {
	c.paints[name] = p
}

// Paint returns a named paint.
func (c *Context) Paint(name string) (*Paint, bool) {
	p, ok := c.paints[name]
	return p, ok
}

// LoadFont loads a TrueType face from path at the given point size under name.
func (c *Context) LoadFont(name, path string, points float64) error {
	if points <= 0 {
		return fmt.Errorf("%w: font size must be positive", ErrInvalidArgument)
	}
	face, err := gg.LoadFontFace(path, points)
	if err != nil {
		return fmt.Errorf("loading font %s: %w", path, err)
	}
	if old, ok := c.fonts[name]; ok {
		old.Close()
	}
	c.fonts[name] = face
	return nil
}

// Clear fills the whole buffer with col, or transparent when col is nil.
func (c *Context) Clear(p *Paint) {
	c.dc.Push()
	c.dc.Identity()
	c.dc.ResetClip()
	if p == nil {
		buf := c.dc.Image().(*image.RGBA)
		clear(buf.Pix)
	} else {
		c.dc.SetColor(p.Color)
		c.dc.Clear()
	}
	c.dc.Pop()
}

func (c *Context) apply(p *Paint) {
	if p == nil {
		p = DefaultPaint()
	}
	c.dc.SetColor(p.Color)
	c.dc.SetLineWidth(p.StrokeWidth)
	c.dc.SetLineCap(p.Cap)
	c.dc.SetLineJoin(p.Join)
	c.dc.SetDash(p.Dash...)
	if face, ok := c.fonts[p.Font]; ok {
		c.dc.SetFontFace(face)
	}
}

func (c *Context) paint(p *Paint) {
	if p == nil {
		p = DefaultPaint()
	}
	switch p.Style {
	case Stroke:
		c.dc.Stroke()
	case FillStroke:
		c.dc.FillPreserve()
		if p.StrokeColor != nil {
			c.dc.SetColor(p.StrokeColor)
		}
		c.dc.Stroke()
	default:
		c.dc.Fill()
	}
}

// Line strokes a segment regardless of the paint style.
func (c *Context) Line(x1, y1, x2, y2 float64, p *Paint) {
	c.apply(p)
	c.dc.DrawLine(x1, y1, x2, y2)
	c.dc.Stroke()
}

// Rect draws a rectangle. A zero radius gives square corners; rx and ry
// may differ for elliptical corners.
func (c *Context) Rect(x, y, w, h, rx, ry float64, p *Paint) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: rect width and height must be positive", ErrInvalidArgument)
	}
	if rx < 0 || ry < 0 {
		return fmt.Errorf("%w: corner radius must not be negative", ErrInvalidArgument)
	}
	c.apply(p)
	c.dc.NewSubPath()
	if rx == 0 && ry == 0 {
		c.dc.DrawRectangle(x, y, w, h)
	} else {
		if rx == 0 {
			rx = ry
		}
		if ry == 0 {
			ry = rx
		}
		roundRect(c.dc, x, y, w, h, rx, ry)
	}
	c.paint(p)
	return nil
}

// Oval draws an ellipse inscribed in the box.
func (c *Context) Oval(x, y, w, h float64, p *Paint) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: oval width and height must be positive", ErrInvalidArgument)
	}
	c.apply(p)
	c.dc.DrawEllipse(x+w/2, y+h/2, w/2, h/2)
	c.paint(p)
	return nil
}

// Circle draws a circle.
func (c *Context) Circle(cx, cy, r float64, p *Paint) error {
	if r <= 0 {
		return fmt.Errorf("%w: circle radius must be positive", ErrInvalidArgument)
	}
	c.apply(p)
	c.dc.DrawCircle(cx, cy, r)
	c.paint(p)
	return nil
}

// Arc strokes (or fills, as a chord) an arc; angles in degrees.
func (c *Context) Arc(cx, cy, r, startDeg, sweepDeg float64, p *Paint) error {
	if r <= 0 {
		return fmt.Errorf("%w: arc radius must be positive", ErrInvalidArgument)
	}
	c.apply(p)
	c.dc.NewSubPath()
	c.dc.DrawArc(cx, cy, r, gg.Radians(startDeg), gg.Radians(startDeg+sweepDeg))
	c.paint(p)
	return nil
}

// DrawPath paints a path built with Path.
func (c *Context) DrawPath(path *Path, p *Paint) {
	c.apply(p)
	path.replay(c.dc)
	c.paint(p)
	c.dc.SetFillRule(gg.FillRuleWinding)
}

// Text draws s with its baseline-left at (x, y), shifted by the paint's Align
// (0 = left, 0.5 = center, 1 = right).
func (c *Context) Text(s string, x, y float64, p *Paint) {
	c.apply(p)
	align := 0.0
	if p != nil {
		align = p.Align
	}
	c.dc.DrawStringAnchored(s, x, y, align, 0)
}

// MeasureText returns the rendered width and height of s.
func (c *Context) MeasureText(s string, p *Paint) (float64, float64) {
	c.apply(p)
	return c.dc.MeasureString(s)
}

// Image draws the image at path with its top-left at (x, y), scaled to w×h
// when both are positive. Images are cached for the rest of this draw.
func (c *Context) Image(path string, x, y, w, h float64) error {
	if w < 0 || h < 0 {
		return fmt.Errorf("%w: image size must not be negative", ErrInvalidArgument)
	}
	img, ok := c.images[path]
	if !ok {
		loaded, err := gg.LoadImage(path)
		if err != nil {
			return fmt.Errorf("loading image %s: %w", path, err)
		}
		img = loaded
		c.images[path] = img
	}
	b := img.Bounds()
	if w == 0 || h == 0 || b.Dx() == 0 || b.Dy() == 0 {
		c.dc.DrawImage(img, int(x), int(y))
		return nil
	}
	c.dc.Push()
	c.dc.Translate(x, y)
	c.dc.Scale(w/float64(b.Dx()), h/float64(b.Dy()))
	c.dc.DrawImage(img, 0, 0)
	c.dc.Pop()
	return nil
}

// Save pushes the transform and clip state.
func (c *Context) Save() { c.dc.Push() }

// Restore pops the state pushed by Save.
func (c *Context) Restore() { c.dc.Pop() }

// Translate moves the origin.
func (c *Context) Translate(x, y float64) { c.dc.Translate(x, y) }

// Rotate rotates by degrees around the origin.
func (c *Context) Rotate(deg float64) { c.dc.Rotate(gg.Radians(deg)) }

// Scale scales the axes.
func (c *Context) Scale(x, y float64) { c.dc.Scale(x, y) }

// dispose releases the per-draw caches.
func (c *Context) dispose() {
	for name, face := range c.fonts {
		face.Close()
		delete(c.fonts, name)
	}
	clear(c.images)
	clear(c.paints)
}
