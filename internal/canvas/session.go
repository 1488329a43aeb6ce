// Package canvas draws frames into a fixed-size pixel buffer for the menu
// overlay, driving a script-supplied blueprint through init, update and delay
// callbacks.
// CRC: crc-CanvasSession.md
package canvas

import (
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"
)

// Frame is one snapshot of the buffer: 4 bytes per pixel, premultiplied RGBA.
type Frame struct {
	Width  int
	Height int
	Pixels []byte
}

// FrameSink receives every emitted frame.
type FrameSink func(Frame)

// Args is passed to every blueprint callback.
type Args struct {
	DeltaTime time.Duration
	Frame     int
	Width     int
	Height    int
	User      any
}

// Blueprint holds the callbacks for one Draw. OnInit is required.
type Blueprint struct {
	OnInit       func(ctx *Context, args *Args) (any, error)
	OnUpdate     func(ctx *Context, args *Args, state any) (any, error)
	OnFrameDelay func(ctx *Context, args *Args) error
}

// Session owns one pixel buffer. Only one Draw runs at a time.
type Session struct {
	width  int
	height int
	buf    *image.RGBA
	sink   FrameSink

	drawing atomic.Bool
	mu      sync.Mutex
	cancel  chan struct{}
}

// NewSession allocates a width×height transparent buffer.
func NewSession(width, height int, sink FrameSink) (*Session, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: canvas size must be positive", ErrInvalidArgument)
	}
	return &Session{
		width:  width,
		height: height,
		buf:    image.NewRGBA(image.Rect(0, 0, width, height)),
		sink:   sink,
	}, nil
}

// Size returns the buffer dimensions.
func (s *Session) Size() (int, int) {
	return s.width, s.height
}

// IsDrawing reports whether a Draw is in progress.
func (s *Session) IsDrawing() bool {
	return s.drawing.Load()
}

// Draw runs bp to completion on the calling goroutine. It returns false
// without doing anything if another Draw is already running.
func (s *Session) Draw(bp Blueprint, user any) (bool, error) {
	if bp.OnInit == nil {
		return false, fmt.Errorf("%w: blueprint needs onInit", ErrInvalidArgument)
	}
	if !s.drawing.CompareAndSwap(false, true) {
		return false, nil
	}
	defer s.drawing.Store(false)

	cancel := make(chan struct{})
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cancel = nil
		s.mu.Unlock()
	}()

	ctx := newContext(s.buf, cancel)
	defer ctx.dispose()
	clear(s.buf.Pix)

	args := &Args{Width: s.width, Height: s.height, User: user}
	state, err := bp.OnInit(ctx, args)
	if err != nil {
		return true, fmt.Errorf("canvas onInit: %w", err)
	}
	s.emit()
	if bp.OnUpdate == nil {
		return true, nil
	}

	for !ctx.IsDone() && !cancelled(cancel) {
		start := time.Now()
		args.Frame++
		next, err := bp.OnUpdate(ctx, args, state)
		if err != nil {
			return true, fmt.Errorf("canvas onUpdate: %w", err)
		}
		if next != nil {
			state = next
		}
		update := time.Since(start)
		s.emit()
		if ctx.IsDone() || cancelled(cancel) {
			break
		}

		var delay time.Duration
		if bp.OnFrameDelay != nil {
			start = time.Now()
			if err := bp.OnFrameDelay(ctx, args); err != nil {
				return true, fmt.Errorf("canvas onFrameDelay: %w", err)
			}
			delay = time.Since(start)
		}
		args.DeltaTime = update + delay
	}
	return true, nil
}

// Pause stops the running Draw after its current callback returns and wakes
// any Context.Sleep in progress. It is a no-op when idle.
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil && !cancelled(s.cancel) {
		close(s.cancel)
	}
}

// Clear wipes the buffer and emits the empty frame. It must not race a Draw
// on another goroutine.
func (s *Session) Clear() {
	clear(s.buf.Pix)
	s.emit()
}

func (s *Session) emit() {
	if s.sink == nil {
		return
	}
	pix := make([]byte, len(s.buf.Pix))
	copy(pix, s.buf.Pix)
	s.sink(Frame{Width: s.width, Height: s.height, Pixels: pix})
}

func cancelled(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
