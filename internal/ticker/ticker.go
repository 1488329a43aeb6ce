// Package ticker runs a callback at a fixed period on its own goroutine,
// threading a state value from one invocation to the next.
// CRC: crc-Ticker.md
package ticker

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Status is a ticker's lifecycle state.
type Status int32

const (
	Created Status = iota
	Running
	Stopped
)

func (s Status) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	default:
		return "stopped"
	}
}

// Func is invoked once per tick with the current state.
// A non-nil returned state replaces the current one. An error stops the ticker.
type Func func(state any, t *Ticker) (any, error)

// Ticker invokes Func every Period until Done is called or Func fails.
type Ticker struct {
	ID     uuid.UUID
	Period time.Duration

	fn      Func
	stateMu sync.Mutex
	state   any
	status  atomic.Int32
	done    chan struct{}
	doneOne sync.Once
	stopped chan struct{}
	onStop  func(*Ticker, error)
}

// New creates a ticker in the Created state. onStop, if set, runs once when
// the loop exits, with the callback error if that is what stopped it.
func New(period time.Duration, fn Func, onStop func(*Ticker, error)) *Ticker {
	if period <= 0 {
		period = time.Millisecond
	}
	return &Ticker{
		ID:      uuid.New(),
		Period:  period,
		fn:      fn,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		onStop:  onStop,
	}
}

// Status returns the current lifecycle state.
func (t *Ticker) Status() Status {
	return Status(t.status.Load())
}

// Start launches the loop. It is a no-op unless the ticker is Created.
func (t *Ticker) Start() bool {
	if !t.status.CompareAndSwap(int32(Created), int32(Running)) {
		return false
	}
	go t.loop()
	return true
}

// Done asks the loop to stop. Safe to call from inside or outside the callback,
// any number of times. A ticker that never started goes straight to Stopped.
func (t *Ticker) Done() {
	t.doneOne.Do(func() { close(t.done) })
	if t.status.CompareAndSwap(int32(Created), int32(Stopped)) {
		close(t.stopped)
		if t.onStop != nil {
			t.onStop(t, nil)
		}
	}
}

// IsDone reports whether Done has been requested.
func (t *Ticker) IsDone() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Stopped is closed once the loop has exited.
func (t *Ticker) Stopped() <-chan struct{} {
	return t.stopped
}

// Stop requests Done and waits for the loop to exit.
func (t *Ticker) Stop() {
	t.Done()
	<-t.stopped
}

// State returns the state carried into the next invocation.
func (t *Ticker) State() any {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	return t.state
}

// loop keeps an absolute deadline that advances by exactly one period per tick,
// so lateness is caught up instead of accumulating.
func (t *Ticker) loop() {
	var failure error
	defer func() {
		t.status.Store(int32(Stopped))
		close(t.stopped)
		if t.onStop != nil {
			t.onStop(t, failure)
		}
	}()

	next := time.Now()
	for {
		if t.IsDone() {
			return
		}
		next = next.Add(t.Period)
		if wait := time.Until(next); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-t.done:
				timer.Stop()
				return
			case <-timer.C:
			}
		}
		if t.IsDone() {
			return
		}

		state, err := t.invoke()
		if err != nil {
			failure = err
			return
		}
		if state != nil {
			t.stateMu.Lock()
			t.state = state
			t.stateMu.Unlock()
		}
	}
}

func (t *Ticker) invoke() (state any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return t.fn(t.State(), t)
}

// PanicError wraps a panic raised by a tick callback.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return "ticker callback panicked"
}
