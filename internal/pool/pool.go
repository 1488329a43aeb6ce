// Package pool keeps a bounded set of reusable interpreter instances.
// CRC: crc-InstancePool.md
//
// A pool holds up to Max instances. The first Min are static: once created
// they stay until the pool closes. Instances created beyond Min are dynamic:
// when idle longer than IdleTimeout the sweeper tears them down. Every
// instance is in exactly one of busy, idle-static or idle-dynamic.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

var (
	// ErrClosed is returned by Use after Close.
	ErrClosed = errors.New("pool closed")
	// ErrBounds is returned by New unless 0 <= min <= max and max >= 1. A pool
	// with max 0 could never hand out an instance.
	ErrBounds = errors.New("invalid pool bounds")
)

// Options configures a Pool.
type Options[T any] struct {
	Min           int
	Max           int
	IdleTimeout   time.Duration
	SweepInterval time.Duration

	// Create builds a new instance. Required.
	Create func() (T, error)
	// Teardown releases an instance. Called exactly once per created instance.
	Teardown func(T)
	// Keep, when set, is asked before reclaiming an idle dynamic instance;
	// returning true restarts its idle clock.
	Keep func(T) bool
	// Log receives leveled diagnostics.
	Log func(level int, format string, args ...interface{})
}

type entry[T any] struct {
	value   T
	dynamic bool
	torn    sync.Once
}

// Pool hands out exclusive use of instances.
type Pool[T any] struct {
	opts Options[T]
	sem  *semaphore.Weighted

	mu     sync.Mutex // guards live, busy, closed
	live   int
	busy   map[*entry[T]]struct{}
	closed bool

	static  chan *entry[T] // idle static instances
	dynamic sync.Map       // idle dynamic instances: *entry[T] -> time.Time idle since

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Stats is a snapshot of pool accounting.
type Stats struct {
	Live        int
	Busy        int
	IdleStatic  int
	IdleDynamic int
	Static      int
	Dynamic     int
}

// New validates the bounds and starts the sweeper.
func New[T any](opts Options[T]) (*Pool[T], error) {
	if opts.Min < 0 || opts.Max <= 0 || opts.Min > opts.Max {
		return nil, fmt.Errorf("%w: min=%d max=%d", ErrBounds, opts.Min, opts.Max)
	}
	if opts.Create == nil {
		return nil, errors.New("pool: Create is required")
	}
	if opts.Teardown == nil {
		opts.Teardown = func(T) {}
	}
	if opts.Log == nil {
		opts.Log = func(int, string, ...interface{}) {}
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Second
	}

	p := &Pool[T]{
		opts:   opts,
		sem:    semaphore.NewWeighted(int64(opts.Max)),
		busy:   make(map[*entry[T]]struct{}),
		static: make(chan *entry[T], opts.Max),
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())

	if opts.IdleTimeout > 0 {
		p.wg.Add(1)
		go p.sweepLoop()
	}
	return p, nil
}

// Use checks out an instance, runs fn with it, and checks it back in.
// It blocks while Max instances are busy. The instance is returned even if fn panics.
func (p *Pool[T]) Use(ctx context.Context, fn func(T) error) error {
	if p.isClosed() {
		return ErrClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		if p.isClosed() {
			return ErrClosed
		}
		return err
	}
	defer p.sem.Release(1)

	e, err := p.take()
	if err != nil {
		return err
	}
	defer p.checkin(e)

	return fn(e.value)
}

// take selects an instance: idle dynamic first, then idle static, else a new one.
func (p *Pool[T]) take() (*entry[T], error) {
	var found *entry[T]
	p.dynamic.Range(func(k, _ any) bool {
		// LoadAndDelete makes the take atomic against the sweeper.
		if _, ok := p.dynamic.LoadAndDelete(k); ok {
			found = k.(*entry[T])
			return false
		}
		return true
	})
	if found == nil {
		select {
		case found = <-p.static:
		default:
		}
	}
	if found != nil {
		if err := p.markBusy(found); err != nil {
			return nil, err
		}
		return found, nil
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	p.live++
	dynamic := p.live > p.opts.Min
	p.mu.Unlock()

	value, err := p.opts.Create()
	if err != nil {
		p.mu.Lock()
		p.live--
		p.mu.Unlock()
		return nil, fmt.Errorf("creating instance: %w", err)
	}
	e := &entry[T]{value: value, dynamic: dynamic}
	p.opts.Log(3, "Pool: created %s instance", kind(dynamic))
	if err := p.markBusy(e); err != nil {
		return nil, err
	}
	return e, nil
}

func (p *Pool[T]) markBusy(e *entry[T]) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.destroy(e)
		return ErrClosed
	}
	p.busy[e] = struct{}{}
	p.mu.Unlock()
	return nil
}

// checkin returns e to its idle set, or tears it down if the pool closed meanwhile.
func (p *Pool[T]) checkin(e *entry[T]) {
	p.mu.Lock()
	delete(p.busy, e)
	if p.closed {
		p.mu.Unlock()
		p.destroy(e)
		return
	}
	if e.dynamic {
		p.dynamic.Store(e, time.Now())
	} else {
		p.static <- e
	}
	p.mu.Unlock()
}

// destroy fires the teardown hook once and drops e from the live count.
func (p *Pool[T]) destroy(e *entry[T]) {
	e.torn.Do(func() {
		p.opts.Teardown(e.value)
		p.mu.Lock()
		p.live--
		p.mu.Unlock()
		p.opts.Log(3, "Pool: destroyed %s instance", kind(e.dynamic))
	})
}

// ForEachBusy calls fn for every checked-out instance.
// The set is snapshotted first, so fn may block.
func (p *Pool[T]) ForEachBusy(fn func(value T, dynamic bool)) {
	p.mu.Lock()
	entries := make([]*entry[T], 0, len(p.busy))
	for e := range p.busy {
		entries = append(entries, e)
	}
	p.mu.Unlock()

	for _, e := range entries {
		fn(e.value, e.dynamic)
	}
}

// Sweep reclaims idle dynamic instances past the idle timeout and returns how many.
func (p *Pool[T]) Sweep() int {
	now := time.Now()
	reclaimed := 0
	p.dynamic.Range(func(k, v any) bool {
		e := k.(*entry[T])
		if now.Sub(v.(time.Time)) < p.opts.IdleTimeout {
			return true
		}
		if p.opts.Keep != nil && p.opts.Keep(e.value) {
			p.dynamic.CompareAndSwap(k, v, now)
			return true
		}
		// Only the exact idle record seen above may be reclaimed; a concurrent
		// take or re-checkin makes this fail.
		if p.dynamic.CompareAndDelete(k, v) {
			p.destroy(e)
			reclaimed++
		}
		return true
	})
	if reclaimed > 0 {
		p.opts.Log(2, "Pool: reclaimed %d idle instance(s)", reclaimed)
	}
	return reclaimed
}

func (p *Pool[T]) sweepLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.Sweep()
		}
	}
}

// Stats returns current accounting.
func (p *Pool[T]) Stats() Stats {
	var s Stats
	p.mu.Lock()
	s.Live = p.live
	s.Busy = len(p.busy)
	for e := range p.busy {
		if e.dynamic {
			s.Dynamic++
		} else {
			s.Static++
		}
	}
	p.mu.Unlock()

	s.IdleStatic = len(p.static)
	s.Static += s.IdleStatic
	p.dynamic.Range(func(_, _ any) bool {
		s.IdleDynamic++
		return true
	})
	s.Dynamic += s.IdleDynamic
	return s
}

func (p *Pool[T]) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close tears down every instance, idle or busy, exactly once and stops the sweeper.
// Busy instances are torn down in place; their users see a closed instance.
func (p *Pool[T]) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	busy := make([]*entry[T], 0, len(p.busy))
	for e := range p.busy {
		busy = append(busy, e)
	}
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()

	for {
		select {
		case e := <-p.static:
			p.destroy(e)
			continue
		default:
		}
		break
	}
	p.dynamic.Range(func(k, _ any) bool {
		if _, ok := p.dynamic.LoadAndDelete(k); ok {
			p.destroy(k.(*entry[T]))
		}
		return true
	})
	for _, e := range busy {
		p.destroy(e)
	}
	p.opts.Log(1, "Pool: closed")
}

func kind(dynamic bool) string {
	if dynamic {
		return "dynamic"
	}
	return "static"
}
