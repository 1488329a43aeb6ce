// Package runner executes named action scripts on pooled Lua instances.
// CRC: crc-Runner.md
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/zot/radial/internal/action"
	"github.com/zot/radial/internal/config"
	"github.com/zot/radial/internal/lua"
	"github.com/zot/radial/internal/modules"
	"github.com/zot/radial/internal/pool"
	"github.com/zot/radial/internal/protocol"
)

var (
	// ErrNotInitialized is returned by RunSync before Initialize.
	ErrNotInitialized = errors.New("runner not initialized")
	// ErrUnknownAction is returned for names missing from the script set.
	ErrUnknownAction = errors.New("unknown action")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("runner closed")
)

// Options configures a Runner.
type Options struct {
	Config  *config.Config
	Modules *modules.Set
	Extra   []lua.Module // installed after Modules
	Emitter protocol.Emitter
}

// Runner owns the instance pool and the current generation of scripts.
type Runner struct {
	cfg     *config.Config
	mods    *modules.Set
	all     []lua.Module
	emitter protocol.Emitter
	chunks  *lua.ChunkCache
	nextID  atomic.Int32

	mu      sync.RWMutex
	scripts *action.Set
	pool    *pool.Pool[*lua.Instance]
	closed  bool

	runs sync.WaitGroup
}

// New creates an uninitialized runner.
func New(opts Options) *Runner {
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.Modules == nil {
		opts.Modules = modules.New(modules.Backends{}, opts.Config.Log)
	}
	if opts.Emitter == nil {
		opts.Emitter = protocol.Discard
	}
	all := append(append([]lua.Module(nil), opts.Modules.All...), opts.Extra...)
	return &Runner{
		cfg:     opts.Config,
		mods:    opts.Modules,
		all:     all,
		emitter: opts.Emitter,
		chunks:  lua.NewChunkCache(),
	}
}

// Log writes through the configured logger.
func (r *Runner) Log(level int, format string, args ...any) {
	r.cfg.Log(level, format, args...)
}

// Modules returns the script-facing modules, for API listings.
func (r *Runner) Modules() []lua.Module {
	return r.all
}

// Initialize builds the pool for scripts and warms the static instances.
// Later calls do nothing.
func (r *Runner) Initialize(scripts *action.Set) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if r.pool != nil {
		return nil
	}
	p, err := r.newPool(scripts)
	if err != nil {
		return err
	}
	r.scripts, r.pool = scripts, p
	r.Log(1, "Runner: initialized with %d actions, pool %d-%d", scripts.Len(), r.cfg.Pool.Min, r.cfg.Pool.Max)
	return nil
}

func (r *Runner) newPool(scripts *action.Set) (*pool.Pool[*lua.Instance], error) {
	uiSize := int(r.cfg.UI.Size)
	p, err := pool.New(pool.Options[*lua.Instance]{
		Min:           r.cfg.Pool.Min,
		Max:           r.cfg.Pool.Max,
		IdleTimeout:   r.cfg.Pool.IdleTimeout.Duration(),
		SweepInterval: r.cfg.Pool.SweepInterval.Duration(),
		Create: func() (*lua.Instance, error) {
			return lua.NewInstance(lua.Options{
				ID:      int(r.nextID.Add(1)),
				Modules: r.all,
				Search:  scripts.Search,
				Chunks:  r.chunks,
				Emitter: r.emitter,
				UISize:  uiSize,
				Log:     r.cfg.Log,
			})
		},
		Teardown: (*lua.Instance).Close,
		Keep:     (*lua.Instance).HasBackgroundWork,
		Log:      r.cfg.Log,
	})
	if err != nil {
		return nil, err
	}
	if err := warm(p, r.cfg.Pool.Min); err != nil {
		p.Close()
		return nil, fmt.Errorf("warming pool: %w", err)
	}
	return p, nil
}

// warm creates n static instances by holding n checkouts at once.
func warm(p *pool.Pool[*lua.Instance], n int) error {
	var ready sync.WaitGroup
	ready.Add(n)
	var g errgroup.Group
	for range n {
		g.Go(func() error {
			err := p.Use(context.Background(), func(*lua.Instance) error {
				ready.Done()
				ready.Wait()
				return nil
			})
			if err != nil {
				ready.Done()
			}
			return err
		})
	}
	return g.Wait()
}

// Reload swaps in a new generation of scripts. Instances of the old
// generation are torn down, cancelling scripts still running on them.
func (r *Runner) Reload(scripts *action.Set) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if r.pool == nil {
		r.mu.Unlock()
		return r.Initialize(scripts)
	}
	old := r.pool
	r.chunks.Reset()
	p, err := r.newPool(scripts)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	r.scripts, r.pool = scripts, p
	r.mu.Unlock()

	old.Close()
	r.Log(1, "Runner: reloaded %d actions", scripts.Len())
	return nil
}

// Actions lists the runnable action names.
func (r *Runner) Actions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.scripts == nil {
		return nil
	}
	return r.scripts.Names()
}

// Lookup returns the named action of the current generation.
func (r *Runner) Lookup(name string) (action.ActionModule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.scripts == nil {
		return action.ActionModule{}, false
	}
	return r.scripts.Get(name)
}

// Run starts the named action in the background and returns at once. Before
// Initialize it does nothing. Failures are logged, never returned.
func (r *Runner) Run(name string) {
	r.mu.RLock()
	ready := r.pool != nil && !r.closed
	if ready {
		r.runs.Add(1)
	}
	r.mu.RUnlock()
	if !ready {
		return
	}
	if strings.TrimSpace(name) == "" {
		r.runs.Done()
		r.Log(0, "Runner: run requested with a blank action name")
		return
	}

	go func() {
		defer r.runs.Done()
		defer func() {
			if p := recover(); p != nil {
				r.Log(0, "Runner: %s panicked: %v", name, p)
			}
		}()
		if err := r.RunSync(context.Background(), name); err != nil {
			r.Log(0, "Runner: %s failed: %v", name, err)
		}
	}()
}

// Wait blocks until every Run started so far has finished.
func (r *Runner) Wait() {
	r.runs.Wait()
}

// RunSync runs the named action on the calling goroutine.
func (r *Runner) RunSync(ctx context.Context, name string) error {
	if _, err := r.active(); err != nil {
		return err
	}
	mod, ok := r.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAction, name)
	}
	return r.RunSource(ctx, name, mod.Source)
}

// RunSource runs source as the action name. A run that loses its pool to a
// reload is retried once on the new generation.
func (r *Runner) RunSource(ctx context.Context, name, source string) error {
	for attempt := 0; ; attempt++ {
		p, err := r.active()
		if err != nil {
			return err
		}
		r.Log(2, "Runner: running %s", name)
		err = p.Use(ctx, func(in *lua.Instance) error {
			return in.Run(ctx, lua.Env{Module: name, UISize: int(r.cfg.UI.Size)}, name, source)
		})
		if attempt == 0 && errors.Is(err, pool.ErrClosed) && r.current() != p && r.current() != nil {
			continue
		}
		return err
	}
}

func (r *Runner) active() (*pool.Pool[*lua.Instance], error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch {
	case r.closed:
		return nil, ErrClosed
	case r.pool == nil:
		return nil, ErrNotInitialized
	}
	return r.pool, nil
}

func (r *Runner) current() *pool.Pool[*lua.Instance] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil
	}
	return r.pool
}

// Stats reports pool accounting; zero before Initialize.
func (r *Runner) Stats() pool.Stats {
	if p := r.current(); p != nil {
		return p.Stats()
	}
	return pool.Stats{}
}

// Clear returns to a neutral state: in-flight draws pause, the cache
// empties and every ticker stops.
func (r *Runner) Clear() {
	if p := r.current(); p != nil {
		p.ForEachBusy(func(in *lua.Instance, _ bool) {
			in.PauseCanvas()
		})
	}
	r.mods.Clear()
	if err := protocol.Send(r.emitter, protocol.MsgClear, nil); err != nil {
		r.Log(0, "Runner: cannot emit clear: %v", err)
	}
	r.Log(2, "Runner: cleared")
}

// Close clears the cache, tears down every instance and releases module
// resources such as the audio worker.
func (r *Runner) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	p := r.pool
	r.pool = nil
	r.mu.Unlock()

	r.mods.Cache.Clear()
	if p != nil {
		p.Close()
	}
	r.runs.Wait()
	err := r.mods.Close()
	r.Log(1, "Runner: closed")
	return err
}
