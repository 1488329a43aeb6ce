package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/zot/radial/internal/action"
	"github.com/zot/radial/internal/lua"
	"github.com/zot/radial/internal/modules"
	"github.com/zot/radial/internal/protocol"
	"github.com/zot/radial/internal/runner"
	"github.com/zot/radial/internal/storage"
)

// host is what every command builds from a Config.
type host struct {
	cfg    *Config
	mods   *modules.Set
	runner *runner.Runner
}

func newHost(cfg *Config, hooks *Hooks, emitter protocol.Emitter) (*host, error) {
	var b modules.Backends
	if hooks != nil && hooks.Backends != nil {
		b = hooks.Backends(cfg)
	}
	if b.Store == nil {
		store, err := storage.Open(cfg.Store.Type, cfg.Store.Path, cfg.Store.URL)
		if err != nil {
			return nil, err
		}
		b.Store = store
	}
	var extra []lua.Module
	if hooks != nil && hooks.Modules != nil {
		extra = hooks.Modules(cfg)
	}
	mods := modules.New(b, cfg.Log)
	return &host{
		cfg:  cfg,
		mods: mods,
		runner: runner.New(runner.Options{
			Config:  cfg,
			Modules: mods,
			Extra:   extra,
			Emitter: emitter,
		}),
	}, nil
}

// loadScripts merges the built-in actions with the scripts directory; a
// script overrides a built-in of the same name. A missing directory leaves
// only the built-ins.
func loadScripts(cfg *Config) (*action.Set, error) {
	builtins, err := action.BuiltinActions()
	if err != nil {
		return nil, fmt.Errorf("built-in actions: %w", err)
	}
	user, err := action.LoadDir(cfg.Scripts.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		cfg.Log(0, "Scripts directory %s not found, using built-in actions only", cfg.Scripts.Dir)
		return action.NewSet(builtins), nil
	}
	if err != nil {
		return nil, err
	}
	cfg.Log(1, "Loaded %d scripts from %s", len(user), cfg.Scripts.Dir)
	return action.NewSet(builtins, user), nil
}
