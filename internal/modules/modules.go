// Package modules implements the host capabilities scripts reach through
// global tables: audio, input, windows, fs, system, media, log, cache, store,
// timer, menu and canvas.
// CRC: crc-HostModules.md
package modules

import (
	"time"

	lua "github.com/yuin/gopher-lua"

	host "github.com/zot/radial/internal/lua"
	"github.com/zot/radial/internal/storage"
)

// Backends are the platform implementations behind the modules. Nil fields
// get the default command-line backends.
type Backends struct {
	Exec    Commander
	Audio   AudioBackend
	Input   InputBackend
	Windows WindowBackend
	Media   MediaBackend
	Store   storage.Backend
}

// Set is the module table of one Runner. Modules are created once and shared
// by every instance.
type Set struct {
	Audio *Audio
	Cache *Cache
	Timer *Timer
	All   []host.Module
}

// New builds every module. log receives module diagnostics.
func New(b Backends, log func(level int, format string, args ...any)) *Set {
	if log == nil {
		log = func(int, string, ...any) {}
	}
	if b.Exec == nil {
		b.Exec = ExecCommander{}
	}
	if b.Audio == nil {
		b.Audio = NewPactl(b.Exec)
	}
	if b.Input == nil {
		b.Input = NewXdotoolInput(b.Exec)
	}
	if b.Windows == nil {
		b.Windows = NewXdotoolWindows(b.Exec)
	}
	if b.Media == nil {
		b.Media = NewPlayerctl(b.Exec)
	}
	if b.Store == nil {
		b.Store = storage.NewMemoryStorage()
	}

	s := &Set{
		Audio: NewAudio(b.Audio, log),
		Cache: NewCache(),
		Timer: &Timer{},
	}
	s.All = []host.Module{
		s.Audio,
		&Input{backend: b.Input},
		&Windows{backend: b.Windows},
		&FS{},
		&System{exec: b.Exec},
		NewMedia(b.Media),
		&Log{},
		s.Cache,
		NewStore(b.Store),
		s.Timer,
		&Menu{},
		&Canvas{},
	}
	return s
}

// Clear resets the state Runner.Clear is responsible for.
func (s *Set) Clear() {
	for _, m := range s.All {
		if c, ok := m.(host.Clearer); ok {
			c.Clear()
		}
	}
}

// Close releases module resources, returning the first error.
func (s *Set) Close() error {
	var first error
	for _, m := range s.All {
		if c, ok := m.(host.Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

// checkName raises unless argument n is a non-empty string.
func checkName(L *lua.LState, n int, what string) string {
	s := L.CheckString(n)
	if s == "" {
		L.ArgError(n, what+" must not be empty")
	}
	return s
}

func optMillis(L *lua.LState, n int) time.Duration {
	return time.Duration(L.OptNumber(n, 0)) * time.Millisecond
}
