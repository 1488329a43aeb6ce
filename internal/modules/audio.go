// CRC: crc-AudioModule.md
package modules

import (
	"context"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/zot/radial/internal/async"
	host "github.com/zot/radial/internal/lua"
)

// Device is an audio sink or source.
type Device struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	State string `json:"state"`
}

func (d Device) table() map[string]any {
	return map[string]any{"index": d.Index, "name": d.Name, "state": d.State}
}

// AudioBackend controls the platform mixer. Volume is a percentage, 0-100.
// Calls are made from a single goroutine.
type AudioBackend interface {
	Volume(ctx context.Context) (int, error)
	SetVolume(ctx context.Context, percent int) error
	Muted(ctx context.Context) (bool, error)
	SetMuted(ctx context.Context, muted bool) error
	Devices(ctx context.Context) ([]Device, error)
	CaptureDevices(ctx context.Context) ([]Device, error)
	SetMicMuted(ctx context.Context, muted bool) error
	DefaultDevice(ctx context.Context) (string, error)
	// Subscribe calls changed on every device change until ctx ends.
	Subscribe(ctx context.Context, changed func()) error
}

// Audio marshals every backend call onto one worker goroutine and caches
// device lists until the backend reports a change.
type Audio struct {
	backend AudioBackend
	worker  *async.Worker
	log     func(int, string, ...any)

	ctx    context.Context
	cancel context.CancelFunc
	subs   sync.WaitGroup

	// only touched on the worker
	sinks    []Device
	sources  []Device
	fallback string
}

// NewAudio starts the worker and the device change subscription.
func NewAudio(backend AudioBackend, log func(int, string, ...any)) *Audio {
	a := &Audio{backend: backend, worker: async.NewWorker(), log: log}
	a.ctx, a.cancel = context.WithCancel(context.Background())
	a.subs.Add(1)
	go func() {
		defer a.subs.Done()
		err := backend.Subscribe(a.ctx, func() {
			a.worker.Post(a.invalidate)
		})
		if err != nil && a.ctx.Err() == nil {
			a.log(1, "audio: device subscription ended: %v", err)
		}
	}()
	return a
}

func (a *Audio) invalidate() {
	a.sinks, a.sources, a.fallback = nil, nil, ""
	a.log(3, "audio: devices changed")
}

func (a *Audio) Name() string { return "audio" }

func (a *Audio) Exports() []host.Export {
	return []host.Export{
		{Name: "volume", Args: "()", Doc: "Current output volume, 0-100", Fn: a.volume},
		{Name: "setVolume", Args: "(percent)", Doc: "Set output volume, clamped to 0-100", Fn: a.setVolume},
		{Name: "mute", Args: "(muted)", Doc: "Mute or unmute the output", Fn: a.mute},
		{Name: "isMuted", Args: "()", Doc: "Whether the output is muted", Fn: a.isMuted},
		{Name: "devices", Args: "()", Doc: "Output devices", Fn: a.devices},
		{Name: "captureDevices", Args: "()", Doc: "Input devices", Fn: a.captureDevices},
		{Name: "setMicMute", Args: "(muted)", Doc: "Mute or unmute the default microphone", Fn: a.setMicMute},
		{Name: "defaultDevice", Args: "()", Doc: "Name of the default output device", Fn: a.defaultDevice},
	}
}

// submit queues fn on the worker and pushes its AsyncResult.
func (a *Audio) submit(L *lua.LState, fn func(ctx context.Context) (any, error)) int {
	return host.PushAsync(L, async.Submit(a.worker, func() (any, error) {
		return fn(a.ctx)
	}))
}

func (a *Audio) volume(_ *host.Instance, L *lua.LState) int {
	return a.submit(L, func(ctx context.Context) (any, error) {
		return a.backend.Volume(ctx)
	})
}

func (a *Audio) setVolume(_ *host.Instance, L *lua.LState) int {
	percent := min(max(int(L.CheckNumber(1)), 0), 100)
	return a.submit(L, func(ctx context.Context) (any, error) {
		return percent, a.backend.SetVolume(ctx, percent)
	})
}

func (a *Audio) mute(_ *host.Instance, L *lua.LState) int {
	muted := L.OptBool(1, true)
	return a.submit(L, func(ctx context.Context) (any, error) {
		return muted, a.backend.SetMuted(ctx, muted)
	})
}

func (a *Audio) isMuted(_ *host.Instance, L *lua.LState) int {
	return a.submit(L, func(ctx context.Context) (any, error) {
		return a.backend.Muted(ctx)
	})
}

func (a *Audio) devices(_ *host.Instance, L *lua.LState) int {
	return a.submit(L, func(ctx context.Context) (any, error) {
		if a.sinks == nil {
			d, err := a.backend.Devices(ctx)
			if err != nil {
				return nil, err
			}
			a.sinks = d
		}
		return deviceList(a.sinks), nil
	})
}

func (a *Audio) captureDevices(_ *host.Instance, L *lua.LState) int {
	return a.submit(L, func(ctx context.Context) (any, error) {
		if a.sources == nil {
			d, err := a.backend.CaptureDevices(ctx)
			if err != nil {
				return nil, err
			}
			a.sources = d
		}
		return deviceList(a.sources), nil
	})
}

func (a *Audio) setMicMute(_ *host.Instance, L *lua.LState) int {
	muted := L.OptBool(1, true)
	return a.submit(L, func(ctx context.Context) (any, error) {
		return muted, a.backend.SetMicMuted(ctx, muted)
	})
}

func (a *Audio) defaultDevice(_ *host.Instance, L *lua.LState) int {
	return a.submit(L, func(ctx context.Context) (any, error) {
		if a.fallback == "" {
			name, err := a.backend.DefaultDevice(ctx)
			if err != nil {
				return nil, err
			}
			a.fallback = name
		}
		return a.fallback, nil
	})
}

// Close stops the subscription and the worker. Queued calls fail with
// async.ErrWorkerClosed.
func (a *Audio) Close() error {
	a.cancel()
	a.subs.Wait()
	a.worker.Close()
	return nil
}

func deviceList(devices []Device) []any {
	out := make([]any, len(devices))
	for i, d := range devices {
		out[i] = d.table()
	}
	return out
}
