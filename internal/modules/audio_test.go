// Test Design: test-HostModules.md
package modules

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type fakeAudio struct {
	mu           sync.Mutex
	volume       int
	muted        bool
	mic          bool
	deviceCalls  int
	changed      func()
	subscribed   chan struct{}
	subscribeErr error
}

func newFakeAudio() *fakeAudio {
	return &fakeAudio{volume: 40, subscribed: make(chan struct{})}
}

func (f *fakeAudio) Volume(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volume, nil
}

func (f *fakeAudio) SetVolume(_ context.Context, v int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume = v
	return nil
}

func (f *fakeAudio) Muted(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.muted, nil
}

func (f *fakeAudio) SetMuted(_ context.Context, m bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.muted = m
	return nil
}

func (f *fakeAudio) Devices(context.Context) ([]Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deviceCalls++
	return []Device{{Index: 0, Name: "speakers", State: "RUNNING"}, {Index: 1, Name: "hdmi"}}, nil
}

func (f *fakeAudio) CaptureDevices(context.Context) ([]Device, error) {
	return nil, errors.New("no capture devices")
}

func (f *fakeAudio) SetMicMuted(_ context.Context, m bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mic = m
	return nil
}

func (f *fakeAudio) DefaultDevice(context.Context) (string, error) {
	return "speakers", nil
}

func (f *fakeAudio) Subscribe(ctx context.Context, changed func()) error {
	f.mu.Lock()
	f.changed = changed
	f.mu.Unlock()
	close(f.subscribed)
	<-ctx.Done()
	return f.subscribeErr
}

func (f *fakeAudio) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deviceCalls
}

func TestAudioThroughWorker(t *testing.T) {
	audio := newFakeAudio()
	h := newHarness(t, Backends{Audio: audio})
	h.mustRun(t, `
		t.record(audio.volume():wait().value)
		t.record(audio.setVolume(150):wait().value)
		t.record(audio.volume():wait().value)
		audio.mute(true):wait()
		t.record(audio.isMuted():wait().value)
		t.record(audio.defaultDevice():wait().value)
		t.record(audio.captureDevices():wait().err)
		t.record(audio.setMicMute(true):wait().ok)
	`)
	got := h.rec.values()
	want := []any{float64(40), float64(100), float64(100), true, "speakers", "no capture devices", true}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("value %d = %v, want %v", i, got[i], want[i])
		}
	}
	if !audio.mic {
		t.Error("mic not muted")
	}
}

func TestAudioDeviceCacheInvalidatedOnChange(t *testing.T) {
	audio := newFakeAudio()
	h := newHarness(t, Backends{Audio: audio})
	<-audio.subscribed

	h.mustRun(t, `
		t.record(#audio.devices():wait().value)
		t.record(audio.devices():wait().value[1].name)
	`)
	if n := audio.calls(); n != 1 {
		t.Errorf("backend enumerated %d times, want 1", n)
	}

	audio.changed()
	h.mustRun(t, `audio.devices():wait()`)
	if n := audio.calls(); n != 2 {
		t.Errorf("backend enumerated %d times after change, want 2", n)
	}
	got := h.rec.values()
	if got[0] != float64(2) || got[1] != "speakers" {
		t.Errorf("got %v", got)
	}
}

func TestAudioClosedWorkerFails(t *testing.T) {
	audio := newFakeAudio()
	h := newHarness(t, Backends{Audio: audio})
	if err := h.set.Audio.Close(); err != nil {
		t.Fatal(err)
	}
	h.mustRun(t, `t.record(audio.volume():wait().err)`)
	if got := h.rec.values(); len(got) != 1 || got[0] != "worker closed" {
		t.Errorf("got %v", got)
	}
}

func TestPactlParsing(t *testing.T) {
	v, err := parseVolume("Volume: front-left: 42598 /  65% / -11.23 dB,   front-right: 42598 /  65% / -11.23 dB\n")
	if err != nil || v != 65 {
		t.Errorf("parseVolume = %d, %v", v, err)
	}
	if _, err := parseVolume("garbage"); err == nil {
		t.Error("garbage volume accepted")
	}
	if m, err := parseMute("Mute: yes\n"); err != nil || !m {
		t.Errorf("parseMute = %v, %v", m, err)
	}
	devices := parseShortList("0\talsa_output.pci\tmodule-alsa-card.c\ts16le 2ch 44100Hz\tSUSPENDED\n1\tbluez\tmod\tspec\tRUNNING\n")
	if len(devices) != 2 || devices[0].Name != "alsa_output.pci" || devices[1].State != "RUNNING" {
		t.Errorf("devices = %+v", devices)
	}
	if !isDeviceEvent("Event 'change' on sink #52") || isDeviceEvent("Event 'new' on client #9") {
		t.Error("event classification wrong")
	}
}

func TestPactlCommands(t *testing.T) {
	cmd := &fakeCommander{outputs: map[string]Output{
		"pactl get-sink-volume @DEFAULT_SINK@":     {Stdout: "Volume: front-left: 1 /  30% / x\n"},
		"pactl set-sink-volume @DEFAULT_SINK@ 55%": {},
		"pactl list short sources": {
			Stdout: "1\tmic\tm\ts\tIDLE\n2\tspeakers.monitor\tm\ts\tIDLE\n",
		},
	}}
	p := NewPactl(cmd)
	ctx := context.Background()
	if v, err := p.Volume(ctx); err != nil || v != 30 {
		t.Errorf("Volume = %d, %v", v, err)
	}
	if err := p.SetVolume(ctx, 55); err != nil {
		t.Error(err)
	}
	inputs, err := p.CaptureDevices(ctx)
	if err != nil || len(inputs) != 1 || inputs[0].Name != "mic" {
		t.Errorf("CaptureDevices = %+v, %v", inputs, err)
	}
}
