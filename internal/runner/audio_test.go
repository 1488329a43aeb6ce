package runner

import (
	"context"
	"errors"

	"github.com/zot/radial/internal/modules"
)

var errNoAudio = errors.New("no audio")

// quietAudio is an audio backend with no devices.
type quietAudio struct{}

func (quietAudio) Volume(context.Context) (int, error)               { return 0, errNoAudio }
func (quietAudio) SetVolume(context.Context, int) error              { return errNoAudio }
func (quietAudio) Muted(context.Context) (bool, error)               { return false, errNoAudio }
func (quietAudio) SetMuted(context.Context, bool) error              { return errNoAudio }
func (quietAudio) Devices(context.Context) ([]modules.Device, error) { return nil, errNoAudio }
func (quietAudio) CaptureDevices(context.Context) ([]modules.Device, error) {
	return nil, errNoAudio
}
func (quietAudio) SetMicMuted(context.Context, bool) error       { return errNoAudio }
func (quietAudio) DefaultDevice(context.Context) (string, error) { return "", errNoAudio }
func (quietAudio) Subscribe(ctx context.Context, _ func()) error {
	<-ctx.Done()
	return nil
}
