package modules

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

const (
	defaultSink   = "@DEFAULT_SINK@"
	defaultSource = "@DEFAULT_SOURCE@"
)

var percentPattern = regexp.MustCompile(`(\d+)%`)

// Pactl is the PulseAudio/PipeWire backend, driving the pactl command.
type Pactl struct {
	exec Commander
}

// NewPactl returns a backend running pactl through c.
func NewPactl(c Commander) *Pactl {
	return &Pactl{exec: c}
}

func (p *Pactl) Volume(ctx context.Context) (int, error) {
	out, err := runOK(ctx, p.exec, "pactl", "get-sink-volume", defaultSink)
	if err != nil {
		return 0, err
	}
	return parseVolume(out)
}

func (p *Pactl) SetVolume(ctx context.Context, percent int) error {
	_, err := runOK(ctx, p.exec, "pactl", "set-sink-volume", defaultSink, strconv.Itoa(percent)+"%")
	return err
}

func (p *Pactl) Muted(ctx context.Context) (bool, error) {
	out, err := runOK(ctx, p.exec, "pactl", "get-sink-mute", defaultSink)
	if err != nil {
		return false, err
	}
	return parseMute(out)
}

func (p *Pactl) SetMuted(ctx context.Context, muted bool) error {
	_, err := runOK(ctx, p.exec, "pactl", "set-sink-mute", defaultSink, boolArg(muted))
	return err
}

func (p *Pactl) Devices(ctx context.Context) ([]Device, error) {
	out, err := runOK(ctx, p.exec, "pactl", "list", "short", "sinks")
	if err != nil {
		return nil, err
	}
	return parseShortList(out), nil
}

func (p *Pactl) CaptureDevices(ctx context.Context) ([]Device, error) {
	out, err := runOK(ctx, p.exec, "pactl", "list", "short", "sources")
	if err != nil {
		return nil, err
	}
	var inputs []Device
	for _, d := range parseShortList(out) {
		if !strings.HasSuffix(d.Name, ".monitor") {
			inputs = append(inputs, d)
		}
	}
	return inputs, nil
}

func (p *Pactl) SetMicMuted(ctx context.Context, muted bool) error {
	_, err := runOK(ctx, p.exec, "pactl", "set-source-mute", defaultSource, boolArg(muted))
	return err
}

func (p *Pactl) DefaultDevice(ctx context.Context) (string, error) {
	out, err := runOK(ctx, p.exec, "pactl", "get-default-sink")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Subscribe follows `pactl subscribe`, reporting sink, source and server
// events.
func (p *Pactl) Subscribe(ctx context.Context, changed func()) error {
	cmd := exec.CommandContext(ctx, "pactl", "subscribe")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if isDeviceEvent(scanner.Text()) {
			changed()
		}
	}
	return cmd.Wait()
}

func isDeviceEvent(line string) bool {
	return strings.Contains(line, " on sink") ||
		strings.Contains(line, " on source") ||
		strings.Contains(line, " on server")
}

func parseVolume(out string) (int, error) {
	m := percentPattern.FindStringSubmatch(out)
	if m == nil {
		return 0, fmt.Errorf("no volume in %q", strings.TrimSpace(out))
	}
	return strconv.Atoi(m[1])
}

func parseMute(out string) (bool, error) {
	_, value, ok := strings.Cut(out, ":")
	if !ok {
		return false, fmt.Errorf("no mute state in %q", strings.TrimSpace(out))
	}
	return strings.TrimSpace(value) == "yes", nil
}

// parseShortList reads `pactl list short` lines: index, name, driver,
// sample spec, state.
func parseShortList(out string) []Device {
	var devices []Device
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			continue
		}
		idx, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		d := Device{Index: idx, Name: fields[1]}
		if len(fields) >= 5 {
			d.State = fields[4]
		}
		devices = append(devices, d)
	}
	return devices
}

func boolArg(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
