// CRC: crc-MediaModule.md
package modules

import (
	"context"
	"strings"

	lua "github.com/yuin/gopher-lua"

	host "github.com/zot/radial/internal/lua"
)

// MediaBackend controls the active media session.
type MediaBackend interface {
	Command(ctx context.Context, cmd string) error
	Status(ctx context.Context) (string, error)
	Metadata(ctx context.Context) (map[string]string, error)
}

// Media is the media session module. Every call resolves asynchronously.
type Media struct {
	backend MediaBackend
}

// NewMedia wraps backend.
func NewMedia(backend MediaBackend) *Media {
	return &Media{backend: backend}
}

func (m *Media) Name() string { return "media" }

func (m *Media) Exports() []host.Export {
	return []host.Export{
		{Name: "play", Args: "()", Doc: "Resume playback", Fn: m.command("play")},
		{Name: "pause", Args: "()", Doc: "Pause playback", Fn: m.command("pause")},
		{Name: "toggle", Args: "()", Doc: "Toggle play/pause", Fn: m.command("play-pause")},
		{Name: "next", Args: "()", Doc: "Skip to the next track", Fn: m.command("next")},
		{Name: "previous", Args: "()", Doc: "Go to the previous track", Fn: m.command("previous")},
		{Name: "status", Args: "()", Doc: "\"Playing\", \"Paused\" or \"Stopped\"", Fn: m.status},
		{Name: "metadata", Args: "()", Doc: "Track metadata {artist, title, album, length}", Fn: m.metadata},
	}
}

func (m *Media) command(cmd string) host.Func {
	return func(in *host.Instance, L *lua.LState) int {
		ctx := in.Context()
		return host.Async(L, func() (any, error) {
			return cmd, m.backend.Command(ctx, cmd)
		})
	}
}

func (m *Media) status(in *host.Instance, L *lua.LState) int {
	ctx := in.Context()
	return host.Async(L, func() (any, error) {
		return m.backend.Status(ctx)
	})
}

func (m *Media) metadata(in *host.Instance, L *lua.LState) int {
	ctx := in.Context()
	return host.Async(L, func() (any, error) {
		md, err := m.backend.Metadata(ctx)
		if err != nil {
			return nil, err
		}
		return md, nil
	})
}

// Playerctl drives the playerctl command (MPRIS).
type Playerctl struct {
	exec Commander
}

// NewPlayerctl returns a media backend running playerctl through c.
func NewPlayerctl(c Commander) *Playerctl {
	return &Playerctl{exec: c}
}

func (p *Playerctl) Command(ctx context.Context, cmd string) error {
	_, err := runOK(ctx, p.exec, "playerctl", cmd)
	return err
}

func (p *Playerctl) Status(ctx context.Context) (string, error) {
	out, err := runOK(ctx, p.exec, "playerctl", "status")
	return strings.TrimSpace(out), err
}

func (p *Playerctl) Metadata(ctx context.Context) (map[string]string, error) {
	out, err := runOK(ctx, p.exec, "playerctl", "metadata", "--format",
		"{{artist}}\t{{title}}\t{{album}}\t{{mpris:length}}")
	if err != nil {
		return nil, err
	}
	fields := strings.Split(strings.TrimRight(out, "\n"), "\t")
	for len(fields) < 4 {
		fields = append(fields, "")
	}
	return map[string]string{
		"artist": fields[0],
		"title":  fields[1],
		"album":  fields[2],
		"length": fields[3],
	}, nil
}
