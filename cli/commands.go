package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/zot/radial/internal/config"
	"github.com/zot/radial/internal/lua"
	"github.com/zot/radial/internal/protocol"
)

// printer writes emitted messages one per line. Frames are summarized.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *printer) Emit(msg *protocol.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if msg.Type == protocol.MsgFrame {
		var fr protocol.FrameMessage
		if err := msg.Decode(&fr); err == nil {
			fmt.Fprintf(p.w, "%s %dx%d\n", msg.Type, fr.Width, fr.Height)
			return
		}
	}
	if len(msg.Data) == 0 {
		fmt.Fprintln(p.w, msg.Type)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", msg.Type, msg.Data)
}

// runAction runs one action. If it leaves tickers running, it keeps going
// until interrupted.
func runAction(args []string, hooks *Hooks, stdout, stderr io.Writer) int {
	cfg, rest, err := config.Load(args)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if len(rest) != 1 {
		fmt.Fprintln(stderr, "usage: radial run [options] <action>")
		return 1
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := runOnce(ctx, cfg, hooks, rest[0], stdout, stderr); err != nil {
		fmt.Fprintf(stderr, "radial: %v\n", err)
		return 1
	}
	return 0
}

func runOnce(ctx context.Context, cfg *Config, hooks *Hooks, name string, stdout, stderr io.Writer) (err error) {
	h, err := newHost(cfg, hooks, &printer{w: stdout})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := h.runner.Close(); err == nil {
			err = cerr
		}
	}()

	scripts, err := loadScripts(cfg)
	if err != nil {
		return err
	}
	if err := h.runner.Initialize(scripts); err != nil {
		return err
	}
	if err := h.runner.RunSync(ctx, name); err != nil {
		return err
	}
	if n := h.mods.Timer.Live(); n > 0 && ctx.Err() == nil {
		fmt.Fprintf(stderr, "%d tickers running, interrupt to stop\n", n)
		<-ctx.Done()
	}
	return nil
}

func runActions(args []string, stdout, stderr io.Writer) int {
	cfg, _, err := config.Load(args)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}
	scripts, err := loadScripts(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "radial: %v\n", err)
		return 1
	}
	for _, name := range scripts.Names() {
		fmt.Fprintln(stdout, name)
	}
	return 0
}

func runAPI(args []string, hooks *Hooks, stdout, stderr io.Writer) int {
	cfg, rest, err := config.Load(args)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}
	h, err := newHost(cfg, hooks, protocol.Discard)
	if err != nil {
		fmt.Fprintf(stderr, "radial: %v\n", err)
		return 1
	}
	defer h.runner.Close()

	module := ""
	if len(rest) > 0 {
		module = rest[0]
	}
	found := false
	current := ""
	for _, e := range lua.Describe(h.runner.Modules()) {
		if module != "" && e.Module != module {
			continue
		}
		if e.Module != current {
			if current != "" {
				fmt.Fprintln(stdout)
			}
			fmt.Fprintln(stdout, e.Module)
			current = e.Module
		}
		found = true
		line := fmt.Sprintf("  %s.%s%s", e.Module, e.Name, e.Args)
		if e.Doc != "" {
			line += strings.Repeat(" ", max(1, 36-len(line))) + e.Doc
		}
		fmt.Fprintln(stdout, line)
	}
	if !found {
		fmt.Fprintf(stderr, "Unknown module: %s\n", module)
		return 1
	}
	return 0
}
