package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/zot/radial/internal/config"
	"github.com/zot/radial/internal/hotloader"
	"github.com/zot/radial/internal/mcp"
	"github.com/zot/radial/internal/protocol"
	"github.com/zot/radial/internal/server"
)

func runServe(args []string, hooks *Hooks, stderr io.Writer) int {
	cfg, _, err := config.Load(args)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := serve(ctx, cfg, hooks); err != nil {
		fmt.Fprintf(stderr, "radial: %v\n", err)
		return 1
	}
	return 0
}

// serve runs the host until ctx is done or a component fails.
func serve(ctx context.Context, cfg *Config, hooks *Hooks) error {
	fanout := protocol.NewFanout()
	h, err := newHost(cfg, hooks, fanout)
	if err != nil {
		return err
	}
	defer func() {
		if err := h.runner.Close(); err != nil {
			cfg.Log(0, "Closing runner: %v", err)
		}
	}()

	scripts, err := loadScripts(cfg)
	if err != nil {
		return err
	}
	if err := h.runner.Initialize(scripts); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	srv := server.New(cfg, h.runner, fanout)
	g.Go(func() error {
		return srv.ListenAndServe(ctx)
	})

	if cfg.Scripts.Watch {
		hl, err := hotloader.New(cfg, cfg.Scripts.Dir, func() error {
			scripts, err := loadScripts(cfg)
			if err != nil {
				return err
			}
			return h.runner.Reload(scripts)
		})
		if err != nil {
			return err
		}
		g.Go(func() error {
			if err := hl.Run(ctx); err != nil {
				// serving continues without reloads
				cfg.Log(0, "Hot reload disabled: %v", err)
				hl.Stop()
			}
			return nil
		})
	}

	if cfg.MCP.Enabled {
		ms := mcp.NewServer(cfg, h.runner, Version)
		g.Go(func() error {
			return ms.Serve(ctx, os.Stdin, os.Stdout)
		})
	}

	return g.Wait()
}
