// Package server streams runtime messages to overlay clients over a websocket
// and accepts run and clear requests back.
// CRC: crc-Server.md
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/zot/radial/internal/action"
	"github.com/zot/radial/internal/config"
	"github.com/zot/radial/internal/pool"
	"github.com/zot/radial/internal/protocol"
)

// Runner is the part of the script runner the server drives.
type Runner interface {
	Run(name string)
	Clear()
	Lookup(name string) (action.ActionModule, bool)
	Actions() []string
	Stats() pool.Stats
}

// Server is the event stream endpoint.
type Server struct {
	cfg    *config.Config
	runner Runner
	fanout *protocol.Fanout
	svc    ChanSvc

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
	wg      sync.WaitGroup

	httpServer *http.Server
}

// New creates a server. Messages emitted to fanout reach every client.
func New(cfg *config.Config, runner Runner, fanout *protocol.Fanout) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:     cfg,
		runner:  runner,
		fanout:  fanout,
		svc:     make(ChanSvc),
		ctx:     ctx,
		cancel:  cancel,
		clients: make(map[string]*client),
	}
	RunSvc(s.svc, ctx.Done())
	return s
}

// Log logs a message via the config.
func (s *Server) Log(level int, format string, args ...any) {
	s.cfg.Log(level, format, args...)
}

// Handler returns the HTTP routes: /events for the stream and /status for a
// JSON snapshot.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.HandleEvents)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

// Status is the body of GET /status.
type Status struct {
	Clients int        `json:"clients"`
	Actions []string   `json:"actions"`
	Pool    pool.Stats `json:"pool"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Status{
		Clients: s.Clients(),
		Actions: s.runner.Actions(),
		Pool:    s.runner.Stats(),
	})
}

// ListenAndServe listens on the configured address and serves until ctx is
// done, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.Log(1, "Event stream listening on %s", ln.Addr())

	errc := make(chan error, 1)
	go func() { errc <- s.httpServer.Serve(ln) }()

	select {
	case err := <-errc:
		s.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Close()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close disconnects every client and waits for their goroutines.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.closeClients()
	s.cancel()
	s.wg.Wait()
}
