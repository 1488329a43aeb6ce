// CRC: crc-EventStream.md
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/zot/radial/internal/protocol"
)

const (
	pollWait     = time.Second
	writeWait    = 5 * time.Second
	maxInboundSz = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // any origin
	},
}

// client is one connected overlay. Only its writer goroutine writes to conn.
type client struct {
	id      string
	conn    *websocket.Conn
	queue   *protocol.Queue
	limiter *rate.Limiter // nil when frames are unthrottled
	ctx     context.Context
	cancel  context.CancelFunc
}

// HandleEvents upgrades the request and streams messages until either side
// hangs up.
func (s *Server) HandleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log(0, "WebSocket upgrade failed: %v", err)
		return
	}
	conn.SetReadLimit(maxInboundSz)

	c := &client{
		id:    "conn-" + uuid.NewString(),
		conn:  conn,
		queue: protocol.NewQueue(),
	}
	if fps := s.cfg.Server.MaxFPS; fps > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(fps), 1)
	}
	c.ctx, c.cancel = context.WithCancel(s.ctx)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[c.id] = c
	s.wg.Add(2)
	s.mu.Unlock()
	s.fanout.Add(c.id, c.queue)

	s.Log(1, "WebSocket connected: conn=%s", c.id)
	go s.writePump(c)
	go s.readPump(c)
}

// readPump decodes inbound messages and hands them to the svc loop.
func (s *Server) readPump(c *client) {
	defer s.wg.Done()
	defer s.disconnect(c)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.Log(0, "WebSocket error: conn=%s: %v", c.id, err)
			}
			return
		}
		Svc(s.svc, s.ctx.Done(), func() {
			s.processMessage(c, data)
		})
	}
}

// processMessage handles one inbound message. Anything unusable is answered
// with an error message on the same connection.
func (s *Server) processMessage(c *client, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.Log(0, "PANIC in processMessage: %v", r)
			s.sendError(c, "internal", fmt.Sprintf("internal error: %v", r))
		}
	}()

	msg, err := protocol.ParseMessage(data)
	if err != nil {
		s.sendError(c, "parse", err.Error())
		return
	}
	s.Log(2, "[IN] %s: from=%s", strings.ToUpper(string(msg.Type)), c.id)

	switch msg.Type {
	case protocol.MsgRun:
		var run protocol.RunMessage
		if err := msg.Decode(&run); err != nil {
			s.sendError(c, "invalid", err.Error())
			return
		}
		if _, ok := s.runner.Lookup(run.Action); !ok {
			s.sendError(c, "unknown-action", fmt.Sprintf("unknown action %q", run.Action))
			return
		}
		s.runner.Run(run.Action)
	case protocol.MsgClearAll:
		s.runner.Clear()
	default:
		s.sendError(c, "unsupported", fmt.Sprintf("unsupported message type %q", msg.Type))
	}
}

func (s *Server) sendError(c *client, code, description string) {
	if err := protocol.Send(c.queue, protocol.MsgError, protocol.ErrorMessage{Code: code, Description: description}); err != nil {
		s.Log(0, "Cannot build error message: %v", err)
	}
}

// writePump drains the client's queue onto the socket. Frames wait for the
// limiter; newer frames replace the waiting one in the queue meanwhile.
func (s *Server) writePump(c *client) {
	defer s.wg.Done()
	defer c.conn.Close()

	for c.ctx.Err() == nil {
		for _, msg := range c.queue.Poll(pollWait) {
			if msg.Type == protocol.MsgFrame && c.limiter != nil {
				if err := c.limiter.Wait(c.ctx); err != nil {
					return
				}
			}
			if err := s.write(c, msg); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					s.Log(1, "WebSocket write failed: conn=%s: %v", c.id, err)
				}
				c.cancel()
				return
			}
		}
	}
	deadline := time.Now().Add(writeWait)
	c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
}

func (s *Server) write(c *client, msg *protocol.Message) error {
	if s.cfg.Verbosity() >= 4 {
		s.Log(4, "[OUT] %s: to=%s data=%s", strings.ToUpper(string(msg.Type)), c.id, string(msg.Data))
	} else if msg.Type != protocol.MsgFrame {
		s.Log(3, "[OUT] %s: to=%s", strings.ToUpper(string(msg.Type)), c.id)
	}
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// disconnect unregisters a client and stops its writer.
func (s *Server) disconnect(c *client) {
	s.fanout.Remove(c.id)
	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()
	c.cancel()
	c.queue.Close()
	s.Log(1, "WebSocket disconnected: conn=%s", c.id)
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) closeClients() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		c.cancel()
		c.queue.Close()
		// unblocks the reader
		c.conn.SetReadDeadline(time.Now())
	}
}
