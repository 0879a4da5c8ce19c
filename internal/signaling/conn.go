package signaling

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Ravinder2001/live-mic-steamer/internal/metrics"
	"github.com/Ravinder2001/live-mic-steamer/internal/ratelimit"
	"github.com/Ravinder2001/live-mic-steamer/internal/relay"
)

const wsWriteWait = 5 * time.Second

// conn is one client WebSocket. It implements relay.Peer.
//
// The read loop runs on the HTTP handler goroutine and the write pump on its
// own goroutine; the send channel is never closed, done is closed exactly once
// on shutdown.
type conn struct {
	id      string
	srv     *Server
	ws      *websocket.Conn
	log     *slog.Logger
	limiter *ratelimit.MessageLimiter

	send chan []byte
	done chan struct{}

	open      atomic.Bool
	closeOnce sync.Once
}

var _ relay.Peer = (*conn)(nil)

func (c *conn) ID() string { return c.id }

func (c *conn) Open() bool { return c.open.Load() }

// Send queues msg for the write pump without blocking.
func (c *conn) Send(msg relay.Message) error {
	if !c.open.Load() {
		return relay.ErrPeerClosed
	}
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return relay.ErrPeerClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return relay.ErrQueueFull
	}
}

func (c *conn) run() {
	defer c.shutdown()

	go c.writePump()

	idle := c.srv.idleTimeout
	c.ws.SetReadLimit(c.srv.maxMessageBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(idle))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(idle))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			switch {
			case isTimeout(err):
				c.log.Info("closing idle websocket")
				writeClose(c.ws, websocket.CloseNormalClosure, "idle timeout")
			case errors.Is(err, websocket.ErrReadLimit):
				// gorilla has already sent 1009.
				c.log.Info("closing websocket: message too large", "limit", c.srv.maxMessageBytes)
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
			default:
				c.log.Debug("websocket read failed", "err", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(idle))

		// Rate limiting happens after the read so the frame is consumed and the
		// connection stays usable.
		if !c.limiter.Allow() {
			c.srv.metrics.MessageDropped(metrics.DropReasonRateLimited)
			c.log.Debug("dropping message", "reason", metrics.DropReasonRateLimited)
			continue
		}

		c.srv.relay.HandleFrame(c, data)
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(c.srv.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debug("websocket write failed", "err", err)
				// Unblocks the read loop, which runs shutdown.
				_ = c.ws.Close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				_ = c.ws.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// closeWith sends a close frame and tears the socket down. The read loop then
// observes the error and runs shutdown.
func (c *conn) closeWith(code int, reason string) {
	c.open.Store(false)
	writeClose(c.ws, code, reason)
	_ = c.ws.Close()
}

func (c *conn) shutdown() {
	c.closeOnce.Do(func() {
		c.open.Store(false)
		close(c.done)
		c.srv.relay.Disconnect(c)
		_ = c.ws.Close()
		c.srv.untrack(c)
		c.srv.metrics.ConnectionClosed()
		c.log.Info("websocket closed")
	})
}

func writeClose(ws *websocket.Conn, code int, reason string) {
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
