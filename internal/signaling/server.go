package signaling

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Ravinder2001/live-mic-steamer/internal/metrics"
	"github.com/Ravinder2001/live-mic-steamer/internal/ratelimit"
	"github.com/Ravinder2001/live-mic-steamer/internal/relay"
)

const (
	defaultIdleTimeout     = 60 * time.Second
	defaultPingInterval    = 20 * time.Second
	defaultMaxMessageBytes = 64 * 1024
	defaultSendQueueSize   = 64
)

// Config wires together the runtime dependencies for the signaling service.
type Config struct {
	Relay   *relay.Relay
	Logger  *slog.Logger
	Metrics *metrics.Metrics

	// CheckOrigin is passed to the WebSocket upgrader. When nil, gorilla's
	// same-host check applies.
	CheckOrigin func(r *http.Request) bool

	// IdleTimeout closes connections that send nothing (pongs included) for
	// this long. PingInterval must be shorter.
	IdleTimeout  time.Duration
	PingInterval time.Duration

	// MaxMessageBytes is the transport read limit. Larger frames close the
	// connection with 1009.
	MaxMessageBytes int64
	// MaxMessagesPerSecond drops inbound frames above the rate. <= 0 disables
	// the limit.
	MaxMessagesPerSecond int
	// SendQueueSize bounds each connection's outbound queue.
	SendQueueSize int
}

// Server implements the relay's WebSocket surface.
//
// Endpoints:
//   - GET /ws : signaling WebSocket
//   - GET /   : same, for upgrade requests only (see Handler)
type Server struct {
	relay   *relay.Relay
	log     *slog.Logger
	metrics *metrics.Metrics

	idleTimeout          time.Duration
	pingInterval         time.Duration
	maxMessageBytes      int64
	maxMessagesPerSecond int
	sendQueueSize        int

	upgrader websocket.Upgrader

	mu     sync.Mutex
	closed bool
	conns  map[*conn]struct{}
}

func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := cfg.Relay
	if r == nil {
		r = relay.New(logger, cfg.Metrics)
	}

	s := &Server{
		relay:                r,
		log:                  logger,
		metrics:              cfg.Metrics,
		idleTimeout:          cfg.IdleTimeout,
		pingInterval:         cfg.PingInterval,
		maxMessageBytes:      cfg.MaxMessageBytes,
		maxMessagesPerSecond: cfg.MaxMessagesPerSecond,
		sendQueueSize:        cfg.SendQueueSize,
		upgrader: websocket.Upgrader{
			CheckOrigin: cfg.CheckOrigin,
		},
		conns: make(map[*conn]struct{}),
	}
	if s.idleTimeout <= 0 {
		s.idleTimeout = defaultIdleTimeout
	}
	if s.pingInterval <= 0 || s.pingInterval >= s.idleTimeout {
		s.pingInterval = min(defaultPingInterval, s.idleTimeout/2)
	}
	if s.maxMessageBytes <= 0 {
		s.maxMessageBytes = defaultMaxMessageBytes
	}
	if s.sendQueueSize <= 0 {
		s.sendQueueSize = defaultSendQueueSize
	}
	return s
}

// Relay returns the room registry connections are attached to.
func (s *Server) Relay() *relay.Relay { return s.relay }

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("GET /ws", s)
}

// Handler serves WebSocket upgrade requests and passes everything else to
// fallback (404 when nil). It lets clients connect to the site root while the
// same path serves the static client.
func (s *Server) Handler(fallback http.Handler) http.Handler {
	if fallback == nil {
		fallback = http.NotFoundHandler()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			s.ServeHTTP(w, r)
			return
		}
		fallback.ServeHTTP(w, r)
	})
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an HTTP error response.
		s.log.Debug("websocket upgrade failed", "remote_addr", r.RemoteAddr, "err", err)
		return
	}

	c := &conn{
		id:      uuid.NewString(),
		srv:     s,
		ws:      ws,
		limiter: ratelimit.NewMessageLimiter(nil, s.maxMessagesPerSecond),
		send:    make(chan []byte, s.sendQueueSize),
		done:    make(chan struct{}),
	}
	c.log = s.log.With("conn_id", c.id, "remote_addr", r.RemoteAddr)
	c.open.Store(true)

	if !s.track(c) {
		writeClose(ws, websocket.CloseGoingAway, "server shutting down")
		_ = ws.Close()
		return
	}

	s.relay.Connect(c)
	s.metrics.ConnectionOpened()
	c.log.Info("websocket connected")

	c.run()
}

// Close stops accepting connections and closes every live connection with a
// going-away close frame.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.closeWith(websocket.CloseGoingAway, "server shutting down")
	}
}

// Connections reports how many WebSocket connections are live.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) track(c *conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c *conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}
