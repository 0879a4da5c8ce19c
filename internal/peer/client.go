package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/Ravinder2001/live-mic-steamer/internal/relay"
)

// DataChannelLabel is the label of the channel a publisher opens.
const DataChannelLabel = "room"

const wsWriteWait = 5 * time.Second

type Role string

const (
	// RolePublisher creates the data channel and posts the room's offer.
	RolePublisher Role = "publish"
	// RoleSubscriber joins a room and answers whatever offer is replayed or
	// fanned out to it.
	RoleSubscriber Role = "subscribe"
)

var ErrNotOpen = errors.New("data channel not open")

type Config struct {
	// URL is the signaling endpoint, e.g. ws://localhost:3000/ws.
	URL        string
	Room       string
	Role       Role
	ICEServers []webrtc.ICEServer

	// API defaults to NewAPI(Logger).
	API *webrtc.API
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
	Logger *slog.Logger

	OnOpen    func()
	OnMessage func(data []byte)
}

// Client is one side of a single peer connection negotiated through a
// signaling room. Descriptions are sent with all candidates gathered, so the
// relay's cached offer is usable by subscribers that join later.
type Client struct {
	cfg Config
	log *slog.Logger
	ws  *websocket.Conn
	pc  *webrtc.PeerConnection

	writeMu sync.Mutex

	mu      sync.Mutex
	dc      *webrtc.DataChannel
	pending []webrtc.ICECandidateInit

	opened    chan struct{}
	openOnce  sync.Once
	closeOnce sync.Once
}

// Dial connects to the signaling server and prepares the peer connection.
// Negotiation starts with Run.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("signaling url is required")
	}
	if cfg.Room == "" {
		return nil, errors.New("room is required")
	}
	if cfg.Role != RolePublisher && cfg.Role != RoleSubscriber {
		return nil, fmt.Errorf("invalid role %q", cfg.Role)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.API == nil {
		api, err := NewAPI(cfg.Logger)
		if err != nil {
			return nil, err
		}
		cfg.API = api
	}

	ws, _, err := cfg.Dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial signaling: %w", err)
	}

	pc, err := cfg.API.NewPeerConnection(webrtc.Configuration{ICEServers: cfg.ICEServers})
	if err != nil {
		_ = ws.Close()
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	c := &Client{
		cfg:    cfg,
		log:    cfg.Logger.With("client_id", uuid.NewString(), "room", cfg.Room, "role", string(cfg.Role)),
		ws:     ws,
		pc:     pc,
		opened: make(chan struct{}),
	}
	pc.OnDataChannel(c.attach)
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.log.Debug("peer connection state", "state", s.String())
	})
	return c, nil
}

// Opened is closed once the data channel is open.
func (c *Client) Opened() <-chan struct{} { return c.opened }

// Run starts negotiation and processes signaling messages until ctx is done or
// the signaling connection closes.
func (c *Client) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = c.ws.Close() })
	defer stop()

	switch c.cfg.Role {
	case RolePublisher:
		dc, err := c.pc.CreateDataChannel(DataChannelLabel, nil)
		if err != nil {
			return fmt.Errorf("create data channel: %w", err)
		}
		c.attach(dc)

		offer, err := c.pc.CreateOffer(nil)
		if err != nil {
			return fmt.Errorf("create offer: %w", err)
		}
		payload, err := c.setLocal(ctx, offer)
		if err != nil {
			return err
		}
		if err := c.send(relay.Message{Type: relay.MessageTypeOffer, Room: c.cfg.Room, Payload: payload}); err != nil {
			return err
		}
		c.log.Info("offer posted")
	case RoleSubscriber:
		if err := c.send(relay.Message{Type: relay.MessageTypeJoin, Room: c.cfg.Room}); err != nil {
			return err
		}
		c.log.Info("joined room")
	}

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read signaling: %w", err)
		}

		// Relayed disconnects carry no room, so this does not use relay.ParseMessage.
		var msg relay.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Debug("ignoring malformed signaling message", "err", err)
			continue
		}
		if err := c.handle(ctx, msg); err != nil {
			return err
		}
	}
}

func (c *Client) handle(ctx context.Context, msg relay.Message) error {
	switch msg.Type {
	case relay.MessageTypeOffer:
		if c.cfg.Role != RoleSubscriber || c.pc.RemoteDescription() != nil {
			return nil
		}
		var offer webrtc.SessionDescription
		if err := json.Unmarshal(msg.Payload, &offer); err != nil {
			c.log.Warn("ignoring undecodable offer", "err", err)
			return nil
		}
		if err := c.pc.SetRemoteDescription(offer); err != nil {
			c.log.Warn("rejecting offer", "err", err)
			return nil
		}
		c.flushCandidates()

		answer, err := c.pc.CreateAnswer(nil)
		if err != nil {
			return fmt.Errorf("create answer: %w", err)
		}
		payload, err := c.setLocal(ctx, answer)
		if err != nil {
			return err
		}
		if err := c.send(relay.Message{Type: relay.MessageTypeAnswer, Room: c.cfg.Room, Payload: payload}); err != nil {
			return err
		}
		c.log.Info("answer posted")

	case relay.MessageTypeAnswer:
		if c.cfg.Role != RolePublisher || c.pc.SignalingState() != webrtc.SignalingStateHaveLocalOffer {
			return nil
		}
		var answer webrtc.SessionDescription
		if err := json.Unmarshal(msg.Payload, &answer); err != nil {
			c.log.Warn("ignoring undecodable answer", "err", err)
			return nil
		}
		if err := c.pc.SetRemoteDescription(answer); err != nil {
			c.log.Warn("rejecting answer", "err", err)
			return nil
		}
		c.flushCandidates()
		c.log.Info("answer applied")

	case relay.MessageTypeCandidate:
		var cand webrtc.ICECandidateInit
		if err := json.Unmarshal(msg.Payload, &cand); err != nil {
			c.log.Debug("ignoring undecodable candidate", "err", err)
			return nil
		}
		if c.pc.RemoteDescription() == nil {
			c.mu.Lock()
			c.pending = append(c.pending, cand)
			c.mu.Unlock()
			return nil
		}
		if err := c.pc.AddICECandidate(cand); err != nil {
			c.log.Debug("add candidate", "err", err)
		}

	case relay.MessageTypeDisconnect:
		c.log.Info("peer left room")
	}
	return nil
}

// setLocal applies desc and returns it, with gathered candidates, as a
// message payload.
func (c *Client) setLocal(ctx context.Context, desc webrtc.SessionDescription) (json.RawMessage, error) {
	gathered := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(desc); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	local := c.pc.LocalDescription()
	if local == nil {
		return nil, errors.New("local description missing after gathering")
	}
	return json.Marshal(local)
}

func (c *Client) flushCandidates() {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, cand := range pending {
		if err := c.pc.AddICECandidate(cand); err != nil {
			c.log.Debug("add buffered candidate", "err", err)
		}
	}
}

func (c *Client) attach(dc *webrtc.DataChannel) {
	c.mu.Lock()
	c.dc = dc
	c.mu.Unlock()

	dc.OnOpen(func() {
		c.openOnce.Do(func() { close(c.opened) })
		c.log.Info("data channel open", "label", dc.Label())
		if c.cfg.OnOpen != nil {
			c.cfg.OnOpen()
		}
	})
	dc.OnMessage(func(m webrtc.DataChannelMessage) {
		if c.cfg.OnMessage != nil {
			c.cfg.OnMessage(m.Data)
		}
	})
}

// Send writes data to the open data channel.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	dc := c.dc
	c.mu.Unlock()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrNotOpen
	}
	return dc.Send(data)
}

func (c *Client) send(msg relay.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s: %w", msg.Type, err)
	}
	return nil
}

// Close tears down the peer connection, tells the other room members with a
// disconnect message and closes the signaling connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.pc.Close()

		if err := c.send(relay.Message{Type: relay.MessageTypeDisconnect, Room: c.cfg.Room}); err != nil {
			c.log.Debug("send disconnect", "err", err)
		}

		c.writeMu.Lock()
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(wsWriteWait),
		)
		c.writeMu.Unlock()
		_ = c.ws.Close()
	})
	return err
}
