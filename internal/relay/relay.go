package relay

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/Ravinder2001/live-mic-steamer/internal/metrics"
)

// Peer is one member connection as seen by the relay.
//
// Open and Send are called with the relay's lock held and must not block:
// Send queues the message and returns ErrPeerClosed or ErrQueueFull when it
// cannot be taken.
type Peer interface {
	ID() string
	Open() bool
	Send(msg Message) error
}

// Outbound paths, used as metric labels.
const (
	pathFanout     = "fanout"
	pathReplay     = "replay"
	pathDisconnect = "disconnect"
)

type room struct {
	id      string
	members map[Peer]struct{}

	offer     json.RawMessage
	hasOffer  bool
	answer    json.RawMessage
	hasAnswer bool
}

// others returns every member except p.
func (r *room) others(p Peer) []Peer {
	out := make([]Peer, 0, len(r.members))
	for m := range r.members {
		if m != p {
			out = append(out, m)
		}
	}
	return out
}

// RoomInfo is a point-in-time view of a room. Payloads are deliberately left out.
type RoomInfo struct {
	ID        string `json:"id"`
	Members   int    `json:"members"`
	HasOffer  bool   `json:"hasOffer"`
	HasAnswer bool   `json:"hasAnswer"`
}

// Relay owns the room registry.
//
// A single mutex serializes every membership change, cache write, join-time
// cache read, recipient selection and enqueue, so each message is applied
// atomically with respect to messages and disconnects from other connections,
// and every peer sees messages in the order they were applied. Peer.Open and
// Peer.Send are called with the lock held and must not block.
type Relay struct {
	log     *slog.Logger
	metrics *metrics.Metrics

	mu    sync.Mutex
	rooms map[string]*room
	// peers maps every connected peer to the ids of the rooms it belongs to.
	peers map[Peer]map[string]struct{}
}

// New returns an empty relay. A nil m disables metrics.
func New(logger *slog.Logger, m *metrics.Metrics) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		log:     logger,
		metrics: m,
		rooms:   make(map[string]*room),
		peers:   make(map[Peer]map[string]struct{}),
	}
}

// Connect registers a peer with no room memberships. Messages from peers that
// are not registered are ignored.
func (r *Relay) Connect(p Peer) {
	r.mu.Lock()
	if _, ok := r.peers[p]; !ok {
		r.peers[p] = make(map[string]struct{})
	}
	r.mu.Unlock()
}

// Disconnect removes p from every room it joined and deletes rooms that are
// left without members. It is safe to call more than once.
func (r *Relay) Disconnect(p Peer) {
	r.mu.Lock()
	memberships, ok := r.peers[p]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.peers, p)

	var emptied []string
	for id := range memberships {
		rm, ok := r.rooms[id]
		if !ok {
			continue
		}
		delete(rm.members, p)
		if len(rm.members) == 0 {
			delete(r.rooms, id)
			emptied = append(emptied, id)
		}
	}
	r.metrics.SetRooms(len(r.rooms))
	r.mu.Unlock()

	for _, id := range emptied {
		r.log.Debug("room deleted", "room", id, "conn_id", p.ID())
	}
}

// HandleFrame parses a raw client frame and applies it. Frames that cannot be
// parsed or carry no room are dropped without touching any room.
func (r *Relay) HandleFrame(p Peer, data []byte) {
	msg, err := ParseMessage(data)
	if err != nil {
		reason := metrics.DropReasonMalformed
		if errors.Is(err, ErrMissingRoom) {
			reason = metrics.DropReasonMissingRoom
		}
		r.metrics.MessageDropped(reason)
		r.log.Debug("dropping message", "conn_id", p.ID(), "reason", reason, "err", err)
		return
	}
	r.Handle(p, msg)
}

// Handle applies one message from p:
//
//  1. p becomes a member of msg.Room (created if needed).
//  2. offer/answer payloads replace the room's cached value.
//  3. join is answered to p alone with the cached offer and answer, if any.
//  4. disconnect sends a bare {type:"disconnect"} to the other members.
//  5. everything else, offer and answer included, goes to the other members.
func (r *Relay) Handle(p Peer, msg Message) {
	if msg.Room == "" {
		r.metrics.MessageDropped(metrics.DropReasonMissingRoom)
		return
	}

	r.mu.Lock()
	memberships, ok := r.peers[p]
	if !ok {
		r.mu.Unlock()
		r.metrics.MessageDropped(metrics.DropReasonUnknownPeer)
		r.log.Debug("dropping message from unregistered peer", "conn_id", p.ID(), "room", msg.Room)
		return
	}

	rm, ok := r.rooms[msg.Room]
	if !ok {
		rm = &room{id: msg.Room, members: make(map[Peer]struct{})}
		r.rooms[msg.Room] = rm
		r.metrics.SetRooms(len(r.rooms))
		r.log.Debug("room created", "room", msg.Room, "conn_id", p.ID())
	}
	rm.members[p] = struct{}{}
	memberships[msg.Room] = struct{}{}

	var (
		recipients []Peer
		out        Message
		path       string
	)
	switch msg.Type {
	case MessageTypeJoin:
		var replay []Message
		if rm.hasOffer {
			replay = append(replay, Message{Type: MessageTypeOffer, Room: rm.id, Payload: rm.offer})
		}
		if rm.hasAnswer {
			replay = append(replay, Message{Type: MessageTypeAnswer, Room: rm.id, Payload: rm.answer})
		}
		for _, m := range replay {
			r.deliver(p, m, pathReplay)
		}
		r.mu.Unlock()

		r.metrics.MessageReceived(msg.Kind())
		r.log.Debug("join", "conn_id", p.ID(), "room", msg.Room, "replayed", len(replay))
		return

	case MessageTypeDisconnect:
		recipients = rm.others(p)
		out = Message{Type: MessageTypeDisconnect}
		path = pathDisconnect

	case MessageTypeOffer:
		rm.offer, rm.hasOffer = msg.Payload, true
		recipients, out, path = rm.others(p), msg, pathFanout

	case MessageTypeAnswer:
		rm.answer, rm.hasAnswer = msg.Payload, true
		recipients, out, path = rm.others(p), msg, pathFanout

	default:
		recipients, out, path = rm.others(p), msg, pathFanout
	}
	for _, peer := range recipients {
		r.deliver(peer, out, path)
	}
	r.mu.Unlock()

	r.metrics.MessageReceived(msg.Kind())
	r.log.Debug("relaying message",
		"conn_id", p.ID(),
		"room", msg.Room,
		"type", msg.Type,
		"recipients", len(recipients),
	)
}

// deliver queues msg to p. Failures only affect p. Called with r.mu held.
func (r *Relay) deliver(p Peer, msg Message, path string) {
	if !p.Open() {
		r.metrics.SendFailed(metrics.SendFailurePeerClosed)
		return
	}
	if err := p.Send(msg); err != nil {
		reason := metrics.SendFailureOther
		switch {
		case errors.Is(err, ErrPeerClosed):
			reason = metrics.SendFailurePeerClosed
		case errors.Is(err, ErrQueueFull):
			reason = metrics.SendFailureQueueFull
		}
		r.metrics.SendFailed(reason)
		r.log.Debug("skipping peer", "conn_id", p.ID(), "type", msg.Type, "err", err)
		return
	}
	r.metrics.MessageSent(path)
}

// Rooms returns a snapshot of every live room, sorted by id.
func (r *Relay) Rooms() []RoomInfo {
	r.mu.Lock()
	out := make([]RoomInfo, 0, len(r.rooms))
	for _, rm := range r.rooms {
		out = append(out, RoomInfo{
			ID:        rm.id,
			Members:   len(rm.members),
			HasOffer:  rm.hasOffer,
			HasAnswer: rm.hasAnswer,
		})
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Room returns the snapshot of a single room and whether it exists.
func (r *Relay) Room(id string) (RoomInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[id]
	if !ok {
		return RoomInfo{}, false
	}
	return RoomInfo{
		ID:        rm.id,
		Members:   len(rm.members),
		HasOffer:  rm.hasOffer,
		HasAnswer: rm.hasAnswer,
	}, true
}

// Connections reports how many peers are registered.
func (r *Relay) Connections() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}
