package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MessageType is the "type" field of a frame. Unknown values are passed through.
type MessageType string

const (
	MessageTypeOffer      MessageType = "offer"
	MessageTypeAnswer     MessageType = "answer"
	MessageTypeJoin       MessageType = "join"
	MessageTypeDisconnect MessageType = "disconnect"
	// MessageTypeCandidate is not special to the relay; it is listed because
	// it is the most common pass-through type.
	MessageTypeCandidate MessageType = "candidate"
)

// Message is the frame exchanged with clients.
//
// Payload is carried as raw JSON and is never inspected. Every Type other than
// offer, answer, join and disconnect is passed through to the other members of
// the room unchanged.
type Message struct {
	Type    MessageType     `json:"type"`
	Room    string          `json:"room,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Kind buckets the message type for logs and metrics: known types map to
// themselves and anything else to "other".
func (m Message) Kind() string {
	switch m.Type {
	case MessageTypeOffer, MessageTypeAnswer, MessageTypeJoin, MessageTypeDisconnect, MessageTypeCandidate:
		return string(m.Type)
	default:
		return "other"
	}
}

// ParseMessage decodes a client frame.
//
// Decoding is permissive: unknown fields are ignored and the type may be any
// string. It fails with ErrMalformedMessage when the frame is not a JSON object
// with string type/room fields, and with ErrMissingRoom when room is absent or
// empty.
func ParseMessage(data []byte) (Message, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Message{}, ErrMalformedMessage
	}

	var msg Message
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg.Room == "" {
		return Message{}, ErrMissingRoom
	}
	return msg, nil
}

// Encode renders the message as a single JSON text frame. HTML characters are
// not escaped so payloads are forwarded as written.
func (m Message) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
