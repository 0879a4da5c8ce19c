package relay

import "errors"

var (
	// ErrPeerClosed is returned by Peer.Send when the connection is closing or closed.
	ErrPeerClosed = errors.New("peer closed")
	// ErrQueueFull is returned by Peer.Send when the peer's outbound queue has no room.
	ErrQueueFull = errors.New("peer send queue full")

	ErrMalformedMessage = errors.New("malformed message")
	ErrMissingRoom      = errors.New("message has no room")
)
