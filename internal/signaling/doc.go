// Package signaling is the WebSocket transport for the room relay.
//
// Every upgraded connection becomes a relay.Peer: frames read from the socket
// are handed to relay.HandleFrame, and messages the relay queues for the peer
// are written by a per-connection write pump. The package also owns keepalive
// pings, the idle timeout, inbound size and rate limits, and shutdown.
package signaling
