// Package relay groups signaling connections into rooms and forwards WebRTC
// negotiation messages between the members of a room.
//
// The relay never interprets payloads. It caches the most recent offer and
// answer of each room so a peer that joins after negotiation started can be
// brought up to date, and it forgets a room (cache included) as soon as its
// last member disconnects.
//
// The package is transport agnostic: members are reached through the Peer
// interface, implemented by the WebSocket layer in internal/signaling.
package relay
