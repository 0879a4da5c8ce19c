// Command room-peer is a WebRTC data channel peer that negotiates through a
// room-relay signaling server.
//
//	room-peer publish --url ws://localhost:3000/ws --room studio --message hi
//	room-peer subscribe --url ws://localhost:3000/ws --room studio
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
