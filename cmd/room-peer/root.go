package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/cobra"

	"github.com/Ravinder2001/live-mic-steamer/internal/peer"
)

type options struct {
	url        string
	room       string
	iceServers []string
	fetchICE   bool
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "room-peer",
		Short:         "WebRTC data channel peer for room-relay",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.url, "url", "ws://localhost:3000/ws", "signaling WebSocket URL")
	pf.StringVar(&opts.room, "room", "", "room id")
	pf.StringSliceVar(&opts.iceServers, "ice-server", nil, "ICE server URL (repeatable, e.g. stun:stun.l.google.com:19302)")
	pf.BoolVar(&opts.fetchICE, "fetch-ice", false, "load ICE servers from the relay's /webrtc/ice endpoint")
	pf.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&opts.logFormat, "log-format", "text", "log format (text, json)")
	_ = root.MarkPersistentFlagRequired("room")

	root.AddCommand(newPublishCmd(opts), newSubscribeCmd(opts))
	return root
}

func (o *options) logger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.logLevel)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", o.logLevel)
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	switch o.logFormat {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, handlerOpts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, handlerOpts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q (expected text or json)", o.logFormat)
	}
}

func (o *options) peerConfig(ctx context.Context, role peer.Role, logger *slog.Logger) (peer.Config, error) {
	cfg := peer.Config{
		URL:    o.url,
		Room:   o.room,
		Role:   role,
		Logger: logger,
	}
	if len(o.iceServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: o.iceServers}}
	}
	if o.fetchICE {
		servers, err := fetchICEServers(ctx, o.url)
		if err != nil {
			return peer.Config{}, err
		}
		cfg.ICEServers = append(cfg.ICEServers, servers...)
	}
	return cfg, nil
}

// fetchICEServers reads GET /webrtc/ice from the relay that serves wsURL.
func fetchICEServers(ctx context.Context, wsURL string) ([]webrtc.ICEServer, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse --url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = "/webrtc/ice"
	u.RawQuery = ""

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch ice servers: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch ice servers: %s", resp.Status)
	}

	var body struct {
		ICEServers []webrtc.ICEServer `json:"iceServers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode ice servers: %w", err)
	}
	return body.ICEServers, nil
}
