package peer

import (
	"fmt"
	"log/slog"

	"github.com/pion/transport/v4"
	"github.com/pion/webrtc/v4"
)

type APIOption func(*webrtc.SettingEngine)

// WithNet runs ICE over n instead of the host network stack (e.g. a vnet.Net).
func WithNet(n transport.Net) APIOption {
	return func(se *webrtc.SettingEngine) {
		se.SetNet(n)
	}
}

// NewAPI builds the pion API used by clients, with pion's logs sent to logger.
func NewAPI(logger *slog.Logger, opts ...APIOption) (*webrtc.API, error) {
	se := webrtc.SettingEngine{
		LoggerFactory: NewLoggerFactory(logger),
	}
	for _, opt := range opts {
		opt(&se)
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	return webrtc.NewAPI(
		webrtc.WithSettingEngine(se),
		webrtc.WithMediaEngine(mediaEngine),
	), nil
}
