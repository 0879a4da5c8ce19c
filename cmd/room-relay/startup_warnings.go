package main

import (
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/pion/webrtc/v4"

	"github.com/Ravinder2001/live-mic-steamer/internal/config"
)

func logStartupWarnings(logger *slog.Logger, cfg config.Config) {
	if logger == nil {
		logger = slog.Default()
	}

	if slices.Contains(cfg.AllowedOrigins, "*") {
		logger.Warn("startup security warning: ALLOWED_ORIGINS contains '*' (allows any origin)",
			"warning_code", "allowed_origins_wildcard",
			"allowed_origins", cfg.AllowedOrigins,
			"mode", cfg.Mode,
		)
	}

	if cfg.Mode == config.ModeProd && cfg.MaxSignalingMessagesPerSecond <= 0 {
		logger.Warn("startup security warning: MAX_SIGNALING_MESSAGES_PER_SECOND is 0 (unlimited) while --mode=prod",
			"warning_code", "signaling_rate_limit_disabled_in_prod",
			"max_signaling_messages_per_second", cfg.MaxSignalingMessagesPerSecond,
			"mode", cfg.Mode,
		)
	}

	// Cached offers and answers are held per room until the last member
	// leaves, so this also bounds per-room memory.
	if cfg.MaxSignalingMessageBytes > 1<<20 { // 1MiB
		logger.Warn("startup security warning: MAX_SIGNALING_MESSAGE_BYTES is very large (increases per-message and per-room cache memory)",
			"warning_code", "max_signaling_message_bytes_large",
			"max_signaling_message_bytes", cfg.MaxSignalingMessageBytes,
			"mode", cfg.Mode,
		)
	}

	if err := cfg.ICEConfigError(); err != nil {
		logger.Warn("startup warning: ICE server configuration is invalid; /readyz will fail and /webrtc/ice returns 503",
			"warning_code", "ice_servers_invalid",
			"err", err,
			"mode", cfg.Mode,
		)
	}

	if cfg.TURNREST.Enabled() && cfg.ICEConfigError() == nil && !hasTURNServer(cfg.ICEServers) {
		logger.Warn("startup warning: TURN_REST_SHARED_SECRET is set but no TURN URLs are configured; no credentials will be issued",
			"warning_code", "turn_rest_without_turn_urls",
			"mode", cfg.Mode,
		)
	}

	if cfg.StaticDir != "" {
		if fi, err := os.Stat(cfg.StaticDir); err != nil || !fi.IsDir() {
			logger.Warn("startup warning: RELAY_STATIC_DIR is not a readable directory; static client will 404",
				"warning_code", "static_dir_missing",
				"static_dir", cfg.StaticDir,
				"mode", cfg.Mode,
			)
		}
	}
}

func hasTURNServer(servers []webrtc.ICEServer) bool {
	for _, s := range servers {
		for _, u := range s.URLs {
			u = strings.ToLower(u)
			if strings.HasPrefix(u, "turn:") || strings.HasPrefix(u, "turns:") {
				return true
			}
		}
	}
	return false
}
