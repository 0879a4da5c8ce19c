package config

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func lookupMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func noEnv(string) (string, bool) { return "", false }

func TestDefaultsDev(t *testing.T) {
	cfg, err := load(noEnv, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeDev {
		t.Fatalf("mode=%q, want %q", cfg.Mode, ModeDev)
	}
	if cfg.LogFormat != LogFormatText {
		t.Fatalf("logFormat=%q, want %q", cfg.LogFormat, LogFormatText)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("logLevel=%v, want %v", cfg.LogLevel, slog.LevelDebug)
	}
	if cfg.ListenAddr != ":3000" {
		t.Fatalf("listenAddr=%q, want %q", cfg.ListenAddr, ":3000")
	}
	if cfg.ShutdownTimeout != DefaultShutdown {
		t.Fatalf("shutdownTimeout=%v, want %v", cfg.ShutdownTimeout, DefaultShutdown)
	}
	if len(cfg.AllowedOrigins) != 0 {
		t.Fatalf("allowedOrigins=%v, want empty", cfg.AllowedOrigins)
	}
	if cfg.StaticDir != "" {
		t.Fatalf("staticDir=%q, want empty", cfg.StaticDir)
	}
	if cfg.SignalingWSIdleTimeout != DefaultSignalingWSIdleTimeout {
		t.Fatalf("SignalingWSIdleTimeout=%v, want %v", cfg.SignalingWSIdleTimeout, DefaultSignalingWSIdleTimeout)
	}
	if cfg.SignalingWSPingInterval != DefaultSignalingWSPingInterval {
		t.Fatalf("SignalingWSPingInterval=%v, want %v", cfg.SignalingWSPingInterval, DefaultSignalingWSPingInterval)
	}
	if cfg.MaxSignalingMessageBytes != DefaultMaxSignalingMessageBytes {
		t.Fatalf("MaxSignalingMessageBytes=%d, want %d", cfg.MaxSignalingMessageBytes, DefaultMaxSignalingMessageBytes)
	}
	if cfg.MaxSignalingMessagesPerSecond != DefaultMaxSignalingMessagesPerSecond {
		t.Fatalf("MaxSignalingMessagesPerSecond=%d, want %d", cfg.MaxSignalingMessagesPerSecond, DefaultMaxSignalingMessagesPerSecond)
	}
	if cfg.SignalingSendQueueSize != DefaultSignalingSendQueueSize {
		t.Fatalf("SignalingSendQueueSize=%d, want %d", cfg.SignalingSendQueueSize, DefaultSignalingSendQueueSize)
	}
	if len(cfg.ICEServers) != 0 || cfg.ICEConfigError() != nil {
		t.Fatalf("ICEServers=%v err=%v, want none", cfg.ICEServers, cfg.ICEConfigError())
	}
}

func TestDefaultsProdWhenModeFlagSet(t *testing.T) {
	cfg, err := load(noEnv, []string{"--mode", "prod"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeProd {
		t.Fatalf("mode=%q, want %q", cfg.Mode, ModeProd)
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Fatalf("logFormat=%q, want %q", cfg.LogFormat, LogFormatJSON)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("logLevel=%v, want %v", cfg.LogLevel, slog.LevelInfo)
	}
}

func TestExplicitLogFormatWinsOverMode(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envVarMode:      "production",
		envVarLogFormat: "text",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeProd || cfg.LogFormat != LogFormatText {
		t.Fatalf("mode=%q logFormat=%q, want prod/text", cfg.Mode, cfg.LogFormat)
	}
}

func TestListenAddrFromPort(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{envVarPort: "8081"}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":8081" {
		t.Fatalf("listenAddr=%q, want %q", cfg.ListenAddr, ":8081")
	}

	cfg, err = load(lookupMap(map[string]string{
		envVarPort:       "8081",
		envVarListenAddr: "127.0.0.1:9000",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:9000" {
		t.Fatalf("listenAddr=%q, want %q", cfg.ListenAddr, "127.0.0.1:9000")
	}

	cfg, err = load(lookupMap(map[string]string{envVarPort: "8081"}), []string{"--listen-addr", "localhost:1"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "localhost:1" {
		t.Fatalf("listenAddr=%q, want flag value", cfg.ListenAddr)
	}
}

func TestSignalingEnvAndFlags(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envVarSignalingWSIdleTimeout:        "30s",
		envVarSignalingWSPingInterval:       "5s",
		envVarMaxSignalingMessageBytes:      "1024",
		envVarMaxSignalingMessagesPerSecond: "0",
		envVarSignalingSendQueueSize:        "8",
	}), []string{"--max-message-bytes", "2048"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SignalingWSIdleTimeout != 30*time.Second || cfg.SignalingWSPingInterval != 5*time.Second {
		t.Fatalf("idle=%v ping=%v", cfg.SignalingWSIdleTimeout, cfg.SignalingWSPingInterval)
	}
	if cfg.MaxSignalingMessageBytes != 2048 {
		t.Fatalf("MaxSignalingMessageBytes=%d, want flag value 2048", cfg.MaxSignalingMessageBytes)
	}
	if cfg.MaxSignalingMessagesPerSecond != 0 {
		t.Fatalf("MaxSignalingMessagesPerSecond=%d, want 0", cfg.MaxSignalingMessagesPerSecond)
	}
	if cfg.SignalingSendQueueSize != 8 {
		t.Fatalf("SignalingSendQueueSize=%d, want 8", cfg.SignalingSendQueueSize)
	}
}

func TestInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		args []string
		want string
	}{
		{name: "mode", args: []string{"--mode", "staging"}, want: "invalid mode"},
		{name: "log format", env: map[string]string{envVarLogFormat: "xml"}, want: "invalid log format"},
		{name: "log level", args: []string{"--log-level", "loud"}, want: "invalid log level"},
		{name: "duration", env: map[string]string{envVarSignalingWSIdleTimeout: "soon"}, want: envVarSignalingWSIdleTimeout},
		{name: "int", env: map[string]string{envVarMaxSignalingMessagesPerSecond: "many"}, want: envVarMaxSignalingMessagesPerSecond},
		{name: "ping >= idle", args: []string{"--ws-idle-timeout", "10s", "--ws-ping-interval", "10s"}, want: envVarSignalingWSPingInterval},
		{name: "message bytes", args: []string{"--max-message-bytes", "0"}, want: envVarMaxSignalingMessageBytes},
		{name: "queue size", args: []string{"--send-queue-size", "-1"}, want: envVarSignalingSendQueueSize},
		{name: "shutdown", args: []string{"--shutdown-timeout", "0s"}, want: "shutdown timeout"},
		{name: "origin", env: map[string]string{envVarAllowedOrigins: "https://ok.example.com,example.com"}, want: envVarAllowedOrigins},
		{name: "unknown flag", args: []string{"--nope"}, want: "nope"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := load(lookupMap(tc.env), tc.args)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err=%q, want it to mention %q", err, tc.want)
			}
		})
	}
}

func TestAllowedOriginsAreNormalized(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envVarAllowedOrigins: " HTTPS://App.Example.com:443 , http://localhost:5173/ ,*",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []string{"https://app.example.com", "http://localhost:5173", "*"}
	if strings.Join(cfg.AllowedOrigins, ",") != strings.Join(want, ",") {
		t.Fatalf("allowedOrigins=%v, want %v", cfg.AllowedOrigins, want)
	}
}

func TestInvalidICEConfigDoesNotFailLoad(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envTurnURLs: "turn:turn.example.com:3478",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ICEConfigError() == nil {
		t.Fatalf("expected ICE config error")
	}
	if len(cfg.ICEServers) != 0 {
		t.Fatalf("ICEServers=%v, want none", cfg.ICEServers)
	}
}

func TestICEServersJSONWinsOverConvenienceValues(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envStunURLs: "stun:ignored.example.com",
	}), []string{"--ice-servers-json", `[{"urls":"stun:stun.example.com:3478"}]`})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.ICEConfigError(); err != nil {
		t.Fatalf("ICEConfigError: %v", err)
	}
	if len(cfg.ICEServers) != 1 || cfg.ICEServers[0].URLs[0] != "stun:stun.example.com:3478" {
		t.Fatalf("ICEServers=%#v", cfg.ICEServers)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, Config{LogFormat: LogFormatJSON, LogLevel: slog.LevelInfo})
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("shown", "room", "r1")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug record emitted at info level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"room":"r1"`) {
		t.Fatalf("unexpected output: %s", out)
	}

	if _, err := newLogger(&buf, Config{LogFormat: "yaml"}); err == nil {
		t.Fatalf("expected error for unsupported log format")
	}
}

func TestTURNREST(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envVarTURNRESTSharedSecret: "s3cret",
		envTurnURLs:                "turn:turn.example.com:3478",
	}), []string{"--turn-rest-ttl=10m"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.TURNREST.Enabled() {
		t.Fatalf("TURN REST not enabled")
	}
	if cfg.TURNREST.TTL != 10*time.Minute || cfg.TURNREST.UsernamePrefix != DefaultTURNRESTUsernamePrefix {
		t.Fatalf("turnREST=%+v", cfg.TURNREST)
	}
	// TURN URLs without static credentials are fine once credentials are minted.
	if err := cfg.ICEConfigError(); err != nil {
		t.Fatalf("ICEConfigError: %v", err)
	}
	if len(cfg.ICEServers) != 1 || cfg.ICEServers[0].Credential != nil {
		t.Fatalf("iceServers=%#v", cfg.ICEServers)
	}
}

func TestTURNRESTDisabledStillRequiresStaticCredentials(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envTurnURLs: "turn:turn.example.com:3478",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TURNREST.Enabled() {
		t.Fatalf("TURN REST unexpectedly enabled")
	}
	if cfg.ICEConfigError() == nil {
		t.Fatalf("expected ICE config error")
	}
}

func TestTURNRESTInvalid(t *testing.T) {
	for _, env := range []map[string]string{
		{envVarTURNRESTSharedSecret: "s", envVarTURNRESTTTL: "500ms"},
		{envVarTURNRESTSharedSecret: "s", envVarTURNRESTUsernamePrefix: "a:b"},
		{envVarTURNRESTSharedSecret: "s", envVarTURNRESTUsernamePrefix: " "},
	} {
		if _, err := load(lookupMap(env), nil); err == nil {
			t.Fatalf("load(%v) succeeded, want error", env)
		}
	}
}
