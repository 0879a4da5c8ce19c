package peer

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggerFactory_MapsLevelsAndScope(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	l := NewLoggerFactory(logger).NewLogger("ice")
	l.Tracef("trace %d", 1)
	l.Debugf("debug %d", 2)
	l.Warn("careful")
	l.Errorf("boom %s", "x")

	out := buf.String()
	if strings.Contains(out, "trace 1") {
		t.Fatalf("trace output should be filtered at debug level: %q", out)
	}
	for _, want := range []string{
		`level=DEBUG msg="debug 2" scope=ice`,
		`level=WARN msg=careful scope=ice`,
		`level=ERROR msg="boom x" scope=ice`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestLoggerFactory_TraceLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: LevelTrace}))

	NewLoggerFactory(logger).NewLogger("sctp").Trace("tick")
	if !strings.Contains(buf.String(), "msg=tick scope=sctp") {
		t.Fatalf("trace not emitted: %q", buf.String())
	}
}
