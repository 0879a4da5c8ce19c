package peer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pion/logging"
)

// LevelTrace is below slog.LevelDebug; pion's trace output is only emitted
// when the handler is configured this low.
const LevelTrace = slog.LevelDebug - 4

// NewLoggerFactory routes pion's internal logging into logger. Each pion scope
// (ice, dtls, sctp, ...) becomes a "scope" attribute.
func NewLoggerFactory(logger *slog.Logger) logging.LoggerFactory {
	if logger == nil {
		logger = slog.Default()
	}
	return slogLoggerFactory{log: logger}
}

type slogLoggerFactory struct {
	log *slog.Logger
}

func (f slogLoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return slogLeveledLogger{log: f.log.With("scope", scope)}
}

type slogLeveledLogger struct {
	log *slog.Logger
}

func (l slogLeveledLogger) logf(level slog.Level, format string, args ...interface{}) {
	ctx := context.Background()
	if !l.log.Enabled(ctx, level) {
		return
	}
	l.log.Log(ctx, level, fmt.Sprintf(format, args...))
}

func (l slogLeveledLogger) Trace(msg string) { l.log.Log(context.Background(), LevelTrace, msg) }
func (l slogLeveledLogger) Debug(msg string) { l.log.Debug(msg) }
func (l slogLeveledLogger) Info(msg string)  { l.log.Info(msg) }
func (l slogLeveledLogger) Warn(msg string)  { l.log.Warn(msg) }
func (l slogLeveledLogger) Error(msg string) { l.log.Error(msg) }

func (l slogLeveledLogger) Tracef(format string, args ...interface{}) {
	l.logf(LevelTrace, format, args...)
}

func (l slogLeveledLogger) Debugf(format string, args ...interface{}) {
	l.logf(slog.LevelDebug, format, args...)
}

func (l slogLeveledLogger) Infof(format string, args ...interface{}) {
	l.logf(slog.LevelInfo, format, args...)
}

func (l slogLeveledLogger) Warnf(format string, args ...interface{}) {
	l.logf(slog.LevelWarn, format, args...)
}

func (l slogLeveledLogger) Errorf(format string, args ...interface{}) {
	l.logf(slog.LevelError, format, args...)
}
