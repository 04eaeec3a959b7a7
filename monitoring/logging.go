// Package monitoring logs the stage transitions of sort and join operations.
package monitoring

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// Event types emitted by the sorter.
const (
	EventReadChunk      = "read_chunk"
	EventSortChunk      = "sort_chunk"
	EventWriteRun       = "write_run"
	EventMerge          = "merge"
	EventDeleteRuns     = "delete_runs"
	EventIntersect      = "intersect"
	EventDone           = "done"
	EventTruncatedInput = "truncated_record"
)

type Logger interface {
	Log(ctx context.Context, level LogLevel, eventType string, message string, details map[string]interface{})
}

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a level name such as "info" or "WARN".
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG", "TRACE":
		return DEBUG, nil
	case "INFO", "":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("monitoring: unknown log level %q", s)
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARN:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

type logger struct {
	component string
	z         *zap.Logger
}

// NewZapLogger returns a Logger writing JSON entries at or above level to
// stderr, tagged with component.
func NewZapLogger(component string, level LogLevel) (Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level.zapLevel())
	cfg.Sampling = nil
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	z, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("monitoring: failed to build logger: %w", err)
	}
	return NewLogger(component, z), nil
}

// NewLogger wraps an existing zap logger.
func NewLogger(component string, z *zap.Logger) Logger {
	return &logger{
		component: component,
		z:         z.With(zap.String("component", component)),
	}
}

// NewNopLogger returns a Logger that discards everything.
func NewNopLogger() Logger {
	return NewLogger("", zap.NewNop())
}

func (l *logger) Log(_ context.Context, level LogLevel, eventType string, message string, details map[string]interface{}) {
	ce := l.z.Check(level.zapLevel(), message)
	if ce == nil {
		return
	}

	fields := make([]zap.Field, 0, len(details)+1)
	fields = append(fields, zap.String("event_type", eventType))
	for k, v := range details {
		fields = append(fields, zap.Any(k, v))
	}
	ce.Write(fields...)
}
