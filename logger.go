package mqttflow

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"sync/atomic"
)

// LogLevel represents the logging level.
type LogLevel int32

// Log levels in increasing severity. LogLevelNone disables logging.
const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelNone
)

var logLevelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "NONE"}

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	if l < 0 || int(l) >= len(logLevelNames) {
		return "UNKNOWN"
	}
	return logLevelNames[l]
}

// LogFields represents key-value pairs for structured logging.
type LogFields map[string]any

// Logger is the logging interface used by a connection.
// Implementations must be safe for concurrent use.
type Logger interface {
	Debug(msg string, fields LogFields)
	Info(msg string, fields LogFields)
	Warn(msg string, fields LogFields)
	Error(msg string, fields LogFields)

	// WithFields returns a logger that adds fields to every entry.
	WithFields(fields LogFields) Logger

	Level() LogLevel
	SetLevel(level LogLevel)
}

// levelGate holds a level that may change while other goroutines log.
type levelGate struct {
	level atomic.Int32
}

func newLevelGate(level LogLevel) *levelGate {
	g := &levelGate{}
	g.level.Store(int32(level))
	return g
}

func (g *levelGate) Level() LogLevel         { return LogLevel(g.level.Load()) }
func (g *levelGate) SetLevel(level LogLevel) { g.level.Store(int32(level)) }
func (g *levelGate) enabled(level LogLevel) bool {
	return level >= g.Level() && level < LogLevelNone
}

// NoOpLogger discards everything.
type NoOpLogger struct {
	*levelGate
}

// NewNoOpLogger creates a new no-op logger.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{levelGate: newLevelGate(LogLevelNone)}
}

func (n *NoOpLogger) Debug(string, LogFields) {}
func (n *NoOpLogger) Info(string, LogFields)  {}
func (n *NoOpLogger) Warn(string, LogFields)  {}
func (n *NoOpLogger) Error(string, LogFields) {}

// WithFields returns the same logger.
func (n *NoOpLogger) WithFields(LogFields) Logger { return n }

// StdLogger writes "[LEVEL] msg key=value ..." lines through the standard
// library log package. Fields are sorted by key.
type StdLogger struct {
	*levelGate
	logger *log.Logger
	fields LogFields
}

// NewStdLogger creates a logger writing to w, or to stderr if w is nil.
func NewStdLogger(w io.Writer, level LogLevel) *StdLogger {
	if w == nil {
		w = os.Stderr
	}
	return &StdLogger{
		levelGate: newLevelGate(level),
		logger:    log.New(w, "", log.LstdFlags),
	}
}

func (s *StdLogger) Debug(msg string, fields LogFields) { s.log(LogLevelDebug, msg, fields) }
func (s *StdLogger) Info(msg string, fields LogFields)  { s.log(LogLevelInfo, msg, fields) }
func (s *StdLogger) Warn(msg string, fields LogFields)  { s.log(LogLevelWarn, msg, fields) }
func (s *StdLogger) Error(msg string, fields LogFields) { s.log(LogLevelError, msg, fields) }

// WithFields returns a child logger sharing the output and level of s.
func (s *StdLogger) WithFields(fields LogFields) Logger {
	return &StdLogger{
		levelGate: s.levelGate,
		logger:    s.logger,
		fields:    mergeFields(s.fields, fields),
	}
}

func (s *StdLogger) log(level LogLevel, msg string, fields LogFields) {
	if !s.enabled(level) {
		return
	}

	var line strings.Builder
	fmt.Fprintf(&line, "[%s] %s", level, msg)

	all := mergeFields(s.fields, fields)
	for _, k := range slices.Sorted(maps.Keys(all)) {
		fmt.Fprintf(&line, " %s=%v", k, all[k])
	}
	s.logger.Print(line.String())
}

func mergeFields(base, extra LogFields) LogFields {
	if len(extra) == 0 {
		return base
	}
	merged := make(LogFields, len(base)+len(extra))
	maps.Copy(merged, base)
	maps.Copy(merged, extra)
	return merged
}

// SlogLogger adapts a *slog.Logger. Entries below the logger's own level are
// dropped before reaching the handler.
type SlogLogger struct {
	*levelGate
	logger *slog.Logger
}

// NewSlogLogger creates a Logger writing through l. A nil l uses slog.Default().
func NewSlogLogger(l *slog.Logger, level LogLevel) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{levelGate: newLevelGate(level), logger: l}
}

func (s *SlogLogger) Debug(msg string, fields LogFields) { s.log(LogLevelDebug, msg, fields) }
func (s *SlogLogger) Info(msg string, fields LogFields)  { s.log(LogLevelInfo, msg, fields) }
func (s *SlogLogger) Warn(msg string, fields LogFields)  { s.log(LogLevelWarn, msg, fields) }
func (s *SlogLogger) Error(msg string, fields LogFields) { s.log(LogLevelError, msg, fields) }

// WithFields returns a child logger sharing the level of s.
func (s *SlogLogger) WithFields(fields LogFields) Logger {
	return &SlogLogger{
		levelGate: s.levelGate,
		logger:    s.logger.With(fieldAttrs(fields)...),
	}
}

var slogLevels = [...]slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError}

func (s *SlogLogger) log(level LogLevel, msg string, fields LogFields) {
	if !s.enabled(level) {
		return
	}
	s.logger.Log(context.Background(), slogLevels[level], msg, fieldAttrs(fields)...)
}

func fieldAttrs(fields LogFields) []any {
	attrs := make([]any, 0, len(fields))
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		attrs = append(attrs, slog.Any(k, fields[k]))
	}
	return attrs
}

// Field names used in connection log entries.
const (
	LogFieldTopic          = "topic"
	LogFieldPacketID       = "packet_id"
	LogFieldPacketType     = "packet_type"
	LogFieldQoS            = "qos"
	LogFieldReasonCode     = "reason_code"
	LogFieldError          = "error"
	LogFieldRequest        = "request" // sequence number of a request on its connection
	LogFieldPhase          = "phase"   // handshake phase of a publish
	LogFieldSessionPresent = "session_present"
	LogFieldDuration       = "duration"
)
