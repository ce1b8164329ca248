// Package querylog builds the leveled logger the query cache and persisted
// cells use to report background failures (a failed save, a classified
// fetch error, a dropped storage write) without ever propagating them as
// Go errors across the reactive boundary.
//
// It is adapted from h3-spatial-cache's internal/logger package: the same
// Config{Level, Component} shape feeding a single zerolog.Logger, built
// once and threaded through by value. The spec's six-level enum
// (none,error,warn,info,debug,verbose) does not line up one-to-one with
// zerolog's five, so New maps "none" to a fully disabled logger and
// "verbose" to zerolog's Trace level.
package querylog

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Level is the spec's logLevel enum (§6, Client config).
type Level string

const (
	LevelNone    Level = "none"
	LevelError   Level = "error"
	LevelWarn    Level = "warn"
	LevelInfo    Level = "info"
	LevelDebug   Level = "debug"
	LevelVerbose Level = "verbose"
)

// Config configures a Logger.
type Config struct {
	Level     Level
	Component string
	Out       io.Writer
}

// Logger wraps a configured zerolog.Logger with the level the module was
// built at, so callers can skip expensive field construction when a level
// is disabled (Enabled).
type Logger struct {
	zl    zerolog.Logger
	level Level
}

// New builds a Logger per cfg. A zero Config produces an info-level logger
// writing to stderr, matching zerolog's own default.
func New(cfg Config) Logger {
	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if cfg.Level == LevelNone {
		return Logger{zl: zerolog.New(io.Discard), level: LevelNone}
	}

	base := zerolog.New(out).With().Timestamp()
	if cfg.Component != "" {
		base = base.Str("component", cfg.Component)
	}
	zl := base.Logger().Level(zerologLevel(cfg.Level))

	return Logger{zl: zl, level: cfg.Level}
}

func zerologLevel(l Level) zerolog.Level {
	switch strings.ToLower(string(l)) {
	case string(LevelError):
		return zerolog.ErrorLevel
	case string(LevelWarn):
		return zerolog.WarnLevel
	case string(LevelDebug):
		return zerolog.DebugLevel
	case string(LevelVerbose):
		return zerolog.TraceLevel
	case string(LevelInfo), "":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}

// Enabled reports whether the logger would emit at all (false only for
// LevelNone), so callers can skip building a log event's fields.
func (l Logger) Enabled() bool { return l.level != LevelNone }

// With returns a child logger decorated with a key/value field, following
// zerolog's own With().Str() chaining style kept terse behind one call.
func (l Logger) With(key, value string) Logger {
	l.zl = l.zl.With().Str(key, value).Logger()
	return l
}

func (l Logger) Error(msg string, err error, fields map[string]any) {
	ev := l.zl.Error().Err(err)
	applyFields(ev, fields)
	ev.Msg(msg)
}

func (l Logger) Warn(msg string, fields map[string]any) {
	ev := l.zl.Warn()
	applyFields(ev, fields)
	ev.Msg(msg)
}

func (l Logger) Info(msg string, fields map[string]any) {
	ev := l.zl.Info()
	applyFields(ev, fields)
	ev.Msg(msg)
}

func (l Logger) Debug(msg string, fields map[string]any) {
	ev := l.zl.Debug()
	applyFields(ev, fields)
	ev.Msg(msg)
}

func (l Logger) Verbose(msg string, fields map[string]any) {
	ev := l.zl.Trace()
	applyFields(ev, fields)
	ev.Msg(msg)
}

func applyFields(ev *zerolog.Event, fields map[string]any) {
	for k, v := range fields {
		ev.Interface(k, v)
	}
}
