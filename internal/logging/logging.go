// Package logging provides the leveled logger used across Lodestar. It is a
// thin facade over zerolog so that call sites stay printf-shaped.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// Config controls logger construction. The zero value logs Info and above as
// console output on stderr.
type Config struct {
	Level  Level
	Format string // "console" (default) or "json"
	Output io.Writer
}

type Logger struct {
	logger zerolog.Logger
	level  Level
}

func NewLogger(c Config) *Logger {
	out := c.Output
	if out == nil {
		out = os.Stderr
	}
	if c.Format != "json" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	return &Logger{
		logger: zerolog.New(out).With().Timestamp().Logger().Level(zerologLevel(c.Level)),
		level:  c.Level,
	}
}

// NewNopLogger returns a logger that discards everything. Used in tests.
func NewNopLogger() *Logger {
	return &Logger{logger: zerolog.Nop()}
}

func (l *Logger) Level() Level {
	return l.level
}

// WithComponent returns a child logger tagged with a component field.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		logger: l.logger.With().Str("component", name).Logger(),
		level:  l.level,
	}
}

func (l *Logger) Debugf(format string, args ...any) {
	l.logger.Debug().Msgf(format, args...)
}

func (l *Logger) Infof(format string, args ...any) {
	l.logger.Info().Msgf(format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.logger.Warn().Msgf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.logger.Error().Msgf(format, args...)
}

func zerologLevel(l Level) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}
