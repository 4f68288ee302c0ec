package auth

import (
	"io"
	"log/slog"
	"strings"
)

// SlogLogger adapts a *slog.Logger to Logger.
type SlogLogger struct {
	l *slog.Logger
}

// NewSlogLogger wraps l. A nil logger falls back to slog.Default().
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{l: l}
}

func (s *SlogLogger) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s *SlogLogger) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s *SlogLogger) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s *SlogLogger) Error(msg string, args ...any) { s.l.Error(msg, args...) }

// GetLogger returns a child logger tagged with the component name.
func (s *SlogLogger) GetLogger(name string) Logger {
	return &SlogLogger{l: s.l.With("component", name)}
}

// NewLoggerProvider builds a slog backed provider writing to w.
// format is "json" or "text", level one of debug, info, warn, error.
func NewLoggerProvider(w io.Writer, format, level string) *SlogLogger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var h slog.Handler
	if strings.EqualFold(format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return NewSlogLogger(slog.New(h))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type defLogger struct{}

func (defLogger) Debug(string, ...any) {}
func (defLogger) Info(string, ...any)  {}
func (defLogger) Warn(string, ...any)  {}
func (defLogger) Error(string, ...any) {}

// ResolveLogger picks the logger a component should use: an explicit logger wins,
// then a named logger from the provider, then a no-op logger.
func ResolveLogger(name string, provider LoggerProvider, logger Logger) Logger {
	if logger != nil {
		return logger
	}
	if provider != nil {
		if l := provider.GetLogger(name); l != nil {
			return l
		}
	}
	return defLogger{}
}
