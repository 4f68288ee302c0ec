package auth

import (
	"time"
)

// Logger is the structured logger used across the package. Args are key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// LoggerProvider hands out named loggers so each component logs under its own scope.
type LoggerProvider interface {
	GetLogger(name string) Logger
}

// Clock returns the current time. Tests swap it to walk sessions through their states.
type Clock func() time.Time

func defaultClock() time.Time {
	return time.Now().UTC()
}

// RequestMeta describes the client that opened a session.
type RequestMeta struct {
	UserAgent string
	IP        string
}
