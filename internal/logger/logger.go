package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

func New() *logrus.Logger {
	return NewWithOutput(os.Stdout, os.Getenv("LOG_LEVEL"))
}

func NewWithOutput(w io.Writer, level string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetLevel(ParseLevel(level))
	return l
}

// ParseLevel maps LOG_LEVEL values to logrus levels, defaulting to info.
func ParseLevel(v string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// ForCall scopes an entry to one call session.
func ForCall(l logrus.FieldLogger, sessionID, phone string) *logrus.Entry {
	if l == nil {
		l = Discard()
	}
	return l.WithFields(logrus.Fields{
		"session_id": sessionID,
		"phone":      phone,
	})
}

// Discard returns a logger that drops everything; used by tests and optional components.
func Discard() *logrus.Logger {
	return NewWithOutput(io.Discard, "error")
}
