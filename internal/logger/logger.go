package logger

import (
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// New builds the process logger. level is one of debug, info, warn or error
// (case-insensitive, default info); format is text or json.
func New(level, format string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(ParseLevel(level))

	if strings.EqualFold(format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
			DisableColors:   true,
		})
	}
	return l
}

func ParseLevel(level string) logrus.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return logrus.DebugLevel
	case "WARN", "WARNING":
		return logrus.WarnLevel
	case "ERROR":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Component scopes l to a named component.
func Component(l logrus.FieldLogger, name string) *logrus.Entry {
	return l.WithField("component", name)
}
