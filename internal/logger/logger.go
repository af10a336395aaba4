// Package logger holds the process-wide logrus logger.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Log is the shared logger. It is usable before Init with logrus defaults.
var Log = logrus.New()

// Init configures level and format and routes gin's writers through Log.
func Init(level, format string) {
	Log.SetOutput(os.Stdout)

	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = logrus.InfoLevel
		Log.Warnf("unknown log level %q, falling back to info", level)
	}
	Log.SetLevel(lvl)

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		Log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	default:
		Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})
	}

	gin.DefaultWriter = Log.WriterLevel(logrus.DebugLevel)
	gin.DefaultErrorWriter = Log.WriterLevel(logrus.ErrorLevel)
}

// Discard silences the logger. Tests call it to keep output readable.
func Discard() {
	Log.SetOutput(io.Discard)
}

func WithField(key string, value any) *logrus.Entry {
	return Log.WithField(key, value)
}

func WithFields(fields logrus.Fields) *logrus.Entry {
	return Log.WithFields(fields)
}

// Component returns an entry tagged with the owning component name.
func Component(name string) *logrus.Entry {
	return Log.WithField("component", name)
}
