package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds the process logger. format "console" gives human readable
// output on stderr, anything else is JSON on stdout.
func New(level, format string) zerolog.Logger {
	return NewWithWriter(level, format, nil)
}

// NewWithWriter is New with an explicit sink; nil picks the default one.
func NewWithWriter(level, format string, w io.Writer) zerolog.Logger {
	logLevel, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		logLevel = zerolog.InfoLevel
	}

	if w == nil {
		if strings.EqualFold(format, "console") {
			w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		} else {
			w = os.Stdout
		}
	}

	return zerolog.New(w).With().
		Timestamp().
		Logger().
		Level(logLevel)
}

// Component returns a child logger tagged with the component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
