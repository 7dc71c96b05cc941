package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level      string
	Dev        bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// New builds the root logger: stdout (console format in development) plus a
// rotating JSON file when File is set.
func New(opts Options) zerolog.Logger {
	return NewWithWriter(os.Stdout, opts)
}

// NewWithWriter is New with stdout replaced by out.
func NewWithWriter(out io.Writer, opts Options) zerolog.Logger {
	var console io.Writer = out
	if opts.Dev {
		console = zerolog.ConsoleWriter{Out: out}
	}

	w := console
	if opts.File != "" {
		w = zerolog.MultiLevelWriter(console, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		})
	}

	return zerolog.New(w).
		Level(ParseLevel(opts.Level)).
		With().
		Timestamp().
		Str("service", "medisched").
		Logger()
}

// ParseLevel maps a LOG_LEVEL value to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
