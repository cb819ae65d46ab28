package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New returns the process logger. Dev environments get human readable output.
func New(env string) zerolog.Logger {
	return NewWithWriter(env, os.Stdout)
}

func NewWithWriter(env string, w io.Writer) zerolog.Logger {
	if env == "dev" {
		w = zerolog.ConsoleWriter{Out: w}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}
