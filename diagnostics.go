package bsda

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Diagnostics receives the human readable progress and problem reports of a
// run. Nothing written here ever goes to standard output.
type Diagnostics interface {
	Info(msg string)
	Warn(msg string)
	Error(msg string)
}

// StreamDiagnostics prints every message on a stream (normally stderr) and
// mirrors it into a structured log.
type StreamDiagnostics struct {
	out    io.Writer
	logger zerolog.Logger
}

func NewStreamDiagnostics(out io.Writer, logger zerolog.Logger) *StreamDiagnostics {
	if out == nil {
		out = os.Stderr
	}
	return &StreamDiagnostics{out: out, logger: logger}
}

func (d *StreamDiagnostics) Info(msg string) {
	fmt.Fprintln(d.out, msg)
	d.logger.Info().Msg(msg)
}

func (d *StreamDiagnostics) Warn(msg string) {
	fmt.Fprintln(d.out, "Warning: "+msg)
	d.logger.Warn().Msg(msg)
}

func (d *StreamDiagnostics) Error(msg string) {
	fmt.Fprintln(d.out, "Error: "+msg)
	d.logger.Error().Msg(msg)
}

// NewLogger builds the detailed run log. An empty path gives a disabled
// logger; the returned closer must be called in both cases.
func NewLogger(path string, verbose bool) (zerolog.Logger, io.Closer, error) {
	if path == "" {
		return zerolog.Nop(), io.NopCloser(nil), nil
	}
	logfile, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("could not open log file %s: %w", path, err)
	}
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(logfile).
		Level(level).
		With().
		Timestamp().
		Str("version", Version).
		Logger()
	return logger, logfile, nil
}
