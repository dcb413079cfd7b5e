// Package logging provides a shared logger and log utilities to be used in all internal packages.
package logging

import (
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// L is the logger used by every package. Replace it with SetLevel,
// UseFileLogger or, in tests, PatchLogger.
var L = newLogger(os.Stderr, zerolog.InfoLevel)

// newLogger writes to a console writer when writer is a terminal, and JSON
// otherwise.
func newLogger(writer io.Writer, level zerolog.Level) *zerolog.Logger {
	if f, ok := writer.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		writer = zerolog.ConsoleWriter{
			Out:         f,
			TimeFormat:  time.RFC3339,
			FormatLevel: consoleFormatLevel,
		}
	}

	logger := zerolog.New(writer).Level(level).With().Timestamp().Caller().Logger()
	return &logger
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// SetLevel changes the level of L. Valid names are those of zerolog:
// trace, debug, info, warn, error, fatal, panic and disabled.
func SetLevel(name string) error {
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", name, err)
	}

	logger := L.Level(level)
	L = &logger
	return nil
}

// PatchLogger replaces L with a logger that writes JSON to writer at trace
// level, and restores the original when the test ends. A nil writer discards
// all output.
func PatchLogger(t testing.TB, writer io.Writer) {
	if writer == nil {
		writer = io.Discard
	}

	orig := L
	logger := zerolog.New(writer).Level(zerolog.TraceLevel).With().Timestamp().Logger()
	L = &logger

	t.Cleanup(func() {
		L = orig
	})
}

func Tracef(format string, v ...interface{}) {
	L.Trace().CallerSkipFrame(1).Msgf(format, v...)
}

func Debugf(format string, v ...interface{}) {
	L.Debug().CallerSkipFrame(1).Msgf(format, v...)
}

func Infof(format string, v ...interface{}) {
	L.Info().CallerSkipFrame(1).Msgf(format, v...)
}

func Warnf(format string, v ...interface{}) {
	L.Warn().CallerSkipFrame(1).Msgf(format, v...)
}

func Errorf(format string, v ...interface{}) {
	L.Error().CallerSkipFrame(1).Msgf(format, v...)
}
