package cmd

import (
	"io"

	"github.com/muesli/termenv"
)

// newStderr enables ANSI sequences on the console for each write, so the
// nonce is shown in bold.
func newStderr(w io.Writer) io.Writer {
	return consoleWriter{Writer: w}
}

type consoleWriter struct {
	io.Writer
}

func (c consoleWriter) Write(p []byte) (int, error) {
	mode, err := termenv.EnableWindowsANSIConsole()
	if err != nil {
		// not a console, eg. redirected to a file
		return c.Writer.Write(p)
	}
	defer termenv.RestoreWindowsConsole(mode) //nolint:errcheck
	return c.Writer.Write(p)
}
