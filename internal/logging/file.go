package logging

import (
	"io"

	"gopkg.in/natefinch/lumberjack.v2"
)

// UseFileLogger replaces L with a logger that writes JSON lines to filename.
// The file is rotated at 10 MB and old files are compressed. The level of L
// is kept. Close the returned value when the command is done.
func UseFileLogger(filename string) io.Closer {
	writer := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    10,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	}

	L = newLogger(writer, L.GetLevel())
	return writer
}
