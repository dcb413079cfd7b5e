package logging

import (
	"fmt"

	"github.com/rs/zerolog"
)

const (
	colorBold    = 1
	colorRed     = 31
	colorGreen   = 32
	colorYellow  = 33
	colorMagenta = 35
)

// consoleLevels are the names and colors the console writer uses for each
// level. All names are padded to the same width.
var consoleLevels = map[string]struct {
	name   string
	colors []int
}{
	zerolog.LevelTraceValue: {"TRACE", []int{colorMagenta}},
	zerolog.LevelDebugValue: {"DEBUG", []int{colorYellow}},
	zerolog.LevelInfoValue:  {"INFO ", []int{colorGreen}},
	zerolog.LevelWarnValue:  {"WARN ", []int{colorRed}},
	zerolog.LevelErrorValue: {"ERROR", []int{colorRed, colorBold}},
	zerolog.LevelFatalValue: {"FATAL", []int{colorRed, colorBold}},
	zerolog.LevelPanicValue: {"PANIC", []int{colorRed, colorBold}},
}

func consoleFormatLevel(i interface{}) string {
	l, ok := i.(string)
	if !ok {
		return fmt.Sprintf("%v", i)
	}

	level, ok := consoleLevels[l]
	if !ok {
		level.name, level.colors = "?????", []int{colorBold}
	}
	if !isTerminal() {
		return level.name
	}

	s := level.name
	for _, c := range level.colors {
		s = fmt.Sprintf("\x1b[%dm%s\x1b[0m", c, s)
	}
	return s
}
