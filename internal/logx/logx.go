// Package logx implements the leveled logger used throughout the core,
// ported from the original's Log class (inc/Log.h). Unlike the original's
// per-component singleton, a logx.Logger is constructed explicitly and
// threaded through the component that owns it.
package logx

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Level mirrors Log::LEVEL.
type Level int

const (
	Debug Level = iota
	Verbose
	Info
	Warning
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Verbose:
		return "VERBOSE"
	case Info:
		return "INFO"
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a PrintLevel configuration string to a Level,
// matching Log::StringToLEVEL.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return Debug, true
	case "VERBOSE":
		return Verbose, true
	case "INFO":
		return Info, true
	case "WARNING":
		return Warning, true
	case "ERROR":
		return Error, true
	default:
		return Info, false
	}
}

var levelColor = map[Level]*color.Color{
	Debug:   color.New(color.FgHiBlack),
	Verbose: color.New(color.FgCyan),
	Info:    color.New(color.FgGreen),
	Warning: color.New(color.FgYellow),
	Error:   color.New(color.FgRed, color.Bold),
}

// Logger is a leveled, colorized writer. The zero value is not usable; use New.
type Logger struct {
	component string
	level     Level
	out       io.Writer
	noColor   bool
}

// New returns a Logger for component, writing to out at level Info.
func New(component string, out io.Writer) *Logger {
	return &Logger{component: component, level: Info, out: out}
}

// SetLevel sets the minimum level printed.
func (l *Logger) SetLevel(level Level) {
	l.level = level
}

// DisableColor turns off ANSI coloring, useful when out is not a terminal.
func (l *Logger) DisableColor() {
	l.noColor = true
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	if level < l.level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("[%s] %s: %s\n", level, l.component, msg)
	if l.noColor {
		fmt.Fprint(l.out, line)
		return
	}
	levelColor[level].Fprint(l.out, line)
}

func (l *Logger) Debugf(format string, args ...interface{})   { l.log(Debug, format, args...) }
func (l *Logger) Verbosef(format string, args ...interface{}) { l.log(Verbose, format, args...) }
func (l *Logger) Infof(format string, args ...interface{})    { l.log(Info, format, args...) }
func (l *Logger) Warningf(format string, args ...interface{}) { l.log(Warning, format, args...) }
func (l *Logger) Errorf(format string, args ...interface{})   { l.log(Error, format, args...) }

// Default returns a Logger writing to os.Stderr, used by components that
// are not given an explicit logger (e.g. when invoked from unit tests).
func Default(component string) *Logger {
	return New(component, os.Stderr)
}
