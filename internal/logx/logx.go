// Package logx provides the small leveled-logging interface every internal
// package depends on instead of reaching for the standard library's log
// package directly (log is still used at cmd/ startup, matching the
// teacher's own split between package-level logging and cmd-level
// log.Fatal). The default implementation colorizes output when its writer
// is a TTY, mirroring original_source's logger.py console handler, and can add a
// size-rotated file sink mirroring logger.py's RotatingFileHandler; no
// rotation library appears anywhere in the retrieval pack, so this one
// piece is implemented directly atop os (see DESIGN.md).
package logx

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// Level is a logging severity.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "?"
	}
}

var colorCodes = map[Level]string{
	Debug: "\x1b[36m",
	Info:  "\x1b[32m",
	Warn:  "\x1b[33m",
	Error: "\x1b[31m",
}

const colorReset = "\x1b[0m"

// Logger is the leveled/structured logging surface every internal package
// takes as a collaborator (spec.md §9 "global mutable state": no ambient
// singleton — each component is constructed with one of these explicitly).
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Std is the default Logger: writes to w (color-aware via isatty) and,
// once WithRotatingFile has succeeded, also to a size-bounded rotating file.
type Std struct {
	w      io.Writer
	color  bool
	level  Level
	mu     sync.Mutex
	rotate *rotatingFile
}

// New constructs a Std logger writing to w at the given minimum level.
// Colorization is enabled automatically when w is a terminal.
func New(w io.Writer, level Level) *Std {
	color := false
	if f, ok := w.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Std{w: w, color: color, level: level}
}

// WithRotatingFile adds a size-bounded rotating file sink at path, rotating
// once the active file exceeds maxBytes and keeping at most maxBackups old
// generations (logger.py's RotatingFileHandler semantics).
func (s *Std) WithRotatingFile(path string, maxBytes int64, maxBackups int) error {
	rf, err := openRotatingFile(path, maxBytes, maxBackups)
	if err != nil {
		return err
	}
	s.rotate = rf
	return nil
}

func (s *Std) log(level Level, format string, args ...interface{}) {
	if level < s.level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	ts := time.Now().Format("2006-01-02T15:04:05Z07:00")
	line := fmt.Sprintf("%s [%s] %s\n", ts, level, msg)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.color {
		fmt.Fprintf(s.w, "%s%s [%s]%s %s\n", colorCodes[level], ts, level, colorReset, msg)
	} else {
		fmt.Fprint(s.w, line)
	}
	if s.rotate != nil {
		s.rotate.Write([]byte(line))
	}
}

func (s *Std) Debugf(format string, args ...interface{}) { s.log(Debug, format, args...) }
func (s *Std) Infof(format string, args ...interface{})  { s.log(Info, format, args...) }
func (s *Std) Warnf(format string, args ...interface{})  { s.log(Warn, format, args...) }
func (s *Std) Errorf(format string, args ...interface{}) { s.log(Error, format, args...) }

// Nop is a Logger that discards everything, used in tests.
type Nop struct{}

func (Nop) Debugf(string, ...interface{}) {}
func (Nop) Infof(string, ...interface{})  {}
func (Nop) Warnf(string, ...interface{})  {}
func (Nop) Errorf(string, ...interface{}) {}
