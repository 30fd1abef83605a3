// Package logging implements the supervisor's internal log sink: a leveled
// LoggerFunc in the style of gone/daemon's Log(), writing line-oriented
// output through an io.Writer that may be a rotating file
// (gopkg.in/natefinch/lumberjack.v2) or plain stderr.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Level mirrors the five names the log_level option accepts.
type Level int

const (
	LvlDebug Level = iota
	LvlInfo
	LvlWarn
	LvlError
	LvlFatal
)

func (l Level) String() string {
	switch l {
	case LvlDebug:
		return "debug"
	case LvlInfo:
		return "info"
	case LvlWarn:
		return "warn"
	case LvlError:
		return "error"
	case LvlFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ParseLevel parses one of the five configured level names.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "debug":
		return LvlDebug, nil
	case "info":
		return LvlInfo, nil
	case "warn":
		return LvlWarn, nil
	case "error":
		return LvlError, nil
	case "fatal":
		return LvlFatal, nil
	default:
		return 0, fmt.Errorf("logging: unknown level %q", s)
	}
}

// Logger is a minimal, goroutine-safe leveled line logger. Construct one
// with New; the zero value has no output writer.
type Logger struct {
	mu    sync.Mutex
	out   io.Writer
	level Level
}

// New returns a Logger writing at minLevel and above to out. A nil out
// defaults to os.Stderr.
func New(out io.Writer, minLevel Level) *Logger {
	if out == nil {
		out = os.Stderr
	}
	return &Logger{out: out, level: minLevel}
}

// NewFileSink returns an io.Writer rotating through lumberjack once path is
// non-empty, for use as the `log_sink` configuration names a file path.
func NewFileSink(path string) io.Writer {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}
}

// Log writes msg if level is at or above the logger's configured minimum.
func (l *Logger) Log(level Level, msg string) {
	if l == nil || level < l.level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "%s [%s] %s\n", time.Now().UTC().Format(time.RFC3339), level, msg)
}

// Func returns Log as a plain func(Level, string), the daemon-style
// LoggerFunc shape of gone/daemon.SetLogger, for callers that take a
// function rather than a *Logger.
func (l *Logger) Func() func(Level, string) {
	return l.Log
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.Log(LvlDebug, fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...interface{})  { l.Log(LvlInfo, fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.Log(LvlWarn, fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.Log(LvlError, fmt.Sprintf(format, args...)) }
func (l *Logger) Fatalf(format string, args ...interface{}) { l.Log(LvlFatal, fmt.Sprintf(format, args...)) }
