package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelError Level = "ERROR"
)

// Logger writes leveled key=value lines. The zero value is not usable;
// construct one with New or Nop.
type Logger struct {
	mu  sync.Mutex
	out *stdlog.Logger
	min Level
	nop bool
}

var (
	defaultLogger *Logger
	defaultOnce   sync.Once
)

// New returns a Logger writing to w, dropping lines below level.
func New(w io.Writer, level Level) *Logger {
	return &Logger{
		out: stdlog.New(w, "", 0),
		min: level,
	}
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return &Logger{nop: true}
}

// Default returns the process-wide logger (stderr, INFO).
func Default() *Logger {
	defaultOnce.Do(func() {
		defaultLogger = New(os.Stderr, LevelInfo)
	})
	return defaultLogger
}

// ParseLevel maps "debug", "info" and "error" (any case) to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "", "INFO":
		return LevelInfo, nil
	case "ERROR":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("log: unknown level %q", s)
	}
}

func SetLevel(l Level) {
	Default().SetLevel(l)
}

func Debug(msg string, kv ...any) {
	Default().Debug(msg, kv...)
}

func Info(msg string, kv ...any) {
	Default().Info(msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	Default().Error(msg, err, kv...)
}

func (l *Logger) SetLevel(level Level) {
	if l == nil || l.nop {
		return
	}
	l.mu.Lock()
	l.min = level
	l.mu.Unlock()
}

// DebugEnabled reports whether Debug lines would be written. Callers
// use it to skip building expensive key-value lists.
func (l *Logger) DebugEnabled() bool {
	return l.enabled(LevelDebug)
}

func (l *Logger) Debug(msg string, kv ...any) {
	l.logWithLevel(LevelDebug, msg, kv...)
}

func (l *Logger) Info(msg string, kv ...any) {
	l.logWithLevel(LevelInfo, msg, kv...)
}

func (l *Logger) Error(msg string, err error, kv ...any) {
	// Prepend error into key-value list.
	extended := append([]any{"err", err}, kv...)
	l.logWithLevel(LevelError, msg, extended...)
}

func (l *Logger) logWithLevel(level Level, msg string, kv ...any) {
	if !l.enabled(level) {
		return
	}

	ts := time.Now().Format(time.RFC3339Nano)

	// Basic line format:
	// 2025-01-01T00:00:00Z [LEVEL] msg key=value ...
	line := ts + " [" + string(level) + "] " + msg

	if len(kv) > 0 {
		line += formatKVs(kv...)
	}

	l.out.Println(line)
}

func (l *Logger) enabled(level Level) bool {
	if l == nil || l.nop {
		return false
	}
	l.mu.Lock()
	floor := l.min
	l.mu.Unlock()

	switch floor {
	case LevelDebug:
		return true
	case LevelInfo:
		return level == LevelInfo || level == LevelError
	case LevelError:
		return level == LevelError
	default:
		return true
	}
}

func formatKVs(kv ...any) string {
	var b strings.Builder
	// Expect kv as pairs: key, value, key, value, ...
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		b.WriteString(" ")
		b.WriteString(key)
		b.WriteString("=")
		b.WriteString(fmt.Sprint(kv[i+1]))
	}
	// If odd number of args, last one is ignored.
	return b.String()
}
