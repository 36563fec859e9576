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
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var (
	mu       sync.Mutex
	logger   = stdlog.New(os.Stderr, "", 0)
	minLevel = LevelInfo
)

// rank orders levels; unknown levels rank like DEBUG so they are never lost.
func rank(l Level) int {
	switch l {
	case LevelInfo:
		return 1
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return 0
	}
}

// ParseLevel maps a config or flag string ("debug", "INFO", ...) to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "", "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("log: unknown level %q", s)
}

func SetLevel(l Level) {
	mu.Lock()
	minLevel = l
	mu.Unlock()
}

// SetOutput redirects all log lines, mainly for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	logger.SetOutput(w)
	mu.Unlock()
}

// Logger tags every line with a component name, the way device drivers
// prefix their diagnostics with a fixed tag.
type Logger struct {
	component string
}

// Named returns a Logger whose lines carry "[component]".
func Named(component string) *Logger {
	return &Logger{component: component}
}

func (l *Logger) Debug(msg string, kv ...any) { write(LevelDebug, l.component, msg, kv...) }
func (l *Logger) Info(msg string, kv ...any)  { write(LevelInfo, l.component, msg, kv...) }
func (l *Logger) Warn(msg string, kv ...any)  { write(LevelWarn, l.component, msg, kv...) }

func (l *Logger) Error(msg string, err error, kv ...any) {
	write(LevelError, l.component, msg, append([]any{"err", err}, kv...)...)
}

func Debug(msg string, kv ...any) {
	write(LevelDebug, "", msg, kv...)
}

func Info(msg string, kv ...any) {
	write(LevelInfo, "", msg, kv...)
}

func Warn(msg string, kv ...any) {
	write(LevelWarn, "", msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	// Prepend error into key-value list.
	write(LevelError, "", msg, append([]any{"err", err}, kv...)...)
}

func write(level Level, component, msg string, kv ...any) {
	mu.Lock()
	defer mu.Unlock()
	if rank(level) < rank(minLevel) {
		return
	}

	// 2025-01-01T00:00:00Z [LEVEL] [component] msg key=value ...
	var b strings.Builder
	b.WriteString(time.Now().Format(time.RFC3339Nano))
	b.WriteString(" [")
	b.WriteString(string(level))
	b.WriteString("] ")
	if component != "" {
		b.WriteString("[")
		b.WriteString(component)
		b.WriteString("] ")
	}
	b.WriteString(msg)
	b.WriteString(formatKVs(kv...))

	logger.Println(b.String())
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
