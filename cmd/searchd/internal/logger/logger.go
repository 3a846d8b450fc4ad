package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
	output        io.Writer = os.Stdout
	level                   = new(slog.LevelVar)
	once          sync.Once
)

// Init initializes the global logger based on environment variables.
// DEBUG=true enables debug level logging.
func Init() {
	once.Do(func() {
		if debugFromEnv() {
			level.Set(slog.LevelDebug)
		}
		install()
	})
}

// install rebuilds the global logger for the current level.
func install() {
	l := New(output, level)
	mu.Lock()
	defaultLogger = l
	mu.Unlock()
	slog.SetDefault(l)
}

// New builds a text logger writing to w. Source locations are attached when
// the level is debug at construction time.
func New(w io.Writer, lvl slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl.Level() <= slog.LevelDebug,
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// SetDebug switches the global logger between debug and info level. The
// logger is rebuilt, so source locations follow the level exactly as with
// DEBUG=true. Loggers obtained earlier from Default keep their old handler.
func SetDebug(enabled bool) {
	Init()
	if enabled {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}
	install()
}

// Discard returns a logger that drops everything. Handy for tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func debugFromEnv() bool {
	switch strings.ToLower(os.Getenv("DEBUG")) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// Default returns the global logger, initializing it if needed.
func Default() *slog.Logger {
	Init()
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// Debug logs at Debug level.
func Debug(msg string, args ...any) {
	Default().Debug(msg, args...)
}

// Info logs at Info level.
func Info(msg string, args ...any) {
	Default().Info(msg, args...)
}

// Warn logs at Warn level.
func Warn(msg string, args ...any) {
	Default().Warn(msg, args...)
}

// Error logs at Error level.
func Error(msg string, args ...any) {
	Default().Error(msg, args...)
}

// Fatal logs at Error level and then exits.
func Fatal(msg string, args ...any) {
	Default().Error(msg, args...)
	os.Exit(1)
}
