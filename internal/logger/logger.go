// Package logger is the process-wide structured logger. It wraps log/slog
// with a colored text handler for terminals and a JSON handler for log
// shipping. The level can be changed at runtime without rebuilding handlers.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// Config holds logger configuration
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or file path
}

var (
	level = new(slog.LevelVar)

	mu       sync.RWMutex
	out      io.Writer = os.Stdout
	logFile  *os.File
	format   = "text"
	useColor bool
	slogger  *slog.Logger
)

func init() {
	useColor = isTerminal(os.Stdout)
	rebuild()
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// rebuild swaps the handler. Callers other than init must not hold mu.
func rebuild() {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(out, opts)
	} else {
		h = newTextHandler(out, opts, useColor)
	}
	slogger = slog.New(h)
}

// ParseLevel maps DEBUG, INFO, WARN (or WARNING) and ERROR, in any case,
// to a slog level.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug, true
	case "INFO":
		return slog.LevelInfo, true
	case "WARN", "WARNING":
		return slog.LevelWarn, true
	case "ERROR":
		return slog.LevelError, true
	}
	return 0, false
}

// Init configures output, level and format. Output is "stdout", "stderr",
// or a file path opened in append mode. A previously opened log file is
// closed.
func Init(cfg Config) error {
	if cfg.Output != "" {
		w, f, color, err := openOutput(cfg.Output)
		if err != nil {
			return err
		}
		mu.Lock()
		if logFile != nil {
			_ = logFile.Close()
		}
		out, logFile, useColor = w, f, color
		rebuild()
		mu.Unlock()
	}

	SetLevel(cfg.Level)
	SetFormat(cfg.Format)
	return nil
}

func openOutput(target string) (io.Writer, *os.File, bool, error) {
	switch strings.ToLower(target) {
	case "stdout":
		return os.Stdout, nil, isTerminal(os.Stdout), nil
	case "stderr":
		return os.Stderr, nil, isTerminal(os.Stderr), nil
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, false, fmt.Errorf("failed to open log file %q: %w", target, err)
	}
	return f, f, false, nil
}

// InitWithWriter directs output to w. Used by tests.
func InitWithWriter(w io.Writer, lvl, fmtName string, enableColor bool) {
	mu.Lock()
	out, logFile, useColor = w, nil, enableColor
	rebuild()
	mu.Unlock()

	SetLevel(lvl)
	SetFormat(fmtName)
}

// SetLevel sets the minimum level. Unknown names are ignored.
func SetLevel(name string) {
	if l, ok := ParseLevel(name); ok {
		level.Set(l)
	}
}

// Level returns the current minimum level.
func Level() slog.Level {
	return level.Level()
}

// SetFormat switches between "text" and "json". Unknown names are ignored.
func SetFormat(name string) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name != "text" && name != "json" {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	if name == format {
		return
	}
	format = name
	rebuild()
}

func get() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}

func enabled(l slog.Level) bool {
	return l >= level.Level()
}

// Debug logs at debug level: Debug("msg", "key", value, ...)
func Debug(msg string, args ...any) {
	if enabled(slog.LevelDebug) {
		get().Debug(msg, args...)
	}
}

// Info logs at info level.
func Info(msg string, args ...any) {
	if enabled(slog.LevelInfo) {
		get().Info(msg, args...)
	}
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	if enabled(slog.LevelWarn) {
		get().Warn(msg, args...)
	}
}

// Error logs at error level.
func Error(msg string, args ...any) {
	get().Error(msg, args...)
}

// DebugCtx logs at debug level, prefixed with the LogContext fields of ctx.
func DebugCtx(ctx context.Context, msg string, args ...any) {
	logCtx(ctx, slog.LevelDebug, msg, args)
}

// InfoCtx logs at info level with the LogContext fields of ctx.
func InfoCtx(ctx context.Context, msg string, args ...any) {
	logCtx(ctx, slog.LevelInfo, msg, args)
}

// WarnCtx logs at warn level with the LogContext fields of ctx.
func WarnCtx(ctx context.Context, msg string, args ...any) {
	logCtx(ctx, slog.LevelWarn, msg, args)
}

// ErrorCtx logs at error level with the LogContext fields of ctx.
func ErrorCtx(ctx context.Context, msg string, args ...any) {
	logCtx(ctx, slog.LevelError, msg, args)
}

func logCtx(ctx context.Context, l slog.Level, msg string, args []any) {
	if !enabled(l) {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	get().Log(ctx, l, msg, FromContext(ctx).prepend(args)...)
}

// With returns a logger with pre-bound attributes. The returned logger
// keeps the handler that was current at the time of the call.
func With(args ...any) *slog.Logger {
	return get().With(args...)
}

// Since returns the milliseconds elapsed since start, for KeyDurationMs.
func Since(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
