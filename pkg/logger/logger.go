// Package logger provides component-tagged structured logging on top of log/slog.
//
// Calls take a component name, an event message and an optional field map:
//
//	logger.InfoCF("pipeline", "proposal.created", map[string]interface{}{"id": id})
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
)

// Level is a logging threshold.
type Level = slog.Level

const (
	DEBUG = slog.LevelDebug
	INFO  = slog.LevelInfo
	WARN  = slog.LevelWarn
	ERROR = slog.LevelError
)

var (
	mu      sync.RWMutex
	current = newLogger(os.Stderr, INFO, "text")
)

func newLogger(w io.Writer, level Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel converts a level name ("debug", "info", "warn", "error") to a Level.
// Unknown names fall back to INFO.
func ParseLevel(name string) Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// Configure replaces the process logger. format is "json" or "text".
func Configure(w io.Writer, level Level, format string) {
	mu.Lock()
	defer mu.Unlock()
	current = newLogger(w, level, format)
}

// Logger returns the underlying slog logger.
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func logCF(level Level, component, message string, fields map[string]interface{}) {
	l := Logger()
	if !l.Enabled(context.Background(), level) {
		return
	}

	attrs := make([]slog.Attr, 0, len(fields)+1)
	attrs = append(attrs, slog.String("component", component))

	// map iteration order is random; sort for stable output
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, fields[k]))
	}

	l.LogAttrs(context.Background(), level, message, attrs...)
}

// DebugCF logs a debug event for component with fields.
func DebugCF(component, message string, fields map[string]interface{}) {
	logCF(DEBUG, component, message, fields)
}

// InfoCF logs an info event for component with fields.
func InfoCF(component, message string, fields map[string]interface{}) {
	logCF(INFO, component, message, fields)
}

// WarnCF logs a warning event for component with fields.
func WarnCF(component, message string, fields map[string]interface{}) {
	logCF(WARN, component, message, fields)
}

// ErrorCF logs an error event for component with fields.
func ErrorCF(component, message string, fields map[string]interface{}) {
	logCF(ERROR, component, message, fields)
}

// InfoC logs an info event for component without fields.
func InfoC(component, message string) {
	logCF(INFO, component, message, nil)
}

// WarnC logs a warning event for component without fields.
func WarnC(component, message string) {
	logCF(WARN, component, message, nil)
}

// ErrorC logs an error event for component without fields.
func ErrorC(component, message string) {
	logCF(ERROR, component, message, nil)
}
