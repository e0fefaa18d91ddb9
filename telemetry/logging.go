// Package telemetry provides structured logging, iteration/tool
// counters, and trace spans. None of it feeds back into scheduling
// decisions: strategies never read metrics or traces.
package telemetry

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"strings"
)

const flowcrewPackagePrefix = "github.com/flowcrew/flowcrew"

// ParseLevel converts a config string into a slog.Level, defaulting to
// warn for anything unrecognized.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// filteringHandler suppresses third-party library log lines unless the
// configured level is DEBUG, so a team's own transitions aren't drowned
// out by whatever the LLM/tool client libraries log internally.
type filteringHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

func (h *filteringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.minLevel && h.handler.Enabled(ctx, level)
}

func (h *filteringHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.minLevel <= slog.LevelDebug || h.isOwnPackage(record.PC) {
		return h.handler.Handle(ctx, record)
	}
	return nil
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filteringHandler{handler: h.handler.WithAttrs(attrs), minLevel: h.minLevel}
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{handler: h.handler.WithGroup(name), minLevel: h.minLevel}
}

func (h *filteringHandler) isOwnPackage(pc uintptr) bool {
	if pc == 0 {
		return false
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return false
	}
	file, _ := fn.FileLine(pc)
	return strings.Contains(fn.Name(), flowcrewPackagePrefix) || strings.Contains(file, "/flowcrew/")
}

// NewLogger builds a slog.Logger writing JSON lines to output, filtered
// to level and above, with third-party noise suppressed below DEBUG.
func NewLogger(level slog.Level, output *os.File) *slog.Logger {
	base := slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level})
	return slog.New(&filteringHandler{handler: base, minLevel: level})
}
