// Package logger wraps log/slog with the compact single-line format the
// simulator logs in, and owns the process exit for fatal bring-up errors.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Handler formats records as "2006/01/02 15:04:05 LEVEL: msg key=value".
// It satisfies slog.Handler directly instead of delegating to TextHandler
// so interrupt traces stay greppable one-liners.
type Handler struct {
	out   io.Writer
	level slog.Leveler
	attrs []slog.Attr
	mu    *sync.Mutex
}

func NewHandler(out io.Writer, level slog.Leveler) *Handler {
	if out == nil {
		out = os.Stderr
	}
	if level == nil {
		level = slog.LevelInfo
	}
	return &Handler{out: out, level: level, mu: &sync.Mutex{}}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &Handler{out: h.out, level: h.level, attrs: merged, mu: h.mu}
}

func (h *Handler) WithGroup(string) slog.Handler {
	// groups are not used anywhere in the simulator
	return h
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	parts := []string{
		r.Time.Format("2006/01/02 15:04:05"),
		r.Level.String() + ":",
		r.Message,
	}
	for _, a := range h.attrs {
		parts = append(parts, fmt.Sprintf("%s=%v", a.Key, a.Value))
	}
	r.Attrs(func(a slog.Attr) bool {
		parts = append(parts, fmt.Sprintf("%s=%v", a.Key, a.Value))
		return true
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, strings.Join(parts, " ")+"\n")
	return err
}

// Setup installs the handler as the slog default. A nil writer logs to
// stderr.
func Setup(out io.Writer, level slog.Level) {
	slog.SetDefault(slog.New(NewHandler(out, level)))
}

// Fatal reports an unrecoverable host error and terminates the process.
// This is for configuration and bring-up mistakes (memory windows that
// wrap the address space, oversized ROM images), never for anything the guest does --
// guest failures are architectural interrupts.
func Fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}
