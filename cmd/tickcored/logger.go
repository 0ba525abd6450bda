package main

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// runHandler is a human-friendly slog.Handler for tickcored's own output,
// following the simulator's handler in structure (single mutex-guarded
// writer, flat "time level message (attrs)" line) without the scenario
// emoji lookup table that doesn't apply to a scheduler daemon.
type runHandler struct {
	mu    sync.Mutex
	out   io.Writer
	level slog.Level
	attrs []slog.Attr
}

func newRunHandler(out io.Writer, level slog.Level) *runHandler {
	return &runHandler{out: out, level: level}
}

func (h *runHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *runHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder
	buf.WriteString(r.Time.Format("15:04:05.000"))
	buf.WriteString(" ")
	buf.WriteString(r.Level.String())
	buf.WriteString(" ")
	buf.WriteString(r.Message)

	var attrs []string
	for _, a := range h.attrs {
		attrs = append(attrs, formatAttr(a))
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, formatAttr(a))
		return true
	})
	if len(attrs) > 0 {
		buf.WriteString(" (")
		buf.WriteString(strings.Join(attrs, ", "))
		buf.WriteString(")")
	}
	buf.WriteString("\n")

	_, err := h.out.Write([]byte(buf.String()))
	return err
}

func (h *runHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := &runHandler{out: h.out, level: h.level, attrs: append(append([]slog.Attr{}, h.attrs...), attrs...)}
	return h2
}

func (h *runHandler) WithGroup(_ string) slog.Handler {
	return h
}

func formatAttr(a slog.Attr) string {
	return a.Key + "=" + a.Value.String()
}

func setupLogger(verbose, debug bool, out io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelInfo
	}
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(newRunHandler(out, level))
}
