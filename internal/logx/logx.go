// Package logx wires slog to the console and to two rotated file sinks: an
// info log for routine cycle events and a separate error log with longer
// retention.
package logx

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the process logger. The info sink keeps 10 MB for 30 days, the
// error sink 5 MB for 60 days; rotation itself is lumberjack's problem.
func New(dir, name string) (*slog.Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	infoSink := &lumberjack.Logger{
		Filename: filepath.Join(dir, name+"_info.log"),
		MaxSize:  10,
		MaxAge:   30,
	}
	errorSink := &lumberjack.Logger{
		Filename: filepath.Join(dir, name+"_error.log"),
		MaxSize:  5,
		MaxAge:   60,
	}

	handler := multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(infoSink, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(errorSink, &slog.HandlerOptions{Level: slog.LevelError}),
	}}
	return slog.New(handler), nil
}

// multiHandler fans each record out to every sink whose level accepts it.
type multiHandler struct {
	handlers []slog.Handler
}

func (m multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return multiHandler{handlers: handlers}
}

func (m multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return multiHandler{handlers: handlers}
}
