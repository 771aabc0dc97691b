// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// Package logging configures the scheduler's structured logger.
package logging

import (
	"context"
	"io"
	"log"
	"log/slog"
	"os"
	"slices"
	"strings"

	slogotel "github.com/remychantenay/slog-otel"
)

type ctxKey string

// ErrKey is the attribute key errors are logged under.
const ErrKey = "error"

const (
	slogFields      ctxKey = "slog_fields"
	logLevelDefault        = slog.LevelDebug

	// Log field value for failures that need an operator.
	priorityCritical = "critical"
)

type contextHandler struct {
	slog.Handler
}

// Handle adds the attributes stored by AppendCtx to r.
func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs, ok := ctx.Value(slogFields).([]slog.Attr); ok {
		r.AddAttrs(attrs...)
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{h.Handler.WithGroup(name)}
}

// AppendCtx returns a child of parent whose log records carry attr. Sibling
// contexts derived from the same parent never see each other's attributes.
func AppendCtx(parent context.Context, attr slog.Attr) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	attrs, _ := parent.Value(slogFields).([]slog.Attr)
	attrs = append(slices.Clip(attrs), attr)
	return context.WithValue(parent, slogFields, attrs)
}

// parseLevel maps LOG_LEVEL onto a slog level, case-insensitively.
func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return logLevelDefault
	}
}

func truthy(raw string) bool {
	return raw == "true" || raw == "t" || raw == "1"
}

// NewHandler builds the scheduler's handler writing to w: JSON by default,
// text when format is "text", with trace and span ids taken from the context.
func NewHandler(w io.Writer, format string, opts *slog.HandlerOptions) slog.Handler {
	var base slog.Handler
	if strings.EqualFold(format, "text") {
		base = slog.NewTextHandler(w, opts)
	} else {
		base = slog.NewJSONHandler(w, opts)
	}
	return contextHandler{slogotel.OtelHandler{Next: base}}
}

// InitStructureLogConfig installs the default logger from LOG_LEVEL,
// LOG_ADD_SOURCE and LOG_FORMAT.
func InitStructureLogConfig() slog.Handler {
	logOptions := &slog.HandlerOptions{
		Level:     parseLevel(os.Getenv("LOG_LEVEL")),
		AddSource: truthy(os.Getenv("LOG_ADD_SOURCE")),
	}

	h := NewHandler(os.Stdout, os.Getenv("LOG_FORMAT"), logOptions)
	log.SetFlags(log.Llongfile)
	slog.SetDefault(slog.New(h))

	slog.Info("log config",
		"logLevel", logOptions.Level,
		"addSource", logOptions.AddSource,
	)

	return h
}

// StorageAttrs are the attributes every storage failure is logged with.
func StorageAttrs(backend, collection, operation string) []any {
	return []any{
		"backend", backend,
		"collection", collection,
		"operation", operation,
	}
}

// Priority creates a slog.Attr for error priority classification
func Priority(level string) slog.Attr {
	return slog.String("priority", level)
}

// PriorityCritical marks failures that should be escalated.
func PriorityCritical() slog.Attr {
	return Priority(priorityCritical)
}
