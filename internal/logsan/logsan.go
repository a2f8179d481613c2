// Package logsan keeps credentials out of log output.
//
// Sanitize scrubs the known secret shapes from a string; Handler wraps any
// slog.Handler and applies Sanitize to every message and string attribute,
// so no log line can leak an API key no matter which subsystem wrote it.
package logsan

import (
	"context"
	"log/slog"
	"regexp"

	"gopkg.in/natefinch/lumberjack.v2"
)

const redacted = "***REDACTED***"

var (
	// apikey=..., api_key=..., key=..., token=... in query strings.
	reQueryParam = regexp.MustCompile(`(?i)\b(apikey|api_key|key|token)=[^&\s"']+`)
	// "api_key": "..." fragments in JSON payloads.
	reJSONKey = regexp.MustCompile(`(?i)"(apikey|api_key|key|token)"\s*:\s*"[^"]*"`)
	// Bearer tokens in Authorization headers.
	reBearer = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9\-._~+/]+=*`)
	// Bare hex secrets (32+ chars covers md5 through sha256 sized keys).
	reHex = regexp.MustCompile(`\b[a-fA-F0-9]{32,}\b`)
)

// Sanitize scrubs credential material from s.
func Sanitize(s string) string {
	s = reQueryParam.ReplaceAllString(s, "${1}="+redacted)
	s = reJSONKey.ReplaceAllString(s, `"${1}": "`+redacted+`"`)
	s = reBearer.ReplaceAllString(s, "Bearer "+redacted)
	s = reHex.ReplaceAllString(s, redacted)
	return s
}

// Handler wraps an slog.Handler, sanitizing messages and string attribute
// values before they reach the inner handler.
type Handler struct {
	inner slog.Handler
}

func NewHandler(inner slog.Handler) *Handler {
	return &Handler{inner: inner}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	clean := slog.NewRecord(r.Time, r.Level, Sanitize(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(sanitizeAttr(a))
		return true
	})
	return h.inner.Handle(ctx, clean)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = sanitizeAttr(a)
	}
	return &Handler{inner: h.inner.WithAttrs(clean)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name)}
}

func sanitizeAttr(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, Sanitize(a.Value.String()))
	case slog.KindGroup:
		group := a.Value.Group()
		clean := make([]any, 0, len(group))
		for _, ga := range group {
			clean = append(clean, sanitizeAttr(ga))
		}
		return slog.Group(a.Key, clean...)
	default:
		return a
	}
}

// NewRotatingWriter returns a size-rotated log file writer: 10MB per file,
// five backups kept.
func NewRotatingWriter(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // MB
		MaxBackups: 5,
	}
}
