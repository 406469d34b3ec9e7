// Package logger provides structured logging for wordaudio.
//
// It wraps log/slog with a package-level DefaultLogger writing text records
// to stderr, so progress lines printed on stdout stay readable while the
// pipeline's per-request diagnostics go to a separate stream.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// DefaultLogger is the global structured logger instance.
var DefaultLogger *slog.Logger

var output io.Writer = os.Stderr

func init() {
	level := slog.LevelInfo
	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		level = ParseLevel(envLevel)
	}
	SetLevel(level)
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLevel changes the logging level for all subsequent log operations.
func SetLevel(level slog.Level) {
	DefaultLogger = slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{
		Level: level,
	}))
}

// SetVerbose enables debug-level logging when verbose is true, otherwise info-level.
func SetVerbose(verbose bool) {
	if verbose {
		SetLevel(slog.LevelDebug)
	} else {
		SetLevel(slog.LevelInfo)
	}
}

// SetOutput redirects log records to w at the given level. Tests use it to
// capture records.
func SetOutput(w io.Writer, level slog.Level) {
	output = w
	SetLevel(level)
}

func Info(msg string, args ...any) {
	DefaultLogger.Info(msg, args...)
}

func InfoContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.InfoContext(ctx, msg, args...)
}

func Debug(msg string, args ...any) {
	DefaultLogger.Debug(msg, args...)
}

func DebugContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.DebugContext(ctx, msg, args...)
}

// Warn logs recoverable problems, e.g. an invalid rate falling back to the default.
func Warn(msg string, args ...any) {
	DefaultLogger.Warn(msg, args...)
}

func WarnContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.WarnContext(ctx, msg, args...)
}

func ErrorContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.ErrorContext(ctx, msg, args...)
}

// SynthesisRequest logs one outbound text-to-speech request.
func SynthesisRequest(ctx context.Context, provider, language, text string, attrs ...any) {
	allAttrs := make([]any, 0, 6+len(attrs))
	allAttrs = append(allAttrs,
		"provider", provider,
		"lang", language,
		"word", text,
	)
	allAttrs = append(allAttrs, attrs...)
	InfoContext(ctx, "Downloading", allAttrs...)
}

// SynthesisError logs a failed text-to-speech request.
func SynthesisError(ctx context.Context, provider, language string, err error, attrs ...any) {
	allAttrs := make([]any, 0, 6+len(attrs))
	allAttrs = append(allAttrs,
		"provider", provider,
		"lang", language,
		"error", err,
	)
	allAttrs = append(allAttrs, attrs...)
	ErrorContext(ctx, "Synthesis failed", allAttrs...)
}
