// Package diag provides the operational slog.Logger every command-facing
// package writes diagnostics through: structured log/slog records on a
// lumberjack-rotated file sink, independent of the action log's per-
// mutation audit trail (internal/actionlog).
package diag

import (
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds a JSON slog.Logger writing to a lumberjack sink at path. An
// empty path logs to stderr instead, for short-lived commands that never
// configured a log file.
func New(path string) *slog.Logger {
	if path == "" {
		return slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	sink := &lumberjack.Logger{Filename: path, MaxSize: 10, MaxBackups: 3, MaxAge: 30, Compress: true}
	return slog.New(slog.NewJSONHandler(sink, nil))
}
