// Package logger configures log/slog for the polluted cities service from
// LoggingConfig. Records carry the build version and the replica's instance
// ID, and attributes that may hold upstream credentials are masked.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"polluted/internal/models"
	"polluted/internal/version"
)

const redacted = "[REDACTED]"

// sensitiveKeys are attribute keys whose values are never written.
var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"token":         {},
	"authorization": {},
	"dsn":           {},
}

// Setup builds the process logger. The returned Closer is non-nil only for
// file output and must be closed on exit.
func Setup(cfg models.LoggingConfig, ver version.Info) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil || cfg.Level == "" {
		return nil, nil, fmt.Errorf("invalid log level %q", cfg.Level)
	}

	w, closer, err := destination(cfg.Output, cfg.FilePath)
	if err != nil {
		return nil, nil, err
	}
	return New(w, cfg.Format, level, ver), closer, nil
}

// New builds a logger writing to w. Format "json" selects the JSON handler,
// anything else the text handler.
func New(w io.Writer, format string, level slog.Level, ver version.Info) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redact,
	}

	var h slog.Handler = slog.NewTextHandler(w, opts)
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	}

	return slog.New(h).With(
		slog.Group("build",
			slog.String("version", ver.Version),
			slog.String("commit", ver.GitCommit),
		),
		slog.String("instance_id", ver.InstanceID),
	)
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if _, ok := sensitiveKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, redacted)
	}
	return a
}

// destination resolves the output setting. Unknown values fall back to stdout.
func destination(output, path string) (io.Writer, io.Closer, error) {
	switch strings.ToLower(output) {
	case "stderr":
		return os.Stderr, nil, nil
	case "file":
		if path == "" {
			return nil, nil, fmt.Errorf("log file path is required for file output")
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		return f, f, nil
	default:
		return os.Stdout, nil, nil
	}
}
