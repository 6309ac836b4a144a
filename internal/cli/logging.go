package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"murmur.click/internal/config"
)

// TerminalDetector defines the interface for terminal detection
type TerminalDetector interface {
	IsTerminal(fd int) bool
}

// DefaultTerminalDetector is the default implementation using golang.org/x/term
type DefaultTerminalDetector struct{}

func (d *DefaultTerminalDetector) IsTerminal(fd int) bool {
	return term.IsTerminal(fd)
}

// isInteractive reports whether w is a terminal we can print human-readable logs to
func (c *CLI) isInteractive(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || c.terminalDetector == nil {
		return false
	}
	return c.terminalDetector.IsTerminal(int(f.Fd()))
}

// setupLogging installs the default slog logger: text on a terminal, JSON otherwise,
// teed into a rotating file when file logging is enabled.
// The returned closer flushes the file sink.
func (c *CLI) setupLogging(cfg *config.Config, stderr io.Writer) io.Closer {
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var console slog.Handler
	if c.isInteractive(stderr) {
		console = slog.NewTextHandler(stderr, opts)
	} else {
		console = slog.NewJSONHandler(stderr, opts)
	}

	handlers := []slog.Handler{console}
	var closer io.Closer = nopCloser{}

	if fl := cfg.FileLogging; fl != nil && fl.Enabled {
		logFilePath := c.configManager.ResolveLogFilePath(fl.Filename)
		if err := os.MkdirAll(filepath.Dir(logFilePath), 0755); err != nil {
			slog.Error("failed to create log directory", "path", filepath.Dir(logFilePath), "error", err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   logFilePath,
				MaxSize:    fl.MaxSizeMB,
				MaxBackups: fl.MaxBackups,
				MaxAge:     fl.MaxAgeDays,
				Compress:   fl.Compress,
			}
			// the file keeps debug detail regardless of the console level
			handlers = append(handlers, slog.NewJSONHandler(fileWriter, &slog.HandlerOptions{Level: slog.LevelDebug}))
			closer = fileWriter
		}
	}

	if len(handlers) == 1 {
		slog.SetDefault(slog.New(console))
	} else {
		slog.SetDefault(slog.New(teeHandler(handlers)))
	}

	slog.Debug("logging setup completed",
		"level", level.String(),
		"handlers", len(handlers),
		"file_enabled", cfg.FileLogging != nil && cfg.FileLogging.Enabled)
	return closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// teeHandler sends each record to every handler whose level admits it
type teeHandler []slog.Handler

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}
