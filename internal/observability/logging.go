package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cruft-ninja/script-runner/internal/paths"
)

const (
	redactedValue = "[REDACTED]"

	maxLogFileBytes = 10 * 1024 * 1024
	maxLogBackups   = 3
)

// sensitiveKeyParts: attributes whose key contains one of these are written
// as [REDACTED].
var sensitiveKeyParts = []string{"password", "passwd", "secret", "credential", "token", "authorization", "api_key", "apikey"}

func jsonHandler(w io.Writer, o *slog.HandlerOptions) slog.Handler { return slog.NewJSONHandler(w, o) }

var handlers = map[string]func(io.Writer, *slog.HandlerOptions) slog.Handler{
	"":     jsonHandler,
	"json": jsonHandler,
	"text": func(w io.Writer, o *slog.HandlerOptions) slog.Handler { return slog.NewTextHandler(w, o) },
}

var stderrModes = map[string]func(interactive bool) bool{
	"":      func(interactive bool) bool { return !interactive },
	"auto":  func(interactive bool) bool { return !interactive },
	"on":    func(bool) bool { return true },
	"true":  func(bool) bool { return true },
	"1":     func(bool) bool { return true },
	"off":   func(bool) bool { return false },
	"false": func(bool) bool { return false },
	"0":     func(bool) bool { return false },
}

type contextKey struct{}

// Config holds the configuration for the observability logger.
// When stderr is disabled and LogFile is empty, logs go to the default
// file under the user state directory. In auto mode the full-screen
// interface logs only to a file.
type Config struct {
	Level          string
	Format         string
	LogFile        string
	StderrMode     string
	InteractiveTTY bool
	SessionID      string
	CommandPath    string
	Version        string
	Commit         string
}

// WithLogger returns a new context carrying the given logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext extracts the logger from ctx, falling back to slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}

	return slog.Default()
}

// NewLogger builds the process logger. The returned cleanup closes the log
// file, if any.
func NewLogger(cfg *Config) (*slog.Logger, func() error, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	newHandler, ok := handlers[strings.ToLower(strings.TrimSpace(cfg.Format))]
	if !ok {
		return nil, nil, fmt.Errorf("invalid log format: %q (allowed: json, text)", cfg.Format)
	}

	stderrEnabled, err := shouldEnableStderr(cfg.StderrMode, cfg.InteractiveTTY)
	if err != nil {
		return nil, nil, err
	}

	out, cleanup, err := openSinks(stderrEnabled, strings.TrimSpace(cfg.LogFile))
	if err != nil {
		return nil, nil, err
	}

	handler := newHandler(out, &slog.HandlerOptions{Level: level, ReplaceAttr: redactAttr})

	logger := slog.New(handler).With(
		slog.String("session.id", cfg.SessionID),
		slog.String("command.path", cfg.CommandPath),
		slog.String("app.version", cfg.Version),
		slog.String("app.commit", cfg.Commit),
	)

	return logger, cleanup, nil
}

// openSinks returns the combined log destination and its cleanup.
func openSinks(stderrEnabled bool, logFile string) (io.Writer, func() error, error) {
	if !stderrEnabled && logFile == "" {
		defaultPath, err := paths.DefaultLogFile()
		if err != nil {
			return nil, nil, fmt.Errorf("no log sinks configured: set --log-file or enable --log-stderr: %w", err)
		}

		logFile = defaultPath
	}

	var (
		writers []io.Writer
		files   []*os.File
	)

	if stderrEnabled {
		writers = append(writers, os.Stderr)
	}

	if logFile != "" {
		f, err := openLogFile(logFile)
		if err != nil {
			return nil, nil, err
		}

		writers = append(writers, f)
		files = append(files, f)
	}

	cleanup := func() error {
		var errs []error
		for _, f := range files {
			errs = append(errs, f.Close())
		}

		return errors.Join(errs...)
	}

	return io.MultiWriter(writers...), cleanup, nil
}

func openLogFile(path string) (*os.File, error) {
	path = filepath.Clean(path)

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create log file directory: %w", err)
	}

	if err := rotateLogFile(path, maxLogFileBytes, maxLogBackups); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return file, nil
}

// rotateLogFile moves path to path.1, shifting older backups up by one, once
// it exceeds maxBytes. At most keep backups survive.
func rotateLogFile(path string, maxBytes int64, keep int) error {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) || (err == nil && info.Size() <= maxBytes) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("stat log file: %w", err)
	}

	backup := func(n int) string { return fmt.Sprintf("%s.%d", path, n) }

	_ = os.Remove(backup(keep))

	for n := keep - 1; n >= 1; n-- {
		if err := os.Rename(backup(n), backup(n+1)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("rotate log backup: %w", err)
		}
	}

	if err := os.Rename(path, backup(1)); err != nil {
		return fmt.Errorf("rotate log file: %w", err)
	}

	return nil
}

func shouldEnableStderr(mode string, interactiveTTY bool) (bool, error) {
	decide, ok := stderrModes[strings.ToLower(strings.TrimSpace(mode))]
	if !ok {
		return false, fmt.Errorf("invalid --log-stderr value %q (allowed: auto, on, off)", mode)
	}

	return decide(interactiveTTY), nil
}

func parseLevel(level string) (slog.Leveler, error) {
	name := strings.ToLower(strings.TrimSpace(level))

	switch name {
	case "":
		return slog.LevelInfo, nil
	case "warning":
		name = "warn"
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log level: %q (allowed: error, warn, info, debug)", level)
	}

	var l slog.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return nil, fmt.Errorf("invalid log level: %q: %w", level, err)
	}

	return l, nil
}

func redactAttr(_ []string, attr slog.Attr) slog.Attr {
	if isSensitiveKey(attr.Key) {
		return slog.String(attr.Key, redactedValue)
	}

	return attr
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(key)

	for _, part := range sensitiveKeyParts {
		if strings.Contains(key, part) {
			return true
		}
	}

	return false
}
