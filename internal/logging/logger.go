package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/coldbell/dex/trader/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

type handlerFactory func(io.Writer, *slog.HandlerOptions) slog.Handler

var handlerFactories = map[string]handlerFactory{
	"text": func(w io.Writer, opts *slog.HandlerOptions) slog.Handler { return slog.NewTextHandler(w, opts) },
	"json": func(w io.Writer, opts *slog.HandlerOptions) slog.Handler { return slog.NewJSONHandler(w, opts) },
}

// New builds the service logger. The returned func closes the log file, if
// any, and is safe to call when output is console only.
func New(serviceName string, cfg config.LogConfig) (*slog.Logger, func() error, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	newHandler, ok := handlerFactories[normalized(cfg.Format, "text")]
	if !ok {
		return nil, nil, fmt.Errorf("invalid log format %q (expected text|json)", cfg.Format)
	}

	writer, closeWriter, err := openWriter(serviceName, cfg)
	if err != nil {
		return nil, nil, err
	}

	handler := newHandler(writer, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("service", serviceName), closeWriter, nil
}

func openWriter(serviceName string, cfg config.LogConfig) (io.Writer, func() error, error) {
	output := normalized(cfg.Output, "console")
	toConsole := output == "console" || output == "both"
	toFile := output == "file" || output == "both"
	if !toConsole && !toFile {
		return nil, nil, fmt.Errorf("invalid log output %q (expected console|file|both)", cfg.Output)
	}

	var writers []io.Writer
	if toConsole {
		writers = append(writers, os.Stdout)
	}
	closeWriter := func() error { return nil }
	if toFile {
		file, err := openLogFile(serviceName, cfg)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, file)
		closeWriter = file.Close
	}

	if len(writers) == 1 {
		return writers[0], closeWriter, nil
	}
	return io.MultiWriter(writers...), closeWriter, nil
}

func openLogFile(serviceName string, cfg config.LogConfig) (*lumberjack.Logger, error) {
	logPath := strings.TrimSpace(cfg.FilePath)
	if logPath == "" {
		logPath = filepath.Join(".docker", serviceName, serviceName+".log")
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory for %q: %w", logPath, err)
	}

	return &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}, nil
}

func parseLevel(raw string) (slog.Level, error) {
	value := normalized(raw, "info")
	if value == "warning" {
		value = "warn"
	}
	var level slog.Level
	if strings.ContainsAny(value, "+-") || level.UnmarshalText([]byte(value)) != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug|info|warn|error)", raw)
	}
	return level, nil
}

func normalized(raw, fallback string) string {
	if value := strings.ToLower(strings.TrimSpace(raw)); value != "" {
		return value
	}
	return fallback
}
