package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/coldbell/dex/trader/internal/config"
	"github.com/coldbell/dex/trader/internal/logging"
	"github.com/coldbell/dex/trader/internal/trader"
	_ "github.com/joho/godotenv/autoload"
)

func main() {
	bootstrapLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.LoadTraderConfig()
	if err != nil {
		bootstrapLogger.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger, closeLogger, err := logging.New("trader", cfg.Log)
	if err != nil {
		bootstrapLogger.Error("failed to initialize logger", "err", err)
		os.Exit(1)
	}

	if source, sourceErr := config.CurrentConfigSource(); sourceErr == nil {
		logger.Info("configuration loaded", "phase", source.Phase, "path", source.Path, "loaded", source.Loaded)
	}

	os.Exit(run(cfg, logger, closeLogger, bootstrapLogger))
}

func run(cfg config.TraderConfig, logger *slog.Logger, closeLogger func() error, bootstrapLogger *slog.Logger) int {
	defer func() {
		if closeErr := closeLogger(); closeErr != nil {
			bootstrapLogger.Error("failed to close logger", "err", closeErr)
		}
	}()

	svc, err := trader.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize trader", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := svc.Run(ctx); err != nil {
		logger.Error("trader exited with error", "err", err)
		return 1
	}
	return 0
}
