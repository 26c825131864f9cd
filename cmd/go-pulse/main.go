package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/a-essam23/go-pulse/internal/directory"
	"github.com/a-essam23/go-pulse/internal/server"
	"github.com/a-essam23/go-pulse/pkg/config"
	"github.com/a-essam23/go-pulse/pkg/logging"
)

func main() {
	logger := logging.New(logging.LevelInfo)
	slog.SetDefault(logger)

	cfg, err := config.Load(logger, "config")
	if err != nil {
		logger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger = logging.New(logging.ParseLevel(cfg.Log.Level))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, logger, cfg)
	stop()
	if err != nil {
		logger.Error("Application run failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Application shut down successfully.")
}

// run owns the group directory for the whole life of the server and closes it
// on every return path.
func run(ctx context.Context, logger *slog.Logger, cfg *config.Config) (err error) {
	dir, err := directory.Open(ctx, logger, cfg.Directory)
	if err != nil {
		return fmt.Errorf("failed to open group directory: %w", err)
	}
	defer func() {
		if cerr := dir.Close(); cerr != nil {
			logger.Error("Failed to close group directory", slog.Any("error", cerr))
			if err == nil {
				err = cerr
			}
		}
	}()

	app, err := server.NewApp(logger, ctx, cfg, dir)
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}
	return app.Run()
}
