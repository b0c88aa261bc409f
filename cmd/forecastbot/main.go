package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"forecastbot/internal/config"
	"forecastbot/internal/logging"
)

var (
	configPath = flag.String("config", "config.toml", "Path to configuration file")
	once       = flag.Bool("once", false, "Run the pipeline once and exit, overriding bot.run_once")
	logLevel   = flag.String("log-level", "", "Override log.level")
)

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if *once {
		cfg.Bot.RunOnce = true
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logger, closer, err := logging.Setup(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	if err != nil {
		return err
	}
	defer closer.Close()
	slog.SetDefault(logger)

	logger.Info("Loaded configuration", "path", *configPath, "bot", cfg.Bot.Name, "run_once", cfg.Bot.RunOnce)

	bot, err := config.NewLoader(cfg, logger).Initialize(ctx)
	if err != nil {
		return err
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := bot.Stop(shutdownCtx); err != nil {
			logger.Warn("Shutdown error", "error", err)
		}
	}()

	logger.Info("Starting bot", "bot", bot.Name())
	rep, err := bot.Start(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("Bot stopped by signal")
		return nil
	}
	if err != nil {
		return err
	}
	if rep != nil && rep.Partial() {
		logger.Warn("Some opportunities were not announced and will be retried", "count", len(rep.Failures))
	}
	return nil
}
