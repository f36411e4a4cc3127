package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pricedash/pricedash/internal/demo/seed"
)

func main() {
	cfg, err := seed.LoadConfigFromEnv(os.LookupEnv)
	if err != nil {
		slog.Error("failed to load seed config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	seeder, err := seed.Open(cfg, logger)
	if err != nil {
		logger.Error("failed to open demo warehouse", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = seeder.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	logger.Info("seeding demo warehouse",
		slog.String("database", cfg.Database),
		slog.Int("sets", len(cfg.Sets)),
		slog.Int("days", cfg.Days),
		slog.Bool("include_foil", cfg.IncludeFoil),
	)
	summaries, err := seeder.Run(ctx)
	if err != nil {
		logger.Error("seeding failed", slog.Any("error", err))
		os.Exit(1)
	}
	for _, summary := range summaries {
		logger.Info("table ready", slog.String("table", summary.Table), slog.Int("rows", summary.Rows))
	}
}
