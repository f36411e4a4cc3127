package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pricedash/pricedash/internal/api"
	"github.com/pricedash/pricedash/internal/archive"
	"github.com/pricedash/pricedash/internal/auth"
	"github.com/pricedash/pricedash/internal/cache"
	"github.com/pricedash/pricedash/internal/config"
	"github.com/pricedash/pricedash/internal/dashboard"
	"github.com/pricedash/pricedash/internal/observability"
	"github.com/pricedash/pricedash/internal/pages"
	"github.com/pricedash/pricedash/internal/query"
	s3store "github.com/pricedash/pricedash/internal/storage/s3"
	"github.com/pricedash/pricedash/internal/warehouse"
)

func main() {
	dumpPages := flag.Bool("dump-pages", false, "print the effective page set as YAML and exit")
	flag.Parse()

	cfg, err := config.LoadFromEnv("pricedash-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	pageSet := pages.Default()
	if cfg.Pages.File != "" {
		pageSet, err = pages.LoadFile(cfg.Pages.File)
		if err != nil {
			logger.Error("failed to load page descriptors", slog.String("file", cfg.Pages.File), slog.Any("error", err))
			os.Exit(1)
		}
	}
	if *dumpPages {
		encoded, err := pages.Encode(pageSet)
		if err != nil {
			logger.Error("failed to encode page descriptors", slog.Any("error", err))
			os.Exit(1)
		}
		_, _ = os.Stdout.Write(encoded)
		return
	}

	provider := warehouse.NewProviderFromConfig(cfg.Warehouse, logger)
	defer func() { _ = provider.Close() }()

	executor := query.NewExecutor(provider, cfg.Query, query.NewLogReporter(logger), logger)
	cacheOptions := cache.OptionsFromConfig(cfg.Cache, logger)

	var snapshots *archive.Archive
	if cfg.Archive.Enabled {
		objectStore, err := s3store.New(context.Background(), s3store.ConfigFromArchive(cfg.Archive))
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		snapshots = archive.New(objectStore, cfg.Archive.KeepSnapshots, logger)
		cacheOptions.OnFetch = snapshots.OnFetch
	}

	tables := cache.New(cache.ExecutorFetch(executor), cacheOptions)
	service := dashboard.NewService(pageSet, tables, cfg.Cache.LoadPolicy, logger)

	deps := api.Dependencies{
		Logger:    logger,
		Dashboard: service,
		Readiness: api.CombineReadinessChecks(
			api.CheckPages(pageSet),
			api.CheckWarehouse(provider),
		),
		DependencyTimeout: cfg.Warehouse.ProbeTimeout,
	}
	if snapshots != nil {
		deps.Archive = snapshots
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Cache.LoadPolicy == config.LoadPolicyBatch {
		go func() {
			if _, err := tables.Warm(ctx, pageSet.Tables()); err != nil {
				logger.Warn("initial cache warm interrupted", slog.Any("error", err))
			}
		}()
	}

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.Int("pages", len(pageSet.Pages)),
			slog.String("load_policy", string(cfg.Cache.LoadPolicy)),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
	if err := tables.Drain(shutdownCtx); err != nil {
		logger.Warn("pending snapshot writes abandoned", slog.Any("error", err))
	}
}
