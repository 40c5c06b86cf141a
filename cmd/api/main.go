//	@title			Media Storage API
//	@version		1.0
//	@description	Uploads, catalogs and deletes media files on the filesystem, S3-compatible object storage or a media CDN.
//
//	@host		localhost:8080
//	@BasePath	/api/v1

package main

//go:generate swag init --dir ../../ --generalInfo cmd/api/main.go --output ../../docs/swagger --outputTypes go --packageName swagger --parseInternal

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/edulms/media/internal/config"
	"github.com/edulms/media/internal/db"
	"github.com/edulms/media/internal/logger"
	"github.com/edulms/media/internal/media"
	"github.com/edulms/media/internal/metrics"
	"github.com/edulms/media/internal/profile"
	"github.com/edulms/media/internal/server"
	"github.com/edulms/media/internal/storage"
)

func main() {
	cfg, envFile := config.Load()

	log, err := logger.New(cfg.IsProduction(), cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if !envFile {
		log.Debug("no .env file found, reading environment only")
	}
	if !profile.Known(cfg.AppEnv) {
		log.Warn("unknown APP_ENV, falling back to development profile", zap.String("app_env", cfg.AppEnv))
	}

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	recorder, err := metrics.NewPrometheusRecorder(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("metrics init: %w", err)
	}

	store, err := storage.New(ctx, cfg.StorageConfig(), log, storage.WithRecorder(recorder))
	if err != nil {
		return fmt.Errorf("storage init: %w", err)
	}
	storeCfg := store.Config()
	log.Info("storage ready",
		zap.String("app_env", cfg.AppEnv),
		zap.String("kind", string(storeCfg.Kind)),
		zap.Int64("max_size_bytes", storeCfg.MaxSizeBytes),
		zap.Strings("allowed_types", storeCfg.AllowedMIMETypes),
	)

	pool, err := db.Connect(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return fmt.Errorf("database connection: %w", err)
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL, log); err != nil {
		return fmt.Errorf("database migration: %w", err)
	}

	// Wire dependencies: repository → service → handler
	mediaRepo := media.NewRepository(pool)
	mediaSvc := media.NewService(mediaRepo, store, log)
	mediaHandler := media.NewHandler(mediaSvc, storeCfg.MaxSizeBytes, log)

	router := server.NewRouter(server.Deps{
		Media:    mediaHandler,
		Storage:  storeCfg,
		Gatherer: prometheus.DefaultGatherer,
		Ping:     pool.Ping,
		Log:      log,
	})

	log.Info("swagger UI available", zap.String("url", "http://localhost:"+cfg.Port+"/swagger/"))
	return server.Run(ctx, ":"+cfg.Port, router, log)
}
