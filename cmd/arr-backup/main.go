package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/imedwei/arr-backup/internal/arr"
	"github.com/imedwei/arr-backup/internal/backup"
	"github.com/imedwei/arr-backup/internal/config"
	"github.com/imedwei/arr-backup/internal/health"
	"github.com/imedwei/arr-backup/internal/server"
	"github.com/imedwei/arr-backup/internal/storage"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Load configuration before the logger so LOG_LEVEL applies to everything
	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stdout, nil)).Error("Failed to load configuration",
			"kind", backup.Classify(err),
			"error", err,
		)
		return 1
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("arr backup retrieval starting", "version", arr.Version)

	// Log configuration (without sensitive data)
	logger.Info("Configuration loaded",
		"server", cfg.BaseURL,
		"config_dir", cfg.ConfigDir,
		"dest_dir", cfg.DestDir,
		"delete_backup", cfg.DeleteBackup,
		"force_backup", cfg.ForceBackup,
		"max_backup_age", cfg.MaxBackupAge,
		"poll_interval", cfg.PollInterval,
		"backup_timeout", cfg.BackupTimeout,
		"storage_provider", cfg.StorageProvider,
		"retention_days", cfg.RetentionDays,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracker := health.NewTracker()

	if cfg.MetricsPort > 0 {
		checker := health.NewChecker()
		checker.RegisterCheck("run", tracker.Check)
		if cfg.OffsiteEnabled() {
			checker.RegisterCheck("storage", func(ctx context.Context) health.Check {
				return health.Check{
					Status:    health.StatusHealthy,
					Timestamp: time.Now(),
					Details:   map[string]interface{}{"provider": cfg.StorageProvider},
				}
			})
		}

		serverConfig := server.DefaultConfig()
		serverConfig.Port = cfg.MetricsPort
		httpServer := server.New(serverConfig, checker, logger)

		go func() {
			if err := httpServer.Start(); err != nil {
				logger.Error("HTTP server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown failed", "error", err)
			}
		}()
	}

	client, err := arr.NewClient(arr.Config{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Timeout: cfg.RequestTimeout,
	}, logger)
	if err != nil {
		logger.Error("Failed to create API client", "kind", "config", "error", err)
		return 1
	}

	offsite, err := storage.NewStorage(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to create storage provider", "kind", "config", "error", err)
		return 1
	}
	if closer, ok := offsite.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				logger.Warn("Failed to close storage provider", "error", err)
			}
		}()
	}

	orchestrator := backup.NewOrchestrator(cfg, client, offsite, logger, backup.WithObserver(tracker))

	if err := orchestrator.Run(ctx); err != nil {
		logger.Error("Backup retrieval failed", "kind", backup.Classify(err), "error", err)
		return 1
	}

	logger.Info("Backup retrieval completed successfully")
	return 0
}
