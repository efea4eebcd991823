package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/juancollazo-ch/kitchen-status-sync/internal/config"
	"github.com/juancollazo-ch/kitchen-status-sync/internal/handlers"
	"github.com/juancollazo-ch/kitchen-status-sync/internal/logging"
	"github.com/juancollazo-ch/kitchen-status-sync/internal/mirror"
	"github.com/juancollazo-ch/kitchen-status-sync/internal/queue"
	"github.com/juancollazo-ch/kitchen-status-sync/internal/remote"
	"github.com/juancollazo-ch/kitchen-status-sync/internal/retry"
	"github.com/juancollazo-ch/kitchen-status-sync/internal/service"
	"github.com/juancollazo-ch/kitchen-status-sync/internal/storage"
	"github.com/juancollazo-ch/kitchen-status-sync/internal/store"
	"github.com/juancollazo-ch/kitchen-status-sync/internal/worker"
)

// MAIN: inicializa dependencias, flusher y el puente HTTP local
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Logger JSON compatible con GCP Cloud Logging
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	zap.ReplaceGlobals(logger)

	if err := run(cfg); err != nil {
		zap.L().Error("Server stopped unexpectedly", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("local datastore: %w", err)
	}
	defer db.Close()

	kv, closeKV, err := openKV(cfg)
	if err != nil {
		return fmt.Errorf("offline queue storage: %w", err)
	}
	defer closeKV()

	client, err := remote.NewClient(remote.Config{
		BaseURL:        cfg.APIBase,
		APIKey:         cfg.APIKey,
		AttemptTimeout: cfg.RequestTimeout,
		Policy: retry.Policy{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.BackoffBase,
			Jitter:      retry.DefaultJitter,
		},
	})
	if err != nil {
		return fmt.Errorf("website API client: %w", err)
	}

	updater := mirror.NewUpdater(db)

	offline := queue.New(kv, client, updater)
	offline.SetFlushAttempts(cfg.FlushAttempts)
	if err := offline.Load(ctx); err != nil {
		return err
	}

	syncService := service.NewSyncService(client, updater, offline, !cfg.StartOffline)

	flusher := worker.NewFlusher(syncService, cfg.FlushInterval)
	syncService.OnReconnect(flusher.Trigger)
	flusher.Start(ctx)
	// cola pendiente de una sesión anterior
	flusher.Trigger()

	server := &http.Server{
		Addr:         "127.0.0.1:" + cfg.Port,
		Handler:      handlers.NewRouter(handlers.New(syncService)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		zap.L().Info("Server started",
			zap.String("port", cfg.Port),
			zap.String("website_host", client.Host()),
			zap.Bool("online", syncService.Online()),
			zap.Int("pending", syncService.PendingCount()),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	// GRACEFUL SHUTDOWN
	select {
	case err := <-serverErr:
		stop()
		flusher.Wait()
		return err
	case <-ctx.Done():
	}

	zap.L().Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("Graceful shutdown failed", zap.Error(err))
	}
	flusher.Wait()

	zap.L().Info("Server exited", zap.Int("pending", syncService.PendingCount()))
	return nil
}

// openKV elige Redis si hay REDIS_URL; si no, archivos locales.
func openKV(cfg *config.Config) (storage.KV, func(), error) {
	if cfg.RedisURL != "" {
		kv, err := storage.NewRedisKV(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return kv, func() {
			if err := kv.Close(); err != nil {
				zap.L().Warn("failed to close redis", zap.Error(err))
			}
		}, nil
	}

	kv, err := storage.NewFileKV(cfg.QueueDir)
	if err != nil {
		return nil, nil, err
	}
	return kv, func() {}, nil
}
