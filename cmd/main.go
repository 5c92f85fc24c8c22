package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/dropout/internal/adapters/dataset"
	"github.com/okian/dropout/internal/adapters/http/api"
	"github.com/okian/dropout/internal/adapters/http/swagger"
	"github.com/okian/dropout/internal/adapters/mq/queue"
	"github.com/okian/dropout/internal/adapters/mq/worker"
	"github.com/okian/dropout/internal/adapters/repository"
	service "github.com/okian/dropout/internal/app"
	"github.com/okian/dropout/internal/config"
	"github.com/okian/dropout/internal/domain/scoring"
	"github.com/okian/dropout/pkg/logger"
	"github.com/okian/dropout/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 30 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	if err := logger.Init(); err != nil {
		// Logger isn't available yet.
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		var startup *scoring.StartupError
		if errors.As(err, &startup) {
			logger.Get().Error(ctx, "startup failed",
				logger.String("artifact", startup.Artifact),
				logger.String("path", startup.Path),
				logger.Error(err),
			)
		} else {
			logger.Get().Error(ctx, "service failed", logger.Error(err))
		}
		_ = logger.Sync()
		stop()
		os.Exit(1)
	}
}

// run loads configuration and artifacts, serves until ctx is done, then
// shuts down gracefully.
func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if err := configureLogger(cfg); err != nil {
		return err
	}
	log := logger.Get()

	svc, err := buildService(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Error(ctx, "service close failed", logger.Error(err))
		}
	}()

	watchConfig(ctx, log)
	go startSystemMetricsUpdater(ctx, metrics.RefreshInterval())

	srv := newHTTPServer(ctx, cfg, svc, log)
	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("http server: %w", err)
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// configureLogger rebuilds the global logger from cfg. An invalid level
// falls back to info.
func configureLogger(cfg *config.Config) error {
	opts := []logger.Option{logger.WithFormat(cfg.LogFormat)}
	if cfg.LogFile != "" {
		opts = append(opts, logger.WithFile(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays))
	}
	if err := logger.Init(opts...); err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(context.Background(), "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return nil
}

// buildService checks the required files, loads the scoring artifacts and
// wires the optional audit store and its background writers.
func buildService(ctx context.Context, cfg *config.Config, log logger.Logger) (*service.Service, error) {
	for _, f := range []struct{ artifact, path string }{
		{scoring.ArtifactModel, cfg.ModelPath},
		{scoring.ArtifactScaler, cfg.ScalerPath},
		{scoring.ArtifactDataset, cfg.DatasetPath},
	} {
		if err := scoring.RequireFile(f.artifact, f.path); err != nil {
			return nil, err
		}
	}

	artifacts, err := scoring.Load(ctx,
		scoring.WithModelPath(cfg.ModelPath),
		scoring.WithScalerPath(cfg.ScalerPath),
		scoring.WithFormat(cfg.ModelFormat),
		scoring.WithONNXLibraryPath(cfg.ONNXLibraryPath),
		scoring.WithLogger(log.Named("scoring")),
	)
	if err != nil {
		return nil, err
	}

	reader, err := dataset.NewReader(cfg.DatasetPath,
		dataset.WithEncoding(cfg.DatasetEncoding),
		dataset.WithLogger(log.Named("dataset")),
	)
	if err != nil {
		_ = artifacts.Close()
		return nil, &scoring.StartupError{Artifact: scoring.ArtifactDataset, Path: cfg.DatasetPath, Err: err}
	}

	opts := []service.Option{
		service.WithDataset(reader),
		service.WithPredictionCacheSize(cfg.PredictionCacheSize),
		service.WithLogger(log.Named("service")),
	}
	var cleanup []func()
	if cfg.AuditDBPath != "" {
		store, err := repository.OpenSQLite(ctx, cfg.AuditDBPath, repository.WithLogger(log.Named("audit")))
		if err != nil {
			_ = artifacts.Close()
			return nil, err
		}
		opts = append(opts, service.WithAuditStore(store))
		cleanup = append(cleanup, func() { _ = store.Close() })
		if n, err := store.Count(ctx); err != nil {
			log.Warn(ctx, "audit store count failed", logger.Error(err))
		} else {
			log.Info(ctx, "audit store ready",
				logger.String("path", cfg.AuditDBPath),
				logger.Int("records", n),
			)
		}

		if cfg.AuditQueueSize > 0 {
			pool := worker.NewPool(cfg.AuditWorkers,
				queue.NewInMemoryQueue(queue.WithCapacity(cfg.AuditQueueSize)),
				store, log.Named("audit"))
			pool.Start(ctx)
			opts = append(opts, service.WithAuditQueue(pool))
			cleanup = append(cleanup, func() { _ = pool.Shutdown(context.WithoutCancel(ctx)) })
		}
	}

	svc, err := service.New(artifacts, opts...)
	if err != nil {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
		_ = artifacts.Close()
		return nil, err
	}
	return svc, nil
}

// newHTTPServer registers every route on a fresh mux.
func newHTTPServer(ctx context.Context, cfg *config.Config, svc *service.Service, log logger.Logger) *http.Server {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)

	apiServer := api.NewServer(svc,
		api.WithLogger(log.Named("http")),
		api.WithAllowedOrigins(cfg.AllowedOrigins...),
		api.WithMaxBodyBytes(cfg.MaxBodyBytes),
		api.WithMaxRecentLimit(cfg.MaxRecentLimit),
	)
	apiServer.Register(ctx, mux)

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           apiServer.Handler(mux),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// watchConfig applies log_level changes from the config file while serving.
// Artifacts are never reloaded.
func watchConfig(ctx context.Context, log logger.Logger) {
	err := config.Watch(ctx,
		func(cfg *config.Config) {
			if err := logger.SetLevelString(cfg.LogLevel); err != nil {
				log.Warn(ctx, "ignoring invalid log_level from reload", logger.String("log_level", cfg.LogLevel))
				return
			}
			log.Info(ctx, "configuration reloaded", logger.String("log_level", cfg.LogLevel))
		},
		func(err error) {
			log.Warn(ctx, "configuration reload failed", logger.Error(err))
		},
	)
	switch {
	case errors.Is(err, config.ErrNoConfigFile):
	case err != nil:
		log.Warn(ctx, "config watch disabled", logger.Error(err))
	}
}

// startSystemMetricsUpdater refreshes runtime gauges until ctx is done.
func startSystemMetricsUpdater(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
