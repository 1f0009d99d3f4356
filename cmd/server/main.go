package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tidalbase/quadrat/internal"
	"github.com/tidalbase/quadrat/internal/artifacts"
	"github.com/tidalbase/quadrat/internal/handler"
	"github.com/tidalbase/quadrat/internal/infer"
	"github.com/tidalbase/quadrat/internal/infer/httpinfer"
	"github.com/tidalbase/quadrat/internal/infer/mock"
	"github.com/tidalbase/quadrat/internal/jobs"
	"github.com/tidalbase/quadrat/internal/metrics"
	"github.com/tidalbase/quadrat/internal/middleware"
	"github.com/tidalbase/quadrat/internal/repository"
	"github.com/tidalbase/quadrat/internal/service"
	"github.com/tidalbase/quadrat/internal/storage"
	"github.com/tidalbase/quadrat/internal/worker"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database connection
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	if err := internal.RunMigrations(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	// Initialize repository
	repo := repository.New(db)

	// Initialize blob storage
	store, bucket, err := newStorage(cfg, logger)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}

	// Initialize artifact cache for classifier model files
	artifactCache := artifacts.NewCache(cfg.ArtifactCacheDir, cfg.ArtifactRemotePrefix, store, logger)

	// Initialize inference provider
	inferSvc, err := newInferProvider(cfg, logger)
	if err != nil {
		return fmt.Errorf("inference provider initialization failed: %w", err)
	}
	logger.Info("Inference provider ready", "provider", cfg.InferProvider)

	// Initialize services
	imageService := service.NewImageService(repo, store, bucket, logger)
	annotationService := service.NewAnnotationService(repo, logger)
	recordService := service.NewCollectRecordService(repo, store, logger)

	// Initialize background worker
	var jobWorker *worker.Worker
	if cfg.WorkerEnabled {
		workerCfg := worker.DefaultConfig()
		workerCfg.Concurrency = cfg.WorkerConcurrency
		workerCfg.PollInterval = cfg.WorkerPollInterval
		workerCfg.JobTimeout = cfg.WorkerJobTimeout

		jobWorker, err = worker.New(db, repo, workerCfg, logger)
		if err != nil {
			return fmt.Errorf("worker initialization failed: %w", err)
		}
		jobWorker.Register(jobs.NewClassifyImageHandler(db, repo, inferSvc, store, artifactCache, logger))
		jobWorker.Start(ctx)
		logger.Info("Worker started", "concurrency", workerCfg.Concurrency)
	} else {
		logger.Warn("Worker disabled; classification jobs will queue until a worker runs")
	}

	// Initialize handlers
	imageHandler := handler.NewImageHandler(imageService, logger)
	annotationHandler := handler.NewAnnotationHandler(annotationService, logger)
	recordHandler := handler.NewCollectRecordHandler(recordService, logger)

	// Initialize middleware
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	metricsAuthMw := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics (basic auth when configured)
	mux.Handle("GET /metrics", metricsAuthMw.Handler(promhttp.Handler()))

	// Local storage is served directly; S3 objects get presigned URLs instead
	if cfg.StorageProvider == "local" {
		filesFS := http.FileServer(http.Dir(cfg.LocalStoragePath))
		mux.Handle("GET /files/", http.StripPrefix("/files/", filesFS))
	}

	// API routes
	imageHandler.RegisterRoutes(mux)
	annotationHandler.RegisterRoutes(mux)
	recordHandler.RegisterRoutes(mux)

	// ==========================================================================
	// Start server
	// ==========================================================================

	stack := middleware.Stack(loggingMw.Handler, metrics.Middleware)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: stack(mux),
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	// Stop the worker after the server so in-flight requests can still enqueue
	if jobWorker != nil {
		jobWorker.Stop()
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

// newStorage builds the configured blob store and returns it with the
// bucket identifier recorded on uploaded images.
func newStorage(cfg *internal.Config, logger *slog.Logger) (storage.Storage, string, error) {
	switch cfg.StorageProvider {
	case "s3":
		store, err := storage.NewS3Storage(storage.S3Config{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			BucketName:      cfg.S3BucketName,
			PublicURL:       cfg.S3PublicURL,
		}, logger)
		if err != nil {
			return nil, "", err
		}
		return store, cfg.S3BucketName, nil
	default:
		store, err := storage.NewLocalStorage(storage.LocalConfig{
			BasePath: cfg.LocalStoragePath,
			BaseURL:  cfg.LocalStorageURL,
		}, logger)
		if err != nil {
			return nil, "", err
		}
		return store, "local", nil
	}
}

// newInferProvider builds the configured feature-extraction and
// classification backend.
func newInferProvider(cfg *internal.Config, logger *slog.Logger) (infer.Service, error) {
	switch cfg.InferProvider {
	case "http":
		return httpinfer.New(httpinfer.Config{
			BaseURL: cfg.InferURL,
			ServiceConfig: infer.ServiceConfig{
				MaxRetries:     cfg.InferMaxRetries,
				RetryBaseDelay: cfg.InferRetryBaseDelay,
				RequestTimeout: cfg.InferRequestTimeout,
			},
		}, logger)
	default:
		return mock.New(logger), nil
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
