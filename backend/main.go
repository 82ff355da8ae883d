package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AnTengye/contractdash/backend/config"
	"github.com/AnTengye/contractdash/backend/handler"
	"github.com/AnTengye/contractdash/backend/pkg/logger"
	"github.com/AnTengye/contractdash/backend/service"
	"github.com/AnTengye/contractdash/backend/storage"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	cfg, err := config.Load("config.yaml")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	slog.Info("configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, closeBackend, err := storage.Open(ctx, cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		slog.Error("failed to open storage", "driver", cfg.Storage.Driver, "path", cfg.Storage.Path, "error", err)
		os.Exit(1)
	}
	slog.Info("storage opened", "driver", cfg.Storage.Driver, "path", cfg.Storage.Path)

	opts := service.DashboardOptions{HistoryLimit: cfg.Storage.HistoryLimit}
	if cfg.Minio.Enabled() {
		minioSvc, err := service.NewMinioService(&cfg.Minio)
		if err != nil {
			slog.Error("failed to initialize MINIO service", "error", err)
			os.Exit(1)
		}
		if err := minioSvc.EnsureBucket(ctx); err != nil {
			slog.Error("failed to ensure MINIO bucket", "error", err)
			os.Exit(1)
		}
		opts.Archive = minioSvc
		slog.Info("upload archive enabled", "bucket", cfg.Minio.Bucket)
	}

	analyzer := service.NewAnalysisClient(cfg.Analysis.APIURL, time.Duration(cfg.Analysis.TimeoutSeconds)*time.Second)
	registry := service.NewRegistry(backend, analyzer, opts)

	gin.SetMode(gin.ReleaseMode)
	router := handler.NewRouter(cfg, registry)

	// analysis calls can take minutes
	writeTimeout := time.Duration(cfg.Analysis.TimeoutSeconds)*time.Second + 30*time.Second
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Server.Port, "analysis_api", analyzer.BaseURL())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	registry.Close()
	if err := closeBackend(); err != nil {
		slog.Error("failed to close storage", "error", err)
	}

	slog.Info("server exited gracefully")
}
