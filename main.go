package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"web/mapcluster/internal/logging"
	"web/mapcluster/manager"
	"web/mapcluster/quadtree"
	"web/mapcluster/runner"
	"web/mapcluster/server"
)

const DATASET_DIR = "data/datasets"

func main() {
	addr := flag.String("addr", ":8000", "HTTP listen address")
	dataDir := flag.String("data-dir", DATASET_DIR, "directory holding dataset files")
	maxSessions := flag.Int("max-sessions", runner.DefaultMaxSessions, "maximum number of sessions kept in memory")
	sessionTTL := flag.Duration("session-ttl", runner.DefaultSessionTTL, "evict sessions idle for longer than this")
	bucketCapacity := flag.Int("bucket-capacity", quadtree.DefaultBucketCapacity, "quadtree leaf capacity")
	maxDepth := flag.Int("max-depth", quadtree.DefaultMaxDepth, "quadtree depth limit")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn or error")
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		slog.Error("invalid log level", "level", *logLevel, "error", err)
		os.Exit(2)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	logging.SetLogger(logger)

	// Ensure dataset directory exists
	if err := os.MkdirAll(*dataDir, 0755); err != nil {
		logger.Error("failed to create dataset directory", "dir", *dataDir, "error", err)
		os.Exit(1)
	}
	absPath, _ := filepath.Abs(*dataDir)
	logger.Info("serving datasets", "dir", absPath)

	if level > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	registry := runner.NewRegistry(runner.Options{
		MaxSessions: *maxSessions,
		SessionTTL:  *sessionTTL,
		Manager: manager.Options{
			BucketCapacity: *bucketCapacity,
			MaxDepth:       *maxDepth,
		},
	})
	defer registry.Stop()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           server.New(registry, *dataDir).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Create a channel to listen for interrupt signals
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	// Start server in a goroutine
	go func() {
		logger.Info("starting server", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			quit <- syscall.SIGTERM
		}
	}()

	// Wait for interrupt signal
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}

	logger.Info("server stopped", "sessions", registry.Len())
}
