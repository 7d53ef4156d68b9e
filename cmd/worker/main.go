package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ruvnet/tokenfield/internal/config"
	"github.com/ruvnet/tokenfield/internal/worker"
	"github.com/ruvnet/tokenfield/pkg/metrics"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	m := metrics.NewMetrics()
	pool := worker.NewPool(cfg.Worker, logger, m)

	// Expose metrics for scraping.
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: cfg.Node.ListenAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	logger.Info("worker pool started",
		zap.Int("pool_size", cfg.Worker.PoolSize),
		zap.Duration("batch_window", cfg.Worker.BatchWindow),
		zap.String("metrics", cfg.Node.ListenAddr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownGrace+time.Second)
	defer cancel()

	_ = server.Shutdown(ctx)
	if err := pool.Shutdown(ctx); err != nil {
		logger.Error("pool shutdown failed", zap.Error(err))
	}
}
