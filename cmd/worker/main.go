package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"schooldesk/internal/config"
	"schooldesk/internal/logging"
	"schooldesk/internal/queue"
	"schooldesk/internal/school"
	"schooldesk/internal/store"
	"schooldesk/internal/worker"
)

// Worker consumes attendance events and refreshes cached summaries.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.Production(), "worker")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if cfg.QueueBackend != "redis" {
		logger.Fatal("the standalone worker needs QUEUE_BACKEND=redis; the memory queue is drained inside the api")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	defer db.Close()

	rdb := store.NewRedis(cfg.RedisAddr)
	defer rdb.Close()
	if !rdb.Healthy(ctx) {
		logger.Warn("redis not reachable yet, consumer will keep retrying", zap.String("addr", cfg.RedisAddr))
	}

	q, err := queue.New(cfg.QueueBackend, rdb.Client, cfg.QueueKey)
	if err != nil {
		logger.Fatal("queue init failed", zap.Error(err))
	}

	metrics := &http.Server{Addr: ":" + cfg.WorkerMetricsPort, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	defer metrics.Close()

	refresher := &worker.SummaryRefresher{
		Source: school.NewRepository(db.Client),
		Cache:  store.NewSummaryCache(rdb, cfg.SummaryTTL),
		Log:    logger,
	}
	logger.Info("worker started, waiting for messages")
	if err := refresher.Run(ctx, q); err != nil {
		logger.Fatal("queue consume failed", zap.Error(err))
	}
	logger.Info("worker stopped")
}
