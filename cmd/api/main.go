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

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"schooldesk/internal/attendance"
	"schooldesk/internal/cloudinary"
	"schooldesk/internal/config"
	"schooldesk/internal/dashboard"
	"schooldesk/internal/handler"
	"schooldesk/internal/httpmiddleware"
	"schooldesk/internal/logging"
	"schooldesk/internal/queue"
	"schooldesk/internal/school"
	"schooldesk/internal/store"
	"schooldesk/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.Production(), "api")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := run(cfg, logger); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func run(cfg config.App, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.DBDriver == "sqlite3" {
		if err := db.Migrate(ctx); err != nil {
			return err
		}
	}

	rdb := store.NewRedis(cfg.RedisAddr)
	defer rdb.Close()

	q, err := queue.New(cfg.QueueBackend, rdb.Client, cfg.QueueKey)
	if err != nil {
		return err
	}

	repo := school.NewRepository(db.Client)
	cache := store.NewSummaryCache(rdb, cfg.SummaryTTL)

	sessions := attendance.NewRegistry(repo, cfg.SessionTTL,
		attendance.WithNotifier(attendance.QueueNotifier{Queue: q, Log: logger}))
	go sessions.Run(ctx, time.Minute)

	// nobody else can read an in-process queue
	if cfg.QueueBackend == "memory" {
		refresher := &worker.SummaryRefresher{Source: repo, Cache: cache, Log: logger.Named("worker")}
		go func() {
			if err := refresher.Run(ctx, q); err != nil {
				logger.Error("summary refresher stopped", zap.Error(err))
			}
		}()
	}

	h := &handler.Handler{
		Repo:      repo,
		Sessions:  sessions,
		Dashboard: dashboard.NewBuilder(repo),
		Auth:      cfg.Auth(),
		Log:       logger,
		Cache:     cache,
		Checks: map[string]func(context.Context) bool{
			"db":    db.Healthy,
			"redis": rdb.Healthy,
		},
	}
	if cfg.CloudinaryConfigured() {
		h.Cloud = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		logger.Info("cloudinary configured", zap.String("cloud", cfg.CloudinaryCloudName))
	} else {
		logger.Warn("cloudinary not configured, document uploads disabled")
	}

	var limiter httpmiddleware.Limiter = httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	if cfg.RateLimitBackend == "redis" {
		limiter = httpmiddleware.NewRedisWindow(rdb.Client, cfg.RateLimitPerMin)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware(cfg.CORSOrigins))
	r.Use(httpmiddleware.SecurityHeaders())
	r.Use(httpmiddleware.Metrics())
	if cfg.RateLimitPerMin > 0 {
		r.Use(httpmiddleware.RateLimit(limiter, logger))
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	h.Register(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr), zap.String("db_driver", cfg.DBDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	// give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", zap.Error(err))
	}
	logger.Info("server exited")
	return nil
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       24 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
