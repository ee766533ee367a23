package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nat-prohmpiriya/fipe-garage/apps/fipe-service/internal/fipe"
	"github.com/nat-prohmpiriya/fipe-garage/apps/fipe-service/internal/handler"
	"github.com/nat-prohmpiriya/fipe-garage/pkg/config"
	"github.com/nat-prohmpiriya/fipe-garage/pkg/health"
	"github.com/nat-prohmpiriya/fipe-garage/pkg/logger"
	"github.com/nat-prohmpiriya/fipe-garage/pkg/middleware"
	pkgredis "github.com/nat-prohmpiriya/fipe-garage/pkg/redis"
	"github.com/nat-prohmpiriya/fipe-garage/pkg/telemetry"
	"go.uber.org/zap"
)

const serviceName = "fipe-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(&logger.Config{
		Level:       cfg.App.LogLevel,
		ServiceName: serviceName,
		Development: cfg.IsDevelopment(),
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting FIPE service...")

	ctx := context.Background()

	telemetryCfg := &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}
	if _, err := telemetry.Init(ctx, telemetryCfg); err != nil {
		log.Warn("Failed to initialize telemetry", zap.Error(err))
	}
	defer telemetry.Shutdown(ctx)

	if cfg.Fipe.Token == "" {
		log.Warn("FIPE_API_TOKEN is empty, requests will be sent without a subscription token")
	}

	var fetcher fipe.Fetcher = fipe.NewClient(fipe.ClientConfig{
		BaseURL: cfg.Fipe.BaseURL,
		Token:   cfg.Fipe.Token,
		Timeout: cfg.Fipe.Timeout,
		Logger:  log,
	})

	healthHandler := health.NewHandler(serviceName)

	// Redis is only needed for the optional lookup cache
	if cfg.Fipe.CacheTTL > 0 {
		redis, err := pkgredis.NewClient(ctx, pkgredis.FromConfig(cfg.Redis))
		if err != nil {
			log.Warn("Redis connection failed, FIPE cache disabled", zap.Error(err))
			healthHandler.Register("redis", nil)
		} else {
			defer redis.Close()
			fetcher = fipe.NewCachedClient(fetcher, redis.Cache("fipe:"), cfg.Fipe.CacheTTL, log)
			healthHandler.Register("redis", redis)
			log.Info("FIPE cache enabled", zap.Duration("ttl", cfg.Fipe.CacheTTL))
		}
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.OTel.Enabled {
		router.Use(telemetry.TracingMiddleware(serviceName))
	}
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log, "/health", "/ready"))
	router.Use(middleware.CORS())

	healthHandler.Mount(router)
	handler.NewFipeHandler(fipe.NewService(fetcher), log).RegisterRoutes(router)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info(fmt.Sprintf("FIPE service listening on %s", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
