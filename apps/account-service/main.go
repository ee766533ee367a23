package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nat-prohmpiriya/fipe-garage/apps/account-service/internal/auth"
	"github.com/nat-prohmpiriya/fipe-garage/apps/account-service/internal/events"
	"github.com/nat-prohmpiriya/fipe-garage/apps/account-service/internal/handler"
	"github.com/nat-prohmpiriya/fipe-garage/apps/account-service/internal/repository"
	"github.com/nat-prohmpiriya/fipe-garage/pkg/config"
	"github.com/nat-prohmpiriya/fipe-garage/pkg/database"
	"github.com/nat-prohmpiriya/fipe-garage/pkg/health"
	"github.com/nat-prohmpiriya/fipe-garage/pkg/kafka"
	"github.com/nat-prohmpiriya/fipe-garage/pkg/logger"
	"github.com/nat-prohmpiriya/fipe-garage/pkg/middleware"
	pkgredis "github.com/nat-prohmpiriya/fipe-garage/pkg/redis"
	"github.com/nat-prohmpiriya/fipe-garage/pkg/telemetry"
	"github.com/nat-prohmpiriya/fipe-garage/pkg/usersession"
	"go.uber.org/zap"
)

const serviceName = "account-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ValidateJWT(); err != nil {
		log.Fatalf("Invalid JWT config: %v", err)
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
	log.Info("Starting account service...")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

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
	defer telemetry.Shutdown(context.Background())

	healthHandler := health.NewHandler(serviceName)

	// Redis holds sign-out markers and webhook idempotency records
	redis, err := pkgredis.NewClient(ctx, pkgredis.FromConfig(cfg.Redis))
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redis.Close()
	healthHandler.Register("redis", redis)

	var profiles usersession.ProfileStore
	if cfg.Session.IncludeProfile {
		if err := cfg.ValidateAuthDatabase(); err != nil {
			log.Fatal("Invalid auth database config", zap.Error(err))
		}
		db, err := database.NewPostgres(ctx, database.FromConfig(cfg.AuthDatabase, cfg.OTel.Enabled))
		if err != nil {
			log.Fatal("Failed to connect to auth database", zap.Error(err))
		}
		defer db.Close()
		healthHandler.Register("postgres", db)
		profiles = repository.NewPostgresProfileRepository(db)
	}

	bus, closeBus, err := newEventBus(ctx, cfg, redis, log)
	if err != nil {
		log.Fatal("Failed to set up auth events", zap.Error(err))
	}
	defer closeBus()

	if profiles != nil && cfg.Session.ProfileCacheTTL > 0 {
		cached := repository.NewCachedProfileRepository(profiles, redis.Cache("profile:"), cfg.Session.ProfileCacheTTL, log)
		defer cached.Close()
		if _, err := events.Listen(ctx, bus, cached); err != nil {
			log.Fatal("Failed to subscribe profile cache to auth events", zap.Error(err))
		}
		profiles = cached
		log.Info("Profile cache enabled", zap.Duration("ttl", cfg.Session.ProfileCacheTTL))
	}

	busDone := make(chan struct{})
	go func() {
		defer close(busDone)
		if err := bus.Run(ctx); err != nil {
			log.Error("Auth event consumer stopped", zap.Error(err))
		}
	}()

	revocations := auth.NewRevocationStore(redis.Cache(auth.RevocationKeyPrefix), cfg.JWT.AccessTokenTTL)
	verifier := auth.NewVerifier(auth.VerifierConfig{
		Secret:      cfg.JWT.Secret,
		Issuer:      cfg.JWT.Issuer,
		Revocations: revocations,
	})

	sessionOpts := usersession.DefaultOptions()
	sessionOpts.IncludeProfile = cfg.Session.IncludeProfile
	sessionOpts.LoginPath = cfg.Session.LoginPath

	sessionHandler := handler.NewSessionHandler(handler.SessionHandlerConfig{
		Verifier: verifier,
		Profiles: profiles,
		Events:   bus,
		Options:  sessionOpts,
		Logger:   log,
	})
	webhookHandler := handler.NewWebhookHandler(cfg.AuthEvents.WebhookSecret, revocations, bus, log)

	idempotencyCfg := middleware.DefaultIdempotencyConfig(redis)
	idempotencyCfg.KeyExtractor = handler.WebhookKey

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
	sessionHandler.RegisterRoutes(router)
	webhookHandler.RegisterRoutes(router, middleware.Idempotency(idempotencyCfg))

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		// request contexts derive from ctx so open streams end on shutdown
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	srv.RegisterOnShutdown(stop)

	go func() {
		log.Info(fmt.Sprintf("Account service listening on %s", srv.Addr))
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
	stop()
	<-busDone

	log.Info("Server exited gracefully")
}

// newEventBus builds the configured auth event backend and the func that
// releases its connections.
func newEventBus(ctx context.Context, cfg *config.Config, redis *pkgredis.Client, log *logger.Logger) (events.Bus, func(), error) {
	switch cfg.AuthEvents.Backend {
	case "kafka":
		topic := cfg.AuthEvents.Topic
		if topic == "" {
			topic = events.DefaultTopic
		}
		producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
			Brokers:  cfg.Kafka.Brokers,
			ClientID: cfg.Kafka.ClientID,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("kafka producer: %w", err)
		}
		// no group: every instance needs every event for its own streams
		consumer, err := kafka.NewConsumer(ctx, &kafka.ConsumerConfig{
			Brokers:    cfg.Kafka.Brokers,
			ClientID:   cfg.Kafka.ClientID,
			Topics:     []string{topic},
			StartAtEnd: true,
		})
		if err != nil {
			producer.Close()
			return nil, nil, fmt.Errorf("kafka consumer: %w", err)
		}
		log.Info("Auth events on Kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", topic))
		return events.NewKafkaBus(producer, consumer, topic, log), func() {
			consumer.Close()
			producer.Close()
		}, nil
	default:
		log.Info("Auth events on Redis pub/sub", zap.String("channel", cfg.AuthEvents.Channel))
		return events.NewRedisBus(redis, cfg.AuthEvents.Channel, log), func() {}, nil
	}
}
