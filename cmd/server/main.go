package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	channelapp "github.com/channelsync/backend/internal/application/channel"
	inventoryapp "github.com/channelsync/backend/internal/application/inventory"
	channeldom "github.com/channelsync/backend/internal/domain/channel"
	"github.com/channelsync/backend/internal/infrastructure/cache"
	"github.com/channelsync/backend/internal/infrastructure/config"
	"github.com/channelsync/backend/internal/infrastructure/logger"
	"github.com/channelsync/backend/internal/infrastructure/marketplace"
	"github.com/channelsync/backend/internal/infrastructure/persistence"
	"github.com/channelsync/backend/internal/infrastructure/queue"
	"github.com/channelsync/backend/internal/infrastructure/scheduler"
	"github.com/channelsync/backend/internal/infrastructure/telemetry"
	"github.com/channelsync/backend/internal/interfaces/http/handler"
	"github.com/channelsync/backend/internal/interfaces/http/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting channel sync backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
	)

	ctx := context.Background()

	// Telemetry
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled {
		if err := db.EnableTracing(); err != nil {
			log.Fatal("Failed to enable database tracing", zap.Error(err))
		}
	}

	// Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	// Repositories
	channelRepo := persistence.NewGormChannelRepository(db.DB)
	requestRepo := persistence.NewGormInventoryRequestRepository(db.DB)

	// Marketplace client
	tiktokConfig := &marketplace.TikTokConfig{
		AppKey:         cfg.Marketplace.AppKey,
		AppSecret:      cfg.Marketplace.AppSecret,
		APIBaseURL:     cfg.Marketplace.APIBaseURL,
		AuthBaseURL:    cfg.Marketplace.AuthBaseURL,
		TimeoutSeconds: cfg.Marketplace.TimeoutSeconds,
	}
	tiktokClient, err := marketplace.NewTikTokClient(tiktokConfig)
	if err != nil {
		log.Fatal("Failed to create marketplace client", zap.Error(err))
	}

	// Application services
	credentialService := channelapp.NewCredentialService(channelRepo, tiktokClient, log)
	intakeService := inventoryapp.NewIntakeService(requestRepo, channelRepo, channeldom.Type(cfg.Marketplace.ChannelType), log)
	reconcileService := inventoryapp.NewReconcileService(
		requestRepo,
		channelRepo,
		credentialService,
		tiktokClient,
		cfg.Scheduler.SyncCallTimeout,
		log,
	)

	// Stream consumer
	idempotencyStore := cache.NewRedisIdempotencyStore(redisClient, "")
	defer idempotencyStore.Close()

	consumer := queue.NewConsumer(redisClient, queue.ConsumerConfig{
		Stream:           cfg.Queue.Stream,
		Group:            cfg.Queue.Group,
		Consumer:         cfg.Queue.Consumer,
		DeadLetterStream: cfg.Queue.DeadLetterStream,
		Block:            cfg.Queue.Block,
		MaxDeliveries:    cfg.Queue.MaxDeliveries,
		ClaimMinIdle:     cfg.Queue.ClaimMinIdle,
	}, idempotencyStore, log)
	consumer.Register(queue.KindStockChange, queue.NewStockChangeHandler(intakeService, log))

	if err := consumer.Start(ctx); err != nil {
		log.Fatal("Failed to start stream consumer", zap.Error(err))
	}

	// Reconcile scheduler and trigger
	reconcileScheduler, err := scheduler.NewReconcileScheduler(scheduler.ReconcileSchedulerConfig{
		Enabled:           cfg.Scheduler.Enabled,
		MaxConcurrentJobs: cfg.Scheduler.MaxConcurrentJobs,
		JobTimeout:        cfg.Scheduler.JobTimeout,
		RetryAttempts:     cfg.Scheduler.RetryAttempts,
		RetryDelay:        cfg.Scheduler.RetryDelay,
	}, scheduler.NewReconcileJobExecutor(reconcileService), log.Named("scheduler"))
	if err != nil {
		log.Fatal("Failed to create reconcile scheduler", zap.Error(err))
	}
	if err := reconcileScheduler.Start(ctx); err != nil {
		log.Fatal("Failed to start reconcile scheduler", zap.Error(err))
	}

	trigger := scheduler.NewIntervalTrigger(scheduler.IntervalTriggerConfig{
		Interval: cfg.Scheduler.Interval,
	}, reconcileScheduler, channelRepo, log.Named("trigger"))
	if cfg.Scheduler.Enabled {
		if err := trigger.Start(ctx); err != nil {
			log.Fatal("Failed to start reconcile trigger", zap.Error(err))
		}
	} else {
		log.Info("Reconcile trigger disabled by configuration")
	}

	// HTTP server
	publisher := queue.NewPublisher(redisClient, cfg.Queue.Stream)
	opsHandler := handler.NewOpsHandler(db, redisClient, reconcileScheduler, publisher, channelRepo, requestRepo)
	engine := router.Setup(opsHandler, cfg.App.Env)

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop intake first so no new work arrives, then drain the workers,
	// then close the outer surfaces.
	consumer.Stop()
	trigger.Stop()
	if err := reconcileScheduler.Stop(shutdownCtx); err != nil {
		log.Warn("Reconcile scheduler shutdown incomplete", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Tracer provider shutdown failed", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
