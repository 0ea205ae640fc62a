package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/courier/internal/api"
	"github.com/lalithlochan/courier/internal/config"
	"github.com/lalithlochan/courier/internal/db"
	"github.com/lalithlochan/courier/internal/memstore"
	"github.com/lalithlochan/courier/internal/notify"
	"github.com/lalithlochan/courier/internal/observ"
	"github.com/lalithlochan/courier/internal/preference"
	"github.com/lalithlochan/courier/internal/redis"
	"github.com/lalithlochan/courier/internal/sqs"
	"github.com/lalithlochan/courier/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// datastore is everything the service persists. Both *db.Repository and
// *memstore.Store implement it.
type datastore interface {
	notify.QueueStore
	notify.InboxStore
	notify.TemplateStore
	notify.ContactStore
	preference.Store
	api.TemplateRepository
	api.ContactRepository
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting courier",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
		zap.String("version", cfg.Version),
		zap.String("store", cfg.StoreDriver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observ.SetupTracing(ctx, observ.TracingConfig{
		Endpoint:   cfg.Tracing.Endpoint,
		Insecure:   cfg.Tracing.Insecure,
		SampleRate: cfg.Tracing.SampleRate,
		Env:        cfg.Env,
		Version:    cfg.Version,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	store, health, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// Redis is optional: without it there is no preference cache,
	// idempotency or rate limiting.
	var (
		prefCache   preference.Cache
		idempotency *redis.IdempotencyService
		limiter     *redis.RateLimiter
	)
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(ctx, redis.Config{
			URL:      cfg.Redis.URL,
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
		if err != nil {
			logger.Warn("redis unavailable, running without cache, idempotency and rate limiting",
				zap.Error(err),
			)
		} else {
			defer redisClient.Close()
			prefCache = redis.NewPreferenceCache(redisClient, cfg.Redis.PreferenceTTL, logger)
			idempotency = redis.NewIdempotencyService(redisClient, logger)
			limiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
				Limit:  cfg.RateLimit,
				Window: cfg.RateLimitWindow,
			})
		}
	}

	resolver := preference.NewResolver(store, prefCache, cfg.DefaultTimezone, logger)

	router, err := buildChannels(ctx, cfg, logger)
	if err != nil {
		return err
	}

	processor := notify.New(notify.Deps{
		Queue:       store,
		Inbox:       store,
		Templates:   store,
		Contacts:    store,
		Preferences: resolver,
		Router:      router,
	}, notify.Config{
		MaxAttempts:      cfg.Queue.MaxAttempts,
		DefaultPriority:  &cfg.Queue.DefaultPriority,
		DrainBatchSize:   cfg.Queue.DrainBatchSize,
		DrainConcurrency: cfg.Queue.DrainConcurrency,
	}, logger)

	// Immediate dispatch after enqueue goes through the pool. With SQS
	// configured the pool only hands ids to the queue and the consumer below
	// dispatches them.
	handle := worker.Handler(processor.Dispatch)
	var consumer *worker.Consumer
	if cfg.SQS.QueueURL != "" {
		awsCfg, err := loadAWS(ctx, cfg)
		if err != nil {
			return err
		}
		client := sqs.NewClient(awsCfg, cfg.AWS.Endpoint)
		producer := sqs.NewProducer(client, cfg.SQS.QueueURL, logger)
		handle = func(ctx context.Context, id uuid.UUID) error {
			_, err := producer.Publish(ctx, id)
			return err
		}
		consumer = worker.NewConsumer(sqs.NewConsumer(client, sqs.ConsumerConfig{
			QueueURL:          cfg.SQS.QueueURL,
			MaxMessages:       cfg.SQS.MaxMessages,
			WaitSeconds:       cfg.SQS.WaitSeconds,
			VisibilityTimeout: cfg.SQS.VisibilityTimeout,
		}, logger), processor, logger)
	}

	pool := worker.NewPool(handle, worker.PoolConfig{
		Workers: cfg.Queue.PoolWorkers,
		Buffer:  cfg.Queue.PoolBuffer,
	}, logger)
	pool.Start(ctx)
	defer pool.Stop()
	processor.SetTrigger(pool)

	scheduler := worker.NewScheduler(processor, worker.SchedulerConfig{
		Interval:  cfg.Queue.DrainInterval,
		BatchSize: cfg.Queue.DrainBatchSize,
	}, logger)
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	consumerDone := make(chan struct{})
	if consumer != nil {
		go func() {
			defer close(consumerDone)
			consumer.Run(ctx)
		}()
	} else {
		close(consumerDone)
	}

	handler := api.NewHandler(logger, api.Deps{
		Notifier:    processor,
		Inbox:       notify.NewInbox(store, logger),
		Preferences: resolver,
		Templates:   store,
		Contacts:    store,
		Idempotency: idempotency,
		Health:      health,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      api.NewRouter(handler, limiter, logger),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")

		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(sctx); err != nil {
			_ = srv.Close()
			serveErr = fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	// stop background dispatch before the deferred closers release the store
	stop()
	<-consumerDone
	if serveErr != nil {
		return serveErr
	}

	logger.Info("server stopped gracefully")
	return nil
}

// openStore connects the configured datastore and returns it with its health
// check and close function.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (datastore, func(context.Context) error, func(), error) {
	if cfg.StoreDriver == config.StoreMemory {
		logger.Warn("using the in-memory store, data is lost on restart")
		return memstore.New(), nil, func() {}, nil
	}

	database, err := db.New(ctx, db.Config{
		URL:      cfg.Database.URL,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConns,
	}, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("host", cfg.Database.Host),
		zap.Int("port", cfg.Database.Port),
		zap.String("database", cfg.Database.Name),
	)

	return db.NewRepository(database, logger), database.Health, database.Close, nil
}
