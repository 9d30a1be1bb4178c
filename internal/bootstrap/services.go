package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/fundingcalc/jobs-engine/config"
	"github.com/fundingcalc/jobs-engine/internal/adapters/consumer"
	"github.com/fundingcalc/jobs-engine/internal/adapters/redisbroker"
	"github.com/fundingcalc/jobs-engine/internal/adapters/sweeper"
	"github.com/fundingcalc/jobs-engine/internal/core"
	"github.com/fundingcalc/jobs-engine/internal/data"
	"github.com/fundingcalc/jobs-engine/internal/devseed"
	"github.com/fundingcalc/jobs-engine/internal/observability/statsd"
	"github.com/fundingcalc/jobs-engine/internal/service"
)

// ServiceDeps holds the shared dependencies every service is built from.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
	Metrics     statsd.Sink
}

// Services holds the wired engine services.
type Services struct {
	Orchestrator *service.Orchestrator
	Catalog      *core.DefinitionCatalog
	Consumer     *consumer.Consumer
	SweepRunner  *sweeper.Runner

	logger *slog.Logger
	config *config.AppConfig
}

// NewServices wires the engine from shared dependencies.
func NewServices(deps *ServiceDeps) (*Services, error) {
	if deps == nil || deps.Config == nil {
		return nil, errors.New("config is required")
	}
	if deps.DB == nil {
		return nil, errors.New("database connection is required")
	}
	if deps.RedisClient == nil {
		return nil, errors.New("redis client is required")
	}

	cfg := deps.Config
	logger := deps.Logger

	retry := &core.ExponentialRetryPolicy{
		Attempts: cfg.Engine.RetryAttempts,
		Initial:  cfg.Engine.RetryInitialDelay,
		Max:      cfg.Engine.RetryMaxDelay,
	}

	jobRepo := data.NewJobRepo(deps.DB, data.JobRepoConfig{Logger: logger})
	definitionRepo := data.NewDefinitionRepo(deps.DB, logger)
	cacheRepo := data.NewRedisCacheRepo(deps.RedisClient)

	catalog, err := core.NewDefinitionCatalog(core.DefinitionCatalogOptions{
		Repo:   definitionRepo,
		Retry:  retry,
		TTL:    cfg.Engine.DefinitionCacheTTL,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("wire definition catalog: %w", err)
	}

	broker, err := redisbroker.New(redisbroker.Options{
		Client: deps.RedisClient,
		Prefix: cfg.Broker.KeyPrefix,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("wire broker: %w", err)
	}

	sink, err := redisbroker.NewNotificationSink(broker, cfg.Broker.NotificationTopic)
	if err != nil {
		return nil, fmt.Errorf("wire notification sink: %w", err)
	}

	dispatcher, err := service.NewDispatcher(service.DispatcherOptions{
		Broker: broker,
		Retry:  retry,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("wire dispatcher: %w", err)
	}

	publisher, err := service.NewNotificationPublisher(service.NotificationPublisherOptions{
		Sink:   sink,
		Retry:  retry,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("wire notification publisher: %w", err)
	}

	completionLock, err := core.NewCacheKeyedLock(core.CacheKeyedLockOptions{
		Cache: cacheRepo,
		TTL:   cfg.Engine.CompletionLockTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("wire completion lock: %w", err)
	}

	orchestrator, err := service.NewOrchestrator(service.OrchestratorOptions{
		Repo:           jobRepo,
		Catalog:        catalog,
		Dispatcher:     dispatcher,
		Publisher:      publisher,
		Retry:          retry,
		CompletionLock: completionLock,
		Logger:         logger,
		Metrics:        deps.Metrics,
		FanOutLimit:    cfg.Engine.FanOutLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("wire orchestrator: %w", err)
	}

	cons, err := consumer.New(consumer.Options{
		Broker:                 broker,
		Handler:                orchestrator,
		NotificationTopic:      cfg.Broker.NotificationTopic,
		NotificationRetryQueue: cfg.Broker.NotificationRetryQueue,
		DeletionQueue:          cfg.Broker.DeletionQueue,
		ReceiveTimeout:         cfg.Broker.ReceiveTimeout,
		Logger:                 logger,
		Metrics:                deps.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wire consumer: %w", err)
	}

	sweepRunner, err := sweeper.NewRunner(sweeper.RunnerOptions{
		Sweeper:  orchestrator,
		Interval: cfg.Engine.SweepInterval,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("wire sweep runner: %w", err)
	}

	return &Services{
		Orchestrator: orchestrator,
		Catalog:      catalog,
		Consumer:     cons,
		SweepRunner:  sweepRunner,
		logger:       logger,
		config:       cfg,
	}, nil
}

// InitMetrics builds the StatsD client when metrics are enabled; otherwise it
// returns a nil sink, which every emit helper tolerates.
func InitMetrics(cfg *config.AppConfig, logger *slog.Logger) (statsd.Sink, func(), error) {
	if cfg == nil || !cfg.Observability.Metrics.IsEnabled() {
		return nil, func() {}, nil
	}

	client, err := statsd.NewClient(statsd.Config{
		Enabled: true,
		Address: cfg.Observability.Metrics.StatsdAddress,
		Prefix:  cfg.Observability.Metrics.StatsdPrefix,
		Logger:  logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init statsd client: %w", err)
	}

	return client, func() { _ = client.Close() }, nil
}

// RunServicesWithShutdown runs the enabled services until an interrupt or
// termination signal arrives, then shuts them down gracefully.
func (s *Services) RunServicesWithShutdown(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if s.config.IsDev {
		if err := devseed.Run(ctx, s.Catalog, s.logger); err != nil {
			return fmt.Errorf("development seed: %w", err)
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)

	if s.config.IsConsumerEnabled() {
		group.Go(func() error {
			if err := s.Consumer.Run(groupCtx); err != nil {
				return fmt.Errorf("consumer: %w", err)
			}
			return nil
		})
	}
	if s.config.IsSweeperEnabled() {
		group.Go(func() error {
			if err := s.SweepRunner.Run(groupCtx); err != nil {
				return fmt.Errorf("sweep runner: %w", err)
			}
			return nil
		})
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "services running")
	}

	err := group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if s.logger != nil {
		s.logger.Info("services stopped")
	}
	return nil
}
