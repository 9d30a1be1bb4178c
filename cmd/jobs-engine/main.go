package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/fundingcalc/jobs-engine/config"
	"github.com/fundingcalc/jobs-engine/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	cfgPtr := &cfg

	logStartupInfo(ctx, logger, cfgPtr)

	if err = bootstrap.ValidateServiceConfig(cfgPtr); err != nil {
		return err
	}

	db, redisClient, err := initInfrastructure(ctx, cfgPtr, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close database failed", "error", cerr)
		}
	}()
	defer func() {
		if cerr := redisClient.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close redis failed", "error", cerr)
		}
	}()

	if cfg.Postgres.RunMigrationsOnStart {
		if err = bootstrap.RunMigrations(ctx, db, logger); err != nil {
			return err
		}
	} else {
		logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
	}

	metricsSink, closeMetrics, err := bootstrap.InitMetrics(cfgPtr, logger)
	if err != nil {
		return err
	}
	defer closeMetrics()

	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config:      cfgPtr,
		DB:          db,
		RedisClient: redisClient,
		Logger:      logger,
		Metrics:     metricsSink,
	})
	if err != nil {
		return err
	}

	return services.RunServicesWithShutdown(ctx)
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting jobs engine",
		"db_host", cfg.Postgres.Host,
		"db_port", cfg.Postgres.Port,
		"db_name", cfg.Postgres.Name,
		"enabled_services", bootstrap.GetEnabledServices(cfg),
	)
}

// initInfrastructure connects shared dependencies used by the service runtime.
//
//nolint:ireturn // returning redis.UniversalClient keeps sentinel/cluster support flexible.
func initInfrastructure(
	ctx context.Context,
	cfg *config.AppConfig,
	logger *slog.Logger,
) (*sql.DB, redis.UniversalClient, error) {
	dbCfg := bootstrap.DatabaseConfig{
		DBConfig:    cfg.Postgres,
		RedisConfig: cfg.Redis,
		Logger:      logger,
	}

	db, err := bootstrap.ConnectDB(dbCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect db: %w", err)
	}

	redisClient, err := bootstrap.ConnectRedis(dbCfg)
	if err != nil {
		if cerr := db.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close database after redis connect failure", "error", cerr)
			return nil, nil, fmt.Errorf("connect redis: %w", errors.Join(err, fmt.Errorf("close database: %w", cerr)))
		}
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}

	return db, redisClient, nil
}
