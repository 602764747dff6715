package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/target/refresh-orchestrator/config"
	"github.com/target/refresh-orchestrator/internal/bootstrap"
)

// infrastructure holds the shared connections of the service process.
type infrastructure struct {
	db    *sql.DB
	redis redis.UniversalClient
}

func (i *infrastructure) close() error {
	var errs []error
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if i.db != nil {
		if err := i.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

// connectInfrastructure opens PostgreSQL and Redis. Redis backs the fire locks that keep
// replicas from initiating the same scheduled minute twice, so the service requires it.
func connectInfrastructure(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*infrastructure, error) {
	dbCfg := bootstrap.DatabaseConfig{DBConfig: cfg.Postgres, RedisConfig: cfg.Redis, Logger: logger}

	db, err := bootstrap.ConnectDB(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	out := &infrastructure{db: db}

	client, err := bootstrap.ConnectRedis(ctx, dbCfg)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("connect redis: %w", err), out.close())
	}
	out.redis = client
	return out, nil
}
