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

type connectInfraOptions struct {
	Ctx       context.Context
	Logger    *slog.Logger
	Config    *config.AppConfig
	WantDB    bool
	WantRedis bool
}

var errRedisNotConfigured = errors.New("redis not configured")

// infra holds the connections a command opened. Close releases all of them.
type infra struct {
	DB    *sql.DB
	Redis redis.UniversalClient
}

func (i *infra) Close() error {
	var closeErr error
	if i.DB != nil {
		if err := i.DB.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close db: %w", err))
		}
	}
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close redis: %w", err))
		}
	}
	return closeErr
}

// connectInfra opens the requested connections. A missing Redis configuration is not an error.
func connectInfra(opts *connectInfraOptions) (*infra, error) {
	out := &infra{}

	if opts.WantDB {
		db, err := bootstrap.ConnectDB(opts.Ctx, bootstrap.DatabaseConfig{DBConfig: opts.Config.Postgres, Logger: opts.Logger})
		if err != nil {
			return nil, fmt.Errorf("connect db: %w", err)
		}
		out.DB = db
	}

	if opts.WantRedis {
		client, err := maybeConnectRedis(opts.Ctx, opts.Logger, &opts.Config.Redis)
		switch {
		case errors.Is(err, errRedisNotConfigured):
			opts.Logger.Info("no redis configuration detected; skipping redis connection")
		case err != nil:
			if closeErr := out.Close(); closeErr != nil {
				err = errors.Join(err, closeErr)
			}
			return nil, err
		default:
			out.Redis = client
		}
	}

	return out, nil
}

// maybeConnectRedis returns a connected client when configuration is present.
//
//nolint:ireturn // returning redis.UniversalClient keeps sentinel/cluster support flexible.
func maybeConnectRedis(ctx context.Context, logger *slog.Logger, cfg *config.RedisConfig) (redis.UniversalClient, error) {
	if !hasRedisConfig(cfg) {
		return nil, errRedisNotConfigured
	}
	client, err := bootstrap.ConnectRedis(ctx, bootstrap.DatabaseConfig{RedisConfig: *cfg, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

func hasRedisConfig(cfg *config.RedisConfig) bool {
	if cfg == nil {
		return false
	}
	if cfg.UseCluster {
		return len(cfg.ClusterNodes) > 0 || cfg.URI != ""
	}
	if cfg.UseSentinel {
		return len(cfg.SentinelNodes) > 0
	}
	return cfg.URI != ""
}

// withServices connects the database and Redis, builds the services and hands them to fn.
func withServices(cmdCtx *commandContext, fn func(bootstrap.ServiceContainer) error) error {
	conns, err := connectInfra(&connectInfraOptions{
		Ctx:       cmdCtx.Ctx,
		Logger:    cmdCtx.Logger,
		Config:    &cmdCtx.Config,
		WantDB:    true,
		WantRedis: true,
	})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := conns.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("close connections failed", "error", closeErr)
		}
	}()

	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Context:     cmdCtx.Ctx,
		Config:      &cmdCtx.Config,
		DB:          conns.DB,
		RedisClient: conns.Redis,
		Logger:      cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}
	return fn(services)
}
