package bootstrap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/target/refresh-orchestrator/config"
)

type redisMode string

const (
	redisModeDirect   redisMode = "direct"
	redisModeSentinel redisMode = "sentinel"
	redisModeCluster  redisMode = "cluster"
)

// redisClientOptions pairs go-redis universal options with the topology to build.
// Credentials stay out of Addrs so the options can be logged.
type redisClientOptions struct {
	redis.UniversalOptions
	mode redisMode
}

//nolint:ireturn // the concrete client depends on the configured topology.
func (o *redisClientOptions) newClient() redis.UniversalClient {
	switch o.mode {
	case redisModeCluster:
		return redis.NewClusterClient(o.Cluster())
	case redisModeSentinel:
		return redis.NewFailoverClient(o.Failover())
	default:
		return redis.NewClient(o.Simple())
	}
}

func redisOptions(cfg config.RedisConfig) (*redisClientOptions, error) {
	opts := &redisClientOptions{UniversalOptions: redis.UniversalOptions{Password: cfg.Password}}

	switch {
	case cfg.UseCluster:
		opts.mode = redisModeCluster
		opts.Addrs = trimNonEmpty(cfg.ClusterNodes)
		if len(opts.Addrs) == 0 && strings.TrimSpace(cfg.URI) != "" {
			// A single configuration endpoint, as managed cluster offerings expose.
			if err := opts.applyURI(cfg.URI); err != nil {
				return nil, fmt.Errorf("parse redis cluster uri: %w", err)
			}
		}
		if len(opts.Addrs) == 0 {
			return nil, errors.New("redis cluster configuration requires at least one address")
		}
	case cfg.UseSentinel:
		opts.mode = redisModeSentinel
		opts.Addrs = trimNonEmpty(cfg.SentinelNodes)
		if len(opts.Addrs) == 0 {
			return nil, errors.New("redis sentinel configuration requires at least one sentinel node")
		}
		opts.MasterName = cfg.SentinelMasterName
		opts.SentinelPassword = cfg.SentinelPassword
	default:
		opts.mode = redisModeDirect
		if strings.TrimSpace(cfg.URI) == "" {
			return nil, errors.New("redis direct configuration requires a URI")
		}
		if err := opts.applyURI(cfg.URI); err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
	}
	return opts, nil
}

// applyURI accepts either host:port or a redis:// / rediss:// URL. URL credentials override the
// configured password.
func (o *redisClientOptions) applyURI(raw string) error {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "redis://") && !strings.HasPrefix(raw, "rediss://") {
		o.Addrs = []string{raw}
		return nil
	}

	parsed, err := redis.ParseURL(raw)
	if err != nil {
		return err
	}
	o.Addrs = []string{parsed.Addr}
	o.Username = parsed.Username
	if parsed.Password != "" {
		o.Password = parsed.Password
	}
	o.DB = parsed.DB
	o.TLSConfig = parsed.TLSConfig
	return nil
}

func trimNonEmpty(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
