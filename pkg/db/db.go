// Package db opens the Postgres pool and the Redis client behind the
// profile stores.
package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"dealergate/pkg/config"
)

const applicationName = "dealergate"

// PoolConfig parses DATABASE_URL and applies the pool limits from cfg.
func PoolConfig(cfg config.Config) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.DBMaxConns > 0 {
		pc.MaxConns = cfg.DBMaxConns
	}
	if _, ok := pc.ConnConfig.RuntimeParams["application_name"]; !ok {
		pc.ConnConfig.RuntimeParams["application_name"] = applicationName
	}
	return pc, nil
}

// Connect opens the pool and pings it within cfg.DBConnectTimeout.
func Connect(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	pc, err := PoolConfig(cfg)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("pg connect: %w", err)
	}
	pctx, cancel := withTimeout(ctx, cfg.DBConnectTimeout)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg ping %s: %w", redactDSN(cfg.DatabaseURL), err)
	}
	return pool, nil
}

// MustConnect opens the Postgres pool. A blank DATABASE_URL returns nil so
// callers can fall back to in-memory stores.
func MustConnect(cfg config.Config, log *zap.SugaredLogger) *pgxpool.Pool {
	if cfg.DatabaseURL == "" {
		return nil
	}
	pool, err := Connect(context.Background(), cfg)
	if err != nil {
		log.Fatalw("postgres unavailable", "err", err)
	}
	log.Infow("postgres ready", "host", redactDSN(cfg.DatabaseURL), "max_conns", pool.Config().MaxConns)
	return pool
}

// MustRedis connects the profile cache. A blank REDIS_URL returns nil and
// the cache is skipped.
func MustRedis(cfg config.Config, log *zap.SugaredLogger) *redis.Client {
	if cfg.RedisURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalw("redis parse", "err", err)
	}
	cli := redis.NewClient(opts)
	ctx, cancel := withTimeout(context.Background(), cfg.DBConnectTimeout)
	defer cancel()
	if err := cli.Ping(ctx).Err(); err != nil {
		log.Fatalw("redis ping", "addr", opts.Addr, "err", err)
	}
	log.Infow("redis ready", "addr", opts.Addr)
	return cli
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func redactDSN(dsn string) string {
	if i := strings.LastIndex(dsn, "@"); i > 0 {
		return "***@" + dsn[i+1:]
	}
	return dsn
}
