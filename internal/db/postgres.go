package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PoolConfig holds the pgxpool limits. Zero fields keep the pgx defaults.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ApplicationName string
}

// DefaultPoolConfig suits one API or worker process on a small instance.
var DefaultPoolConfig = PoolConfig{
	MaxConns:        20,
	MinConns:        2,
	MaxConnLifetime: 30 * time.Minute,
	MaxConnIdleTime: 5 * time.Minute,
	ApplicationName: "ledger",
}

func (pc PoolConfig) apply(cfg *pgxpool.Config) error {
	if pc.MaxConns < 0 || pc.MinConns < 0 {
		return fmt.Errorf("pool sizes must not be negative")
	}
	if pc.MaxConns > 0 && pc.MinConns > pc.MaxConns {
		return fmt.Errorf("min conns %d exceeds max conns %d", pc.MinConns, pc.MaxConns)
	}
	if pc.MaxConns > 0 {
		cfg.MaxConns = pc.MaxConns
	}
	if pc.MinConns > 0 {
		cfg.MinConns = pc.MinConns
	}
	if pc.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = pc.MaxConnLifetime
	}
	if pc.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = pc.MaxConnIdleTime
	}
	if pc.ApplicationName != "" {
		cfg.ConnConfig.RuntimeParams["application_name"] = pc.ApplicationName
	}
	return nil
}

// NewPostgresPool opens a pool sized by pc and checks it with a ping.
func NewPostgresPool(ctx context.Context, dsn string, pc PoolConfig, log *zap.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if err := pc.apply(cfg); err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info("postgres pool ready",
		zap.String("host", cfg.ConnConfig.Host),
		zap.String("database", cfg.ConnConfig.Database),
		zap.Int32("max_conns", cfg.MaxConns),
		zap.Int32("min_conns", cfg.MinConns),
		zap.Duration("max_conn_lifetime", cfg.MaxConnLifetime),
	)
	return pool, nil
}
