package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"ratewatch/internal/config"
)

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// Backend bundles the opened KV with its optional lock and cleanup.
type Backend struct {
	Name   string
	KV     KV
	Locker AdvisoryLocker
	close  func()
}

// Close releases backend resources.
func (b *Backend) Close() {
	if b != nil && b.close != nil {
		b.close()
	}
}

// Open builds the backend selected by storage.backend.
func Open(ctx context.Context, cfg *config.Config) (*Backend, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return &Backend{Name: config.BackendMemory, KV: NewMemoryKV()}, nil
	case config.BackendFile, "":
		kv, err := NewFileKV(cfg.Storage.FilePath)
		if err != nil {
			return nil, err
		}
		return &Backend{Name: config.BackendFile, KV: kv}, nil
	case config.BackendRedis:
		kv, err := NewRedisKV(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return &Backend{Name: config.BackendRedis, KV: kv, close: func() { kv.Close() }}, nil
	case config.BackendPostgres:
		if cfg.Database.Migrate {
			if err := Migrate(cfg.Database.DSN); err != nil {
				return nil, err
			}
		}
		pool, err := NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		kv := NewPostgresKV(pool)
		return &Backend{Name: config.BackendPostgres, KV: kv, Locker: kv, close: kv.Close}, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
