package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// DB owns the Postgres pool shared by every postgres repository.
type DB struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// PoolSettings are the pool limits New applies on top of the URL.
// Values in the URL itself (pool_max_conns=...) are overridden.
type PoolSettings struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// DefaultPoolSettings suit a chat backend where every socket event and API
// request holds a connection for a single short query:
//
//   - 25 connections stay well below the usual max_connections of 100.
//   - 5 warm connections avoid dial latency after quiet periods.
//   - Hourly recycling picks up DNS changes and failovers.
//   - Idle connections are released after 20 minutes.
//   - Idle connections are health-checked every minute.
var DefaultPoolSettings = PoolSettings{
	MaxConns:          25,
	MinConns:          5,
	MaxConnLifetime:   time.Hour,
	MaxConnIdleTime:   20 * time.Minute,
	HealthCheckPeriod: time.Minute,
}

// New opens a pool from a DATABASE_URL style connection string and pings
// it once so misconfiguration fails at startup rather than on first send.
func New(ctx context.Context, databaseURL string, logger *zap.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	s := DefaultPoolSettings
	poolConfig.MaxConns = s.MaxConns
	poolConfig.MinConns = s.MinConns
	poolConfig.MaxConnLifetime = s.MaxConnLifetime
	poolConfig.MaxConnIdleTime = s.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = s.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping DB: %w", err)
	}

	// Never log the DSN itself: it carries the password.
	logger.Info("DB connection established",
		zap.String("host", poolConfig.ConnConfig.Host),
		zap.String("database", poolConfig.ConnConfig.Database),
		zap.Int32("max_conns", poolConfig.MaxConns),
	)
	return &DB{
		pool:   pool,
		logger: logger,
	}, nil
}

// Migrate brings the schema up to date using the embedded migrations.
func (db *DB) Migrate(ctx context.Context) error {
	sqlDB := stdlib.OpenDBFromPool(db.pool)
	defer sqlDB.Close()

	if err := NewMigrator(sqlDB, migrationsFS).Up(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	db.logger.Info("database migrations applied")
	return nil
}

func (db *DB) Close() {
	db.logger.Info("closing database connection pool")
	db.pool.Close()
}

func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Ping satisfies repository.Pinger for the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}
