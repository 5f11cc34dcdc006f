// Package store persists weekly product snapshots, brands, categories, and
// retry tasks in PostgreSQL.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shelfwatch/shelfwatch/internal/config"
)

// Store bundles the repositories sharing one connection pool.
type Store struct {
	pool   *pgxpool.Pool
	cfg    *config.DatabaseConfig
	logger *slog.Logger

	History    *History
	Brands     *Brands
	Products   *Products
	Tasks      *RetryTasks
	Categories *Categories
}

// Open connects to PostgreSQL and wires up the repositories.
func Open(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log := logger.With("component", "store")

	brands, err := NewBrands(pool, cfg.BrandCacheSize, log)
	if err != nil {
		pool.Close()
		return nil, err
	}

	s := &Store{
		pool:       pool,
		cfg:        cfg,
		logger:     log,
		Brands:     brands,
		Products:   &Products{pool: pool},
		Tasks:      &RetryTasks{pool: pool, logger: log},
		Categories: &Categories{pool: pool},
	}
	s.History = &History{pool: pool, brands: brands, products: s.Products, cfg: cfg, logger: log}
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() { s.pool.Close() }

// EnsureSchema creates the tables and indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// isTransient reports whether a database error is worth retrying: connection
// loss, serialization failures, and admin-initiated shutdowns. Constraint
// violations and syntax errors are not.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"): // connection exception class
			return true
		case pgErr.Code == "40001": // serialization_failure
			return true
		case pgErr.Code == "40P01": // deadlock_detected
			return true
		case pgErr.Code == "57P01": // admin_shutdown
			return true
		}
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// withRetry runs fn, retrying transient database failures with a fixed delay.
func withRetry(ctx context.Context, logger *slog.Logger, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !isTransient(err) {
			return err
		}
		logger.Warn("transient database error, retrying", "attempt", i+1, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
