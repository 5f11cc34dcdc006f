package store

import (
	"context"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Brands resolves brand names to ids. Resolutions are cached because the same
// few hundred brands recur across tens of thousands of snapshots per run.
type Brands struct {
	pool   *pgxpool.Pool
	cache  *lru.Cache[string, int64]
	logger *slog.Logger
}

// NewBrands creates the brand repository with an LRU resolution cache.
func NewBrands(pool *pgxpool.Pool, cacheSize int, logger *slog.Logger) (*Brands, error) {
	cache, err := lru.New[string, int64](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create brand cache: %w", err)
	}
	return &Brands{pool: pool, cache: cache, logger: logger}, nil
}

// GetOrCreate returns the id for a brand name, inserting it if unseen.
// q may be the pool or an open transaction. A fresh resolution is NOT
// cached here: when q is a transaction that later rolls back, the id would
// be a phantom. Callers cache committed resolutions with Remember.
func (b *Brands) GetOrCreate(ctx context.Context, q querier, name string) (int64, error) {
	if id, ok := b.cache.Get(name); ok {
		return id, nil
	}

	// Upsert-returning resolves the race between two first sightings in a
	// single round trip.
	var id int64
	err := q.QueryRow(ctx,
		`INSERT INTO brands (name) VALUES ($1)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`,
		name,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("resolve brand %q: %w", name, err)
	}
	return id, nil
}

// Remember caches brand resolutions whose transaction has committed.
func (b *Brands) Remember(resolved map[string]int64) {
	for name, id := range resolved {
		b.cache.Add(name, id)
	}
}
