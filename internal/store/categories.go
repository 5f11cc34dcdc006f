package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shelfwatch/shelfwatch/internal/types"
)

// Categories is the schedule of categories to harvest.
type Categories struct {
	pool *pgxpool.Pool
}

// ListScheduled returns the enabled categories for a site in stable order.
func (c *Categories) ListScheduled(ctx context.Context, site string) ([]types.Category, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT category_id, name FROM categories
		 WHERE site = $1 AND enabled
		 ORDER BY category_id`,
		site)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var cats []types.Category
	for rows.Next() {
		var cat types.Category
		if err := rows.Scan(&cat.ID, &cat.Name); err != nil {
			return nil, err
		}
		cats = append(cats, cat)
	}
	return cats, rows.Err()
}

// Register upserts a category into the schedule.
func (c *Categories) Register(ctx context.Context, site string, cat types.Category) error {
	_, err := c.pool.Exec(ctx,
		`INSERT INTO categories (site, category_id, name)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (site, category_id) DO UPDATE SET name = EXCLUDED.name`,
		site, cat.ID, cat.Name)
	if err != nil {
		return fmt.Errorf("register category %s: %w", cat.ID, err)
	}
	return nil
}

// MarkCollected stamps a category as harvested now and records how many
// products its listing reported.
func (c *Categories) MarkCollected(ctx context.Context, site, categoryID string, productCount int) error {
	_, err := c.pool.Exec(ctx,
		`UPDATE categories SET last_collected_at = now(), product_count = $3
		 WHERE site = $1 AND category_id = $2`,
		site, categoryID, productCount)
	if err != nil {
		return fmt.Errorf("mark category %s collected: %w", categoryID, err)
	}
	return nil
}
