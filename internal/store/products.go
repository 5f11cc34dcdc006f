package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Products is the registry of every product ever sighted, including its
// removed-from-storefront flag.
type Products struct {
	pool *pgxpool.Pool
}

func (p *Products) upsert(ctx context.Context, q querier, site, productNo, categoryID string) error {
	_, err := q.Exec(ctx,
		`INSERT INTO products (site, product_no, category_id)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (site, product_no) DO UPDATE
		 SET category_id = EXCLUDED.category_id,
		     is_deleted  = FALSE,
		     last_seen   = now()`,
		site, productNo, categoryID)
	if err != nil {
		return fmt.Errorf("upsert product %s: %w", productNo, err)
	}
	return nil
}

// MarkDeleted flags a product as removed from the storefront so gap
// detection stops chasing it.
func (p *Products) MarkDeleted(ctx context.Context, site, productNo string) error {
	_, err := p.pool.Exec(ctx,
		`UPDATE products SET is_deleted = TRUE, last_seen = now()
		 WHERE site = $1 AND product_no = $2`,
		site, productNo)
	if err != nil {
		return fmt.Errorf("mark product %s deleted: %w", productNo, err)
	}
	return nil
}
