package store

import (
	"context"
	"fmt"

	"github.com/shelfwatch/shelfwatch/internal/types"
)

// Missing returns the (product, category) pairs recorded in the previous
// week within the top sales ranks that have no current-week snapshot in the
// same category and are not flagged as removed from the storefront. A
// product listed in several categories is tracked per category.
func (t *RetryTasks) Missing(ctx context.Context, site string, prev, cur types.WeekRef, topSalesRank int) ([]Gap, error) {
	rows, err := t.pool.Query(ctx,
		`SELECT ps.product_no, ps.category_id, ps.brand_id
		 FROM product_snapshots ps
		 LEFT JOIN products p
		        ON p.site = ps.site AND p.product_no = ps.product_no
		 WHERE ps.site = $1
		   AND ps.year = $2 AND ps.week = $3
		   AND ps.sales_rank IS NOT NULL AND ps.sales_rank <= $4
		   AND COALESCE(p.is_deleted, FALSE) = FALSE
		   AND NOT EXISTS (
		       SELECT 1 FROM product_snapshots cur
		       WHERE cur.site = ps.site
		         AND cur.product_no = ps.product_no
		         AND cur.category_id = ps.category_id
		         AND cur.year = $5 AND cur.week = $6
		   )
		 ORDER BY ps.category_id, ps.sales_rank`,
		site, prev.Year, prev.Week, topSalesRank, cur.Year, cur.Week)
	if err != nil {
		return nil, fmt.Errorf("query missing products: %w", err)
	}
	defer rows.Close()

	var gaps []Gap
	for rows.Next() {
		var g Gap
		if err := rows.Scan(&g.ProductNo, &g.CategoryID, &g.BrandID); err != nil {
			return nil, err
		}
		gaps = append(gaps, g)
	}
	return gaps, rows.Err()
}
