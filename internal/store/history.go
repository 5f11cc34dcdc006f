package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/types"
)

// History appends weekly product snapshots. An append is idempotent per
// (site, product, category, ISO year, ISO week): rows already present for
// the week are filtered out before the insert transaction, and a unique
// constraint backs that up inside it.
type History struct {
	pool     *pgxpool.Pool
	brands   *Brands
	products *Products
	cfg      *config.DatabaseConfig
	logger   *slog.Logger
}

// AppendResult reports what one append did.
type AppendResult struct {
	Week     types.WeekRef
	Inserted int
	Skipped  int
}

// effectiveWeek resolves the snapshot week: the override when given,
// otherwise the ISO week of now.
func effectiveWeek(now time.Time, override *types.WeekRef) types.WeekRef {
	if override != nil {
		return *override
	}
	y, w := now.ISOWeek()
	return types.WeekRef{Year: y, Week: w}
}

// filterNew drops records whose snapshot key already exists this week.
// existing holds (product_no, category_id) pairs.
func filterNew(records []*types.ProductRecord, existing map[[2]string]struct{}) []*types.ProductRecord {
	fresh := make([]*types.ProductRecord, 0, len(records))
	for _, r := range records {
		if _, dup := existing[[2]string{r.ProductNo, r.CategoryID}]; !dup {
			fresh = append(fresh, r)
		}
	}
	return fresh
}

// Append writes records as snapshots of the given week (nil override means
// the current ISO week). All surviving rows go in one transaction; every
// record having been seen already this week is a success, not an error.
func (h *History) Append(ctx context.Context, site string, records []*types.ProductRecord, override *types.WeekRef) (*AppendResult, error) {
	week := effectiveWeek(time.Now(), override)
	result := &AppendResult{Week: week}
	if len(records) == 0 {
		return result, nil
	}

	err := withRetry(ctx, h.logger, h.cfg.RetryAttempts, h.cfg.RetryDelay, func() error {
		existing, err := h.existingKeys(ctx, site, week, records)
		if err != nil {
			return err
		}

		fresh := filterNew(records, existing)
		result.Skipped = len(records) - len(fresh)
		result.Inserted = 0
		if len(fresh) == 0 {
			h.logger.Debug("append skipped, week already recorded",
				"site", site, "year", week.Year, "week", week.Week, "records", len(records))
			return nil
		}

		tx, err := h.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin append transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		// Resolutions made inside the transaction stay local until it
		// commits; a rollback must not leave phantom ids in the shared cache.
		resolved := make(map[string]int64)

		for _, rec := range fresh {
			brandID := rec.BrandID
			if brandID == nil && rec.Brand != "" {
				id, ok := resolved[rec.Brand]
				if !ok {
					id, err = h.brands.GetOrCreate(ctx, tx, rec.Brand)
					if err != nil {
						return err
					}
					resolved[rec.Brand] = id
				}
				brandID = &id
			}

			tag, err := tx.Exec(ctx,
				`INSERT INTO product_snapshots (
					site, product_no, category_id, year, week, month,
					brand_id, item_no, name, url, image_url,
					price_original, price_current,
					rating_percent, rating_text, review_count,
					popularity_rank, sales_rank,
					analysis, analysis_error, collected_at
				) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
				ON CONFLICT (site, product_no, category_id, year, week) DO NOTHING`,
				site, rec.ProductNo, rec.CategoryID, week.Year, week.Week, int(rec.CollectedAt.Month()),
				brandID, rec.ItemNo, rec.Name, rec.URL, rec.ImageURL,
				rec.Price.Original, rec.Price.Current,
				rec.Rating.Percent, rec.Rating.Text, rec.ReviewCount,
				rec.PopularityRank, rec.SalesRank,
				rec.Analysis, rec.AnalysisError, rec.CollectedAt,
			)
			if err != nil {
				return fmt.Errorf("insert snapshot %s/%s: %w", rec.ProductNo, rec.CategoryID, err)
			}
			result.Inserted += int(tag.RowsAffected())

			if err := h.products.upsert(ctx, tx, site, rec.ProductNo, rec.CategoryID); err != nil {
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit append transaction: %w", err)
		}
		h.brands.Remember(resolved)
		return nil
	})
	if err != nil {
		return nil, &types.StorageError{Backend: "postgres", Err: err}
	}

	h.logger.Info("snapshots appended",
		"site", site, "year", week.Year, "week", week.Week,
		"inserted", result.Inserted, "skipped", result.Skipped)
	return result, nil
}

// existingKeys returns the (product_no, category_id) pairs already recorded
// for the week among the given records.
func (h *History) existingKeys(ctx context.Context, site string, week types.WeekRef, records []*types.ProductRecord) (map[[2]string]struct{}, error) {
	productNos := make([]string, 0, len(records))
	for _, r := range records {
		productNos = append(productNos, r.ProductNo)
	}

	rows, err := h.pool.Query(ctx,
		`SELECT product_no, category_id FROM product_snapshots
		 WHERE site = $1 AND year = $2 AND week = $3 AND product_no = ANY($4)`,
		site, week.Year, week.Week, productNos)
	if err != nil {
		return nil, fmt.Errorf("query existing snapshots: %w", err)
	}
	defer rows.Close()

	existing := make(map[[2]string]struct{})
	for rows.Next() {
		var productNo, categoryID string
		if err := rows.Scan(&productNo, &categoryID); err != nil {
			return nil, err
		}
		existing[[2]string{productNo, categoryID}] = struct{}{}
	}
	return existing, rows.Err()
}
