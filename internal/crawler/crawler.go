// Package crawler walks category listings, collects product detail pages,
// and appends the results to the weekly snapshot store. Collection is
// strictly sequential: one session, one request at a time, with randomized
// pacing between them.
package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/url"
	"time"

	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/observability"
	"github.com/shelfwatch/shelfwatch/internal/storage"
	"github.com/shelfwatch/shelfwatch/internal/store"
	"github.com/shelfwatch/shelfwatch/internal/types"
)

// Fetcher fetches one page. Satisfied by *session.Client.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) ([]byte, error)
}

// SnapshotWriter appends records to the weekly history. Satisfied by
// *store.History.
type SnapshotWriter interface {
	Append(ctx context.Context, site string, records []*types.ProductRecord, override *types.WeekRef) (*store.AppendResult, error)
}

// Enricher runs ingredient analysis. Satisfied by *api.IngredientClient.
type Enricher interface {
	Enabled() bool
	Analyze(ctx context.Context, ingredients string) (json.RawMessage, error)
}

// Exporter pushes batches to the catalog API. Satisfied by
// *api.ProductClient.
type Exporter interface {
	Enabled() bool
	SaveBatch(ctx context.Context, records []*types.ProductRecord) error
}

// Crawler drives category collection for one site.
type Crawler struct {
	cfg     *config.Config
	fetch   Fetcher
	history SnapshotWriter
	enrich  Enricher
	export  Exporter
	sink    storage.Sink
	metrics *observability.Metrics
	logger  *slog.Logger

	// WeekOverride pins appended snapshots to a specific ISO week instead
	// of the current one. Used by reconciliation runs near a week boundary.
	WeekOverride *types.WeekRef
}

// New creates a Crawler. enrich, export, sink, and metrics may be nil.
func New(cfg *config.Config, fetch Fetcher, history SnapshotWriter, enrich Enricher, export Exporter, sink storage.Sink, metrics *observability.Metrics, logger *slog.Logger) *Crawler {
	return &Crawler{
		cfg:     cfg,
		fetch:   fetch,
		history: history,
		enrich:  enrich,
		export:  export,
		sink:    sink,
		metrics: metrics,
		logger:  logger.With("component", "crawler"),
	}
}

// listingURL builds the category listing URL for one page under one sort.
func (c *Crawler) listingURL(categoryID string, page int, sort types.SortKey) string {
	q := url.Values{}
	q.Set("dispCatNo", categoryID)
	q.Set("pageIdx", fmt.Sprint(page))
	q.Set("rowsPerPage", fmt.Sprint(c.cfg.Crawler.RowsPerPage))
	if sort != types.SortPopularity {
		q.Set("prdSort", string(sort))
	}
	return c.cfg.Site.BaseURL + "/store/display/getCategoryList.do?" + q.Encode()
}

// detailURL builds the product detail URL.
func (c *Crawler) detailURL(productNo string) string {
	return c.cfg.Site.BaseURL + "/store/goods/getGoodsDetail.do?goodsNo=" + url.QueryEscape(productNo)
}

// CollectCategory harvests one category under both sort orders and appends
// the merged records. Returns types.ErrCategoryEmpty (wrapped) when the
// category currently lists nothing.
func (c *Crawler) CollectCategory(ctx context.Context, cat types.Category) (*types.CategoryResult, error) {
	start := time.Now()
	log := c.logger.With("category", cat.ID)
	result := &types.CategoryResult{CategoryID: cat.ID}

	popularity, total, err := c.collectRankings(ctx, cat.ID, types.SortPopularity)
	if err != nil {
		return result, err
	}
	sales, _, err := c.collectRankings(ctx, cat.ID, types.SortSales)
	if err != nil {
		return result, err
	}

	merged := mergeRankings(popularity, sales)
	result.TotalFound = total
	log.Info("rankings collected",
		"total", total, "popularity", len(popularity), "sales", len(sales), "merged", len(merged))

	batch := make([]*types.ProductRecord, 0, c.cfg.Crawler.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		res, err := c.history.Append(ctx, c.cfg.Site.Name, batch, c.WeekOverride)
		if err != nil {
			return err
		}
		result.Saved += res.Inserted
		if c.metrics != nil {
			c.metrics.SnapshotsSaved.Add(float64(res.Inserted))
			c.metrics.SnapshotsSkipped.Add(float64(res.Skipped))
		}
		if c.export != nil && c.export.Enabled() {
			if err := c.export.SaveBatch(ctx, batch); err != nil {
				log.Warn("catalog export failed", "error", err)
			}
		}
		batch = batch[:0]
		return nil
	}

	for _, entry := range merged {
		if err := c.pause(ctx, c.cfg.Crawler.ProductDelayMin, c.cfg.Crawler.ProductDelayMax); err != nil {
			return result, err
		}

		rec, err := c.CollectOne(ctx, entry.ProductNo, cat.ID, entry.Ranks)
		if errors.Is(err, types.ErrProductDeleted) {
			// Listed a moment ago, gone on the detail page. Not a failure:
			// the storefront pulled it mid-walk.
			result.Deleted++
			log.Info("product no longer listed", "product", entry.ProductNo)
			continue
		}
		if err != nil {
			result.Dropped++
			c.recordFailure(ctx, entry.ProductNo, cat.ID, "collect", err)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return result, err
			}
			log.Warn("product collection failed", "product", entry.ProductNo, "error", err)
			continue
		}
		result.Collected++
		if c.metrics != nil {
			c.metrics.ProductsCollected.Inc()
		}

		batch = append(batch, rec)
		if len(batch) >= c.cfg.Crawler.BatchSize {
			if err := flush(); err != nil {
				return result, err
			}
		}
	}
	if err := flush(); err != nil {
		return result, err
	}

	result.Success = true
	if c.metrics != nil {
		c.metrics.CategoryDuration.Observe(time.Since(start).Seconds())
	}
	log.Info("category collected",
		"collected", result.Collected, "saved", result.Saved,
		"dropped", result.Dropped, "deleted", result.Deleted,
		"duration", time.Since(start))
	return result, nil
}

// RunScheduled collects every enabled category in order and returns the run
// report. A failed category does not abort the run.
func (c *Crawler) RunScheduled(ctx context.Context, cats []types.Category, onDone func(types.CategoryResult)) (*types.RunReport, error) {
	report := &types.RunReport{
		Site:      c.cfg.Site.Name,
		Mode:      "collect",
		StartedAt: time.Now().UTC(),
	}
	y, w := report.StartedAt.ISOWeek()
	report.Week = types.WeekRef{Year: y, Week: w}
	if c.WeekOverride != nil {
		report.Week = *c.WeekOverride
	}

	for i, cat := range cats {
		if i > 0 {
			if err := c.pause(ctx, c.cfg.Crawler.CategoryDelayMin, c.cfg.Crawler.CategoryDelayMax); err != nil {
				return report, err
			}
		}

		result, err := c.CollectCategory(ctx, cat)
		if err != nil {
			result.Err = err
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return report, err
			}
			if errors.Is(err, types.ErrCategoryEmpty) {
				c.logger.Warn("category is empty", "category", cat.ID)
			} else {
				c.logger.Error("category collection failed", "category", cat.ID, "error", err)
			}
		}

		report.Categories = append(report.Categories, types.CategorySummary{
			CategoryID: cat.ID,
			TotalFound: result.TotalFound,
			Collected:  result.Collected,
			Saved:      result.Saved,
			Dropped:    result.Dropped,
			Deleted:    result.Deleted,
		})
		if onDone != nil {
			onDone(*result)
		}
	}

	report.FinishedAt = time.Now().UTC()
	if c.sink != nil {
		if err := c.sink.WriteReport(ctx, report); err != nil {
			c.logger.Warn("run report write failed", "error", err)
		}
	}
	return report, nil
}

// pause sleeps a uniformly random duration from [min, max].
func (c *Crawler) pause(ctx context.Context, min, max time.Duration) error {
	d := min
	if max > min {
		d = min + time.Duration(rand.Int63n(int64(max-min)))
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Crawler) recordFailure(ctx context.Context, productNo, categoryID, stage string, cause error) {
	if c.sink == nil {
		return
	}
	rec := &types.FailureRecord{
		Site:       c.cfg.Site.Name,
		ProductNo:  productNo,
		CategoryID: categoryID,
		Stage:      stage,
		Reason:     cause.Error(),
		OccurredAt: time.Now().UTC(),
	}
	if err := c.sink.WriteFailure(ctx, rec); err != nil {
		c.logger.Warn("failure record write failed", "error", err)
	}
}
