// Package reconcile detects products that slipped through the weekly
// harvest and re-collects them, one bounded attempt at a time.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/observability"
	"github.com/shelfwatch/shelfwatch/internal/store"
	"github.com/shelfwatch/shelfwatch/internal/types"
)

// Collector re-fetches single products and resolves listing ranks for a
// target set. Satisfied by *crawler.Crawler.
type Collector interface {
	CollectOne(ctx context.Context, productNo, categoryID string, ranks types.RankPair) (*types.ProductRecord, error)
	RankingsFor(ctx context.Context, categoryID string, targetIDs []string) (map[string]types.RankPair, error)
}

// TaskStore persists retry tasks and gap queries. Satisfied by
// *store.RetryTasks.
type TaskStore interface {
	Missing(ctx context.Context, site string, prev, cur types.WeekRef, topSalesRank int) ([]store.Gap, error)
	CreateMissing(ctx context.Context, site string, week types.WeekRef, gaps []store.Gap) (int, error)
	Pending(ctx context.Context, site string, week types.WeekRef, maxAttempts int, staleAfter time.Duration) ([]types.RetryTask, error)
	MarkProcessing(ctx context.Context, id int64) error
	MarkOutcome(ctx context.Context, id int64, state types.TaskState, lastError string) error
}

// SnapshotWriter appends recovered snapshots. Satisfied by *store.History.
type SnapshotWriter interface {
	Append(ctx context.Context, site string, records []*types.ProductRecord, override *types.WeekRef) (*store.AppendResult, error)
}

// ProductMarker flags removed products. Satisfied by *store.Products.
type ProductMarker interface {
	MarkDeleted(ctx context.Context, site, productNo string) error
}

// Stats aggregates one reconciliation run.
type Stats struct {
	Week        types.WeekRef
	Gaps        int
	Created     int
	Processed   int
	Succeeded   int
	Failed      int
	Exhausted   int
	Deleted     int
	BrandReused int
}

// Engine runs gap detection and retry processing for one site.
type Engine struct {
	cfg      *config.ReconcileConfig
	site     string
	collect  Collector
	tasks    TaskStore
	history  SnapshotWriter
	products ProductMarker
	metrics  *observability.Metrics
	logger   *slog.Logger

	// sleep is replaceable so tests can skip real pacing.
	sleep func(context.Context, time.Duration) error
}

// New creates a reconciliation Engine. metrics may be nil.
func New(cfg *config.ReconcileConfig, site string, collect Collector, tasks TaskStore, history SnapshotWriter, products ProductMarker, metrics *observability.Metrics, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		site:     site,
		collect:  collect,
		tasks:    tasks,
		history:  history,
		products: products,
		metrics:  metrics,
		logger:   logger.With("component", "reconcile"),
		sleep:    sleepFor,
	}
}

// Run detects this week's gaps against the previous week, creates retry
// tasks for them, and processes every retryable task. Running it twice for
// the same week creates no duplicate tasks and re-attempts only tasks that
// are still open.
func (e *Engine) Run(ctx context.Context, now time.Time) (*Stats, error) {
	cur := CurrentWeek(now)
	prev := PreviousWeek(now)
	stats := &Stats{Week: cur}

	gaps, err := e.tasks.Missing(ctx, e.site, prev, cur, e.cfg.TopSalesRank)
	if err != nil {
		return stats, err
	}
	stats.Gaps = len(gaps)

	// Brand ids resolved for last week's snapshots carry over so recovery
	// appends skip the name lookup.
	brandByProduct := make(map[string]*int64, len(gaps))
	for _, g := range gaps {
		if g.BrandID != nil {
			brandByProduct[g.ProductNo] = g.BrandID
		}
	}

	created, err := e.tasks.CreateMissing(ctx, e.site, cur, gaps)
	if err != nil {
		return stats, err
	}
	stats.Created = created

	pending, err := e.tasks.Pending(ctx, e.site, cur, e.cfg.MaxAttempts, e.cfg.StaleAfter)
	if err != nil {
		return stats, err
	}

	e.logger.Info("reconciliation starting",
		"year", cur.Year, "week", cur.Week,
		"gaps", stats.Gaps, "created", created, "pending", len(pending))

	for i, group := range groupByCategory(pending) {
		if i > 0 {
			if err := e.pause(ctx, e.cfg.CategoryDelayMin, e.cfg.CategoryDelayMax); err != nil {
				return stats, err
			}
		}
		if err := e.processCategory(ctx, cur, group, brandByProduct, stats); err != nil {
			return stats, err
		}
	}

	e.logger.Info("reconciliation finished",
		"processed", stats.Processed, "succeeded", stats.Succeeded,
		"failed", stats.Failed, "exhausted", stats.Exhausted,
		"deleted", stats.Deleted, "brand_reused", stats.BrandReused)
	return stats, nil
}

// categoryGroup is the tasks of one category, in stable order.
type categoryGroup struct {
	CategoryID string
	Tasks      []types.RetryTask
}

// groupByCategory splits tasks into per-category groups, preserving the
// store's ordering.
func groupByCategory(tasks []types.RetryTask) []categoryGroup {
	var groups []categoryGroup
	index := make(map[string]int)
	for _, task := range tasks {
		i, ok := index[task.CategoryID]
		if !ok {
			i = len(groups)
			index[task.CategoryID] = i
			groups = append(groups, categoryGroup{CategoryID: task.CategoryID})
		}
		groups[i].Tasks = append(groups[i].Tasks, task)
	}
	return groups
}

// processCategory handles one category's tasks. Listing ranks for the whole
// group are resolved in one targeted walk; an empty category resolves every
// task in the group at once: the products are gone with it.
func (e *Engine) processCategory(ctx context.Context, week types.WeekRef, group categoryGroup, brands map[string]*int64, stats *Stats) error {
	targetIDs := make([]string, 0, len(group.Tasks))
	for _, task := range group.Tasks {
		targetIDs = append(targetIDs, task.ProductNo)
	}

	ranks, err := e.collect.RankingsFor(ctx, group.CategoryID, targetIDs)
	switch {
	case errors.Is(err, types.ErrCategoryEmpty):
		e.logger.Info("category is empty, resolving its tasks as deleted",
			"category", group.CategoryID, "tasks", len(group.Tasks))
		for _, task := range group.Tasks {
			if err := e.resolveDeleted(ctx, task, "category empty"); err != nil {
				return err
			}
			stats.Deleted++
		}
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case err != nil:
		e.logger.Warn("rank resolution failed, keeping tasks open",
			"category", group.CategoryID, "error", err)
		return nil
	}

	for _, task := range group.Tasks {
		if err := e.pause(ctx, e.cfg.TaskDelayMin, e.cfg.TaskDelayMax); err != nil {
			return err
		}
		if err := e.processTask(ctx, week, task, ranks[task.ProductNo], brands[task.ProductNo], stats); err != nil {
			return err
		}
	}
	return nil
}

// processTask runs one attempt of one task and records the outcome.
func (e *Engine) processTask(ctx context.Context, week types.WeekRef, task types.RetryTask, ranks types.RankPair, brandID *int64, stats *Stats) error {
	if err := e.tasks.MarkProcessing(ctx, task.ID); err != nil {
		return err
	}
	stats.Processed++
	attempt := task.Attempts + 1

	rec, err := e.collect.CollectOne(ctx, task.ProductNo, task.CategoryID, ranks)
	switch {
	case err == nil:
		if rec.BrandID == nil && brandID != nil {
			rec.BrandID = brandID
			stats.BrandReused++
		}
		if _, err := e.history.Append(ctx, e.site, []*types.ProductRecord{rec}, &week); err != nil {
			return e.failTask(ctx, task, attempt, err, stats)
		}
		stats.Succeeded++
		e.countOutcome("success")
		return e.tasks.MarkOutcome(ctx, task.ID, types.TaskSuccess, "")

	case errors.Is(err, types.ErrProductDeleted):
		if err := e.resolveDeleted(ctx, task, err.Error()); err != nil {
			return err
		}
		stats.Deleted++
		return nil

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Leave the task in processing; the stale sweep reclaims it.
		return err

	default:
		return e.failTask(ctx, task, attempt, err, stats)
	}
}

// failTask marks a failed attempt, escalating to max_retries_reached when
// the attempt budget is spent.
func (e *Engine) failTask(ctx context.Context, task types.RetryTask, attempt int, cause error, stats *Stats) error {
	state := types.TaskFailed
	if attempt >= e.cfg.MaxAttempts {
		state = types.TaskMaxRetries
		stats.Exhausted++
		e.countOutcome("max_retries_reached")
		e.logger.Warn("task exhausted its attempts",
			"product", task.ProductNo, "category", task.CategoryID,
			"attempts", attempt, "error", cause)
	} else {
		stats.Failed++
		e.countOutcome("failed")
	}
	return e.tasks.MarkOutcome(ctx, task.ID, state, cause.Error())
}

// resolveDeleted resolves a task as product_deleted and flags the product.
func (e *Engine) resolveDeleted(ctx context.Context, task types.RetryTask, reason string) error {
	if err := e.tasks.MarkOutcome(ctx, task.ID, types.TaskProductDeleted, reason); err != nil {
		return err
	}
	e.countOutcome("product_deleted")
	if e.products == nil {
		return nil
	}
	if err := e.products.MarkDeleted(ctx, e.site, task.ProductNo); err != nil {
		return fmt.Errorf("flag deleted product %s: %w", task.ProductNo, err)
	}
	return nil
}

func (e *Engine) countOutcome(outcome string) {
	if e.metrics != nil {
		e.metrics.TasksProcessed.WithLabelValues(outcome).Inc()
	}
}

// pause sleeps a uniformly random duration from [min, max]. Tasks within a
// category use the short window, consecutive categories the longer one.
func (e *Engine) pause(ctx context.Context, min, max time.Duration) error {
	d := min
	if max > min {
		d += time.Duration(rand.Int63n(int64(max - min)))
	}
	if d <= 0 {
		return ctx.Err()
	}
	return e.sleep(ctx, d)
}

func sleepFor(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
