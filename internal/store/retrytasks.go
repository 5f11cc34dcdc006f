package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shelfwatch/shelfwatch/internal/types"
)

// RetryTasks tracks products missing from the current week's snapshot.
type RetryTasks struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Gap is one missing (product, category) pair detected for a week. BrandID
// carries the brand already resolved for the previous week's snapshot so a
// recovery append can skip the name lookup.
type Gap struct {
	ProductNo  string
	CategoryID string
	BrandID    *int64
}

// CreateMissing records one retry task per gap for the given week. Re-runs
// are no-ops: an existing task for the same key is left untouched, whatever
// its state.
func (t *RetryTasks) CreateMissing(ctx context.Context, site string, week types.WeekRef, gaps []Gap) (int, error) {
	created := 0
	for _, g := range gaps {
		tag, err := t.pool.Exec(ctx,
			`INSERT INTO retry_tasks (site, product_no, category_id, year, week)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (site, product_no, category_id, year, week) DO NOTHING`,
			site, g.ProductNo, g.CategoryID, week.Year, week.Week)
		if err != nil {
			return created, fmt.Errorf("create retry task %s: %w", g.ProductNo, err)
		}
		created += int(tag.RowsAffected())
	}
	if created > 0 {
		t.logger.Info("retry tasks created",
			"site", site, "year", week.Year, "week", week.Week, "created", created)
	}
	return created, nil
}

// Pending returns the tasks still worth attempting this week: pending or
// failed rows under the attempt cap, plus processing rows stale enough to
// have been abandoned by an interrupted run.
func (t *RetryTasks) Pending(ctx context.Context, site string, week types.WeekRef, maxAttempts int, staleAfter time.Duration) ([]types.RetryTask, error) {
	rows, err := t.pool.Query(ctx,
		`SELECT id, site, product_no, category_id, year, week,
		        state, attempts, last_error, created_at, updated_at
		 FROM retry_tasks
		 WHERE site = $1 AND year = $2 AND week = $3
		   AND attempts < $4
		   AND (state IN ('pending', 'failed')
		        OR (state = 'processing' AND updated_at < now() - $5::interval))
		 ORDER BY category_id, product_no`,
		site, week.Year, week.Week, maxAttempts, staleAfter.String())
	if err != nil {
		return nil, fmt.Errorf("query pending retry tasks: %w", err)
	}
	defer rows.Close()

	var tasks []types.RetryTask
	for rows.Next() {
		var task types.RetryTask
		if err := rows.Scan(
			&task.ID, &task.Site, &task.ProductNo, &task.CategoryID,
			&task.Year, &task.Week, &task.State, &task.Attempts,
			&task.LastError, &task.CreatedAt, &task.UpdatedAt,
		); err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// MarkProcessing claims a task and counts the attempt.
func (t *RetryTasks) MarkProcessing(ctx context.Context, id int64) error {
	_, err := t.pool.Exec(ctx,
		`UPDATE retry_tasks
		 SET state = 'processing', attempts = attempts + 1, updated_at = now()
		 WHERE id = $1`,
		id)
	if err != nil {
		return fmt.Errorf("mark task %d processing: %w", id, err)
	}
	return nil
}

// MarkOutcome records the result of one attempt.
func (t *RetryTasks) MarkOutcome(ctx context.Context, id int64, state types.TaskState, lastError string) error {
	_, err := t.pool.Exec(ctx,
		`UPDATE retry_tasks
		 SET state = $2, last_error = $3, updated_at = now()
		 WHERE id = $1`,
		id, string(state), lastError)
	if err != nil {
		return fmt.Errorf("mark task %d %s: %w", id, state, err)
	}
	return nil
}

// Stats returns the task count per state for a week.
func (t *RetryTasks) Stats(ctx context.Context, site string, week types.WeekRef) (map[types.TaskState]int, error) {
	rows, err := t.pool.Query(ctx,
		`SELECT state, count(*) FROM retry_tasks
		 WHERE site = $1 AND year = $2 AND week = $3
		 GROUP BY state`,
		site, week.Year, week.Week)
	if err != nil {
		return nil, fmt.Errorf("query task stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[types.TaskState]int)
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		stats[types.TaskState(state)] = count
	}
	return stats, rows.Err()
}
