package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/store"
	"github.com/shelfwatch/shelfwatch/internal/types"
)

// fakeCollector scripts CollectOne outcomes and rank lookups per product.
type fakeCollector struct {
	outcomes  map[string]error
	ranks     map[string]types.RankPair
	emptyCats map[string]bool
	rankErr   error
	collected []string
	seenRanks map[string]types.RankPair
}

func (f *fakeCollector) CollectOne(_ context.Context, productNo, categoryID string, ranks types.RankPair) (*types.ProductRecord, error) {
	f.collected = append(f.collected, productNo)
	if f.seenRanks == nil {
		f.seenRanks = make(map[string]types.RankPair)
	}
	f.seenRanks[productNo] = ranks
	if err, ok := f.outcomes[productNo]; ok && err != nil {
		return nil, err
	}
	price := 1000
	return &types.ProductRecord{
		ProductNo: productNo, CategoryID: categoryID,
		Brand: "b", Name: "n", Price: types.Price{Current: &price},
		PopularityRank: ranks.Popularity, SalesRank: ranks.Sales,
	}, nil
}

func (f *fakeCollector) RankingsFor(_ context.Context, categoryID string, targetIDs []string) (map[string]types.RankPair, error) {
	if f.rankErr != nil {
		return nil, f.rankErr
	}
	if f.emptyCats[categoryID] {
		return nil, fmt.Errorf("category %s: %w", categoryID, types.ErrCategoryEmpty)
	}
	out := make(map[string]types.RankPair, len(targetIDs))
	for _, id := range targetIDs {
		out[id] = f.ranks[id]
	}
	return out, nil
}

// fakeTaskStore keeps tasks in memory with the store's state semantics.
type fakeTaskStore struct {
	gaps    []store.Gap
	tasks   []types.RetryTask
	nextID  int64
	history map[int64][]types.TaskState
}

func newFakeTaskStore(gaps []store.Gap) *fakeTaskStore {
	return &fakeTaskStore{gaps: gaps, history: make(map[int64][]types.TaskState)}
}

func (f *fakeTaskStore) Missing(context.Context, string, types.WeekRef, types.WeekRef, int) ([]store.Gap, error) {
	return f.gaps, nil
}

func (f *fakeTaskStore) CreateMissing(_ context.Context, _ string, week types.WeekRef, gaps []store.Gap) (int, error) {
	created := 0
	for _, g := range gaps {
		if f.find(g.ProductNo, g.CategoryID) != nil {
			continue
		}
		f.nextID++
		f.tasks = append(f.tasks, types.RetryTask{
			ID: f.nextID, ProductNo: g.ProductNo, CategoryID: g.CategoryID,
			Year: week.Year, Week: week.Week, State: types.TaskPending,
		})
		created++
	}
	return created, nil
}

func (f *fakeTaskStore) Pending(_ context.Context, _ string, _ types.WeekRef, maxAttempts int, _ time.Duration) ([]types.RetryTask, error) {
	var out []types.RetryTask
	for _, task := range f.tasks {
		if task.Attempts >= maxAttempts {
			continue
		}
		if task.State == types.TaskPending || task.State == types.TaskFailed {
			out = append(out, task)
		}
	}
	return out, nil
}

func (f *fakeTaskStore) MarkProcessing(_ context.Context, id int64) error {
	task := f.findByID(id)
	if task == nil {
		return fmt.Errorf("task %d not found", id)
	}
	task.State = types.TaskProcessing
	task.Attempts++
	f.history[id] = append(f.history[id], types.TaskProcessing)
	return nil
}

func (f *fakeTaskStore) MarkOutcome(_ context.Context, id int64, state types.TaskState, lastError string) error {
	task := f.findByID(id)
	if task == nil {
		return fmt.Errorf("task %d not found", id)
	}
	task.State = state
	task.LastError = lastError
	f.history[id] = append(f.history[id], state)
	return nil
}

// find matches by the task key: a product gets one task per category.
func (f *fakeTaskStore) find(productNo, categoryID string) *types.RetryTask {
	for i := range f.tasks {
		if f.tasks[i].ProductNo == productNo && f.tasks[i].CategoryID == categoryID {
			return &f.tasks[i]
		}
	}
	return nil
}

func (f *fakeTaskStore) findByID(id int64) *types.RetryTask {
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			return &f.tasks[i]
		}
	}
	return nil
}

// fakeHistory records appended snapshots.
type fakeHistory struct {
	appended []*types.ProductRecord
	weeks    []types.WeekRef
	err      error
}

func (f *fakeHistory) Append(_ context.Context, _ string, records []*types.ProductRecord, override *types.WeekRef) (*store.AppendResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.appended = append(f.appended, records...)
	if override != nil {
		f.weeks = append(f.weeks, *override)
	}
	return &store.AppendResult{Inserted: len(records)}, nil
}

// fakeMarker records deleted flags.
type fakeMarker struct{ deleted []string }

func (f *fakeMarker) MarkDeleted(_ context.Context, _ string, productNo string) error {
	f.deleted = append(f.deleted, productNo)
	return nil
}

func testEngine(collect Collector, tasks TaskStore, history SnapshotWriter, marker ProductMarker) *Engine {
	cfg := &config.ReconcileConfig{MaxAttempts: 3, TopSalesRank: 100}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, "testsite", collect, tasks, history, marker, nil, logger)
}

func TestRunRecoversMissingProducts(t *testing.T) {
	brand := int64(42)
	gaps := []store.Gap{
		{ProductNo: "P1", CategoryID: "C1", BrandID: &brand},
		{ProductNo: "P2", CategoryID: "C1"},
	}
	pop, sales := 4, 9
	tasks := newFakeTaskStore(gaps)
	collect := &fakeCollector{
		ranks: map[string]types.RankPair{"P1": {Popularity: &pop, Sales: &sales}},
	}
	history := &fakeHistory{}

	stats, err := testEngine(collect, tasks, history, &fakeMarker{}).Run(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Created != 2 || stats.Succeeded != 2 {
		t.Fatalf("stats = %+v, want 2 created and 2 succeeded", stats)
	}
	if len(history.appended) != 2 {
		t.Fatalf("appended %d records, want 2", len(history.appended))
	}
	for _, task := range tasks.tasks {
		if task.State != types.TaskSuccess {
			t.Fatalf("task %s state = %s, want success", task.ProductNo, task.State)
		}
	}
	// Recovered snapshots must be pinned to the reconciliation week.
	for _, week := range history.weeks {
		if week != stats.Week {
			t.Fatalf("append pinned to %+v, want %+v", week, stats.Week)
		}
	}
	// Resolved ranks flow into the re-collection.
	got := collect.seenRanks["P1"]
	if got.Popularity == nil || *got.Popularity != 4 || got.Sales == nil || *got.Sales != 9 {
		t.Fatalf("P1 ranks = %+v, want {4 9}", got)
	}
	// The previous week's brand id is reused without a lookup.
	if stats.BrandReused != 1 {
		t.Fatalf("brand reused = %d, want 1", stats.BrandReused)
	}
	for _, rec := range history.appended {
		if rec.ProductNo == "P1" && (rec.BrandID == nil || *rec.BrandID != 42) {
			t.Fatalf("P1 brand id = %v, want 42", rec.BrandID)
		}
	}
}

func TestRunIsIdempotent(t *testing.T) {
	gaps := []store.Gap{{ProductNo: "P1", CategoryID: "C1"}}
	tasks := newFakeTaskStore(gaps)
	collect := &fakeCollector{}
	history := &fakeHistory{}
	engine := testEngine(collect, tasks, history, &fakeMarker{})

	if _, err := engine.Run(context.Background(), time.Now()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	stats, err := engine.Run(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if stats.Created != 0 {
		t.Fatalf("second run created %d tasks, want 0", stats.Created)
	}
	if stats.Processed != 0 {
		t.Fatalf("second run processed %d resolved tasks, want 0", stats.Processed)
	}
}

func TestRunMarksDeletedProduct(t *testing.T) {
	gaps := []store.Gap{{ProductNo: "P1", CategoryID: "C1"}}
	tasks := newFakeTaskStore(gaps)
	collect := &fakeCollector{
		outcomes: map[string]error{"P1": fmt.Errorf("product P1: %w", types.ErrProductDeleted)},
	}
	marker := &fakeMarker{}

	stats, err := testEngine(collect, tasks, &fakeHistory{}, marker).Run(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Deleted != 1 {
		t.Fatalf("deleted = %d, want 1", stats.Deleted)
	}
	if tasks.tasks[0].State != types.TaskProductDeleted {
		t.Fatalf("task state = %s, want product_deleted", tasks.tasks[0].State)
	}
	if len(marker.deleted) != 1 || marker.deleted[0] != "P1" {
		t.Fatalf("marker.deleted = %v, want [P1]", marker.deleted)
	}
}

func TestRunExhaustsAttempts(t *testing.T) {
	gaps := []store.Gap{{ProductNo: "P1", CategoryID: "C1"}}
	tasks := newFakeTaskStore(gaps)
	collect := &fakeCollector{outcomes: map[string]error{"P1": errors.New("fetch failed")}}
	engine := testEngine(collect, tasks, &fakeHistory{}, &fakeMarker{})

	var stats *Stats
	var err error
	for i := 0; i < 5; i++ {
		stats, err = engine.Run(context.Background(), time.Now())
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	task := tasks.tasks[0]
	if task.State != types.TaskMaxRetries {
		t.Fatalf("task state = %s, want max_retries_reached", task.State)
	}
	if task.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", task.Attempts)
	}
	if stats.Processed != 0 {
		t.Fatalf("exhausted task still processed on later run")
	}
	if got := len(collect.collected); got != 3 {
		t.Fatalf("collector called %d times, want 3", got)
	}
}

func TestRunEmptyCategoryResolvesWholeGroup(t *testing.T) {
	gaps := []store.Gap{
		{ProductNo: "P1", CategoryID: "C1"},
		{ProductNo: "P2", CategoryID: "C1"},
		{ProductNo: "P3", CategoryID: "C2"},
	}
	tasks := newFakeTaskStore(gaps)
	collect := &fakeCollector{emptyCats: map[string]bool{"C1": true}}
	marker := &fakeMarker{}

	stats, err := testEngine(collect, tasks, &fakeHistory{}, marker).Run(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Deleted != 2 {
		t.Fatalf("deleted = %d, want 2", stats.Deleted)
	}
	if stats.Succeeded != 1 {
		t.Fatalf("succeeded = %d, want 1", stats.Succeeded)
	}
	for _, p := range collect.collected {
		if p == "P1" || p == "P2" {
			t.Fatalf("empty category product %s should not be fetched", p)
		}
	}
	if tasks.find("P3", "C2").State != types.TaskSuccess {
		t.Fatalf("P3 state = %s, want success", tasks.find("P3", "C2").State)
	}
}

func TestRunPausesBetweenCategories(t *testing.T) {
	gaps := []store.Gap{
		{ProductNo: "P1", CategoryID: "C1"},
		{ProductNo: "P2", CategoryID: "C2"},
		{ProductNo: "P3", CategoryID: "C2"},
	}
	tasks := newFakeTaskStore(gaps)
	engine := testEngine(&fakeCollector{}, tasks, &fakeHistory{}, &fakeMarker{})
	engine.cfg.CategoryDelayMin = 40 * time.Millisecond
	engine.cfg.CategoryDelayMax = 40 * time.Millisecond

	var slept []time.Duration
	engine.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	if _, err := engine.Run(context.Background(), time.Now()); err != nil {
		t.Fatalf("run: %v", err)
	}
	// Two categories, one boundary: the category pause fires exactly once,
	// and the zero task delay never reaches the sleeper.
	if len(slept) != 1 {
		t.Fatalf("sleeps = %v, want exactly one category pause", slept)
	}
	if slept[0] != 40*time.Millisecond {
		t.Fatalf("category pause = %v, want 40ms", slept[0])
	}
}

func TestRunTracksProductPerCategory(t *testing.T) {
	// P1 is listed in two categories and missing from both, so both gaps
	// get their own task and their own recovery append.
	gaps := []store.Gap{
		{ProductNo: "P1", CategoryID: "C1"},
		{ProductNo: "P1", CategoryID: "C2"},
	}
	tasks := newFakeTaskStore(gaps)
	collect := &fakeCollector{}
	history := &fakeHistory{}

	stats, err := testEngine(collect, tasks, history, &fakeMarker{}).Run(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Created != 2 {
		t.Fatalf("created = %d, want one task per category", stats.Created)
	}
	if stats.Succeeded != 2 {
		t.Fatalf("succeeded = %d, want 2", stats.Succeeded)
	}
	for _, cat := range []string{"C1", "C2"} {
		task := tasks.find("P1", cat)
		if task == nil {
			t.Fatalf("no task for P1 in %s", cat)
		}
		if task.State != types.TaskSuccess {
			t.Fatalf("P1/%s state = %s, want success", cat, task.State)
		}
	}
	categories := make(map[string]bool)
	for _, rec := range history.appended {
		categories[rec.CategoryID] = true
	}
	if !categories["C1"] || !categories["C2"] {
		t.Fatalf("appended categories = %v, want C1 and C2", categories)
	}
}

func TestRunKeepsTasksOpenWhenRankScanFails(t *testing.T) {
	gaps := []store.Gap{{ProductNo: "P1", CategoryID: "C1"}}
	tasks := newFakeTaskStore(gaps)
	collect := &fakeCollector{rankErr: errors.New("listing unreachable")}

	stats, err := testEngine(collect, tasks, &fakeHistory{}, &fakeMarker{}).Run(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Processed != 0 {
		t.Fatalf("processed = %d, want 0 when the rank scan fails", stats.Processed)
	}
	if tasks.tasks[0].State != types.TaskPending {
		t.Fatalf("task state = %s, want pending", tasks.tasks[0].State)
	}
	if tasks.tasks[0].Attempts != 0 {
		t.Fatalf("attempts = %d, want 0", tasks.tasks[0].Attempts)
	}
}
