package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shelfwatch/shelfwatch/internal/api"
	"github.com/shelfwatch/shelfwatch/internal/config"
	"github.com/shelfwatch/shelfwatch/internal/crawler"
	"github.com/shelfwatch/shelfwatch/internal/observability"
	"github.com/shelfwatch/shelfwatch/internal/reconcile"
	"github.com/shelfwatch/shelfwatch/internal/session"
	"github.com/shelfwatch/shelfwatch/internal/storage"
	"github.com/shelfwatch/shelfwatch/internal/store"
	"github.com/shelfwatch/shelfwatch/internal/types"
)

var (
	cfgFile    string
	verbose    bool
	categories []string
	targetYear int
	targetWeek int
	noEnrich   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "shelfwatch",
		Short: "ShelfWatch — weekly storefront product harvester",
		Long: `ShelfWatch harvests product listings from an anti-bot-protected
storefront into a weekly snapshot time series, and reconciles the gaps a
harvest leaves behind.

Commands:
  collect    — walk the scheduled categories and append this week's snapshots
  reconcile  — detect products missing from this week and re-collect them
  config     — show the effective configuration
  version    — print version information`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(collectCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(categoryCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())

	ctx, cancel := interruptContext()
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// collectCmd creates the "collect" subcommand.
func collectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Harvest scheduled categories into this week's snapshots",
		RunE:  runCollect,
	}

	cmd.Flags().StringSliceVar(&categories, "category", nil, "collect only these category ids (default: all scheduled)")
	cmd.Flags().IntVar(&targetYear, "year", 0, "pin snapshots to this ISO year (requires --week)")
	cmd.Flags().IntVar(&targetWeek, "week", 0, "pin snapshots to this ISO week (requires --year)")
	cmd.Flags().BoolVar(&noEnrich, "no-enrich", false, "skip ingredient analysis")

	return cmd
}

func runCollect(cmd *cobra.Command, args []string) error {
	app, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer app.close()
	logger := app.logger

	if noEnrich {
		app.cfg.Crawler.EnrichIngredients = false
	}

	override, err := weekOverride()
	if err != nil {
		return err
	}
	app.crawler.WeekOverride = override

	cats, err := app.selectCategories(cmd.Context())
	if err != nil {
		return err
	}
	if len(cats) == 0 {
		return fmt.Errorf("no categories scheduled — register some first")
	}

	if app.cfg.Crawler.EnrichIngredients && app.ingredients.Enabled() {
		if err := app.ingredients.Health(cmd.Context()); err != nil {
			return fmt.Errorf("ingredient service unavailable: %w", err)
		}
	}

	if err := app.session.Init(cmd.Context()); err != nil {
		return fmt.Errorf("session init: %w", err)
	}

	start := time.Now()
	report, err := app.crawler.RunScheduled(cmd.Context(), cats, func(res types.CategoryResult) {
		if res.Success {
			_ = app.store.Categories.MarkCollected(cmd.Context(), app.cfg.Site.Name, res.CategoryID, res.TotalFound)
		}
	})
	if err != nil {
		return fmt.Errorf("collection run: %w", err)
	}

	var collected, saved, dropped, deleted int
	for _, c := range report.Categories {
		collected += c.Collected
		saved += c.Saved
		dropped += c.Dropped
		deleted += c.Deleted
	}
	logger.Info("collection complete",
		"categories", len(report.Categories),
		"collected", collected, "saved", saved,
		"dropped", dropped, "deleted", deleted,
		"elapsed", time.Since(start).Round(time.Second))
	return nil
}

// reconcileCmd creates the "reconcile" subcommand.
func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Re-collect products missing from this week's snapshots",
		RunE:  runReconcile,
	}
}

func runReconcile(cmd *cobra.Command, args []string) error {
	app, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer app.close()
	logger := app.logger

	if err := app.session.Init(cmd.Context()); err != nil {
		return fmt.Errorf("session init: %w", err)
	}

	now := time.Now()
	week := reconcile.CurrentWeek(now)
	app.crawler.WeekOverride = &week

	engine := reconcile.New(
		&app.cfg.Reconcile, app.cfg.Site.Name,
		app.crawler, app.store.Tasks, app.store.History, app.store.Products,
		app.metrics, logger,
	)

	stats, err := engine.Run(cmd.Context(), now)
	if err != nil {
		return fmt.Errorf("reconciliation run: %w", err)
	}

	logger.Info("reconciliation complete",
		"year", stats.Week.Year, "week", stats.Week.Week,
		"gaps", stats.Gaps, "created", stats.Created,
		"processed", stats.Processed, "succeeded", stats.Succeeded,
		"failed", stats.Failed, "exhausted", stats.Exhausted,
		"deleted", stats.Deleted, "brand_reused", stats.BrandReused)

	if breakdown, err := app.store.Tasks.Stats(cmd.Context(), app.cfg.Site.Name, stats.Week); err == nil {
		logger.Info("task states for the week",
			"pending", breakdown[types.TaskPending],
			"processing", breakdown[types.TaskProcessing],
			"success", breakdown[types.TaskSuccess],
			"failed", breakdown[types.TaskFailed],
			"exhausted", breakdown[types.TaskMaxRetries],
			"deleted", breakdown[types.TaskProductDeleted])
	}
	return nil
}

// app bundles what both runs need.
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	store       *store.Store
	sink        storage.Sink
	session     *session.Client
	crawler     *crawler.Crawler
	ingredients *api.IngredientClient
	metrics     *observability.Metrics
}

// setup loads config, builds the logger from it, and wires the database,
// sink, session, and crawler.
func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := setupLogger(&cfg.Logging)

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(logger)
		if err := metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			logger.Warn("failed to start metrics server", "error", err)
		}
	}

	st, err := store.Open(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := st.EnsureSchema(ctx); err != nil {
		st.Close()
		return nil, err
	}

	sink, err := storage.NewSink(&cfg.Storage, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("create sink: %w", err)
	}

	sess, err := session.NewClient(cfg, metrics, logger)
	if err != nil {
		st.Close()
		sink.Close()
		return nil, fmt.Errorf("create session: %w", err)
	}

	ingredients := api.NewIngredientClient(&cfg.API, logger)
	products := api.NewProductClient(&cfg.API, logger)

	cr := crawler.New(cfg, sess, st.History, ingredients, products, sink, metrics, logger)

	return &app{
		cfg:         cfg,
		logger:      logger,
		store:       st,
		sink:        sink,
		session:     sess,
		crawler:     cr,
		ingredients: ingredients,
		metrics:     metrics,
	}, nil
}

func (a *app) close() {
	if err := a.sink.Close(); err != nil {
		slog.Warn("sink close failed", "error", err)
	}
	a.store.Close()
}

// selectCategories resolves the category schedule, honoring --category.
func (a *app) selectCategories(ctx context.Context) ([]types.Category, error) {
	cats, err := a.store.Categories.ListScheduled(ctx, a.cfg.Site.Name)
	if err != nil {
		return nil, err
	}
	if len(categories) == 0 {
		return cats, nil
	}

	want := make(map[string]bool, len(categories))
	for _, id := range categories {
		want[id] = true
	}
	var selected []types.Category
	for _, cat := range cats {
		if want[cat.ID] {
			selected = append(selected, cat)
		}
	}
	return selected, nil
}

// weekOverride builds the snapshot week pin from --year/--week.
func weekOverride() (*types.WeekRef, error) {
	if targetYear == 0 && targetWeek == 0 {
		return nil, nil
	}
	if targetYear == 0 || targetWeek == 0 {
		return nil, fmt.Errorf("--year and --week must be given together")
	}
	if targetWeek < 1 || targetWeek > 53 {
		return nil, fmt.Errorf("--week must be 1-53, got %d", targetWeek)
	}
	return &types.WeekRef{Year: targetYear, Week: targetWeek}, nil
}

// categoryCmd creates the "category" subcommand group for managing the
// collection schedule.
func categoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "category",
		Short: "Manage the category schedule",
	}

	var name string
	add := &cobra.Command{
		Use:   "add [category-id]",
		Short: "Register a category for collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := setupLogger(&cfg.Logging)
			st, err := store.Open(cmd.Context(), &cfg.Database, logger)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()
			if err := st.EnsureSchema(cmd.Context()); err != nil {
				return err
			}
			if err := st.Categories.Register(cmd.Context(), cfg.Site.Name, types.Category{ID: args[0], Name: name}); err != nil {
				return err
			}
			fmt.Printf("category %s registered\n", args[0])
			return nil
		},
	}
	add.Flags().StringVar(&name, "name", "", "human-readable category name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List scheduled categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := setupLogger(&cfg.Logging)
			st, err := store.Open(cmd.Context(), &cfg.Database, logger)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()
			cats, err := st.Categories.ListScheduled(cmd.Context(), cfg.Site.Name)
			if err != nil {
				return err
			}
			for _, cat := range cats {
				fmt.Printf("%s\t%s\n", cat.ID, cat.Name)
			}
			return nil
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ShelfWatch %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Site:\n")
			fmt.Printf("  Name:              %s\n", cfg.Site.Name)
			fmt.Printf("  Base URL:          %s\n", cfg.Site.BaseURL)
			fmt.Printf("\nSession:\n")
			fmt.Printf("  Fingerprint:       %s\n", cfg.Session.Fingerprint)
			fmt.Printf("  Request Timeout:   %s\n", cfg.Session.RequestTimeout)
			fmt.Printf("  Max Retries:       %d\n", cfg.Session.MaxRetries)
			fmt.Printf("  Token Cookie:      %s (required: %v)\n", cfg.Session.TokenCookie, cfg.Session.TokenRequired)
			fmt.Printf("  Token:             configured=%v\n", cfg.Session.Token != "")
			fmt.Printf("  Pre-Delay:         %s - %s\n", cfg.Session.PreDelayMin, cfg.Session.PreDelayMax)
			fmt.Printf("\nProxy:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.Proxy.Enabled)
			fmt.Printf("  Provider:          %v\n", cfg.Proxy.ProviderURL != "")
			fmt.Printf("  Static URLs:       %d\n", len(cfg.Proxy.URLs))
			fmt.Printf("\nCrawler:\n")
			fmt.Printf("  Rows Per Page:     %d\n", cfg.Crawler.RowsPerPage)
			fmt.Printf("  Batch Size:        %d\n", cfg.Crawler.BatchSize)
			fmt.Printf("  Product Delay:     %s - %s\n", cfg.Crawler.ProductDelayMin, cfg.Crawler.ProductDelayMax)
			fmt.Printf("  Category Delay:    %s - %s\n", cfg.Crawler.CategoryDelayMin, cfg.Crawler.CategoryDelayMax)
			fmt.Printf("  Enrich:            %v\n", cfg.Crawler.EnrichIngredients)
			fmt.Printf("\nReconcile:\n")
			fmt.Printf("  Max Attempts:      %d\n", cfg.Reconcile.MaxAttempts)
			fmt.Printf("  Top Sales Rank:    %d\n", cfg.Reconcile.TopSalesRank)
			fmt.Printf("  Task Delay:        %s - %s\n", cfg.Reconcile.TaskDelayMin, cfg.Reconcile.TaskDelayMax)
			fmt.Printf("  Category Delay:    %s - %s\n", cfg.Reconcile.CategoryDelayMin, cfg.Reconcile.CategoryDelayMax)
			fmt.Printf("  Stale After:       %s\n", cfg.Reconcile.StaleAfter)
			fmt.Printf("\nStorage:\n")
			fmt.Printf("  Sink Type:         %s\n", cfg.Storage.Type)
			fmt.Printf("  Output Path:       %s\n", cfg.Storage.OutputPath)
			fmt.Printf("\nLogging:\n")
			fmt.Printf("  Level:             %s\n", cfg.Logging.Level)
			fmt.Printf("  Format:            %s (output: %s)\n", cfg.Logging.Format, cfg.Logging.Output)
			fmt.Printf("\nMetrics:\n")
			fmt.Printf("  Enabled:           %v\n", cfg.Metrics.Enabled)
			fmt.Printf("  Port:              %d\n", cfg.Metrics.Port)
			return nil
		},
	}
}

// setupLogger creates the root logger from the logging configuration.
// --verbose forces debug regardless of the configured level.
func setupLogger(cfg *config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	var out io.Writer
	switch cfg.Output {
	case "", "stderr":
		out = os.Stderr
	case "stdout":
		out = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot open log file %s: %v, falling back to stderr\n", cfg.Output, err)
			out = os.Stderr
		} else {
			out = f
		}
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// interruptContext cancels on SIGINT/SIGTERM.
func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
