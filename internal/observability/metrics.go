package observability

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks operational metrics for the harvester.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestsRetried prometheus.Counter

	ProductsCollected prometheus.Counter
	ProductsDropped   prometheus.Counter
	SnapshotsSaved    prometheus.Counter
	SnapshotsSkipped  prometheus.Counter

	TasksProcessed *prometheus.CounterVec
	ProxyRotations prometheus.Counter
	ProxyFailures  prometheus.Counter

	CategoryDuration prometheus.Histogram

	registry *prometheus.Registry
	logger   *slog.Logger
}

// NewMetrics creates a Metrics instance with its own registry.
func NewMetrics(logger *slog.Logger) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shelfwatch_requests_total",
			Help: "HTTP requests made, by outcome class.",
		}, []string{"class"}),
		RequestsRetried: factory.NewCounter(prometheus.CounterOpts{
			Name: "shelfwatch_requests_retried_total",
			Help: "HTTP requests that were retried.",
		}),
		ProductsCollected: factory.NewCounter(prometheus.CounterOpts{
			Name: "shelfwatch_products_collected_total",
			Help: "Product pages successfully parsed.",
		}),
		ProductsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "shelfwatch_products_dropped_total",
			Help: "Products dropped for missing required fields.",
		}),
		SnapshotsSaved: factory.NewCounter(prometheus.CounterOpts{
			Name: "shelfwatch_snapshots_saved_total",
			Help: "Weekly snapshot rows inserted.",
		}),
		SnapshotsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "shelfwatch_snapshots_skipped_total",
			Help: "Snapshot rows skipped as duplicates of the week.",
		}),
		TasksProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shelfwatch_retry_tasks_total",
			Help: "Retry tasks moved to a terminal or failed state, by outcome.",
		}, []string{"outcome"}),
		ProxyRotations: factory.NewCounter(prometheus.CounterOpts{
			Name: "shelfwatch_proxy_rotations_total",
			Help: "Proxy rotations performed.",
		}),
		ProxyFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "shelfwatch_proxy_failures_total",
			Help: "Proxies marked as failed.",
		}),
		CategoryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "shelfwatch_category_duration_seconds",
			Help:    "Wall time to collect one category.",
			Buckets: prometheus.ExponentialBuckets(30, 2, 8),
		}),
		registry: reg,
		logger:   logger.With("component", "metrics"),
	}
}

// Handler returns the Prometheus scrape handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer starts the metrics HTTP server in the background.
func (m *Metrics) StartServer(port int, path string) error {
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	addr := fmt.Sprintf(":%d", port)
	m.logger.Info("metrics server starting", "addr", addr, "path", path)

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			m.logger.Error("metrics server error", "error", err)
		}
	}()

	return nil
}
