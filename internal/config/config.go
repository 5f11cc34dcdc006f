package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for ShelfWatch.
type Config struct {
	Site      SiteConfig      `mapstructure:"site"      yaml:"site"`
	Session   SessionConfig   `mapstructure:"session"   yaml:"session"`
	Proxy     ProxyConfig     `mapstructure:"proxy"     yaml:"proxy"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"   yaml:"crawler"`
	Reconcile ReconcileConfig `mapstructure:"reconcile" yaml:"reconcile"`
	Database  DatabaseConfig  `mapstructure:"database"  yaml:"database"`
	API       APIConfig       `mapstructure:"api"       yaml:"api"`
	Storage   StorageConfig   `mapstructure:"storage"   yaml:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"   yaml:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"   yaml:"metrics"`
}

// SiteConfig identifies the storefront being harvested.
type SiteConfig struct {
	Name        string `mapstructure:"name"         yaml:"name"`
	BaseURL     string `mapstructure:"base_url"     yaml:"base_url"`
	LandingPath string `mapstructure:"landing_path" yaml:"landing_path"`
}

// SessionConfig controls the fingerprinted HTTP session.
type SessionConfig struct {
	Fingerprint     string        `mapstructure:"fingerprint"       yaml:"fingerprint"`
	Token           string        `mapstructure:"token"             yaml:"token"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"   yaml:"request_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"       yaml:"max_retries"`
	RetryBaseDelay  time.Duration `mapstructure:"retry_base_delay"  yaml:"retry_base_delay"`
	TokenCookie     string        `mapstructure:"token_cookie"      yaml:"token_cookie"`
	TokenRequired   bool          `mapstructure:"token_required"    yaml:"token_required"`
	PreDelayMin     time.Duration `mapstructure:"pre_delay_min"     yaml:"pre_delay_min"`
	PreDelayMax     time.Duration `mapstructure:"pre_delay_max"     yaml:"pre_delay_max"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	FollowRedirects bool          `mapstructure:"follow_redirects"  yaml:"follow_redirects"`
}

// ProxyConfig controls proxy acquisition and rotation.
type ProxyConfig struct {
	Enabled      bool          `mapstructure:"enabled"       yaml:"enabled"`
	ProviderURL  string        `mapstructure:"provider_url"  yaml:"provider_url"`
	APIKey       string        `mapstructure:"api_key"       yaml:"api_key"`
	URLs         []string      `mapstructure:"urls"          yaml:"urls"`
	CheckTimeout time.Duration `mapstructure:"check_timeout" yaml:"check_timeout"`
	MaxAttempts  int           `mapstructure:"max_attempts"  yaml:"max_attempts"`
}

// CrawlerConfig controls category collection.
type CrawlerConfig struct {
	RowsPerPage       int           `mapstructure:"rows_per_page"        yaml:"rows_per_page"`
	BatchSize         int           `mapstructure:"batch_size"           yaml:"batch_size"`
	ProductDelayMin   time.Duration `mapstructure:"product_delay_min"    yaml:"product_delay_min"`
	ProductDelayMax   time.Duration `mapstructure:"product_delay_max"    yaml:"product_delay_max"`
	CategoryDelayMin  time.Duration `mapstructure:"category_delay_min"   yaml:"category_delay_min"`
	CategoryDelayMax  time.Duration `mapstructure:"category_delay_max"   yaml:"category_delay_max"`
	EnrichIngredients bool          `mapstructure:"enrich_ingredients"   yaml:"enrich_ingredients"`
}

// ReconcileConfig controls gap detection and retry processing.
type ReconcileConfig struct {
	MaxAttempts      int           `mapstructure:"max_attempts"        yaml:"max_attempts"`
	TopSalesRank     int           `mapstructure:"top_sales_rank"      yaml:"top_sales_rank"`
	TaskDelayMin     time.Duration `mapstructure:"task_delay_min"      yaml:"task_delay_min"`
	TaskDelayMax     time.Duration `mapstructure:"task_delay_max"      yaml:"task_delay_max"`
	CategoryDelayMin time.Duration `mapstructure:"category_delay_min"  yaml:"category_delay_min"`
	CategoryDelayMax time.Duration `mapstructure:"category_delay_max"  yaml:"category_delay_max"`
	StaleAfter       time.Duration `mapstructure:"stale_after"         yaml:"stale_after"`
}

// DatabaseConfig controls the PostgreSQL connection.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"               yaml:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"         yaml:"max_conns"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"   yaml:"connect_timeout"`
	RetryAttempts   int           `mapstructure:"retry_attempts"    yaml:"retry_attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"       yaml:"retry_delay"`
	BrandCacheSize  int           `mapstructure:"brand_cache_size"  yaml:"brand_cache_size"`
}

// APIConfig controls the internal service endpoints.
type APIConfig struct {
	IngredientURL string        `mapstructure:"ingredient_url" yaml:"ingredient_url"`
	ProductURL    string        `mapstructure:"product_url"    yaml:"product_url"`
	Timeout       time.Duration `mapstructure:"timeout"        yaml:"timeout"`
}

// StorageConfig controls the failure-log and report sink.
type StorageConfig struct {
	Type       string `mapstructure:"type"        yaml:"type"`
	OutputPath string `mapstructure:"output_path" yaml:"output_path"`
	MongoURI   string `mapstructure:"mongo_uri"   yaml:"mongo_uri"`
	Database   string `mapstructure:"database"    yaml:"database"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			Name:        "oliveyoung",
			BaseURL:     "https://www.oliveyoung.co.kr",
			LandingPath: "/store/main/main.do",
		},
		Session: SessionConfig{
			Fingerprint:     "chrome",
			RequestTimeout:  30 * time.Second,
			MaxRetries:      3,
			RetryBaseDelay:  2 * time.Second,
			TokenCookie:     "aws-waf-token",
			TokenRequired:   true,
			PreDelayMin:     2 * time.Second,
			PreDelayMax:     4 * time.Second,
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			FollowRedirects: true,
		},
		Proxy: ProxyConfig{
			Enabled:      false,
			CheckTimeout: 10 * time.Second,
			MaxAttempts:  5,
		},
		Crawler: CrawlerConfig{
			RowsPerPage:       48,
			BatchSize:         10,
			ProductDelayMin:   3 * time.Second,
			ProductDelayMax:   5 * time.Second,
			CategoryDelayMin:  3 * time.Second,
			CategoryDelayMax:  6 * time.Second,
			EnrichIngredients: true,
		},
		Reconcile: ReconcileConfig{
			MaxAttempts:      3,
			TopSalesRank:     100,
			TaskDelayMin:     3 * time.Second,
			TaskDelayMax:     5 * time.Second,
			CategoryDelayMin: 3 * time.Second,
			CategoryDelayMax: 6 * time.Second,
			StaleAfter:       2 * time.Hour,
		},
		Database: DatabaseConfig{
			MaxConns:       4,
			ConnectTimeout: 10 * time.Second,
			RetryAttempts:  3,
			RetryDelay:     2 * time.Second,
			BrandCacheSize: 1024,
		},
		API: APIConfig{
			Timeout: 60 * time.Second,
		},
		Storage: StorageConfig{
			Type:       "file",
			OutputPath: "./output",
			Database:   "shelfwatch",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}
