package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file, environment, and CLI flags.
// Priority (highest to lowest): CLI flags > env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	// Set defaults from struct
	setDefaults(v, cfg)

	// Environment variable support
	v.SetEnvPrefix("SHELFWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Search default locations
		v.SetConfigName("shelfwatch")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".shelfwatch"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay if not explicitly specified
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("site.name", cfg.Site.Name)
	v.SetDefault("site.base_url", cfg.Site.BaseURL)
	v.SetDefault("site.landing_path", cfg.Site.LandingPath)

	v.SetDefault("session.fingerprint", cfg.Session.Fingerprint)
	v.SetDefault("session.token", cfg.Session.Token)
	v.SetDefault("session.request_timeout", cfg.Session.RequestTimeout)
	v.SetDefault("session.max_retries", cfg.Session.MaxRetries)
	v.SetDefault("session.retry_base_delay", cfg.Session.RetryBaseDelay)
	v.SetDefault("session.token_cookie", cfg.Session.TokenCookie)
	v.SetDefault("session.token_required", cfg.Session.TokenRequired)
	v.SetDefault("session.pre_delay_min", cfg.Session.PreDelayMin)
	v.SetDefault("session.pre_delay_max", cfg.Session.PreDelayMax)
	v.SetDefault("session.max_body_size", cfg.Session.MaxBodySize)
	v.SetDefault("session.follow_redirects", cfg.Session.FollowRedirects)

	v.SetDefault("proxy.enabled", cfg.Proxy.Enabled)
	v.SetDefault("proxy.check_timeout", cfg.Proxy.CheckTimeout)
	v.SetDefault("proxy.max_attempts", cfg.Proxy.MaxAttempts)

	v.SetDefault("crawler.rows_per_page", cfg.Crawler.RowsPerPage)
	v.SetDefault("crawler.batch_size", cfg.Crawler.BatchSize)
	v.SetDefault("crawler.product_delay_min", cfg.Crawler.ProductDelayMin)
	v.SetDefault("crawler.product_delay_max", cfg.Crawler.ProductDelayMax)
	v.SetDefault("crawler.category_delay_min", cfg.Crawler.CategoryDelayMin)
	v.SetDefault("crawler.category_delay_max", cfg.Crawler.CategoryDelayMax)
	v.SetDefault("crawler.enrich_ingredients", cfg.Crawler.EnrichIngredients)

	v.SetDefault("reconcile.max_attempts", cfg.Reconcile.MaxAttempts)
	v.SetDefault("reconcile.top_sales_rank", cfg.Reconcile.TopSalesRank)
	v.SetDefault("reconcile.task_delay_min", cfg.Reconcile.TaskDelayMin)
	v.SetDefault("reconcile.task_delay_max", cfg.Reconcile.TaskDelayMax)
	v.SetDefault("reconcile.category_delay_min", cfg.Reconcile.CategoryDelayMin)
	v.SetDefault("reconcile.category_delay_max", cfg.Reconcile.CategoryDelayMax)
	v.SetDefault("reconcile.stale_after", cfg.Reconcile.StaleAfter)

	v.SetDefault("database.max_conns", cfg.Database.MaxConns)
	v.SetDefault("database.connect_timeout", cfg.Database.ConnectTimeout)
	v.SetDefault("database.retry_attempts", cfg.Database.RetryAttempts)
	v.SetDefault("database.retry_delay", cfg.Database.RetryDelay)
	v.SetDefault("database.brand_cache_size", cfg.Database.BrandCacheSize)

	v.SetDefault("api.timeout", cfg.API.Timeout)

	v.SetDefault("storage.type", cfg.Storage.Type)
	v.SetDefault("storage.output_path", cfg.Storage.OutputPath)
	v.SetDefault("storage.database", cfg.Storage.Database)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.output", cfg.Logging.Output)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
