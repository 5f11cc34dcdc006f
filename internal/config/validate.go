package config

import (
	"fmt"
	"net/url"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Site.BaseURL == "" {
		return fmt.Errorf("site.base_url must be set")
	}
	if err := validateURL(cfg.Site.BaseURL); err != nil {
		return fmt.Errorf("site.base_url: %w", err)
	}

	if cfg.Session.RequestTimeout <= 0 {
		return fmt.Errorf("session.request_timeout must be > 0")
	}
	if cfg.Session.MaxRetries < 0 {
		return fmt.Errorf("session.max_retries must be >= 0, got %d", cfg.Session.MaxRetries)
	}
	if cfg.Session.MaxBodySize <= 0 {
		return fmt.Errorf("session.max_body_size must be > 0")
	}
	if cfg.Session.Fingerprint != "chrome" && cfg.Session.Fingerprint != "safari" {
		return fmt.Errorf("session.fingerprint must be 'chrome' or 'safari', got %q", cfg.Session.Fingerprint)
	}
	if cfg.Session.PreDelayMin < 0 || cfg.Session.PreDelayMax < cfg.Session.PreDelayMin {
		return fmt.Errorf("session pre-delay window is invalid: min=%s max=%s",
			cfg.Session.PreDelayMin, cfg.Session.PreDelayMax)
	}

	if cfg.Proxy.Enabled {
		if cfg.Proxy.ProviderURL == "" && len(cfg.Proxy.URLs) == 0 {
			return fmt.Errorf("proxy.provider_url or proxy.urls must be set when proxy is enabled")
		}
		for _, proxyURL := range cfg.Proxy.URLs {
			if _, err := url.Parse(proxyURL); err != nil {
				return fmt.Errorf("invalid proxy URL %q: %w", proxyURL, err)
			}
		}
	}

	if cfg.Crawler.RowsPerPage < 1 {
		return fmt.Errorf("crawler.rows_per_page must be >= 1, got %d", cfg.Crawler.RowsPerPage)
	}
	if cfg.Crawler.BatchSize < 1 {
		return fmt.Errorf("crawler.batch_size must be >= 1, got %d", cfg.Crawler.BatchSize)
	}

	if cfg.Reconcile.MaxAttempts < 1 {
		return fmt.Errorf("reconcile.max_attempts must be >= 1, got %d", cfg.Reconcile.MaxAttempts)
	}
	if cfg.Reconcile.TopSalesRank < 1 {
		return fmt.Errorf("reconcile.top_sales_rank must be >= 1, got %d", cfg.Reconcile.TopSalesRank)
	}

	if cfg.Database.MaxConns < 1 {
		return fmt.Errorf("database.max_conns must be >= 1, got %d", cfg.Database.MaxConns)
	}
	if cfg.Database.BrandCacheSize < 1 {
		return fmt.Errorf("database.brand_cache_size must be >= 1, got %d", cfg.Database.BrandCacheSize)
	}

	if cfg.Storage.Type != "file" && cfg.Storage.Type != "mongo" {
		return fmt.Errorf("storage.type must be 'file' or 'mongo', got %q", cfg.Storage.Type)
	}
	if cfg.Storage.Type == "mongo" && cfg.Storage.MongoURI == "" {
		return fmt.Errorf("storage.mongo_uri must be set when storage.type is 'mongo'")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return nil
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
