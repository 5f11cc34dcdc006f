package config

import (
	"strings"
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	if err := Validate(DefaultConfig()); err != nil {
		t.Fatalf("default config rejected: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing base url",
			mutate:  func(c *Config) { c.Site.BaseURL = "" },
			wantErr: "site.base_url",
		},
		{
			name:    "non-http base url",
			mutate:  func(c *Config) { c.Site.BaseURL = "ftp://shop.test" },
			wantErr: "scheme",
		},
		{
			name:    "unknown fingerprint",
			mutate:  func(c *Config) { c.Session.Fingerprint = "firefox" },
			wantErr: "fingerprint",
		},
		{
			name: "inverted pre-delay window",
			mutate: func(c *Config) {
				c.Session.PreDelayMin = c.Session.PreDelayMax + 1
			},
			wantErr: "pre-delay",
		},
		{
			name: "proxy enabled without source",
			mutate: func(c *Config) {
				c.Proxy.Enabled = true
				c.Proxy.ProviderURL = ""
				c.Proxy.URLs = nil
			},
			wantErr: "proxy",
		},
		{
			name:    "zero rows per page",
			mutate:  func(c *Config) { c.Crawler.RowsPerPage = 0 },
			wantErr: "rows_per_page",
		},
		{
			name:    "zero reconcile attempts",
			mutate:  func(c *Config) { c.Reconcile.MaxAttempts = 0 },
			wantErr: "max_attempts",
		},
		{
			name:    "unknown storage type",
			mutate:  func(c *Config) { c.Storage.Type = "s3" },
			wantErr: "storage.type",
		},
		{
			name: "mongo storage without uri",
			mutate: func(c *Config) {
				c.Storage.Type = "mongo"
				c.Storage.MongoURI = ""
			},
			wantErr: "mongo_uri",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "logging.level",
		},
		{
			name: "metrics port out of range",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Port = 70000
			},
			wantErr: "metrics.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatalf("invalid config accepted")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
