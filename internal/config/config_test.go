package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
scrape:
  base_url: https://distrowatch.test
  dataspan: "4"
  limit: 25
  timeout_seconds: 45
  min_delay_ms: 100
  max_delay_ms: 400
  max_retries: 4
headless:
  enabled: true
  max_parallel: 2
  nav_timeout_seconds: 30
cache:
  path: /tmp/snap.json
  ttl_seconds: 3600
sheet:
  csv_url: https://sheets.test/export.csv
archive:
  provider: local
  base_dir: /tmp/archive
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Scrape.BaseURL != "https://distrowatch.test" || cfg.Scrape.Limit != 25 {
		t.Fatalf("expected scrape overrides to apply: %+v", cfg.Scrape)
	}
	if cfg.Archive.Provider != "local" || cfg.Archive.BaseDir != "/tmp/archive" {
		t.Fatalf("expected archive overrides to apply: %+v", cfg.Archive)
	}
	if got := cfg.CacheTTL(); got != time.Hour {
		t.Fatalf("expected cache TTL 1h, got %v", got)
	}
	if got := cfg.ScrapeTimeout(); got != 45*time.Second {
		t.Fatalf("expected scrape timeout 45s, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Cache.TTLSeconds != 86400 {
		t.Fatalf("expected default TTL 86400, got %d", cfg.Cache.TTLSeconds)
	}
	if cfg.Scrape.BaseURL != "https://distrowatch.com" {
		t.Fatalf("unexpected default base url %q", cfg.Scrape.BaseURL)
	}
	if cfg.Archive.Provider != "noop" {
		t.Fatalf("expected noop archive default, got %q", cfg.Archive.Provider)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8080},
		Scrape:  ScrapeConfig{TimeoutSeconds: 10, MinDelayMs: 100, MaxDelayMs: 200},
		Cache:   CacheConfig{TTLSeconds: 60},
		Archive: ArchiveConfig{Provider: "noop"},
	}

	tests := []struct {
		name string
		cfg  func(Config) Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func(c Config) Config {
				c.Server.Port = 0
				return c
			},
			want: "server.port",
		},
		{
			name: "invalid timeout",
			cfg: func(c Config) Config {
				c.Scrape.TimeoutSeconds = 0
				return c
			},
			want: "scrape.timeout_seconds",
		},
		{
			name: "delay window inverted",
			cfg: func(c Config) Config {
				c.Scrape.MinDelayMs = 500
				return c
			},
			want: "scrape.max_delay_ms",
		},
		{
			name: "invalid ttl",
			cfg: func(c Config) Config {
				c.Cache.TTLSeconds = 0
				return c
			},
			want: "cache.ttl_seconds",
		},
		{
			name: "headless missing max parallel",
			cfg: func(c Config) Config {
				c.Headless.Enabled = true
				return c
			},
			want: "headless.max_parallel",
		},
		{
			name: "auth missing api key",
			cfg: func(c Config) Config {
				c.Auth.Enabled = true
				return c
			},
			want: "auth.api_key",
		},
		{
			name: "unknown archive provider",
			cfg: func(c Config) Config {
				c.Archive.Provider = "s3"
				return c
			},
			want: "archive.provider",
		},
		{
			name: "local archive missing base dir",
			cfg: func(c Config) Config {
				c.Archive.Provider = "local"
				return c
			},
			want: "archive.base_dir",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg(base).Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
