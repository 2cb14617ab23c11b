package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/campus-extractor/internal/extract"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
webhook:
  secret: hook-secret
  bucket: scrapes
extraction:
  max_concurrency: 3
  research_timeout_seconds: 120
http:
  timeout_seconds: 45
  user_agent: real-agent
  ignore_robots: true
headless:
  enabled: true
  max_parallel: 2
llm:
  provider: anthropic
  api_key: key
  model: claude-test
storage:
  backend: local
  local_dir: /tmp/scrapes
logging:
  development: false
normalize:
  fuzzy_threshold: 0.75
  taxonomy:
    - canonical: Quantum Computing
      aliases: ["quantum information"]
departments:
  CSCI:
    base_url: https://cs.example.edu/
    faculty_url: https://cs.example.edu/people
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
	if cfg.Webhook.Secret != "hook-secret" || cfg.Webhook.Bucket != "scrapes" {
		t.Fatalf("expected webhook overrides, got %+v", cfg.Webhook)
	}
	if cfg.Extraction.MaxConcurrency != 3 || !cfg.HTTP.IgnoreRobots {
		t.Fatalf("expected extraction overrides to apply")
	}
	if got := cfg.Timeout(extract.ModeResearch); got != 120*time.Second {
		t.Fatalf("expected research timeout 120s, got %v", got)
	}
	if got := cfg.Timeout(extract.ModeEvents); got != 600*time.Second {
		t.Fatalf("expected events default 600s, got %v", got)
	}
	if len(cfg.Normalize.Taxonomy) != 1 || cfg.Normalize.Taxonomy[0].Aliases[0] != "quantum information" {
		t.Fatalf("expected taxonomy override, got %+v", cfg.Normalize.Taxonomy)
	}
	opts := cfg.CatalogOptions()
	spec, ok := opts.Departments["csci"]
	if !ok {
		// viper lowercases map keys
		t.Fatalf("expected department override, got %+v", opts.Departments)
	}
	if spec.FacultyURL != "https://cs.example.edu/people" {
		t.Fatalf("unexpected faculty url %q", spec.FacultyURL)
	}
	if opts.Events != nil {
		t.Fatalf("expected no events override")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Extraction.MaxConcurrency != 5 {
		t.Fatalf("expected default concurrency 5, got %d", cfg.Extraction.MaxConcurrency)
	}
	if cfg.Webhook.Bucket != "research_scrapes" {
		t.Fatalf("expected default bucket, got %q", cfg.Webhook.Bucket)
	}
	if got := cfg.Timeout(extract.ModeResearch); got != 300*time.Second {
		t.Fatalf("expected research timeout 300s, got %v", got)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "concurrency", mutate: func(c *Config) { c.Extraction.MaxConcurrency = 0 }, want: "max_concurrency"},
		{name: "provider", mutate: func(c *Config) { c.LLM.Provider = "oracle" }, want: "llm.provider"},
		{name: "backend", mutate: func(c *Config) { c.Storage.Backend = "s3" }, want: "storage.backend"},
		{name: "gcs bucket", mutate: func(c *Config) { c.Storage.Backend = "gcs"; c.Storage.Bucket = "" }, want: "storage.bucket"},
		{name: "threshold", mutate: func(c *Config) { c.Normalize.FuzzyThreshold = 1.5 }, want: "fuzzy_threshold"},
		{name: "headless", mutate: func(c *Config) { c.Headless.Enabled = true; c.Headless.MaxParallel = 0 }, want: "headless"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}
