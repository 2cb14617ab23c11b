// Package config loads and validates extractor configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/campus-extractor/internal/catalog"
	"github.com/JakeFAU/campus-extractor/internal/extract"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig                      `mapstructure:"server"`
	Webhook     WebhookConfig                     `mapstructure:"webhook"`
	Extraction  ExtractionConfig                  `mapstructure:"extraction"`
	HTTP        HTTPConfig                        `mapstructure:"http"`
	Headless    HeadlessConfig                    `mapstructure:"headless"`
	LLM         LLMConfig                         `mapstructure:"llm"`
	Storage     StorageConfig                     `mapstructure:"storage"`
	DB          DBConfig                          `mapstructure:"db"`
	PubSub      PubSubConfig                      `mapstructure:"pubsub"`
	Logging     LoggingConfig                     `mapstructure:"logging"`
	Normalize   NormalizeConfig                   `mapstructure:"normalize"`
	Departments map[string]catalog.DepartmentSpec `mapstructure:"departments"`
	Events      catalog.EventsSpec                `mapstructure:"events"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// WebhookConfig authenticates and filters storage change notifications.
type WebhookConfig struct {
	Secret string `mapstructure:"secret"`
	Bucket string `mapstructure:"bucket"`
}

// ExtractionConfig governs the batch engine and per-pipeline deadlines.
type ExtractionConfig struct {
	MaxConcurrency  int `mapstructure:"max_concurrency"`
	ResearchTimeout int `mapstructure:"research_timeout_seconds"`
	CoursesTimeout  int `mapstructure:"courses_timeout_seconds"`
	EventsTimeout   int `mapstructure:"events_timeout_seconds"`
	RetryAttempts   int `mapstructure:"retry_attempts"`
}

// HTTPConfig configures the static fetcher.
type HTTPConfig struct {
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
	UserAgent         string  `mapstructure:"user_agent"`
	IgnoreRobots      bool    `mapstructure:"ignore_robots"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
}

// LLMConfig selects the language model used for extraction.
type LLMConfig struct {
	Provider       string `mapstructure:"provider"`
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	MaxTokens      int    `mapstructure:"max_tokens"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// StorageConfig sets the blob backend and side-output paths.
type StorageConfig struct {
	Backend  string `mapstructure:"backend"`
	Bucket   string `mapstructure:"bucket"`
	LocalDir string `mapstructure:"local_dir"`
	CSVDir   string `mapstructure:"csv_dir"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// TaxonomyEntry is one canonical interest and the phrasings that map to it.
type TaxonomyEntry struct {
	Canonical string   `mapstructure:"canonical"`
	Aliases   []string `mapstructure:"aliases"`
}

// NormalizeConfig tunes interest normalization.
type NormalizeConfig struct {
	FuzzyThreshold    float64         `mapstructure:"fuzzy_threshold"`
	ClassifierEnabled bool            `mapstructure:"classifier_enabled"`
	Taxonomy          []TaxonomyEntry `mapstructure:"taxonomy"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("EXTRACTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.bucket", "research_scrapes")
	v.SetDefault("extraction.max_concurrency", 5)
	v.SetDefault("extraction.research_timeout_seconds", 300)
	v.SetDefault("extraction.courses_timeout_seconds", 300)
	v.SetDefault("extraction.events_timeout_seconds", 600)
	v.SetDefault("extraction.retry_attempts", 2)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.user_agent", "campus-extractor/0.1")
	v.SetDefault("http.ignore_robots", false)
	v.SetDefault("http.requests_per_second", 2.0)
	v.SetDefault("http.burst", 2)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout_seconds", 30)
	v.SetDefault("headless.promotion_threshold", 200)
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "claude-3-5-haiku-latest")
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.timeout_seconds", 60)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.bucket", "research_scrapes")
	v.SetDefault("storage.local_dir", "data")
	v.SetDefault("storage.csv_dir", "output")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("normalize.fuzzy_threshold", 0.6)
	v.SetDefault("normalize.classifier_enabled", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Extraction.MaxConcurrency <= 0 {
		return fmt.Errorf("extraction.max_concurrency must be > 0")
	}
	if c.Extraction.ResearchTimeout <= 0 || c.Extraction.CoursesTimeout <= 0 || c.Extraction.EventsTimeout <= 0 {
		return fmt.Errorf("extraction timeouts must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	switch c.LLM.Provider {
	case "anthropic", "none":
	default:
		return fmt.Errorf("llm.provider %q is not supported", c.LLM.Provider)
	}
	switch c.Storage.Backend {
	case "memory":
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir must be set for the local backend")
		}
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	if c.Webhook.Bucket == "" {
		return fmt.Errorf("webhook.bucket must be set")
	}
	if c.Normalize.FuzzyThreshold <= 0 || c.Normalize.FuzzyThreshold > 1 {
		return fmt.Errorf("normalize.fuzzy_threshold must be in (0, 1]")
	}
	for _, entry := range c.Normalize.Taxonomy {
		if strings.TrimSpace(entry.Canonical) == "" {
			return fmt.Errorf("normalize.taxonomy entries need a canonical name")
		}
	}
	return nil
}

// Timeout returns the overall deadline for a pipeline mode.
func (c Config) Timeout(mode extract.Mode) time.Duration {
	switch mode {
	case extract.ModeCourses:
		return time.Duration(c.Extraction.CoursesTimeout) * time.Second
	case extract.ModeEvents:
		return time.Duration(c.Extraction.EventsTimeout) * time.Second
	default:
		return time.Duration(c.Extraction.ResearchTimeout) * time.Second
	}
}

// CatalogOptions converts department and events overrides into catalog options.
func (c Config) CatalogOptions() catalog.Options {
	opts := catalog.Options{Departments: c.Departments}
	if c.Events.BaseURL != "" || c.Events.ListingURL != "" {
		events := c.Events
		opts.Events = &events
	}
	return opts
}
