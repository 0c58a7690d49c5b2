// Package config loads the engine configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/DragonSun329/briefAI-sub001/pkg/dedup"
	"github.com/DragonSun329/briefAI-sub001/pkg/scoring"
)

// Config is the root configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Sources    SourcesConfig    `yaml:"sources"`
	Dedup      DedupConfig      `yaml:"dedup"`
	Scoring    ScoringConfig    `yaml:"scoring"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Report     ReportConfig     `yaml:"report"`
	Server     ServerConfig     `yaml:"server"`
}

// DatabaseConfig configures SQLite checkpoint storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SourcesConfig holds configuration for collectors.
type SourcesConfig struct {
	Lookback string    `yaml:"lookback"`
	RSS      RSSConfig `yaml:"rss"`
	Entities []string  `yaml:"extra_entities"`
}

// ParseLookback returns the collection lookback window.
func (s SourcesConfig) ParseLookback() time.Duration {
	d, err := time.ParseDuration(s.Lookback)
	if err != nil {
		return 7 * 24 * time.Hour
	}
	return d
}

// RSSConfig for the RSS feed collector.
type RSSConfig struct {
	Enabled bool       `yaml:"enabled"`
	Feeds   []FeedItem `yaml:"feeds"`
}

// FeedItem is a single RSS feed entry.
type FeedItem struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// DedupConfig selects the duplicate strategy and thresholds.
type DedupConfig struct {
	Strategy   string           `yaml:"strategy"`
	Thresholds dedup.Thresholds `yaml:"thresholds"`
}

// ScoringConfig holds collection-phase and deep-phase score weights.
type ScoringConfig struct {
	Collection      scoring.CollectionWeights `yaml:"collection"`
	Deep            scoring.DeepWeights       `yaml:"deep"`
	RecencyHalfLife string                    `yaml:"recency_half_life"`
}

// ParseRecencyHalfLife returns the recency decay half-life.
func (s ScoringConfig) ParseRecencyHalfLife() time.Duration {
	d, err := time.ParseDuration(s.RecencyHalfLife)
	if err != nil {
		return scoring.DefaultRecencyHalfLife
	}
	return d
}

// EvaluationConfig bounds deep evaluation.
type EvaluationConfig struct {
	TopK          int       `yaml:"top_k"`
	SelectionSize int       `yaml:"selection_size"`
	Concurrency   int       `yaml:"concurrency"`
	RetryAttempts int       `yaml:"retry_attempts"`
	CallTimeout   string    `yaml:"call_timeout"`
	LLM           LLMConfig `yaml:"llm"`
}

// ParseCallTimeout returns the per-call deep evaluation timeout.
func (e EvaluationConfig) ParseCallTimeout() time.Duration {
	d, err := time.ParseDuration(e.CallTimeout)
	if err != nil {
		return 2 * time.Minute
	}
	return d
}

// LLMConfig configures the LLM evaluator collaborator.
type LLMConfig struct {
	Provider string `yaml:"provider"` // "openai" or "anthropic"
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
}

// ReportConfig configures report delivery.
type ReportConfig struct {
	Webhook WebhookConfig `yaml:"webhook"`
}

// WebhookConfig for webhook report delivery.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./briefai.db"},
		Sources: SourcesConfig{
			Lookback: "168h",
			RSS: RSSConfig{
				Enabled: true,
				Feeds: []FeedItem{
					{Name: "TechCrunch AI", URL: "https://techcrunch.com/category/artificial-intelligence/feed/"},
					{Name: "The Verge AI", URL: "https://www.theverge.com/rss/ai-artificial-intelligence/index.xml"},
					{Name: "VentureBeat AI", URL: "https://venturebeat.com/category/ai/feed/"},
				},
			},
		},
		Dedup: DedupConfig{
			Strategy:   string(dedup.StrategyCombined),
			Thresholds: dedup.DefaultThresholds(),
		},
		Scoring: ScoringConfig{
			Collection:      scoring.DefaultCollectionWeights(),
			Deep:            scoring.DefaultDeepWeights(),
			RecencyHalfLife: "72h",
		},
		Evaluation: EvaluationConfig{
			TopK:          30,
			SelectionSize: 12,
			Concurrency:   4,
			RetryAttempts: 3,
			CallTimeout:   "2m",
			LLM: LLMConfig{
				Provider: "openai",
				Model:    "gpt-4o-mini",
			},
		},
		Server: ServerConfig{Port: 8080},
	}
}

// Load reads configuration from a YAML file, applies env overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects structurally invalid configuration before any work
// starts.
func (c *Config) Validate() error {
	if _, err := dedup.New(dedup.Strategy(c.Dedup.Strategy), c.Dedup.Thresholds); err != nil {
		return err
	}
	return c.Scoring.Deep.Validate()
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BRIEFAI_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("BRIEFAI_WEBHOOK_URL"); v != "" {
		cfg.Report.Webhook.URL = v
		cfg.Report.Webhook.Enabled = true
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Evaluation.LLM.APIKey = v
		cfg.Evaluation.LLM.Provider = "openai"
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Evaluation.LLM.APIKey = v
		cfg.Evaluation.LLM.Provider = "anthropic"
	}
}
