package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"

	"github.com/relaycrm/sourcing-engine/pkg/models"
)

// Config holds all configuration for the sourcing engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Scheduler controls the sourcing loop.
	Scheduler SchedulerConfig `yaml:"scheduler"`

	// Search holds listings-provider settings.
	Search SearchConfig `yaml:"search"`

	// LinkCheck bounds candidate URL probing.
	LinkCheck LinkCheckConfig `yaml:"link_check"`

	// Analytics tunes the run-history window and exhaustion heuristics.
	Analytics AnalyticsConfig `yaml:"analytics"`

	// Models configures the promotion chain and provider credentials.
	Models ModelsConfig `yaml:"models"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"sourcing"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"sourcing_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`

	// Pool connection recycling. The scheduler holds connections for the
	// length of a run, so lifetimes are generous.
	MaxConnLifetimeMinutes int `yaml:"max_conn_lifetime_minutes" env:"PGMAX_CONN_LIFETIME_MINUTES" env-default:"60"`
	MaxConnIdleMinutes     int `yaml:"max_conn_idle_minutes" env:"PGMAX_CONN_IDLE_MINUTES" env-default:"30"`
}

// MaxConnLifetime returns the pool connection lifetime as a duration.
func (c *DatabaseConfig) MaxConnLifetime() time.Duration {
	return time.Duration(c.MaxConnLifetimeMinutes) * time.Minute
}

// MaxConnIdleTime returns the pool idle-connection cutoff as a duration.
func (c *DatabaseConfig) MaxConnIdleTime() time.Duration {
	return time.Duration(c.MaxConnIdleMinutes) * time.Minute
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// SchedulerConfig controls the dispatch loop.
type SchedulerConfig struct {
	// TickSeconds is the poll interval for due configs.
	TickSeconds int `yaml:"tick_seconds" env:"SCHEDULER_TICK_SECONDS" env-default:"60"`
	// MaxConcurrentRuns bounds the fan-out of run executions.
	MaxConcurrentRuns int `yaml:"max_concurrent_runs" env:"SCHEDULER_MAX_CONCURRENT_RUNS" env-default:"4"`
}

// Tick returns the poll interval as a duration.
func (c *SchedulerConfig) Tick() time.Duration {
	return time.Duration(c.TickSeconds) * time.Second
}

// SearchConfig holds listings-provider settings.
type SearchConfig struct {
	BaseURL        string `yaml:"base_url" env:"SEARCH_BASE_URL" env-default:"https://api.listings.example.com"`
	APIKey         string `yaml:"-" env:"SEARCH_API_KEY"` // Secret - not in YAML
	TimeoutSeconds int    `yaml:"timeout_seconds" env:"SEARCH_TIMEOUT_SECONDS" env-default:"30"`
	MaxRetries     int    `yaml:"max_retries" env:"SEARCH_MAX_RETRIES" env-default:"3"`
}

// Timeout returns the per-request timeout as a duration.
func (c *SearchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LinkCheckConfig bounds candidate URL probing.
type LinkCheckConfig struct {
	// MaxConcurrent limits parallel probes so target sites are not hammered.
	MaxConcurrent int `yaml:"max_concurrent" env:"LINK_CHECK_MAX_CONCURRENT" env-default:"8"`
	// TimeoutMillis is the per-probe timeout.
	TimeoutMillis int `yaml:"timeout_millis" env:"LINK_CHECK_TIMEOUT_MILLIS" env-default:"5000"`
}

// Timeout returns the per-probe timeout as a duration.
func (c *LinkCheckConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMillis) * time.Millisecond
}

// AnalyticsConfig tunes the derived run-history view.
// The exhaustion threshold and run count are deliberately tunable: source
// deployments disagree on the right values.
type AnalyticsConfig struct {
	// WindowSize is the number of recent runs analyzed.
	WindowSize int `yaml:"window_size" env:"ANALYTICS_WINDOW_SIZE" env-default:"20"`
	// ExhaustionDuplicateRate is the duplicate-rate threshold above which a
	// run counts toward market exhaustion.
	ExhaustionDuplicateRate float64 `yaml:"exhaustion_duplicate_rate" env:"ANALYTICS_EXHAUSTION_DUPLICATE_RATE" env-default:"0.8"`
	// ExhaustionRunCount is how many consecutive recent runs must exceed the
	// threshold before the market-exhausted flag is raised.
	ExhaustionRunCount int `yaml:"exhaustion_run_count" env:"ANALYTICS_EXHAUSTION_RUN_COUNT" env-default:"3"`
}

// ModelsConfig configures the model promotion chain and provider credentials.
type ModelsConfig struct {
	OpenAIBaseURL   string `yaml:"openai_base_url" env:"OPENAI_BASE_URL" env-default:"https://api.openai.com/v1"`
	OpenAIAPIKey    string `yaml:"-" env:"OPENAI_API_KEY"`    // Secret - not in YAML
	AnthropicAPIKey string `yaml:"-" env:"ANTHROPIC_API_KEY"` // Secret - not in YAML

	// TierEntries is the ordered promotion chain, slowest/best first.
	TierEntries []TierEntry `yaml:"tiers"`

	// TiersStr overrides TierEntries when set. Compact env format:
	// "provider:model:first_token_timeout_ms,provider:model:timeout_ms"
	TiersStr string `yaml:"-" env:"MODEL_TIERS"`

	// Tiers is the parsed chain (not read from config directly).
	Tiers []models.ModelTier `yaml:"-"`
}

// TierEntry is the YAML shape of one promotion-chain entry. Timeout is in
// milliseconds because yaml cannot decode duration strings.
type TierEntry struct {
	Provider            string `yaml:"provider"`
	Model               string `yaml:"model"`
	FirstTokenTimeoutMS int    `yaml:"first_token_timeout_ms"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.parseComplexFields(); err != nil {
		return nil, fmt.Errorf("failed to parse config fields: %w", err)
	}

	return cfg, nil
}

// LoadFromFile reads configuration from an explicit YAML path. Used by tests.
func LoadFromFile(path, version string) (*Config, error) {
	cfg := &Config{Version: version}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.parseComplexFields(); err != nil {
		return nil, fmt.Errorf("failed to parse config fields: %w", err)
	}

	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() error {
	for _, entry := range c.Models.TierEntries {
		c.Models.Tiers = append(c.Models.Tiers, models.ModelTier{
			Provider:          entry.Provider,
			Model:             entry.Model,
			FirstTokenTimeout: time.Duration(entry.FirstTokenTimeoutMS) * time.Millisecond,
		})
	}

	if c.Models.TiersStr != "" {
		tiers, err := ParseTierChain(c.Models.TiersStr)
		if err != nil {
			return fmt.Errorf("invalid MODEL_TIERS: %w", err)
		}
		c.Models.Tiers = tiers
	}

	if len(c.Models.Tiers) == 0 {
		return fmt.Errorf("at least one model tier must be configured")
	}

	for i, tier := range c.Models.Tiers {
		if tier.Model == "" {
			return fmt.Errorf("model tier %d has no model name", i)
		}
		if tier.Provider != models.ProviderOpenAI && tier.Provider != models.ProviderAnthropic {
			return fmt.Errorf("model tier %d has unknown provider %q", i, tier.Provider)
		}
		if tier.FirstTokenTimeout <= 0 {
			return fmt.Errorf("model tier %d has non-positive first-token timeout", i)
		}
	}

	return nil
}

// ParseTierChain parses the compact env tier format:
// "provider:model:first_token_timeout_ms,..."
func ParseTierChain(value string) ([]models.ModelTier, error) {
	var tiers []models.ModelTier

	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("tier %q: want provider:model:timeout_ms", entry)
		}

		timeoutMS, err := strconv.Atoi(parts[2])
		if err != nil || timeoutMS <= 0 {
			return nil, fmt.Errorf("tier %q: bad timeout %q", entry, parts[2])
		}

		tiers = append(tiers, models.ModelTier{
			Provider:          strings.TrimSpace(parts[0]),
			Model:             strings.TrimSpace(parts[1]),
			FirstTokenTimeout: time.Duration(timeoutMS) * time.Millisecond,
		})
	}

	if len(tiers) == 0 {
		return nil, fmt.Errorf("no tiers in %q", value)
	}

	return tiers, nil
}

// LoadTiersFile reads a promotion chain from a standalone YAML file.
// Supports deployments that manage the tier chain separately from the main
// config (e.g. per-environment overlays).
func LoadTiersFile(path string) ([]models.ModelTier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tiers file: %w", err)
	}

	var doc struct {
		Tiers []TierEntry `yaml:"tiers"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse tiers file: %w", err)
	}

	if len(doc.Tiers) == 0 {
		return nil, fmt.Errorf("tiers file %s contains no tiers", path)
	}

	tiers := make([]models.ModelTier, 0, len(doc.Tiers))
	for _, entry := range doc.Tiers {
		tiers = append(tiers, models.ModelTier{
			Provider:          entry.Provider,
			Model:             entry.Model,
			FirstTokenTimeout: time.Duration(entry.FirstTokenTimeoutMS) * time.Millisecond,
		})
	}

	return tiers, nil
}
