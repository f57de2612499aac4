// Package config loads and validates the single typed configuration object
// for the prospecting core, and exposes read-only typed views to each
// subsystem.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ignite/prospectai/internal/domain"
)

// Config aggregates every subsystem's settings. It is immutable after
// construction; callers re-construct (call Load/LoadFromEnv again) to
// "reload".
type Config struct {
	LLM               LLMConfig         `yaml:"llm"`
	Cache             CacheConfig       `yaml:"cache"`
	Redis             RedisConfig       `yaml:"redis"`
	RateLimits        RateLimitConfig   `yaml:"rate_limits"`
	Worker            WorkerConfig      `yaml:"worker"`
	Scraping          ScrapingConfig    `yaml:"scraping"`
	Browser           BrowserConfig     `yaml:"browser"`
	EmailFinder       EmailFinderConfig `yaml:"email_finder"`
	Email             EmailConfig       `yaml:"email"`
	Store             StoreConfig       `yaml:"store"`
	Control           ControlConfig     `yaml:"control"`
	Features          FeatureConfig     `yaml:"features"`
	SenderProfilePath string            `yaml:"sender_profile_path"`
}

// RedisConfig points at the Redis instance backing rate limiting and the
// campaign run lock.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// LLMConfig selects the active chat-completion backend and its credentials.
type LLMConfig struct {
	Backend         string `yaml:"backend"` // "openai" | "anthropic" | "bedrock"
	Model           string `yaml:"model"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	BedrockRegion   string `yaml:"bedrock_region"`
	MaxTokens       int    `yaml:"max_tokens"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
}

func (c LLMConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSeconds) * time.Second }

// CacheConfig sizes the two-tier cache.
type CacheConfig struct {
	Enabled           bool   `yaml:"enabled"`
	MemoryMaxEntries  int    `yaml:"memory_max_entries"`
	MemoryMaxMB       int    `yaml:"memory_max_mb"`
	PersistentDir     string `yaml:"persistent_dir"`
	PersistentBackend string `yaml:"persistent_backend"` // "local" | "s3" | "dynamodb"
	S3Bucket          string `yaml:"s3_bucket"`
	DynamoDBTable     string `yaml:"dynamodb_table"`
	AWSRegion         string `yaml:"aws_region"`
	DefaultTTLSeconds int    `yaml:"default_ttl_seconds"`
}

func (c CacheConfig) DefaultTTL() time.Duration {
	return time.Duration(c.DefaultTTLSeconds) * time.Second
}

// RateLimitConfig holds per-service token-bucket capacities.
type RateLimitConfig struct {
	ScrapingDelaySeconds float64                 `yaml:"scraping_delay_seconds"`
	Services             map[string]ServiceLimit `yaml:"services"`
}

// ServiceLimit is the window capacities for one named external service.
type ServiceLimit struct {
	PerMinute int `yaml:"per_minute"`
	PerHour   int `yaml:"per_hour"`
	PerDay    int `yaml:"per_day"`
	Burst     int `yaml:"burst"`
}

// WorkerConfig paces the Orchestrator's worker pool.
type WorkerConfig struct {
	MaxWorkers                 int `yaml:"max_workers"`
	BatchSize                  int `yaml:"batch_size"`
	DelayBetweenBatchesSeconds int `yaml:"delay_between_batches_seconds"`
	StageTimeoutSeconds        int `yaml:"stage_timeout_seconds"`
	RetryBudget                int `yaml:"retry_budget"`
	ProfileSubLimit            int `yaml:"profile_sub_limit"`
}

func (c WorkerConfig) DelayBetweenBatches() time.Duration {
	return time.Duration(c.DelayBetweenBatchesSeconds) * time.Second
}

func (c WorkerConfig) StageTimeout() time.Duration {
	return time.Duration(c.StageTimeoutSeconds) * time.Second
}

// ScrapingConfig configures the product feed and team/profile scrapers.
type ScrapingConfig struct {
	ProductFeedURL string `yaml:"product_feed_url"`
	SerpAPIKey     string `yaml:"serpapi_key"`
	UserAgent      string `yaml:"user_agent"`
	MaxPageBytes   int    `yaml:"max_page_bytes"`
}

// BrowserConfig configures the headless browser pool.
type BrowserConfig struct {
	Enabled                   bool `yaml:"enabled"`
	PoolSize                  int  `yaml:"pool_size"`
	PageLoadTimeoutSeconds    int  `yaml:"page_load_timeout_seconds"`
	IdleOwnerThresholdSeconds int  `yaml:"idle_owner_threshold_seconds"`
	DisableImages             bool `yaml:"disable_images"`
}

func (c BrowserConfig) PageLoadTimeout() time.Duration {
	return time.Duration(c.PageLoadTimeoutSeconds) * time.Second
}

// EmailFinderConfig configures the email-finder adapter.
type EmailFinderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Enabled bool   `yaml:"enabled"`
}

// EmailConfig configures send policy and the email-sender adapter.
type EmailConfig struct {
	AutoSendEmails       bool    `yaml:"auto_send_emails"`
	ReviewRequired       bool    `yaml:"email_review_required"`
	SenderIdentity       string  `yaml:"sender_identity"`
	SESRegion            string  `yaml:"ses_region"`
	MaxBodyWords         int     `yaml:"max_body_words"`
	PersonalizationFloor float64 `yaml:"personalization_floor"`
}

// StoreConfig configures the document-database adapter.
type StoreConfig struct {
	NotionToken              string `yaml:"notion_token"`
	ProspectsDBID            string `yaml:"prospects_db_id"`
	CampaignsDBID            string `yaml:"campaigns_db_id"`
	LogsDBID                 string `yaml:"logs_db_id"`
	StatusDBID               string `yaml:"status_db_id"`
	ControlDBID              string `yaml:"control_db_id"`
	AnalyticsDBID            string `yaml:"analytics_db_id"`
	ProcessedCacheTTLSeconds int    `yaml:"processed_cache_ttl_seconds"`
}

func (c StoreConfig) ProcessedCacheTTL() time.Duration {
	return time.Duration(c.ProcessedCacheTTLSeconds) * time.Second
}

// ControlConfig configures the control-channel poller.
type ControlConfig struct {
	Enabled              bool `yaml:"enable_interactive_controls"`
	CheckIntervalSeconds int  `yaml:"control_check_interval_seconds"`
	DebounceSeconds      int  `yaml:"debounce_seconds"`
}

func (c ControlConfig) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSeconds) * time.Second
}

func (c ControlConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceSeconds) * time.Second
}

// FeatureConfig toggles optional behavior across the pipeline.
type FeatureConfig struct {
	AIParsing               bool `yaml:"ai_parsing"`
	ProductAnalysis         bool `yaml:"product_analysis"`
	EnhancedPersonalization bool `yaml:"enhanced_personalization"`
	Notifications           bool `yaml:"notifications"`
}

// Load reads and parses the configuration file, applying defaults for any
// zero-valued field.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.LLM.Backend == "" {
		cfg.LLM.Backend = "openai"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 4000
	}
	if cfg.LLM.TimeoutSeconds == 0 {
		cfg.LLM.TimeoutSeconds = 60
	}
	if cfg.LLM.BedrockRegion == "" {
		cfg.LLM.BedrockRegion = "us-east-1"
	}

	if cfg.Cache.MemoryMaxEntries == 0 {
		cfg.Cache.MemoryMaxEntries = 1000
	}
	if cfg.Cache.MemoryMaxMB == 0 {
		cfg.Cache.MemoryMaxMB = 100
	}
	if cfg.Cache.PersistentDir == "" {
		cfg.Cache.PersistentDir = ".cache"
	}
	if cfg.Cache.PersistentBackend == "" {
		cfg.Cache.PersistentBackend = "local"
	}
	if cfg.Cache.DefaultTTLSeconds == 0 {
		cfg.Cache.DefaultTTLSeconds = 3600
	}

	if cfg.RateLimits.ScrapingDelaySeconds == 0 {
		cfg.RateLimits.ScrapingDelaySeconds = 0.3
	}
	if cfg.RateLimits.Services == nil {
		cfg.RateLimits.Services = defaultServiceLimits()
	}

	if cfg.Worker.MaxWorkers == 0 {
		cfg.Worker.MaxWorkers = 3
	}
	if cfg.Worker.BatchSize == 0 {
		cfg.Worker.BatchSize = 5
	}
	if cfg.Worker.DelayBetweenBatchesSeconds == 0 {
		cfg.Worker.DelayBetweenBatchesSeconds = 30
	}
	if cfg.Worker.StageTimeoutSeconds == 0 {
		cfg.Worker.StageTimeoutSeconds = 45
	}
	if cfg.Worker.RetryBudget == 0 {
		cfg.Worker.RetryBudget = 3
	}
	if cfg.Worker.ProfileSubLimit == 0 {
		cfg.Worker.ProfileSubLimit = 4
	}

	if cfg.Scraping.UserAgent == "" {
		cfg.Scraping.UserAgent = "Mozilla/5.0 (compatible; ProspectAI/1.0)"
	}
	if cfg.Scraping.MaxPageBytes == 0 {
		cfg.Scraping.MaxPageBytes = 512 * 1024
	}

	if cfg.Browser.PoolSize == 0 {
		cfg.Browser.PoolSize = 2
	}
	if cfg.Browser.PageLoadTimeoutSeconds == 0 {
		cfg.Browser.PageLoadTimeoutSeconds = 20
	}
	if cfg.Browser.IdleOwnerThresholdSeconds == 0 {
		cfg.Browser.IdleOwnerThresholdSeconds = 120
	}

	if cfg.Email.MaxBodyWords == 0 {
		cfg.Email.MaxBodyWords = 250
	}
	if cfg.Email.PersonalizationFloor == 0 {
		cfg.Email.PersonalizationFloor = 0.35
	}
	if !cfg.Email.ReviewRequired && !cfg.Email.AutoSendEmails {
		cfg.Email.ReviewRequired = true
	}
	if cfg.Email.SESRegion == "" {
		cfg.Email.SESRegion = "us-west-2"
	}

	if cfg.Store.ProcessedCacheTTLSeconds == 0 {
		cfg.Store.ProcessedCacheTTLSeconds = 300
	}

	if cfg.Control.CheckIntervalSeconds == 0 {
		cfg.Control.CheckIntervalSeconds = 30
	}
	if cfg.Control.DebounceSeconds == 0 {
		cfg.Control.DebounceSeconds = 60
	}

	if cfg.Redis.URL == "" {
		cfg.Redis.URL = "redis://localhost:6379"
	}
}

func defaultServiceLimits() map[string]ServiceLimit {
	return map[string]ServiceLimit{
		"email_finder":   {PerMinute: 20, PerHour: 500, PerDay: 2000, Burst: 5},
		"email_sender":   {PerMinute: 30, PerHour: 1000, PerDay: 10000, Burst: 10},
		"llm":            {PerMinute: 30, PerHour: 600, PerDay: 5000, Burst: 5},
		"scraper":        {PerMinute: 60, PerHour: 2000, PerDay: 20000, Burst: 10},
		"profile_finder": {PerMinute: 20, PerHour: 400, PerDay: 3000, Burst: 5},
		"store":          {PerMinute: 120, PerHour: 5000, PerDay: 50000, Burst: 20},
	}
}

// LoadFromEnv loads a .env file if present, then Load()s the YAML file,
// then overlays secrets from the environment so they never need to live
// in a checked-in file.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.OpenAIAPIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.LLM.AnthropicAPIKey = v
	}
	if v := os.Getenv("LLM_BACKEND"); v != "" {
		cfg.LLM.Backend = v
	}
	if v := os.Getenv("HUNTER_API_KEY"); v != "" {
		cfg.EmailFinder.APIKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.Email.SESRegion = v
	}
	if v := os.Getenv("NOTION_TOKEN"); v != "" {
		cfg.Store.NotionToken = v
	}
	if v := os.Getenv("NOTION_PROSPECTS_DB_ID"); v != "" {
		cfg.Store.ProspectsDBID = v
	}
	if v := os.Getenv("NOTION_CAMPAIGNS_DB_ID"); v != "" {
		cfg.Store.CampaignsDBID = v
	}
	if v := os.Getenv("SERPAPI_KEY"); v != "" {
		cfg.Scraping.SerpAPIKey = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.LLM.BedrockRegion = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}

	return cfg, nil
}

// LoadSenderProfile reads the YAML SenderProfile used by GenerateEmail.
// Its on-disk shape is deliberately a thin pass-through: parsing richer
// formats (Markdown, JSON) is left to collaborators.
func LoadSenderProfile(path string) (*domain.SenderProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p domain.SenderProfile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate runs pure validation with no side effects, returning every
// problem found rather than stopping at the first.
func (c *Config) Validate() []error {
	var errs []error

	switch c.LLM.Backend {
	case "openai", "anthropic", "bedrock":
	default:
		errs = append(errs, fmt.Errorf("llm.backend: unknown backend %q", c.LLM.Backend))
	}
	if c.LLM.Backend == "openai" && c.LLM.OpenAIAPIKey == "" {
		errs = append(errs, fmt.Errorf("llm.openai_api_key: required when backend=openai"))
	}
	if c.LLM.Backend == "anthropic" && c.LLM.AnthropicAPIKey == "" {
		errs = append(errs, fmt.Errorf("llm.anthropic_api_key: required when backend=anthropic"))
	}

	if c.Worker.MaxWorkers <= 0 {
		errs = append(errs, fmt.Errorf("worker.max_workers: must be > 0"))
	}
	if c.Worker.BatchSize < 0 {
		errs = append(errs, fmt.Errorf("worker.batch_size: must be >= 0"))
	}

	if c.Cache.PersistentBackend != "local" && c.Cache.PersistentBackend != "s3" && c.Cache.PersistentBackend != "dynamodb" {
		errs = append(errs, fmt.Errorf("cache.persistent_backend: unknown backend %q", c.Cache.PersistentBackend))
	}
	if c.Cache.PersistentBackend == "s3" && c.Cache.S3Bucket == "" {
		errs = append(errs, fmt.Errorf("cache.s3_bucket: required when persistent_backend=s3"))
	}
	if c.Cache.PersistentBackend == "dynamodb" && c.Cache.DynamoDBTable == "" {
		errs = append(errs, fmt.Errorf("cache.dynamodb_table: required when persistent_backend=dynamodb"))
	}

	if c.Store.NotionToken == "" {
		errs = append(errs, fmt.Errorf("store.notion_token: required"))
	}
	if c.Store.ProspectsDBID == "" {
		errs = append(errs, fmt.Errorf("store.prospects_db_id: required"))
	}

	if c.Email.AutoSendEmails && c.Email.SenderIdentity == "" {
		errs = append(errs, fmt.Errorf("email.sender_identity: required when auto_send_emails=true"))
	}

	return errs
}
