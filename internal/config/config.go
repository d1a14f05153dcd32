package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Dedup      DedupConfig      `yaml:"dedup" mapstructure:"dedup"`
	Matcher    MatcherConfig    `yaml:"matcher" mapstructure:"matcher"`
	RSS        RSSConfig        `yaml:"rss" mapstructure:"rss"`
	Media      MediaConfig      `yaml:"media" mapstructure:"media"`
	AI         AIConfig         `yaml:"ai" mapstructure:"ai"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Jobs       JobsConfig       `yaml:"jobs" mapstructure:"jobs"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// CacheConfig configures the product match cache.
type CacheConfig struct {
	Driver        string `yaml:"driver" mapstructure:"driver"`
	RedisAddr     string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB       int    `yaml:"redis_db" mapstructure:"redis_db"`
	TTLSecs       int    `yaml:"ttl_secs" mapstructure:"ttl_secs"`
}

// TTL returns the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSecs) * time.Second
}

// DedupConfig tunes the duplicate detector.
type DedupConfig struct {
	WindowDays      int     `yaml:"window_days" mapstructure:"window_days"`
	SampleSize      int     `yaml:"sample_size" mapstructure:"sample_size"`
	Threshold       float64 `yaml:"threshold" mapstructure:"threshold"`
	ShortCircuit    float64 `yaml:"short_circuit" mapstructure:"short_circuit"`
	TitleWeight     float64 `yaml:"title_weight" mapstructure:"title_weight"`
	BodyWeight      float64 `yaml:"body_weight" mapstructure:"body_weight"`
	MaxCompareRunes int     `yaml:"max_compare_runes" mapstructure:"max_compare_runes"`
}

// MatcherConfig tunes the product matcher.
type MatcherConfig struct {
	// RulesFile replaces the embedded rule tables when set.
	RulesFile        string  `yaml:"rules_file" mapstructure:"rules_file"`
	MinConfidence    float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
	MaxResults       int     `yaml:"max_results" mapstructure:"max_results"`
	JobMinConfidence float64 `yaml:"job_min_confidence" mapstructure:"job_min_confidence"`
	JobMaxProducts   int     `yaml:"job_max_products" mapstructure:"job_max_products"`
}

// RSSConfig configures feed fetching and import.
type RSSConfig struct {
	MaxItems         int    `yaml:"max_items" mapstructure:"max_items"`
	MinContentLength int    `yaml:"min_content_length" mapstructure:"min_content_length"`
	MaxContentLength int    `yaml:"max_content_length" mapstructure:"max_content_length"`
	SkipIfNoImage    bool   `yaml:"skip_if_no_image" mapstructure:"skip_if_no_image"`
	RewriteContent   bool   `yaml:"rewrite_content" mapstructure:"rewrite_content"`
	AutoPublish      bool   `yaml:"auto_publish" mapstructure:"auto_publish"`
	DownloadImages   bool   `yaml:"download_images" mapstructure:"download_images"`
	UserAgent        string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// MediaConfig selects where mirrored images are written.
type MediaConfig struct {
	Driver   string `yaml:"driver" mapstructure:"driver"`
	LocalDir string `yaml:"local_dir" mapstructure:"local_dir"`
	S3Bucket string `yaml:"s3_bucket" mapstructure:"s3_bucket"`
	S3Region string `yaml:"s3_region" mapstructure:"s3_region"`
	S3Prefix string `yaml:"s3_prefix" mapstructure:"s3_prefix"`
}

// AIConfig selects the AI provider and its call policy.
type AIConfig struct {
	Provider          string  `yaml:"provider" mapstructure:"provider"`
	MaxTokens         int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature       float64 `yaml:"temperature" mapstructure:"temperature"`
	TopP              float64 `yaml:"top_p" mapstructure:"top_p"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// PricingConfig holds per-provider pricing rates.
type PricingConfig struct {
	Anthropic  map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity PerplexityPricing       `yaml:"perplexity" mapstructure:"perplexity"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// PerplexityPricing holds Perplexity pricing.
type PerplexityPricing struct {
	Per1KTokens float64 `yaml:"per_1k_tokens" mapstructure:"per_1k_tokens"`
}

// JobsConfig configures the worker pool and its schedules.
type JobsConfig struct {
	Concurrency      int    `yaml:"concurrency" mapstructure:"concurrency"`
	MaxAttempts      int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	QueueSize        int    `yaml:"queue_size" mapstructure:"queue_size"`
	ImportSchedule   string `yaml:"import_schedule" mapstructure:"import_schedule"`
	ProductsSchedule string `yaml:"products_schedule" mapstructure:"products_schedule"`
	DLQSchedule      string `yaml:"dlq_schedule" mapstructure:"dlq_schedule"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// MonitoringConfig configures the background health checker and its
// webhook alerts. A zero CostThresholdUSD disables the cost alert.
type MonitoringConfig struct {
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	DLQThreshold         int     `yaml:"dlq_threshold" mapstructure:"dlq_threshold"`
	FeedFailThreshold    int     `yaml:"feed_fail_threshold" mapstructure:"feed_fail_threshold"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads .env, config.yaml, and HUBIZZ_* environment variables, in
// increasing precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, eris.Wrap(err, "config: read .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("HUBIZZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Every key has a default so that AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")

	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.ttl_secs", 3600)

	v.SetDefault("dedup.window_days", 30)
	v.SetDefault("dedup.sample_size", 100)
	v.SetDefault("dedup.threshold", 0.85)
	v.SetDefault("dedup.short_circuit", 0.95)
	v.SetDefault("dedup.title_weight", 0.4)
	v.SetDefault("dedup.body_weight", 0.6)
	v.SetDefault("dedup.max_compare_runes", 1000)

	v.SetDefault("matcher.rules_file", "")
	v.SetDefault("matcher.min_confidence", 0.6)
	v.SetDefault("matcher.max_results", 10)
	v.SetDefault("matcher.job_min_confidence", 0.7)
	v.SetDefault("matcher.job_max_products", 5)

	v.SetDefault("rss.max_items", 50)
	v.SetDefault("rss.min_content_length", 200)
	v.SetDefault("rss.max_content_length", 10000)
	v.SetDefault("rss.skip_if_no_image", false)
	v.SetDefault("rss.rewrite_content", false)
	v.SetDefault("rss.auto_publish", false)
	v.SetDefault("rss.download_images", false)
	v.SetDefault("rss.user_agent", "hubizz/1.0 (+https://hubizz.com)")
	v.SetDefault("rss.timeout_secs", 30)

	v.SetDefault("media.driver", "local")
	v.SetDefault("media.local_dir", "storage/public")
	v.SetDefault("media.s3_bucket", "")
	v.SetDefault("media.s3_region", "")
	v.SetDefault("media.s3_prefix", "")

	v.SetDefault("ai.provider", "perplexity")
	v.SetDefault("ai.max_tokens", 4000)
	v.SetDefault("ai.temperature", 0.7)
	v.SetDefault("ai.top_p", 0.9)
	v.SetDefault("ai.requests_per_second", 1.0)
	v.SetDefault("ai.burst", 1)

	v.SetDefault("perplexity.key", "")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")

	v.SetDefault("pricing.perplexity.per_1k_tokens", 0.001)
	v.SetDefault("pricing.anthropic", map[string]any{
		"claude-haiku-4-5-20251001":  map[string]any{"input": 0.80, "output": 4.00, "cache_write_mul": 1.25, "cache_read_mul": 0.1},
		"claude-sonnet-4-5-20250929": map[string]any{"input": 3.00, "output": 15.00, "cache_write_mul": 1.25, "cache_read_mul": 0.1},
	})

	v.SetDefault("jobs.concurrency", 4)
	v.SetDefault("jobs.max_attempts", 3)
	v.SetDefault("jobs.queue_size", 100)
	v.SetDefault("jobs.import_schedule", "*/15 * * * *")
	v.SetDefault("jobs.products_schedule", "")
	v.SetDefault("jobs.dlq_schedule", "@every 10m")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.cost_threshold_usd", 0)
	v.SetDefault("monitoring.dlq_threshold", 50)
	v.SetDefault("monitoring.feed_fail_threshold", 5)
	v.SetDefault("monitoring.webhook_url", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks the settings the given mode needs. Modes are serve,
// import, generate, worker, catalog, dedup, products, and status. All
// problems are reported together.
func (c *Config) Validate(mode string) error {
	var errs []string
	req := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, msg)
		}
	}

	switch c.Store.Driver {
	case "postgres":
		req(c.Store.DatabaseURL != "", "store.database_url is required")
	case "sqlite":
		req(c.Store.DatabaseURL != "", "store.database_url is required (sqlite file path)")
	default:
		errs = append(errs, "store.driver must be postgres or sqlite")
	}
	req(between(c.Dedup.Threshold, 0, 1), "dedup.threshold must be between 0 and 1")
	req(between(c.Dedup.ShortCircuit, 0, 1), "dedup.short_circuit must be between 0 and 1")
	req(c.Dedup.TitleWeight >= 0 && c.Dedup.BodyWeight >= 0 && c.Dedup.TitleWeight+c.Dedup.BodyWeight > 0,
		"dedup weights must be non-negative and not both zero")
	req(between(c.Matcher.MinConfidence, 0, 1), "matcher.min_confidence must be between 0 and 1")

	aiRequired := func() {
		switch c.AI.Provider {
		case "perplexity":
			req(c.Perplexity.Key != "", "perplexity.key is required")
		case "anthropic":
			req(c.Anthropic.Key != "", "anthropic.key is required")
		default:
			errs = append(errs, "ai.provider must be perplexity or anthropic")
		}
	}
	mediaRequired := func() {
		switch c.Media.Driver {
		case "local":
			req(c.Media.LocalDir != "", "media.local_dir is required")
		case "s3":
			req(c.Media.S3Bucket != "", "media.s3_bucket is required")
		default:
			errs = append(errs, "media.driver must be local or s3")
		}
	}
	cacheValid := func() {
		switch c.Cache.Driver {
		case "memory":
		case "redis":
			req(c.Cache.RedisAddr != "", "cache.redis_addr is required")
		default:
			errs = append(errs, "cache.driver must be memory or redis")
		}
	}
	jobsValid := func() {
		req(c.Jobs.Concurrency >= 1 && c.Jobs.Concurrency <= 64, "jobs.concurrency must be between 1 and 64")
		req(c.Jobs.MaxAttempts >= 1, "jobs.max_attempts must be >= 1")
		req(c.Monitoring.FailureRateThreshold >= 0 && c.Monitoring.FailureRateThreshold <= 1,
			"monitoring.failure_rate_threshold must be between 0 and 1")
	}

	switch mode {
	case "serve":
		req(c.Server.Port > 0, "server.port must be > 0")
		cacheValid()
	case "import":
		req(c.RSS.MinContentLength <= c.RSS.MaxContentLength, "rss.min_content_length must not exceed rss.max_content_length")
		if c.RSS.RewriteContent {
			aiRequired()
		}
		if c.RSS.DownloadImages {
			mediaRequired()
		}
	case "generate":
		aiRequired()
	case "worker":
		jobsValid()
		cacheValid()
		if c.RSS.RewriteContent {
			aiRequired()
		}
		if c.RSS.DownloadImages {
			mediaRequired()
		}
	case "catalog", "dedup", "products", "status":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func between(v, lo, hi float64) bool {
	return v >= lo && v <= hi
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
