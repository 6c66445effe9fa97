// Package config provides configuration loading and validation for the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonathan/feed-copilot/internal/classify"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. COPILOT_CACHE_BACKEND.
const EnvPrefix = "COPILOT"

// FileName is the config file searched for when none is given.
const FileName = "copilot"

// Config is the full copilot configuration. Every key may be set in the
// config file or through a COPILOT_ environment variable.
type Config struct {
	PageURL  string `mapstructure:"page_url" validate:"omitempty,url"`
	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	Verbose  bool   `mapstructure:"verbose"`

	Browser    BrowserConfig    `mapstructure:"browser"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Outreach   OutreachConfig   `mapstructure:"outreach"`
	Assets     AssetsConfig     `mapstructure:"assets"`
	Server     ServerConfig     `mapstructure:"server"`
	Watch      WatchConfig      `mapstructure:"watch"`
}

// BrowserConfig drives the headless browser.
type BrowserConfig struct {
	Headless      bool          `mapstructure:"headless"`
	UserAgent     string        `mapstructure:"user_agent"`
	UserDataDir   string        `mapstructure:"user_data_dir"` // keeps the site session between runs
	ScrapeTimeout time.Duration `mapstructure:"scrape_timeout" validate:"gt=0"`
	SettleDelay   time.Duration `mapstructure:"settle_delay" validate:"gte=0"`
}

// PipelineConfig bounds one run.
type PipelineConfig struct {
	MaxNew              int           `mapstructure:"max_new" validate:"gte=1"`
	MaxDelay            time.Duration `mapstructure:"max_delay" validate:"gte=0"`
	StartDelay          time.Duration `mapstructure:"start_delay" validate:"gte=0"`
	ClassifyConcurrency int           `mapstructure:"classify_concurrency" validate:"gte=1"`
}

// ClassifierConfig selects the embedding provider and the classifier model.
type ClassifierConfig struct {
	ModelURL        string        `mapstructure:"model_url"`
	RetryDelay      time.Duration `mapstructure:"retry_delay" validate:"gt=0"`
	ClassifyTimeout time.Duration `mapstructure:"classify_timeout" validate:"gte=0"`
	Provider        string        `mapstructure:"provider" validate:"oneof=gemini openai"`
	EmbeddingModel  string        `mapstructure:"embedding_model"`
	BaseURL         string        `mapstructure:"base_url" validate:"omitempty,url"`
	APIKey          string        `mapstructure:"api_key"`
}

// CacheConfig selects the profile cache backend.
type CacheConfig struct {
	Backend     string `mapstructure:"backend" validate:"oneof=file postgres memory"`
	Path        string `mapstructure:"path"`
	DatabaseURL string `mapstructure:"database_url"`
}

// OutreachConfig points at the message service.
type OutreachConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url"`
}

// AssetsConfig locates the label images.
type AssetsConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
}

// ServerConfig configures `copilot serve`.
type ServerConfig struct {
	Port              int             `mapstructure:"port" validate:"gte=1,lte=65535"`
	GenerationTimeout time.Duration   `mapstructure:"generation_timeout" validate:"gt=0"`
	RateLimit         RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig limits POST /messages per client.
type RateLimitConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Limit   int           `mapstructure:"limit" validate:"gte=0"`
	Window  time.Duration `mapstructure:"window" validate:"gte=0"`
	Burst   int           `mapstructure:"burst" validate:"gte=0"`
	Exempt  []string      `mapstructure:"exempt"`
}

// WatchConfig schedules runs in `copilot watch`. An empty schedule means
// runs are only triggered from the terminal.
type WatchConfig struct {
	Schedule string `mapstructure:"schedule"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Browser: BrowserConfig{
			Headless:      true,
			ScrapeTimeout: 45 * time.Second,
			SettleDelay:   400 * time.Millisecond,
		},
		Pipeline: PipelineConfig{
			MaxNew:              15,
			MaxDelay:            3200 * time.Millisecond,
			StartDelay:          1200 * time.Millisecond,
			ClassifyConcurrency: 4,
		},
		Classifier: ClassifierConfig{
			ModelURL:        classify.BuiltinModel,
			RetryDelay:      2 * time.Second,
			ClassifyTimeout: 2 * time.Minute,
			Provider:        "gemini",
		},
		Cache: CacheConfig{
			Backend: "file",
			Path:    filepath.Join(".copilot", "profiles.json"),
		},
		Outreach: OutreachConfig{
			Enabled:  true,
			Endpoint: "http://127.0.0.1:8000",
		},
		Assets: AssetsConfig{
			BaseURL: "https://raw.githubusercontent.com/adamd1985/AugmentedLinkedInFun/master/chromeExtension/assets",
		},
		Server: ServerConfig{
			Port:              8000,
			GenerationTimeout: time.Minute,
			RateLimit: RateLimitConfig{
				Enabled: true,
				Limit:   30,
				Window:  time.Minute,
				Burst:   5,
				Exempt:  []string{"127.0.0.1", "::1"},
			},
		},
	}
}

// SetDefaults registers every default on v so file values and environment
// overrides can be merged over them.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("page_url", d.PageURL)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("verbose", d.Verbose)

	v.SetDefault("browser.headless", d.Browser.Headless)
	v.SetDefault("browser.user_agent", d.Browser.UserAgent)
	v.SetDefault("browser.user_data_dir", d.Browser.UserDataDir)
	v.SetDefault("browser.scrape_timeout", d.Browser.ScrapeTimeout)
	v.SetDefault("browser.settle_delay", d.Browser.SettleDelay)

	v.SetDefault("pipeline.max_new", d.Pipeline.MaxNew)
	v.SetDefault("pipeline.max_delay", d.Pipeline.MaxDelay)
	v.SetDefault("pipeline.start_delay", d.Pipeline.StartDelay)
	v.SetDefault("pipeline.classify_concurrency", d.Pipeline.ClassifyConcurrency)

	v.SetDefault("classifier.model_url", d.Classifier.ModelURL)
	v.SetDefault("classifier.retry_delay", d.Classifier.RetryDelay)
	v.SetDefault("classifier.classify_timeout", d.Classifier.ClassifyTimeout)
	v.SetDefault("classifier.provider", d.Classifier.Provider)
	v.SetDefault("classifier.embedding_model", d.Classifier.EmbeddingModel)
	v.SetDefault("classifier.base_url", d.Classifier.BaseURL)
	v.SetDefault("classifier.api_key", d.Classifier.APIKey)

	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.path", d.Cache.Path)
	v.SetDefault("cache.database_url", d.Cache.DatabaseURL)

	v.SetDefault("outreach.enabled", d.Outreach.Enabled)
	v.SetDefault("outreach.endpoint", d.Outreach.Endpoint)

	v.SetDefault("assets.base_url", d.Assets.BaseURL)

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.generation_timeout", d.Server.GenerationTimeout)
	v.SetDefault("server.rate_limit.enabled", d.Server.RateLimit.Enabled)
	v.SetDefault("server.rate_limit.limit", d.Server.RateLimit.Limit)
	v.SetDefault("server.rate_limit.window", d.Server.RateLimit.Window)
	v.SetDefault("server.rate_limit.burst", d.Server.RateLimit.Burst)
	v.SetDefault("server.rate_limit.exempt", d.Server.RateLimit.Exempt)

	v.SetDefault("watch.schedule", d.Watch.Schedule)
}

// NewViper returns a viper instance with defaults, COPILOT_ environment
// overrides and the provider key variables bound.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("gemini_api_key", "GEMINI_API_KEY")
	_ = v.BindEnv("openai_api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("database_url", "DATABASE_URL")
	return v
}

// ReadFile points v at path, or searches ./copilot.yaml and
// ~/.config/copilot/ when path is empty. A missing searched file is not an error.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "copilot"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// FromViper decodes and validates the configuration held by v. Provider API
// keys and DATABASE_URL fill their fields when left empty.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if cfg.Classifier.APIKey == "" {
		cfg.Classifier.APIKey = v.GetString(cfg.Classifier.Provider + "_api_key")
	}
	if cfg.Cache.DatabaseURL == "" {
		cfg.Cache.DatabaseURL = v.GetString("database_url")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfig reads path (or the default search locations) and returns the
// validated configuration.
func LoadConfig(path string) (*Config, error) {
	v := NewViper()
	if err := ReadFile(v, path); err != nil {
		return nil, err
	}
	return FromViper(v)
}

// Error reports an invalid configuration key.
type Error struct {
	Key     string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config error: '%s' %s", e.Key, e.Message)
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var fieldErrors validator.ValidationErrors
		if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
			fe := fieldErrors[0]
			return &Error{Key: fe.Namespace(), Message: "failed '" + fe.Tag() + "' check"}
		}
		return fmt.Errorf("config error: %w", err)
	}

	if c.Outreach.Enabled && c.Outreach.Endpoint == "" {
		return &Error{Key: "outreach.endpoint", Message: "is required when outreach is enabled"}
	}
	if c.Cache.Backend == "postgres" && c.Cache.DatabaseURL == "" {
		return &Error{Key: "cache.database_url", Message: "is required for the postgres backend"}
	}
	if c.Cache.Backend == "file" && c.Cache.Path == "" {
		return &Error{Key: "cache.path", Message: "is required for the file backend"}
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.Limit > 0 && c.Server.RateLimit.Window <= 0 {
		return &Error{Key: "server.rate_limit.window", Message: "must be positive when a limit is set"}
	}
	if c.Watch.Schedule != "" {
		if _, err := cron.ParseStandard(c.Watch.Schedule); err != nil {
			return &Error{Key: "watch.schedule", Message: "is not a valid cron expression: " + err.Error()}
		}
	}
	return nil
}
