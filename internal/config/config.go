// Package config loads application configuration with multi-source priority.
//
// Sources, highest to lowest:
//  1. Environment variables
//  2. Config file (./crmchat.yaml or ~/.crmchat/config.yaml)
//  3. Defaults
//
// Secrets are masked when the configuration is logged or marshalled.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Sentinel errors for validation failures, checked with errors.Is().
var (
	// ErrMissingDatabaseURL indicates no PostgreSQL connection string.
	ErrMissingDatabaseURL = errors.New("missing database URL")

	// ErrInvalidMode indicates an unknown pipeline mode name.
	ErrInvalidMode = errors.New("invalid mode")

	// ErrInvalidTopK indicates a non-positive retrieval override.
	ErrInvalidTopK = errors.New("invalid top_k")

	// ErrMissingLLMBaseURL indicates no completion endpoint.
	ErrMissingLLMBaseURL = errors.New("missing llm base URL")

	// ErrMissingEmbeddingBaseURL indicates no embedding endpoint.
	ErrMissingEmbeddingBaseURL = errors.New("missing embedding base URL")

	// ErrInvalidDimensions indicates a non-positive embedding width.
	ErrInvalidDimensions = errors.New("invalid embedding dimensions")

	// ErrInvalidRateLimit indicates a non-positive rate limit setting.
	ErrInvalidRateLimit = errors.New("invalid rate limit")
)

// Pipeline mode names accepted in Config.Mode.
const (
	ModeAnalytical = "analytical"
	ModeStrict     = "strict"
)

// Config stores application configuration.
// SENSITIVE fields are masked in MarshalJSON; update it when adding secrets.
type Config struct {
	// HTTP server
	Addr        string   `mapstructure:"addr" json:"addr"`
	StaticDir   string   `mapstructure:"static_dir" json:"static_dir"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`

	// Pipeline
	Mode string `mapstructure:"mode" json:"mode"`
	// TopK overrides the mode's retrieval count when positive.
	TopK int `mapstructure:"top_k" json:"top_k"`

	// Storage
	DatabaseURL string `mapstructure:"database_url" json:"database_url"` // SENSITIVE: masked in MarshalJSON

	// Completion provider
	LLMBaseURL     string        `mapstructure:"llm_base_url" json:"llm_base_url"`
	LLMAPIKey      string        `mapstructure:"llm_api_key" json:"llm_api_key"` // SENSITIVE: masked in MarshalJSON
	LLMModel       string        `mapstructure:"llm_model" json:"llm_model"`
	LLMTemperature float64       `mapstructure:"llm_temperature" json:"llm_temperature"`
	LLMTimeout     time.Duration `mapstructure:"llm_timeout" json:"llm_timeout"`

	// Embedding provider
	EmbeddingBaseURL    string `mapstructure:"embedding_base_url" json:"embedding_base_url"`
	EmbeddingAPIKey     string `mapstructure:"embedding_api_key" json:"embedding_api_key"` // SENSITIVE: masked in MarshalJSON
	EmbeddingModel      string `mapstructure:"embedding_model" json:"embedding_model"`
	EmbeddingDimensions int    `mapstructure:"embedding_dimensions" json:"embedding_dimensions"`

	// Rate limiting (requests per second per client, with burst)
	RateLimitRPS   float64 `mapstructure:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst" json:"rate_limit_burst"`

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// Load reads configuration from defaults, an optional config file, and
// environment variables, then validates it.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".crmchat"))
	}
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8000")
	v.SetDefault("static_dir", "static")
	v.SetDefault("cors_origins", []string{"*"})

	v.SetDefault("mode", ModeAnalytical)
	v.SetDefault("top_k", 0)

	v.SetDefault("llm_base_url", "https://api.llm7.io/v1")
	v.SetDefault("llm_model", "default")
	v.SetDefault("llm_temperature", 0.7)
	v.SetDefault("llm_timeout", 60*time.Second)

	v.SetDefault("embedding_base_url", "http://localhost:11434/v1")
	v.SetDefault("embedding_model", "all-minilm")
	v.SetDefault("embedding_dimensions", 384)

	v.SetDefault("rate_limit_rps", 5.0)
	v.SetDefault("rate_limit_burst", 10)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key string, envVars ...string) {
		if err := v.BindEnv(append([]string{key}, envVars...)...); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q: %v", key, err))
		}
	}

	mustBind("addr", "CRMCHAT_ADDR")
	mustBind("static_dir", "CRMCHAT_STATIC_DIR")
	mustBind("cors_origins", "CRMCHAT_CORS_ORIGINS")

	mustBind("mode", "CRMCHAT_MODE")
	mustBind("top_k", "CRMCHAT_TOP_K")

	mustBind("database_url", "DATABASE_URL")

	mustBind("llm_base_url", "CRMCHAT_LLM_BASE_URL")
	mustBind("llm_api_key", "OPENAI_API_KEY", "CRMCHAT_LLM_API_KEY")
	mustBind("llm_model", "CRMCHAT_LLM_MODEL")

	mustBind("embedding_base_url", "CRMCHAT_EMBEDDING_BASE_URL")
	mustBind("embedding_api_key", "CRMCHAT_EMBEDDING_API_KEY")
	mustBind("embedding_model", "CRMCHAT_EMBEDDING_MODEL")
	mustBind("embedding_dimensions", "CRMCHAT_EMBEDDING_DIMENSIONS")

	mustBind("log_level", "CRMCHAT_LOG_LEVEL")
	mustBind("log_json", "CRMCHAT_LOG_JSON")
}

// Validate checks the configuration and fails fast with a sentinel error.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%w: set DATABASE_URL", ErrMissingDatabaseURL)
	}
	if c.Mode != ModeAnalytical && c.Mode != ModeStrict {
		return fmt.Errorf("%w: %q (want %q or %q)", ErrInvalidMode, c.Mode, ModeAnalytical, ModeStrict)
	}
	if c.TopK < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTopK, c.TopK)
	}
	if c.LLMBaseURL == "" {
		return ErrMissingLLMBaseURL
	}
	if c.EmbeddingBaseURL == "" {
		return ErrMissingEmbeddingBaseURL
	}
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDimensions, c.EmbeddingDimensions)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("%w: rps=%v burst=%d", ErrInvalidRateLimit, c.RateLimitRPS, c.RateLimitBurst)
	}
	return nil
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "********"

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	return maskedValue
}

// MarshalJSON masks sensitive fields so the configuration can be logged.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.DatabaseURL = maskSecret(a.DatabaseURL)
	a.LLMAPIKey = maskSecret(a.LLMAPIKey)
	a.EmbeddingAPIKey = maskSecret(a.EmbeddingAPIKey)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
