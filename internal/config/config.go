package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all configuration for the contract sentinel worker.
type Config struct {
	Server    ServerConfig    `envPrefix:"SENTINEL_"`
	Database  DatabaseConfig  `envPrefix:"DATABASE_"`
	Redis     RedisConfig     `envPrefix:"REDIS_"`
	NATS      NATSConfig      `envPrefix:"NATS_"`
	Inspector InspectorConfig `envPrefix:"INSPECTOR_"`
	Documents DocumentConfig  `envPrefix:"DOCUMENTS_"`
	Primary   ModelConfig     `envPrefix:"PRIMARY_MODEL_"`
	Shadow    ModelConfig     `envPrefix:"SHADOW_MODEL_"`
	Analysis  AnalysisConfig  `envPrefix:"ANALYSIS_"`
}

type ServerConfig struct {
	Port int    `env:"PORT" envDefault:"8080"`
	Env  string `env:"ENV"  envDefault:"development"`
}

type DatabaseConfig struct {
	Driver          string        `env:"DRIVER"            envDefault:"postgres"`
	URL             string        `env:"URL"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS"    envDefault:"25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS"    envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`
	MigrationsDir   string        `env:"MIGRATIONS_DIR"    envDefault:"migrations"`
}

type RedisConfig struct {
	URL            string        `env:"URL"`
	StatusTTL      time.Duration `env:"STATUS_TTL"       envDefault:"30m"`
	RequestsPerMin int           `env:"REQUESTS_PER_MIN" envDefault:"60"`
}

type NATSConfig struct {
	URL        string        `env:"URL"         envDefault:"nats://localhost:4222"`
	Stream     string        `env:"STREAM"      envDefault:"CONTRACT_JOBS"`
	Subject    string        `env:"SUBJECT"     envDefault:"contracts.ingest"`
	Durable    string        `env:"DURABLE"     envDefault:"contract-worker"`
	AckWait    time.Duration `env:"ACK_WAIT"    envDefault:"10m"`
	MaxDeliver int           `env:"MAX_DELIVER" envDefault:"5"`
}

type InspectorConfig struct {
	BaseURL   string        `env:"BASE_URL"`
	InfoTypes []string      `env:"INFO_TYPES" envSeparator:"," envDefault:"PERSON_NAME,US_SOCIAL_SECURITY_NUMBER,EMAIL_ADDRESS"`
	Timeout   time.Duration `env:"TIMEOUT"    envDefault:"10s"`
}

type DocumentConfig struct {
	Root         string        `env:"ROOT"          envDefault:"./data/uploads"`
	MaxBytes     int64         `env:"MAX_BYTES"     envDefault:"20971520"`
	FetchTimeout time.Duration `env:"FETCH_TIMEOUT" envDefault:"30s"`
}

// ModelConfig configures one text-generation model. Provider "none" disables it.
type ModelConfig struct {
	Provider string        `env:"PROVIDER"`
	BaseURL  string        `env:"BASE_URL"`
	APIKey   string        `env:"API_KEY"`
	Model    string        `env:"MODEL"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"120s"`
}

// Enabled reports whether a provider has been configured.
func (m ModelConfig) Enabled() bool {
	return m.Provider != "" && m.Provider != ProviderNone
}

type AnalysisConfig struct {
	ShadowTimeout    time.Duration `env:"SHADOW_TIMEOUT"    envDefault:"5s"`
	InferenceTimeout time.Duration `env:"INFERENCE_TIMEOUT" envDefault:"120s"`
}

const (
	ProviderNone      = "none"
	ProviderOpenAI    = "openai"
	ProviderVLLM      = "vllm"
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

var validProviders = map[string]bool{
	ProviderOpenAI:    true,
	ProviderVLLM:      true,
	ProviderOllama:    true,
	ProviderAnthropic: true,
	ProviderMock:      true,
}

var validDrivers = map[string]bool{
	"postgres": true,
	"sqlite":   true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("DATABASE_DRIVER must be one of postgres, sqlite; got %q", c.Database.Driver)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.NATS.Subject == "" {
		return fmt.Errorf("NATS_SUBJECT is required")
	}

	if c.Inspector.BaseURL != "" && !isHTTPURL(c.Inspector.BaseURL) {
		return fmt.Errorf("INSPECTOR_BASE_URL must start with http:// or https://, got %q", c.Inspector.BaseURL)
	}

	if c.Primary.Provider == "" {
		return fmt.Errorf("PRIMARY_MODEL_PROVIDER is required")
	}
	if err := validateModel("PRIMARY_MODEL", c.Primary); err != nil {
		return err
	}
	if c.Shadow.Enabled() {
		if err := validateModel("SHADOW_MODEL", c.Shadow); err != nil {
			return err
		}
	}

	if c.Analysis.ShadowTimeout <= 0 {
		return fmt.Errorf("ANALYSIS_SHADOW_TIMEOUT must be positive, got %s", c.Analysis.ShadowTimeout)
	}

	return nil
}

func validateModel(prefix string, m ModelConfig) error {
	if !validProviders[m.Provider] {
		return fmt.Errorf("%s_PROVIDER must be one of openai, vllm, ollama, anthropic, mock; got %q", prefix, m.Provider)
	}
	if (m.Provider == ProviderOpenAI || m.Provider == ProviderAnthropic) && m.APIKey == "" {
		return fmt.Errorf("%s_API_KEY is required when %s_PROVIDER is %s", prefix, prefix, m.Provider)
	}
	if (m.Provider == ProviderVLLM || m.Provider == ProviderOllama) && m.BaseURL == "" {
		return fmt.Errorf("%s_BASE_URL is required when %s_PROVIDER is %s", prefix, prefix, m.Provider)
	}
	if m.BaseURL != "" && !isHTTPURL(m.BaseURL) {
		return fmt.Errorf("%s_BASE_URL must start with http:// or https://, got %q", prefix, m.BaseURL)
	}
	return nil
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// LoadDatabase reads only the DATABASE_ settings. Admin tooling uses it so it
// can run without the worker's queue, cache and model configuration.
func LoadDatabase() (*DatabaseConfig, error) {
	cfg := &DatabaseConfig{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "DATABASE_"}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if !validDrivers[cfg.Driver] {
		return nil, fmt.Errorf("DATABASE_DRIVER must be one of postgres, sqlite; got %q", cfg.Driver)
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}
