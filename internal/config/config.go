package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full gateway configuration. Loaded once at startup from an
// optional YAML file, then overridden by environment variables; passed by
// reference to everything that needs it. No process-wide mutable state.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Catalog CatalogConfig `yaml:"catalog"`
	Cache   CacheConfig   `yaml:"cache"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Scoring ScoringConfig `yaml:"scoring"`
	LogLevel string       `yaml:"log_level"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	CORSOrigins  []string      `yaml:"cors_origins"`
}

// CatalogConfig holds model catalog settings.
type CatalogConfig struct {
	DBPath       string `yaml:"db_path"`
	OverrideFile string `yaml:"override_file"` // optional models.yaml, hot reloaded
	RefreshSpec  string `yaml:"refresh_spec"`  // cron spec for store refresh
}

// CacheConfig holds semantic cache settings.
type CacheConfig struct {
	Enabled        bool    `yaml:"enabled"`
	IndexPath      string  `yaml:"index_path"`
	Threshold      float64 `yaml:"threshold"` // answer substitution threshold
	EmbeddingModel string  `yaml:"embedding_model"`
}

// LedgerConfig holds savings ledger settings.
type LedgerConfig struct {
	DBPath string `yaml:"db_path"`
}

// ScoringConfig holds complexity grader settings.
type ScoringConfig struct {
	GraderModel string `yaml:"grader_model"`
}

// ProviderCredentials reads per-provider API keys from the environment.
// An absent credential disables that provider's models without crashing.
type ProviderCredentials struct {
	AnthropicAPIKey string
	OpenAIAPIKey    string
	GroqAPIKey      string
	BedrockRegion   string
}

// Load reads the config file (if path is non-empty and the file exists),
// applies environment overrides, and fills defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GREENROUTE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("GREENROUTE_DB_PATH"); v != "" {
		c.Catalog.DBPath = v
		c.Ledger.DBPath = v
	}
	if v := os.Getenv("GREENROUTE_PROMPT_INDEX"); v != "" {
		c.Cache.IndexPath = v
	}
	if v := os.Getenv("GREENROUTE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Catalog.DBPath == "" {
		c.Catalog.DBPath = DefaultCatalogDBPath
	}
	if c.Catalog.RefreshSpec == "" {
		c.Catalog.RefreshSpec = DefaultCatalogRefreshSpec
	}
	if c.Ledger.DBPath == "" {
		c.Ledger.DBPath = DefaultLedgerDBPath
	}
	if c.Cache.IndexPath == "" {
		c.Cache.IndexPath = DefaultPromptIndexPath
	}
	if c.Cache.Threshold == 0 {
		c.Cache.Threshold = 0.90
	}
	if c.Scoring.GraderModel == "" {
		c.Scoring.GraderModel = DefaultGraderModel
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1,65535], got %d", c.Server.Port)
	}
	if c.Cache.Threshold < 0 || c.Cache.Threshold > 1 {
		return fmt.Errorf("cache.threshold must be in [0,1], got %f", c.Cache.Threshold)
	}
	return nil
}

// Credentials reads provider API keys from the environment.
func Credentials() ProviderCredentials {
	region := os.Getenv("GREENROUTE_BEDROCK_REGION")
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	return ProviderCredentials{
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		GroqAPIKey:      os.Getenv("GROQ_API_KEY"),
		BedrockRegion:   region,
	}
}
