package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/deal-associate/server/internal/adapters/comps"
	"github.com/deal-associate/server/internal/adapters/publish"
	"github.com/deal-associate/server/internal/agent/model"
	"github.com/deal-associate/server/internal/api"
	"github.com/deal-associate/server/internal/core"
	"github.com/deal-associate/server/internal/underwriting"
	pkgpostgres "github.com/deal-associate/server/pkg/postgres"
	pkgredis "github.com/deal-associate/server/pkg/redis"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

// AppConfig defines all configurable parameters, sourced from environment
// variables (loaded from .env for local runs).
type AppConfig struct {
	Environment core.Environment `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string           `envconfig:"LOG_LEVEL"`

	// LLM provider. Without a key the agent runs on deterministic fallbacks.
	APIKey  string `envconfig:"GEMINI_API_KEY"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	Intent       model.IntentModelConfig
	Response     model.ResponseModelConfig
	Conversation model.ConversationConfig
	Underwriting model.UnderwritingConfig

	// Infrastructure
	Storage  string `envconfig:"STORAGE_BACKEND" default:"memory"`
	Redis    pkgredis.Config
	Postgres pkgpostgres.Config
	Elastic  comps.ElasticConfig
	S3       publish.S3Config

	IngestDir string `envconfig:"INGEST_DIR" default:"./data"`
	OutputDir string `envconfig:"OUTPUT_DIR" default:"./output"`

	HTTP api.Config
}

// Load reads envFile when it exists and processes the environment.
func Load(envFile string) (*AppConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the agent cannot start with.
func (c *AppConfig) Validate() error {
	c.Storage = strings.ToLower(strings.TrimSpace(c.Storage))
	switch c.Storage {
	case StorageMemory, StorageRedis, StoragePostgres:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q (want memory, redis or postgres)", c.Storage)
	}
	if _, err := underwriting.ParseEquityMultipleMode(c.Underwriting.EquityMultiple); err != nil {
		return err
	}
	if _, err := c.SessionTTL(); err != nil {
		return err
	}
	return nil
}

// Env returns the parsed deployment environment.
func (c *AppConfig) Env() core.Environment {
	return c.Environment
}

// SessionTTL parses CONVERSATION_TTL.
func (c *AppConfig) SessionTTL() (time.Duration, error) {
	ttl, err := time.ParseDuration(c.Conversation.TTL)
	if err != nil {
		return 0, fmt.Errorf("invalid CONVERSATION_TTL %q: %w", c.Conversation.TTL, err)
	}
	return ttl, nil
}
