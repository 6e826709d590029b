package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type ServerConfig struct {
	Addr string `toml:"addr"`
	Mode string `toml:"mode"`
}

type LogConfig struct {
	Mode string `toml:"mode"`
}

type MemgraphConfig struct {
	URI            string `toml:"uri"`
	User           string `toml:"user"`
	Password       string `toml:"password"`
	Database       string `toml:"database"`
	MaxPool        int    `toml:"max_pool"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type PostgresConfig struct {
	DSN string `toml:"dsn"`
}

type RedisConfig struct {
	Addr   string `toml:"addr"`
	Prefix string `toml:"prefix"`
}

type NangoConfig struct {
	Host          string `toml:"host"`
	SecretKey     string `toml:"secret_key"`
	WebhookSecret string `toml:"webhook_secret"`
}

type WebhookConfig struct {
	RateLimit  int      `toml:"rate_limit"`
	RateWindow Duration `toml:"rate_window"`
}

type IngestionConfig struct {
	BatchSize     int `toml:"batch_size"`
	DelayMS       int `toml:"delay_ms"`
	ChunkSize     int `toml:"chunk_size"`
	RetryAttempts int `toml:"retry_attempts"`
	RetryDelayMS  int `toml:"retry_delay_ms"`
}

func (c IngestionConfig) Delay() time.Duration { return time.Duration(c.DelayMS) * time.Millisecond }
func (c IngestionConfig) RetryDelay() time.Duration { return time.Duration(c.RetryDelayMS) * time.Millisecond }

type SyncConfig struct {
	ConflictWindow Duration `toml:"conflict_window"`
	JobTTL         Duration `toml:"job_ttl"`
}

type LLMConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
}

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Log       LogConfig       `toml:"log"`
	Memgraph  MemgraphConfig  `toml:"memgraph"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	Nango     NangoConfig     `toml:"nango"`
	Webhook   WebhookConfig   `toml:"webhook"`
	Ingestion IngestionConfig `toml:"ingestion"`
	Sync      SyncConfig      `toml:"sync"`
	LLM       LLMConfig       `toml:"llm"`
}

// Duration reads TOML strings such as "60s" or "5m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func Default() *Config {
	return &Config{
		Server:   ServerConfig{Addr: ":8080", Mode: "release"},
		Log:      LogConfig{Mode: "dev"},
		Memgraph: MemgraphConfig{URI: "bolt://localhost:7687", MaxPool: 50, TimeoutSeconds: 10},
		Redis:    RedisConfig{Prefix: "graphsync"},
		Nango:    NangoConfig{Host: "https://api.nango.dev"},
		Webhook:  WebhookConfig{RateLimit: 100, RateWindow: Duration{60 * time.Second}},
		Ingestion: IngestionConfig{
			BatchSize:     50,
			DelayMS:       100,
			ChunkSize:     100,
			RetryAttempts: 3,
			RetryDelayMS:  1000,
		},
		Sync: SyncConfig{
			ConflictWindow: Duration{5 * time.Minute},
			JobTTL:         Duration{10 * time.Minute},
		},
	}
}

// Load reads a TOML file over the defaults. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides file values with environment variables when they are set.
func (c *Config) ApplyEnv() {
	setString(&c.Server.Addr, "ADDR")
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Addr = ":" + port
	}
	setString(&c.Server.Mode, "GIN_MODE")
	setString(&c.Log.Mode, "LOG_MODE")

	setString(&c.Memgraph.URI, "MEMGRAPH_URI")
	setString(&c.Memgraph.User, "MEMGRAPH_USER")
	setString(&c.Memgraph.Password, "MEMGRAPH_PASSWORD")
	setString(&c.Memgraph.Database, "MEMGRAPH_DATABASE")

	setString(&c.Postgres.DSN, "DATABASE_URL")
	setString(&c.Redis.Addr, "REDIS_ADDR")

	setString(&c.Nango.Host, "NANGO_HOST")
	setString(&c.Nango.SecretKey, "NANGO_SECRET_KEY")
	setString(&c.Nango.WebhookSecret, "NANGO_WEBHOOK_SECRET")

	setInt(&c.Webhook.RateLimit, "WEBHOOK_RATE_LIMIT")
	setInt(&c.Ingestion.BatchSize, "INGEST_BATCH_SIZE")
	setInt(&c.Ingestion.DelayMS, "INGEST_DELAY_MS")

	setString(&c.LLM.Provider, "LLM_PROVIDER")
	setString(&c.LLM.Model, "LLM_MODEL")
	setString(&c.LLM.APIKey, "LLM_API_KEY")
	setString(&c.LLM.BaseURL, "LLM_BASE_URL")
}

// Validate reports every missing required setting at once.
func (c *Config) Validate() error {
	var missing []string
	if c.Nango.SecretKey == "" {
		missing = append(missing, "NANGO_SECRET_KEY")
	}
	if c.Nango.WebhookSecret == "" {
		missing = append(missing, "NANGO_WEBHOOK_SECRET")
	}
	if c.Memgraph.URI == "" {
		missing = append(missing, "MEMGRAPH_URI")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if c.Ingestion.BatchSize <= 0 || c.Ingestion.ChunkSize <= 0 {
		return errors.New("ingestion batch_size and chunk_size must be positive")
	}
	if c.Webhook.RateLimit <= 0 {
		return errors.New("webhook rate_limit must be positive")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
