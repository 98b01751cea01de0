package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config represents infrastructure configuration, read from the environment.
// The scoring model itself (pillars, weights, thresholds) lives in a YAML
// file, see model.go.
type Config struct {
	Database   DatabaseConfig   `envconfig:"DATABASE"`
	ClickHouse ClickHouseConfig `envconfig:"CLICKHOUSE"`
	Redis      RedisConfig      `envconfig:"REDIS"`
	Telegram   TelegramConfig   `envconfig:"TELEGRAM"`
	Compute    ComputeConfig    `envconfig:"COMPUTE"`
	Health     HealthConfig     `envconfig:"HEALTH"`
	Logging    LoggingConfig    `envconfig:"LOGGING"`
}

// DatabaseConfig represents Postgres connection parameters. Fetch
// collaborators write indicator observations there; the engine reads them.
type DatabaseConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"aibps"`
	User     string `envconfig:"DB_USER" required:"true"`
	Password string `envconfig:"DB_PASSWORD" required:"true"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
}

// ClickHouseConfig represents the analytic score store the dashboard reads
type ClickHouseConfig struct {
	Enabled  bool   `envconfig:"CLICKHOUSE_ENABLED" default:"false"`
	Host     string `envconfig:"CLICKHOUSE_HOST" default:"localhost"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	Database string `envconfig:"CLICKHOUSE_DATABASE" default:"aibps"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD" required:"false"`
}

// RedisConfig represents the lock backend used to keep recomputes single-flight
type RedisConfig struct {
	Enabled  bool   `envconfig:"REDIS_ENABLED" default:"false"`
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" required:"false"`
}

// TelegramConfig represents alert notification settings
type TelegramConfig struct {
	BotToken string `envconfig:"TELEGRAM_BOT_TOKEN" required:"false"`
	ChatID   int64  `envconfig:"TELEGRAM_CHAT_ID" required:"false"`
}

// ComputeConfig represents the recompute schedule and artifact locations
type ComputeConfig struct {
	ModelPath    string        `envconfig:"COMPUTE_MODEL_PATH" default:"./config/model.yaml"`
	ArtifactPath string        `envconfig:"COMPUTE_ARTIFACT_PATH" default:"./data/aibps_monthly.csv"`
	Interval     time.Duration `envconfig:"COMPUTE_INTERVAL" default:"6h"`
	LockTTL      time.Duration `envconfig:"COMPUTE_LOCK_TTL" default:"5m"`
}

// HealthConfig represents health probe server settings
type HealthConfig struct {
	Port string `envconfig:"HEALTH_PORT" default:"8080"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
	File  string `envconfig:"LOG_FILE" required:"false"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Compute.Interval < time.Minute {
		return fmt.Errorf("compute interval %s is below 1m", c.Compute.Interval)
	}
	if c.Compute.ModelPath == "" {
		return fmt.Errorf("model config path is required")
	}
	if c.Telegram.BotToken != "" && c.Telegram.ChatID == 0 {
		return fmt.Errorf("telegram chat_id is required when a bot token is set")
	}
	return nil
}

// GetDSN returns PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetDSN returns ClickHouse connection string
func (c *ClickHouseConfig) GetDSN() string {
	return fmt.Sprintf(
		"clickhouse://%s:%s@%s:%d/%s",
		c.User, c.Password, c.Host, c.Port, c.Database,
	)
}
