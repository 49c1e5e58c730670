// Package config loads service settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"solana-holder-ledger/internal/logging"
)

// Config holds settings shared by the binaries.
type Config struct {
	App struct {
		Environment string
		LogLevel    string
		LogDir      string
		UseMemory   bool
	}

	Storage struct {
		PostgresDSN   string
		ClickHouseDSN string
		RedisURL      string
		SignatureTTL  time.Duration
	}

	Feed struct {
		WebsocketURL string
		HistoryURL   string
		Tokens       []string
		HistoryRPS   float64
	}

	Server struct {
		HTTPAddr    string
		MetricsAddr string
	}

	Analytics struct {
		ZoneTolerance    float64
		PriceBand        float64
		SnapshotInterval time.Duration
	}
}

// Load reads .env (if present) and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables only.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	var err error

	cfg.App.Environment = getEnvOrDefault("APP_ENV", "production")
	cfg.App.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.App.LogDir = getEnvOrDefault("LOG_DIR", "logs")
	if cfg.App.UseMemory, err = getEnvAsBool("USE_MEMORY", false); err != nil {
		return nil, err
	}

	cfg.Storage.PostgresDSN = os.Getenv("POSTGRES_DSN")
	cfg.Storage.ClickHouseDSN = os.Getenv("CLICKHOUSE_DSN")
	cfg.Storage.RedisURL = os.Getenv("REDIS_URL")
	if cfg.Storage.SignatureTTL, err = getEnvAsDuration("SIGNATURE_TTL", 24*time.Hour); err != nil {
		return nil, err
	}

	cfg.Feed.WebsocketURL = os.Getenv("FEED_WS_URL")
	cfg.Feed.HistoryURL = os.Getenv("FEED_HISTORY_URL")
	cfg.Feed.Tokens = SplitList(os.Getenv("FEED_TOKENS"))
	if cfg.Feed.HistoryRPS, err = getEnvAsFloat("HISTORY_RPS", 5); err != nil {
		return nil, err
	}

	cfg.Server.HTTPAddr = getEnvOrDefault("HTTP_ADDR", ":8080")
	cfg.Server.MetricsAddr = getEnvOrDefault("METRICS_ADDR", ":9090")

	if cfg.Analytics.ZoneTolerance, err = getEnvAsFloat("ZONE_TOLERANCE", 0.01); err != nil {
		return nil, err
	}
	if cfg.Analytics.PriceBand, err = getEnvAsFloat("PRICE_BAND", 0.05); err != nil {
		return nil, err
	}
	if cfg.Analytics.SnapshotInterval, err = getEnvAsDuration("SNAPSHOT_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks settings that would otherwise fail late.
func (c *Config) Validate() error {
	if !c.App.UseMemory && c.Storage.PostgresDSN == "" {
		return errors.New("POSTGRES_DSN is required unless USE_MEMORY is set")
	}
	if c.Analytics.ZoneTolerance <= 0 {
		return fmt.Errorf("ZONE_TOLERANCE must be positive, got %v", c.Analytics.ZoneTolerance)
	}
	if c.Analytics.PriceBand <= 0 {
		return fmt.Errorf("PRICE_BAND must be positive, got %v", c.Analytics.PriceBand)
	}
	if c.Feed.HistoryRPS <= 0 {
		return fmt.Errorf("HISTORY_RPS must be positive, got %v", c.Feed.HistoryRPS)
	}
	if c.Analytics.SnapshotInterval <= 0 {
		return fmt.Errorf("SNAPSHOT_INTERVAL must be positive, got %v", c.Analytics.SnapshotInterval)
	}
	return nil
}

// Logging returns the logger settings.
func (c *Config) Logging() logging.Config {
	return logging.Config{
		Level:       c.App.LogLevel,
		Dir:         c.App.LogDir,
		Development: c.App.Environment != "production",
	}
}

// SplitList splits a comma-separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, nil
}
