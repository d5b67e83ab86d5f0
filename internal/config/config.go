// Package config loads streamchat's runtime configuration from
// environment variables via small envString/envInt helpers.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Providers   ProvidersConfig
	RateLimit   RateLimitConfig
	BatchWriter BatchWriterConfig
	StopTTL     time.Duration
	DefaultModelID string
}

type ServerConfig struct {
	Host        string
	Port        int
	CORSOrigins []string
	RequireAuth bool
}

type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	WriterAddr string
	ReaderAddr string
	Password   string
	DB         int
	StreamTTL  time.Duration
}

type ProvidersConfig struct {
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
}

type RateLimitConfig struct {
	FreeTierLimit  int
	WindowDuration time.Duration
}

type BatchWriterConfig struct {
	MaxBatchSize int
	FlushEvery   time.Duration
}

func envString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func envInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*target = i
		}
	}
}

func envBool(key string, target *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}

func envDuration(key string, target *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*target = d
		}
	}
}

func envStringSlice(key string, target *[]string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			*target = result
		}
	}
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000"},
			RequireAuth: false,
		},
		Database: DatabaseConfig{
			URL: "postgres://postgres@localhost:5432/streamchat?sslmode=disable",
		},
		Redis: RedisConfig{
			WriterAddr: "localhost:6379",
			ReaderAddr: "localhost:6379",
			DB:         0,
			StreamTTL:  time.Hour,
		},
		Providers: ProvidersConfig{
			OpenAIBaseURL: "https://api.openai.com/v1",
		},
		RateLimit: RateLimitConfig{
			FreeTierLimit:  20,
			WindowDuration: time.Hour,
		},
		BatchWriter: BatchWriterConfig{
			MaxBatchSize: 100,
			FlushEvery:   1000 * time.Millisecond,
		},
		StopTTL:        5 * time.Minute,
		DefaultModelID: "gpt-4o-mini",
	}
}

// Load reads Default() overridden by SC_* environment variables.
func Load() (*Config, error) {
	cfg := Default()

	envString("SC_SERVER_HOST", &cfg.Server.Host)
	envInt("SC_SERVER_PORT", &cfg.Server.Port)
	envStringSlice("SC_CORS_ORIGINS", &cfg.Server.CORSOrigins)
	envBool("SC_REQUIRE_AUTH", &cfg.Server.RequireAuth)

	envString("SC_DATABASE_URL", &cfg.Database.URL)

	envString("SC_REDIS_WRITER_ADDR", &cfg.Redis.WriterAddr)
	envString("SC_REDIS_READER_ADDR", &cfg.Redis.ReaderAddr)
	envString("SC_REDIS_PASSWORD", &cfg.Redis.Password)
	envInt("SC_REDIS_DB", &cfg.Redis.DB)
	envDuration("SC_REDIS_STREAM_TTL", &cfg.Redis.StreamTTL)

	envString("SC_OPENAI_API_KEY", &cfg.Providers.OpenAIAPIKey)
	envString("SC_OPENAI_BASE_URL", &cfg.Providers.OpenAIBaseURL)
	envString("SC_ANTHROPIC_API_KEY", &cfg.Providers.AnthropicAPIKey)

	envInt("SC_RATE_LIMIT_FREE_TIER", &cfg.RateLimit.FreeTierLimit)
	envDuration("SC_RATE_LIMIT_WINDOW", &cfg.RateLimit.WindowDuration)

	envInt("SC_BATCH_MAX_SIZE", &cfg.BatchWriter.MaxBatchSize)
	envDuration("SC_BATCH_FLUSH_EVERY", &cfg.BatchWriter.FlushEvery)

	envDuration("SC_STOP_TTL", &cfg.StopTTL)
	envString("SC_DEFAULT_MODEL_ID", &cfg.DefaultModelID)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isValidURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server port must be between 1 and 65535")
	}
	if c.Database.URL == "" {
		errs = append(errs, "database URL is required")
	}
	if c.RateLimit.FreeTierLimit < 1 {
		errs = append(errs, "rate limit free tier must be positive")
	}
	if c.BatchWriter.MaxBatchSize < 1 {
		errs = append(errs, "batch writer max size must be positive")
	}
	if c.Providers.OpenAIBaseURL != "" && !isValidURL(c.Providers.OpenAIBaseURL) {
		errs = append(errs, "openai base URL must be a valid URL")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
