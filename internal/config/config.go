package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the telemetry gateway
type Config struct {
	Server   ServerConfig   `json:"server"`
	Upstream UpstreamConfig `json:"upstream"`
	Perf     PerfConfig     `json:"perf"`
	Batch    BatchConfig    `json:"batch"`
	Logging  LoggingConfig  `json:"logging"`
	Security SecurityConfig `json:"security"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `json:"port"`
	Host            string        `json:"host"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// UpstreamConfig holds the storefront API client configuration
type UpstreamConfig struct {
	BaseURL    string        `json:"base_url"`
	APIKey     string        `json:"api_key"`
	Timeout    time.Duration `json:"timeout"`
	MaxRetries int           `json:"max_retries"`
	RateLimit  float64       `json:"rate_limit"` // requests per second
	RateBurst  int           `json:"rate_burst"`
}

// PerfConfig holds performance collector configuration
type PerfConfig struct {
	APIResponseTimeMS  float64       `json:"api_response_time_ms"`
	MemoryUsageBytes   int64         `json:"memory_usage_bytes"`
	RenderTimeMS       float64       `json:"render_time_ms"`
	InteractionDelayMS float64       `json:"interaction_delay_ms"`
	BundleSizeBytes    int64         `json:"bundle_size_bytes"`
	MemoryInterval     time.Duration `json:"memory_interval"`
}

// BatchConfig holds request batcher configuration
type BatchConfig struct {
	MaxSize int           `json:"max_size"`
	Timeout time.Duration `json:"timeout"`
	Rules   []RuleConfig  `json:"rules,omitempty"`
}

// RuleConfig maps an endpoint pattern to its upstream batch endpoint.
// An empty rule list leaves the batcher's built-in rules in place.
type RuleConfig struct {
	Pattern  string `json:"pattern"`
	Endpoint string `json:"endpoint"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // json or console
}

// SecurityConfig holds security configuration
type SecurityConfig struct {
	RequiredAPIKey  string        `json:"required_api_key"`
	RateLimit       int           `json:"rate_limit"` // requests per window
	RateLimitWindow time.Duration `json:"rate_limit_window"`
	AllowedOrigins  []string      `json:"allowed_origins"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", "15s"),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", "10s"),
		},
		Upstream: UpstreamConfig{
			BaseURL:    getEnv("UPSTREAM_BASE_URL", ""),
			APIKey:     getEnv("UPSTREAM_API_KEY", ""),
			Timeout:    getEnvAsDuration("UPSTREAM_TIMEOUT", "5s"),
			MaxRetries: getEnvAsInt("UPSTREAM_MAX_RETRIES", 3),
			RateLimit:  getEnvAsFloat("UPSTREAM_RATE_LIMIT", 50),
			RateBurst:  getEnvAsInt("UPSTREAM_RATE_BURST", 20),
		},
		Perf: PerfConfig{
			APIResponseTimeMS:  getEnvAsFloat("PERF_API_RESPONSE_TIME_MS", 2000),
			MemoryUsageBytes:   getEnvAsInt64("PERF_MEMORY_USAGE_BYTES", 100*1024*1024),
			RenderTimeMS:       getEnvAsFloat("PERF_RENDER_TIME_MS", 100),
			InteractionDelayMS: getEnvAsFloat("PERF_INTERACTION_DELAY_MS", 300),
			BundleSizeBytes:    getEnvAsInt64("PERF_BUNDLE_SIZE_BYTES", 500*1024),
			MemoryInterval:     getEnvAsDuration("PERF_MEMORY_INTERVAL", "30s"),
		},
		Batch: BatchConfig{
			MaxSize: getEnvAsInt("BATCH_MAX_SIZE", 10),
			Timeout: getEnvAsDuration("BATCH_TIMEOUT", "50ms"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Security: SecurityConfig{
			RequiredAPIKey:  getEnv("SECURITY_REQUIRED_API_KEY", ""),
			RateLimit:       getEnvAsInt("SECURITY_RATE_LIMIT", 300),
			RateLimitWindow: getEnvAsDuration("SECURITY_RATE_LIMIT_WINDOW", "1m"),
			AllowedOrigins:  getEnvAsSlice("SECURITY_ALLOWED_ORIGINS", nil),
		},
	}

	rules, err := parseRules(getEnv("BATCH_RULES", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	config.Batch.Rules = rules

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("UPSTREAM_BASE_URL is required")
	}
	if !strings.HasPrefix(c.Upstream.BaseURL, "http://") && !strings.HasPrefix(c.Upstream.BaseURL, "https://") {
		return fmt.Errorf("UPSTREAM_BASE_URL must start with http:// or https://")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Batch.MaxSize <= 0 {
		return fmt.Errorf("invalid batch max size: %d", c.Batch.MaxSize)
	}
	if c.Batch.Timeout <= 0 {
		return fmt.Errorf("invalid batch timeout: %s", c.Batch.Timeout)
	}
	return nil
}

// parseRules parses BATCH_RULES, a comma-separated list of
// pattern=endpoint pairs, e.g.
// "/products/search=/api/batch/product-search,/products=/api/batch/products".
// Pair order is significant: the first matching pattern wins.
func parseRules(raw string) ([]RuleConfig, error) {
	if raw == "" {
		return nil, nil
	}

	pairs := strings.Split(raw, ",")
	rules := make([]RuleConfig, 0, len(pairs))
	for _, pair := range pairs {
		pattern, endpoint, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || pattern == "" || endpoint == "" {
			return nil, fmt.Errorf("malformed batch rule %q, want pattern=endpoint", pair)
		}
		rules = append(rules, RuleConfig{Pattern: pattern, Endpoint: endpoint})
	}
	return rules, nil
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if int64Value, err := strconv.ParseInt(value, 10, 64); err == nil {
			return int64Value
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
