package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("UPSTREAM_BASE_URL", "https://api.shop.example.com")

	config, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, 15*time.Second, config.Server.ReadTimeout)

	assert.Equal(t, 5*time.Second, config.Upstream.Timeout)
	assert.Equal(t, 3, config.Upstream.MaxRetries)
	assert.Equal(t, 50.0, config.Upstream.RateLimit)

	assert.Equal(t, 2000.0, config.Perf.APIResponseTimeMS)
	assert.Equal(t, int64(100*1024*1024), config.Perf.MemoryUsageBytes)
	assert.Equal(t, 30*time.Second, config.Perf.MemoryInterval)

	assert.Equal(t, 10, config.Batch.MaxSize)
	assert.Equal(t, 50*time.Millisecond, config.Batch.Timeout)

	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, 300, config.Security.RateLimit)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("UPSTREAM_BASE_URL", "https://api.shop.example.com")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("BATCH_MAX_SIZE", "25")
	t.Setenv("BATCH_TIMEOUT", "100ms")
	t.Setenv("PERF_API_RESPONSE_TIME_MS", "1500")
	t.Setenv("SECURITY_ALLOWED_ORIGINS", "https://a.example.com,https://b.example.com")

	config, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, 25, config.Batch.MaxSize)
	assert.Equal(t, 100*time.Millisecond, config.Batch.Timeout)
	assert.Equal(t, 1500.0, config.Perf.APIResponseTimeMS)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, config.Security.AllowedOrigins)
}

func TestLoad_BatchRules(t *testing.T) {
	t.Run("parses ordered pairs", func(t *testing.T) {
		t.Setenv("UPSTREAM_BASE_URL", "https://api.shop.example.com")
		t.Setenv("BATCH_RULES", "/products/search=/api/batch/product-search, /products=/api/batch/products")

		config, err := Load()
		require.NoError(t, err)

		require.Len(t, config.Batch.Rules, 2)
		assert.Equal(t, RuleConfig{Pattern: "/products/search", Endpoint: "/api/batch/product-search"}, config.Batch.Rules[0])
		assert.Equal(t, RuleConfig{Pattern: "/products", Endpoint: "/api/batch/products"}, config.Batch.Rules[1])
	})

	t.Run("empty means built-in rules", func(t *testing.T) {
		t.Setenv("UPSTREAM_BASE_URL", "https://api.shop.example.com")
		t.Setenv("BATCH_RULES", "")

		config, err := Load()
		require.NoError(t, err)
		assert.Empty(t, config.Batch.Rules)
	})

	t.Run("rejects malformed pair", func(t *testing.T) {
		t.Setenv("UPSTREAM_BASE_URL", "https://api.shop.example.com")
		t.Setenv("BATCH_RULES", "/products")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "malformed batch rule")
	})
}

func TestLoad_RequiresUpstreamBaseURL(t *testing.T) {
	t.Setenv("UPSTREAM_BASE_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UPSTREAM_BASE_URL")
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	t.Run("bad base url scheme", func(t *testing.T) {
		t.Setenv("UPSTREAM_BASE_URL", "ftp://api.shop.example.com")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "http")
	})

	t.Run("bad port", func(t *testing.T) {
		t.Setenv("UPSTREAM_BASE_URL", "https://api.shop.example.com")
		t.Setenv("SERVER_PORT", "70000")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "port")
	})

	t.Run("malformed int falls back to default", func(t *testing.T) {
		t.Setenv("UPSTREAM_BASE_URL", "https://api.shop.example.com")
		t.Setenv("BATCH_MAX_SIZE", "lots")

		config, err := Load()
		require.NoError(t, err)
		assert.Equal(t, 10, config.Batch.MaxSize)
	})
}
