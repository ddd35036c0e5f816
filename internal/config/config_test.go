package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gremlin.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "/api/gremlin", cfg.BasePath)
	assert.False(t, cfg.UsePostgres())
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
addr: ":9090"
base_path: /v2/api/
log_level: debug
allowed_origins:
  - https://one.example.com
  - https://two.example.com
rate_limit_per_second: 5
`)
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5, cfg.RateLimitPerSecond)
	assert.Equal(t, "/v2/api", cfg.BasePath, "trailing slash should be trimmed")
	assert.Len(t, cfg.AllowedOrigins, 2)
	assert.Equal(t, 200, cfg.RateLimitBurst, "file values should not disturb unrelated defaults")
}

func TestLoadFromMissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfigFile(t, "addr: \":9090\"\njwt_secret: from-file\n")
	t.Setenv("GREMLIN_CONFIG_FILE", path)
	t.Setenv("GREMLIN_ADDR", ":7070")
	t.Setenv("GREMLIN_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Addr, "environment should win over the file")
	assert.Equal(t, "from-file", cfg.JWTSecret, "file values should survive when no env var is set")
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins)
}
