package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFillsDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`{}`))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, ":9090", cfg.Web.Addr)
	assert.Equal(t, "gochannel", cfg.EventBus.Kind)
	assert.Equal(t, 2, cfg.Policy.MaxItemRetries)
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`{
		"log_level": "debug",
		"web": {"addr": ":8088"},
		"dead_letter": {"kind": "redis", "redis_addr": "localhost:6379"},
		"policy": {"max_item_retries": 5}
	}`))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":8088", cfg.Web.Addr)
	assert.Equal(t, "redis", cfg.DeadLetter.Kind)
	assert.Equal(t, 5, cfg.Policy.MaxItemRetries)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte(`{"unexpected": true}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestParseRejectsBadEnums(t *testing.T) {
	_, err := Parse([]byte(`{"log_level": "loud"}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`{"dead_letter": {"kind": "carrier-pigeon"}}`))
	assert.Error(t, err)
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)

	cfg, err = LoadOrDefault(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Web.Addr)

	path := filepath.Join(t.TempDir(), "fluxor.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"log_level": "warn"}`), 0o600))

	cfg, err = LoadOrDefault(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
}
