package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Store.Kind)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 10*time.Second, cfg.Browser.ActionTimeout)
	assert.Nil(t, cfg.Auth.APIKeys)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("WEBEXPORTER_PORT", "9090")
	t.Setenv("WEBEXPORTER_STORE", "postgres")
	t.Setenv("WEBEXPORTER_STORE_DSN", "postgres://localhost/x")
	t.Setenv("WEBEXPORTER_API_KEYS", "a, b,,c")
	t.Setenv("WEBEXPORTER_DOWNLOAD_TIMEOUT", "5s")
	t.Setenv("WEBEXPORTER_HEADLESS", "false")

	cfg := Load()
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Store.Kind)
	assert.Equal(t, "postgres://localhost/x", cfg.Store.DSN)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Auth.APIKeys)
	assert.Equal(t, 5*time.Second, cfg.Download.Timeout)
	assert.False(t, cfg.Browser.Headless)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("WEBEXPORTER_PORT", "eighty")
	t.Setenv("WEBEXPORTER_DOWNLOAD_RATE", "fast")
	cfg := Load()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 2.0, cfg.Download.Rate)
}
