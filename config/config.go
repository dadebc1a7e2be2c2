package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Sites     SitesConfig
	Store     StoreConfig
	Download  DownloadConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "127.0.0.1"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration // default: 15s
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Enabled launches Chromium at startup. Without it only the extract
	// endpoint is useful.
	Enabled bool // default: true

	Headless  bool // default: true
	NoSandbox bool // default: false
	Stealth   bool // default: true

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string
	Proxy      string

	// ActionTimeout bounds navigate, reload and click.
	ActionTimeout time.Duration // default: 10s

	BlockAds bool // default: true

	// BlockedResourceTypes lists resource types never loaded in spider tabs.
	BlockedResourceTypes []string // default: none
}

// SitesConfig locates site definitions.
type SitesConfig struct {
	Dir string // default: "sites"
}

// StoreConfig selects the row store backend.
type StoreConfig struct {
	Kind string // "sqlite" or "postgres"; default: "sqlite"
	Dir  string // default: "data"
	DSN  string
}

// DownloadConfig controls the download exporter.
type DownloadConfig struct {
	Dir      string        // default: "downloads"
	Rate     float64       // files per second; default: 2
	Burst    int           // default: 4
	Timeout  time.Duration // default: 60s
	MaxBytes int64         // 0 means unlimited
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: false

	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 20

	// Burst is the maximum burst size per API key.
	Burst int // default: 40
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "text"

	// History is how many progress lines are kept for new log subscribers.
	History int // default: 500
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            envOr("WEBEXPORTER_HOST", "127.0.0.1"),
			Port:            envIntOr("WEBEXPORTER_PORT", 8080),
			Mode:            envOr("WEBEXPORTER_MODE", "release"),
			ShutdownTimeout: envDurationOr("WEBEXPORTER_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Browser: BrowserConfig{
			Enabled:              envBoolOr("WEBEXPORTER_BROWSER", true),
			Headless:             envBoolOr("WEBEXPORTER_HEADLESS", true),
			NoSandbox:            envBoolOr("WEBEXPORTER_NO_SANDBOX", false),
			Stealth:              envBoolOr("WEBEXPORTER_STEALTH", true),
			BrowserBin:           os.Getenv("WEBEXPORTER_BROWSER_BIN"),
			Proxy:                os.Getenv("WEBEXPORTER_PROXY"),
			ActionTimeout:        envDurationOr("WEBEXPORTER_ACTION_TIMEOUT", 10*time.Second),
			BlockAds:             envBoolOr("WEBEXPORTER_BLOCK_ADS", true),
			BlockedResourceTypes: envSliceOr("WEBEXPORTER_BLOCKED_RESOURCES", nil),
		},
		Sites: SitesConfig{
			Dir: envOr("WEBEXPORTER_SITES_DIR", "sites"),
		},
		Store: StoreConfig{
			Kind: envOr("WEBEXPORTER_STORE", "sqlite"),
			Dir:  envOr("WEBEXPORTER_STORE_DIR", "data"),
			DSN:  os.Getenv("WEBEXPORTER_STORE_DSN"),
		},
		Download: DownloadConfig{
			Dir:      envOr("WEBEXPORTER_DOWNLOAD_DIR", "downloads"),
			Rate:     envFloatOr("WEBEXPORTER_DOWNLOAD_RATE", 2),
			Burst:    envIntOr("WEBEXPORTER_DOWNLOAD_BURST", 4),
			Timeout:  envDurationOr("WEBEXPORTER_DOWNLOAD_TIMEOUT", 60*time.Second),
			MaxBytes: int64(envIntOr("WEBEXPORTER_DOWNLOAD_MAX_BYTES", 0)),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("WEBEXPORTER_AUTH_ENABLED", false),
			APIKeys: envSliceOr("WEBEXPORTER_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("WEBEXPORTER_RATE_RPS", 20),
			Burst:             envIntOr("WEBEXPORTER_RATE_BURST", 40),
		},
		Log: LogConfig{
			Level:   envOr("WEBEXPORTER_LOG_LEVEL", "info"),
			Format:  envOr("WEBEXPORTER_LOG_FORMAT", "text"),
			History: envIntOr("WEBEXPORTER_LOG_HISTORY", 500),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
