package config

import (
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/sellerdesk/edgeguard/internal/guard"
)

var allEnvVars = []string{
	"HOST", "PORT", "UPSTREAM_URL", "GUARD_EXCLUDED_PATHS",
	"PATTERNS_PATH", "PATTERNS_HOT_RELOAD", "PATTERNS_REMOTE_URL", "PATTERNS_REFRESH_INTERVAL",
	"LOG_LEVEL", "LOG_FORMAT", "LOG_BUFFER_SIZE",
	"METRICS_ENABLED", "METRICS_PORT", "METRICS_BIND_ADDR",
	"MAX_CONNECTIONS", "READ_TIMEOUT", "WRITE_TIMEOUT", "SHUTDOWN_TIMEOUT",
	"ADMIN_TOKEN",
}

// clearEnv unsets every variable Load reads, restoring them after the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allEnvVars {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.Host != "127.0.0.1" {
		t.Errorf("Expected default host '127.0.0.1', got %q", cfg.Host)
	}
	if cfg.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Port)
	}
	if cfg.UpstreamURL != "http://127.0.0.1:3000" {
		t.Errorf("Expected default upstream, got %q", cfg.UpstreamURL)
	}
	if !reflect.DeepEqual(cfg.ExcludedPaths, guard.DefaultExcludedPaths) {
		t.Errorf("Expected default excluded paths, got %v", cfg.ExcludedPaths)
	}
	if cfg.PatternsPath != "" || cfg.PatternsHotReload || cfg.PatternsRemoteURL != "" || cfg.PatternsRefreshInterval != 0 {
		t.Errorf("Expected no external pattern source by default, got %+v", cfg)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != LogFormatConsole || cfg.LogBufferSize != 1000 {
		t.Errorf("Unexpected logging defaults: %q %q %d", cfg.LogLevel, cfg.LogFormat, cfg.LogBufferSize)
	}
	if !cfg.MetricsEnabled || cfg.MetricsPort != 9090 {
		t.Errorf("Unexpected metrics defaults: %v %d", cfg.MetricsEnabled, cfg.MetricsPort)
	}
	if cfg.MaxConnections != 1024 {
		t.Errorf("Expected default max connections 1024, got %d", cfg.MaxConnections)
	}
	if cfg.ReadTimeout != 15*time.Second || cfg.WriteTimeout != 60*time.Second || cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Unexpected timeout defaults: %v %v %v", cfg.ReadTimeout, cfg.WriteTimeout, cfg.ShutdownTimeout)
	}
	if cfg.AdminToken != "" {
		t.Error("Expected empty admin token by default")
	}
}

func TestLoadDefaultsAreCopied(t *testing.T) {
	clearEnv(t)

	cfg := Load()
	cfg.ExcludedPaths[0] = "/mutated"

	if guard.DefaultExcludedPaths[0] == "/mutated" {
		t.Error("Load must not alias the guard's default exclusion list")
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOST", "0.0.0.0")
	t.Setenv("PORT", "9000")
	t.Setenv("UPSTREAM_URL", "http://web:3000")
	t.Setenv("GUARD_EXCLUDED_PATHS", " /_next/static/ , /robots.txt ,,")
	t.Setenv("PATTERNS_PATH", "/etc/edgeguard/patterns.yaml")
	t.Setenv("PATTERNS_HOT_RELOAD", "true")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("MAX_CONNECTIONS", "64")
	t.Setenv("READ_TIMEOUT", "5s")
	t.Setenv("ADMIN_TOKEN", "0123456789abcdef")

	cfg := Load()

	if cfg.Host != "0.0.0.0" || cfg.Port != 9000 || cfg.UpstreamURL != "http://web:3000" {
		t.Errorf("Unexpected server config: %q %d %q", cfg.Host, cfg.Port, cfg.UpstreamURL)
	}
	if want := []string{"/_next/static/", "/robots.txt"}; !reflect.DeepEqual(cfg.ExcludedPaths, want) {
		t.Errorf("ExcludedPaths = %v, want %v", cfg.ExcludedPaths, want)
	}
	if cfg.PatternsPath != "/etc/edgeguard/patterns.yaml" || !cfg.PatternsHotReload {
		t.Errorf("Unexpected pattern config: %q %v", cfg.PatternsPath, cfg.PatternsHotReload)
	}
	if cfg.LogLevel != "debug" || cfg.LogFormat != "json" {
		t.Errorf("Unexpected logging config: %q %q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.MetricsEnabled {
		t.Error("Expected metrics disabled")
	}
	if cfg.MaxConnections != 64 || cfg.ReadTimeout != 5*time.Second {
		t.Errorf("Unexpected limits: %d %v", cfg.MaxConnections, cfg.ReadTimeout)
	}
	if cfg.AdminToken != "0123456789abcdef" {
		t.Errorf("AdminToken = %q", cfg.AdminToken)
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "not-a-number")
	t.Setenv("METRICS_ENABLED", "maybe")
	t.Setenv("READ_TIMEOUT", "-5s")
	t.Setenv("WRITE_TIMEOUT", "soon")

	cfg := Load()

	if cfg.Port != 8080 {
		t.Errorf("Expected fallback port 8080, got %d", cfg.Port)
	}
	if !cfg.MetricsEnabled {
		t.Error("Expected fallback metrics enabled")
	}
	if cfg.ReadTimeout != 15*time.Second || cfg.WriteTimeout != 60*time.Second {
		t.Errorf("Expected fallback timeouts, got %v %v", cfg.ReadTimeout, cfg.WriteTimeout)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		check  func(t *testing.T, c *Config)
	}{
		{
			name:   "invalid port",
			modify: func(c *Config) { c.Port = 70000 },
			check: func(t *testing.T, c *Config) {
				if c.Port != 8080 {
					t.Errorf("Port = %d, want 8080", c.Port)
				}
			},
		},
		{
			name:   "metrics port collision disables metrics",
			modify: func(c *Config) { c.MetricsPort = c.Port },
			check: func(t *testing.T, c *Config) {
				if c.MetricsEnabled {
					t.Error("Expected metrics disabled on port collision")
				}
			},
		},
		{
			name:   "relative excluded path dropped",
			modify: func(c *Config) { c.ExcludedPaths = []string{"_next/static/", "/favicon.ico"} },
			check: func(t *testing.T, c *Config) {
				if want := []string{"/favicon.ico"}; !reflect.DeepEqual(c.ExcludedPaths, want) {
					t.Errorf("ExcludedPaths = %v, want %v", c.ExcludedPaths, want)
				}
			},
		},
		{
			name:   "hot reload without path disabled",
			modify: func(c *Config) { c.PatternsHotReload = true },
			check: func(t *testing.T, c *Config) {
				if c.PatternsHotReload {
					t.Error("Expected hot reload disabled without a path")
				}
			},
		},
		{
			name:   "remote refresh gets default interval",
			modify: func(c *Config) { c.PatternsRemoteURL = "https://config.example.com/patterns.yaml" },
			check: func(t *testing.T, c *Config) {
				if c.PatternsRefreshInterval != defaultRefresh {
					t.Errorf("interval = %v, want %v", c.PatternsRefreshInterval, defaultRefresh)
				}
				if !c.HasRemotePatterns() {
					t.Error("Expected remote patterns in effect")
				}
			},
		},
		{
			name: "remote refresh interval raised to minimum",
			modify: func(c *Config) {
				c.PatternsRemoteURL = "https://config.example.com/patterns.yaml"
				c.PatternsRefreshInterval = time.Second
			},
			check: func(t *testing.T, c *Config) {
				if c.PatternsRefreshInterval != minRefreshInterval {
					t.Errorf("interval = %v, want %v", c.PatternsRefreshInterval, minRefreshInterval)
				}
			},
		},
		{
			name:   "non-http remote ignored",
			modify: func(c *Config) { c.PatternsRemoteURL = "file:///etc/patterns.yaml" },
			check: func(t *testing.T, c *Config) {
				if c.PatternsRemoteURL != "" {
					t.Errorf("PatternsRemoteURL = %q, want empty", c.PatternsRemoteURL)
				}
			},
		},
		{
			name: "local file wins over remote",
			modify: func(c *Config) {
				c.PatternsPath = "/etc/patterns.yaml"
				c.PatternsRemoteURL = "https://config.example.com/patterns.yaml"
			},
			check: func(t *testing.T, c *Config) {
				if c.HasRemotePatterns() {
					t.Error("Expected local file to take precedence")
				}
			},
		},
		{
			name:   "invalid log level",
			modify: func(c *Config) { c.LogLevel = "loud" },
			check: func(t *testing.T, c *Config) {
				if c.LogLevel != "info" {
					t.Errorf("LogLevel = %q, want info", c.LogLevel)
				}
			},
		},
		{
			name:   "log format normalised",
			modify: func(c *Config) { c.LogFormat = "JSON" },
			check: func(t *testing.T, c *Config) {
				if c.LogFormat != LogFormatJSON {
					t.Errorf("LogFormat = %q, want json", c.LogFormat)
				}
			},
		},
		{
			name:   "invalid log format",
			modify: func(c *Config) { c.LogFormat = "xml" },
			check: func(t *testing.T, c *Config) {
				if c.LogFormat != LogFormatConsole {
					t.Errorf("LogFormat = %q, want console", c.LogFormat)
				}
			},
		},
		{
			name:   "log buffer clamped",
			modify: func(c *Config) { c.LogBufferSize = 5 },
			check: func(t *testing.T, c *Config) {
				if c.LogBufferSize != minLogBufferSize {
					t.Errorf("LogBufferSize = %d, want %d", c.LogBufferSize, minLogBufferSize)
				}
			},
		},
		{
			name:   "max connections capped",
			modify: func(c *Config) { c.MaxConnections = 1 << 20 },
			check: func(t *testing.T, c *Config) {
				if c.MaxConnections != maxMaxConnections {
					t.Errorf("MaxConnections = %d, want %d", c.MaxConnections, maxMaxConnections)
				}
			},
		},
		{
			name: "timeouts clamped",
			modify: func(c *Config) {
				c.ReadTimeout = time.Millisecond
				c.WriteTimeout = time.Hour
			},
			check: func(t *testing.T, c *Config) {
				if c.ReadTimeout != 15*time.Second {
					t.Errorf("ReadTimeout = %v, want 15s", c.ReadTimeout)
				}
				if c.WriteTimeout != maxTimeout {
					t.Errorf("WriteTimeout = %v, want %v", c.WriteTimeout, maxTimeout)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			cfg := Load()
			tt.modify(cfg)
			cfg.Validate()
			tt.check(t, cfg)
		})
	}
}
