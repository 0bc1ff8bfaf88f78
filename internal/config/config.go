// Package config provides application configuration management.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sellerdesk/edgeguard/internal/guard"
)

// Configuration bounds to prevent resource exhaustion.
const (
	maxTimeout           = 10 * time.Minute
	minLogBufferSize     = 100
	maxLogBufferSize     = 100000
	maxMaxConnections    = 65536
	minRefreshInterval   = time.Minute
	defaultRefresh       = 5 * time.Minute
	minAdminTokenLength  = 16
	defaultPort          = 8080
	defaultMetricsPort   = 9090
	defaultLogBufferSize = 1000
	defaultMaxConns      = 1024
)

// Log formats.
const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// Config holds all application configuration.
// Configuration is loaded from environment variables at startup.
type Config struct {
	// Server settings
	Host string
	Port int

	// Upstream web application
	UpstreamURL string

	// Guard
	ExcludedPaths []string

	// Pattern set
	PatternsPath            string
	PatternsHotReload       bool
	PatternsRemoteURL       string
	PatternsRefreshInterval time.Duration

	// Logging
	LogLevel      string
	LogFormat     string
	LogBufferSize int

	// Metrics
	MetricsEnabled  bool
	MetricsPort     int
	MetricsBindAddr string

	// Limits and timeouts
	MaxConnections  int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// AdminToken protects state-changing operational endpoints.
	// Empty disables the check.
	AdminToken string
}

// Load loads configuration from environment variables.
// Returns a Config with values from environment or sensible defaults.
func Load() *Config {
	return &Config{
		// Default to localhost; the edge is normally fronted by a load balancer.
		// Set HOST=0.0.0.0 explicitly to bind to all interfaces.
		Host: getEnvString("HOST", "127.0.0.1"),
		Port: getEnvInt("PORT", defaultPort),

		UpstreamURL: getEnvString("UPSTREAM_URL", "http://127.0.0.1:3000"),

		ExcludedPaths: getEnvStringSlice("GUARD_EXCLUDED_PATHS", guard.DefaultExcludedPaths),

		PatternsPath:            getEnvString("PATTERNS_PATH", ""),
		PatternsHotReload:       getEnvBool("PATTERNS_HOT_RELOAD", false),
		PatternsRemoteURL:       getEnvString("PATTERNS_REMOTE_URL", ""),
		PatternsRefreshInterval: getEnvDuration("PATTERNS_REFRESH_INTERVAL", 0),

		LogLevel:      getEnvString("LOG_LEVEL", "info"),
		LogFormat:     getEnvString("LOG_FORMAT", LogFormatConsole),
		LogBufferSize: getEnvInt("LOG_BUFFER_SIZE", defaultLogBufferSize),

		MetricsEnabled:  getEnvBool("METRICS_ENABLED", true),
		MetricsPort:     getEnvInt("METRICS_PORT", defaultMetricsPort),
		MetricsBindAddr: getEnvString("METRICS_BIND_ADDR", "127.0.0.1"),

		MaxConnections:  getEnvInt("MAX_CONNECTIONS", defaultMaxConns),
		ReadTimeout:     getEnvDuration("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("WRITE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		AdminToken: getEnvString("ADMIN_TOKEN", ""),
	}
}

// HasRemotePatterns reports whether remote pattern refresh is in effect.
// A local pattern file takes precedence over the remote source.
func (c *Config) HasRemotePatterns() bool {
	return c.PatternsRemoteURL != "" && c.PatternsPath == ""
}

// Validate checks configuration values and logs warnings for invalid values.
// Invalid values are corrected to sensible defaults.
func (c *Config) Validate() {
	// Port validation - allow 0 for system-assigned ports
	if c.Port < 0 || c.Port > 65535 {
		log.Warn().Int("port", c.Port).Msg("Invalid port, using default 8080")
		c.Port = defaultPort
	}

	if c.MetricsEnabled {
		if c.MetricsPort < 1 || c.MetricsPort > 65535 {
			log.Warn().Int("port", c.MetricsPort).Msg("Invalid metrics port, using default 9090")
			c.MetricsPort = defaultMetricsPort
		}
		if c.MetricsPort == c.Port {
			log.Warn().Int("port", c.MetricsPort).Msg("Metrics port collides with server port, disabling metrics listener")
			c.MetricsEnabled = false
		}
	}

	c.validateExcludedPaths()
	c.validatePatternSource()

	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil || c.LogLevel == "" {
		log.Warn().Str("level", c.LogLevel).Msg("Invalid log level, using info")
		c.LogLevel = "info"
	}

	switch strings.ToLower(c.LogFormat) {
	case LogFormatConsole, LogFormatJSON:
		c.LogFormat = strings.ToLower(c.LogFormat)
	default:
		log.Warn().Str("format", c.LogFormat).Msg("Invalid log format, using console")
		c.LogFormat = LogFormatConsole
	}

	if c.LogBufferSize < minLogBufferSize {
		log.Warn().Int("size", c.LogBufferSize).Int("min", minLogBufferSize).Msg("Log buffer too small, raising to minimum")
		c.LogBufferSize = minLogBufferSize
	} else if c.LogBufferSize > maxLogBufferSize {
		log.Warn().Int("size", c.LogBufferSize).Int("max", maxLogBufferSize).Msg("Log buffer too large, capping to maximum")
		c.LogBufferSize = maxLogBufferSize
	}

	if c.MaxConnections < 1 {
		log.Warn().Int("max", c.MaxConnections).Msg("Invalid max connections, using 1024")
		c.MaxConnections = defaultMaxConns
	} else if c.MaxConnections > maxMaxConnections {
		log.Warn().
			Int("max", c.MaxConnections).
			Int("limit", maxMaxConnections).
			Msg("Max connections too high, capping to maximum")
		c.MaxConnections = maxMaxConnections
	}

	c.ReadTimeout = clampTimeout("read", c.ReadTimeout, 15*time.Second)
	c.WriteTimeout = clampTimeout("write", c.WriteTimeout, 60*time.Second)
	c.ShutdownTimeout = clampTimeout("shutdown", c.ShutdownTimeout, 30*time.Second)

	if c.AdminToken == "" {
		log.Warn().Msg("ADMIN_TOKEN not set - pattern reload endpoint is unauthenticated")
	} else if len(c.AdminToken) < minAdminTokenLength {
		log.Warn().
			Int("length", len(c.AdminToken)).
			Int("min", minAdminTokenLength).
			Msg("ADMIN_TOKEN is shorter than recommended")
	}
}

func (c *Config) validateExcludedPaths() {
	kept := c.ExcludedPaths[:0:0]
	for _, p := range c.ExcludedPaths {
		if !strings.HasPrefix(p, "/") {
			log.Warn().Str("path", p).Msg("Excluded path must start with '/', ignoring")
			continue
		}
		kept = append(kept, p)
	}
	c.ExcludedPaths = kept
}

func (c *Config) validatePatternSource() {
	if c.PatternsHotReload && c.PatternsPath == "" {
		log.Warn().Msg("PATTERNS_HOT_RELOAD set without PATTERNS_PATH, nothing to watch")
		c.PatternsHotReload = false
	}

	if c.PatternsRemoteURL == "" {
		return
	}
	if c.PatternsPath != "" {
		log.Warn().
			Str("path", c.PatternsPath).
			Str("url", c.PatternsRemoteURL).
			Msg("Both PATTERNS_PATH and PATTERNS_REMOTE_URL set, the local file wins")
		return
	}
	if !strings.HasPrefix(c.PatternsRemoteURL, "https://") && !strings.HasPrefix(c.PatternsRemoteURL, "http://") {
		log.Warn().Str("url", c.PatternsRemoteURL).Msg("PATTERNS_REMOTE_URL must be http(s), ignoring")
		c.PatternsRemoteURL = ""
		return
	}
	if c.PatternsRefreshInterval == 0 {
		c.PatternsRefreshInterval = defaultRefresh
	} else if c.PatternsRefreshInterval < minRefreshInterval {
		log.Warn().
			Dur("interval", c.PatternsRefreshInterval).
			Dur("min", minRefreshInterval).
			Msg("Pattern refresh interval too short, raising to minimum")
		c.PatternsRefreshInterval = minRefreshInterval
	}
}

func clampTimeout(name string, d, fallback time.Duration) time.Duration {
	if d < time.Second {
		log.Warn().Str("timeout", name).Dur("value", d).Dur("default", fallback).Msg("Timeout too short, using default")
		return fallback
	}
	if d > maxTimeout {
		log.Warn().Str("timeout", name).Dur("value", d).Dur("max", maxTimeout).Msg("Timeout too high, capping to maximum")
		return maxTimeout
	}
	return d
}

// Helper functions for environment variable parsing

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		intValue, err := strconv.ParseInt(value, 10, 32)
		if err == nil {
			return int(intValue)
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Int("default", defaultValue).
			Msg("Invalid integer in environment variable, using default")
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolValue, err := strconv.ParseBool(value)
		if err == nil {
			return boolValue
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Bool("default", defaultValue).
			Msg("Invalid boolean in environment variable, using default")
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err == nil {
			if duration > 0 {
				return duration
			}
			log.Warn().
				Str("key", key).
				Str("value", value).
				Dur("default", defaultValue).
				Msg("Duration must be positive, using default")
			return defaultValue
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Dur("default", defaultValue).
			Msg("Invalid duration in environment variable, using default")
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return append([]string(nil), defaultValue...)
}
