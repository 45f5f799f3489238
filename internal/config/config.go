// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Wager settings (amounts are integer minor units)
	MinStake        int64
	MaxStake        int64
	PlatformFeeBps  int           // 500 = 5%
	AcceptanceWindow time.Duration // OPEN -> EXPIRED deadline
	DisputeWindow   time.Duration  // PENDING_RESULT dispute deadline
	SweepInterval   time.Duration  // background sweeper tick

	// Arbitration
	Moderators      []string // comma-separated roster in MODERATORS
	ModeratorSecret string   // shared secret gating dispute resolution

	// Security
	RateLimitRPM int

	// Observability
	OTLPEndpoint string // empty disables tracing
}

// Defaults
const (
	DefaultPort             = "8080"
	DefaultEnv              = "development"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
	DefaultMinStake         = int64(100)     // 1.00
	DefaultMaxStake         = int64(1000000) // 10,000.00
	DefaultPlatformFeeBps   = 500
	DefaultAcceptanceWindow = 72 * time.Hour
	DefaultDisputeWindow    = 24 * time.Hour
	DefaultSweepInterval    = 60 * time.Second
	DefaultRateLimit        = 120
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", DefaultPort),
		Env:              getEnv("ENV", DefaultEnv),
		LogLevel:         getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:        getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		MinStake:         getEnvInt64("MIN_STAKE", DefaultMinStake),
		MaxStake:         getEnvInt64("MAX_STAKE", DefaultMaxStake),
		PlatformFeeBps:   int(getEnvInt64("PLATFORM_FEE_BPS", DefaultPlatformFeeBps)),
		AcceptanceWindow: getEnvDuration("ACCEPTANCE_WINDOW", DefaultAcceptanceWindow),
		DisputeWindow:    getEnvDuration("DISPUTE_WINDOW", DefaultDisputeWindow),
		SweepInterval:    getEnvDuration("SWEEP_INTERVAL", DefaultSweepInterval),
		Moderators:       splitList(os.Getenv("MODERATORS")),
		ModeratorSecret:  os.Getenv("MODERATOR_SECRET"),
		RateLimitRPM:     int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimit)),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.MinStake <= 0 {
		return fmt.Errorf("MIN_STAKE must be positive, got %d", c.MinStake)
	}
	if c.MaxStake < c.MinStake {
		return fmt.Errorf("MAX_STAKE (%d) must be >= MIN_STAKE (%d)", c.MaxStake, c.MinStake)
	}
	if c.PlatformFeeBps < 0 || c.PlatformFeeBps >= 10000 {
		return fmt.Errorf("PLATFORM_FEE_BPS must be in [0, 10000), got %d", c.PlatformFeeBps)
	}
	if c.AcceptanceWindow <= 0 {
		return fmt.Errorf("ACCEPTANCE_WINDOW must be positive")
	}
	if c.DisputeWindow <= 0 {
		return fmt.Errorf("DISPUTE_WINDOW must be positive")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
