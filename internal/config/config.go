package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port string
	Env  string

	// Storage
	DatabaseURL string // PostgreSQL; when empty, SQLite is used
	SQLitePath  string
	RedisURL    string

	// Governance
	ComplianceToken string
	PolicyFile      string // YAML rule tables; built-in defaults when empty

	// External collaborators (optional)
	EmbeddingURL    string
	PolicyEngineURL string
	AnchorURL       string

	// Audit ledger
	AuditBatchSize     int
	AuditFlushInterval time.Duration
	AuditQueueSize     int

	// Rate limiting
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     // Enable auto-blocking after repeated violations
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		SQLitePath:         os.Getenv("SQLITE_PATH"),
		RedisURL:           os.Getenv("REDIS_URL"),
		ComplianceToken:    getEnv("COMPLIANCE_TOKEN", "constitutional-hash-dev"),
		PolicyFile:         os.Getenv("POLICY_FILE"),
		EmbeddingURL:       os.Getenv("EMBEDDING_URL"),
		PolicyEngineURL:    os.Getenv("POLICY_ENGINE_URL"),
		AnchorURL:          os.Getenv("ANCHOR_URL"),
		AuditBatchSize:     getEnvInt("AUDIT_BATCH_SIZE", 100),
		AuditFlushInterval: getEnvDuration("AUDIT_FLUSH_INTERVAL", 10*time.Second),
		AuditQueueSize:     getEnvInt("AUDIT_QUEUE_SIZE", 1024),
		AutoBlockEnabled:   getEnv("AUTO_BLOCK_ENABLED", "false") == "true",
	}

	// Parse whitelist (comma-separated IPs or CIDRs)
	if whitelist := os.Getenv("RATE_LIMIT_WHITELIST"); whitelist != "" {
		for _, entry := range strings.Split(whitelist, ",") {
			entry = strings.TrimSpace(entry)
			if entry != "" {
				cfg.RateLimitWhitelist = append(cfg.RateLimitWhitelist, entry)
			}
		}
	}

	// In production, require redis and a real compliance token
	if cfg.Env == "production" {
		if cfg.RedisURL == "" {
			panic("REDIS_URL is required in production")
		}
		if os.Getenv("COMPLIANCE_TOKEN") == "" {
			panic("COMPLIANCE_TOKEN is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
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
