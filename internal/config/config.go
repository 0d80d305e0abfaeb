package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the relay.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	SQLitePath  string
	RedisURL    string

	// Identity
	JWTSecret string // HS256 secret shared with the identity issuer

	// Collaborators
	AssistantURL     string
	HistoryURL       string
	AssistantTimeout time.Duration

	// Attachments
	InlineMaxBytes     int64
	AttachmentMaxBytes int64

	// Delivery
	AckTimeout time.Duration
	AckRetries int

	// Sessions
	ReconnectWindow time.Duration
	DedupRetention  time.Duration

	// Rate limiting (messages per session per minute; 0 disables)
	MessageRateLimit int
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  os.Getenv("SQLITE_PATH"),
		RedisURL:    os.Getenv("REDIS_URL"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		AssistantURL:     os.Getenv("ASSISTANT_URL"),
		HistoryURL:       os.Getenv("HISTORY_URL"),
		AssistantTimeout: getDuration("ASSISTANT_TIMEOUT", 15*time.Second),

		InlineMaxBytes:     getInt64("INLINE_MAX_BYTES", 1<<20),
		AttachmentMaxBytes: getInt64("ATTACHMENT_MAX_BYTES", 5<<20),

		AckTimeout: getDuration("ACK_TIMEOUT", 8*time.Second),
		AckRetries: getInt("ACK_RETRIES", 3),

		ReconnectWindow: getDuration("RECONNECT_WINDOW", 60*time.Second),
		DedupRetention:  getDuration("DEDUP_RETENTION", 10*time.Minute),

		MessageRateLimit: getInt("MESSAGE_RATE_LIMIT", 60),
	}

	// In production, require an identity secret and an assistant endpoint.
	if cfg.Env == "production" {
		if cfg.JWTSecret == "" {
			panic("JWT_SECRET is required in production")
		}
		if cfg.AssistantURL == "" {
			panic("ASSISTANT_URL is required in production")
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

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
