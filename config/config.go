package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Trading service credentials
	Username   string
	Password   string
	TOTPSecret string // optional second factor; empty disables TOTP

	// Trading service endpoints
	APIBaseURL    string // REST base, e.g. http://localhost:8080/api/v1
	FeedWSURL     string // websocket feed endpoint
	FeedStreamURL string // streaming-HTTP fallback endpoint
	FeedTopic     string

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	JournalPath   string
	MetricsAddr   string

	// Behaviour
	FeedRetryDelay time.Duration // delay between feed reconnect attempts
	QuoteTTL       time.Duration // max age of a shown quote before confirm is refused
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is honoured when present.
func Load() *Config {
	// Missing .env is fine outside local development.
	_ = godotenv.Load()

	return &Config{
		Username:   mustEnv("DESK_USERNAME"),
		Password:   mustEnv("DESK_PASSWORD"),
		TOTPSecret: getEnv("DESK_TOTP_SECRET", ""),

		APIBaseURL:    getEnv("API_BASE_URL", "http://localhost:8080/api/v1"),
		FeedWSURL:     getEnv("FEED_WS_URL", "ws://localhost:8080/ws-trading"),
		FeedStreamURL: getEnv("FEED_STREAM_URL", "http://localhost:8080/stream/prices"),
		FeedTopic:     getEnv("FEED_TOPIC", "prices"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		JournalPath:   getEnv("JOURNAL_PATH", "data/fills.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),

		FeedRetryDelay: getEnvSeconds("FEED_RETRY_DELAY_SEC", 5),
		QuoteTTL:       getEnvSeconds("QUOTE_TTL_SEC", 30),
	}
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return v
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvSeconds(key string, fallback int) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return time.Duration(fallback) * time.Second
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("[config] ignoring invalid %s value: %q", key, v)
		return time.Duration(fallback) * time.Second
	}
	return time.Duration(n) * time.Second
}
