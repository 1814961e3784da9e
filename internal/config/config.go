package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Backend
	APIBaseURL  string
	HTTPTimeout time.Duration

	// State
	RedisURL        string
	StateDir        string
	SessionCacheTTL time.Duration

	// UI behaviour
	ChatPageSize  int
	LoopInterval  time.Duration
	ToastDuration time.Duration

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:            getEnvOrDefault("PORT", "8090"),
		Env:             getEnvOrDefault("ENV", "development"),
		APIBaseURL:      strings.TrimRight(getEnvOrDefault("API_BASE_URL", "http://localhost:8080/api"), "/"),
		HTTPTimeout:     getEnvAsDurationOrDefault("HTTP_TIMEOUT", 20*time.Second),
		RedisURL:        getEnvOrDefault("REDIS_URL", ""),
		StateDir:        getEnvOrDefault("STATE_DIR", "./.recipe-state"),
		SessionCacheTTL: getEnvAsDurationOrDefault("SESSION_CACHE_TTL", 24*time.Hour),
		ChatPageSize:    getEnvAsIntOrDefault("CHAT_PAGE_SIZE", 5),
		LoopInterval:    getEnvAsDurationOrDefault("LOOP_INTERVAL", 120*time.Millisecond),
		ToastDuration:   getEnvAsDurationOrDefault("TOAST_DURATION", 2200*time.Millisecond),
		FrontendURL:     getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	// No localhost fallback outside development
	if cfg.Env == "production" {
		cfg.APIBaseURL = strings.TrimRight(mustGetEnv("API_BASE_URL"), "/")
	}

	return cfg
}

// MustAPIBase returns the API base and panics when it is not an absolute
// http(s) URL. Every entry point resolves endpoints against this one value.
func (c *Config) MustAPIBase() string {
	if !strings.HasPrefix(c.APIBaseURL, "http://") && !strings.HasPrefix(c.APIBaseURL, "https://") {
		panic(fmt.Sprintf("API_BASE_URL must be an absolute http(s) URL, got %q", c.APIBaseURL))
	}
	return c.APIBaseURL
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
