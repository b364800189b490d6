package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Storage
	StorageType   string
	DatabaseURL   string
	MigrationsDir string

	// Redis; empty selects the in-process activity transport
	RedisURL string

	// JWT
	JWTSecret string

	// Frontend
	FrontendURL string

	// Calendar days for streaks and leaderboard windows
	StudyTimezone string

	LogLevel string

	// Activity fan-out
	BroadcastWorkers   int
	BroadcastQueueSize int
	SubscriberBuffer   int

	// Session starts allowed per user per minute
	StartRateLimit int
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:               getEnvOrDefault("PORT", "8080"),
		Env:                getEnvOrDefault("ENV", "development"),
		StorageType:        strings.ToLower(getEnvOrDefault("STORAGE_TYPE", StoragePostgres)),
		MigrationsDir:      getEnvOrDefault("MIGRATIONS_DIR", "migrations"),
		RedisURL:           getEnvOrDefault("REDIS_URL", ""),
		JWTSecret:          mustGetEnv("JWT_SECRET"),
		FrontendURL:        getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
		StudyTimezone:      getEnvOrDefault("STUDY_TIMEZONE", "UTC"),
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "info"),
		BroadcastWorkers:   getEnvAsIntOrDefault("BROADCAST_WORKERS", 4),
		BroadcastQueueSize: getEnvAsIntOrDefault("BROADCAST_QUEUE_SIZE", 256),
		SubscriberBuffer:   getEnvAsIntOrDefault("SUBSCRIBER_BUFFER", 32),
		StartRateLimit:     getEnvAsIntOrDefault("START_RATE_LIMIT", 30),
	}

	switch cfg.StorageType {
	case StoragePostgres:
		cfg.DatabaseURL = mustGetEnv("DATABASE_URL")
	case StorageMemory:
	default:
		panic(fmt.Sprintf("STORAGE_TYPE must be %q or %q, got %q", StoragePostgres, StorageMemory, cfg.StorageType))
	}

	return cfg
}

// Location resolves StudyTimezone. On an unknown name it returns UTC along
// with the lookup error.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.StudyTimezone)
	if err != nil {
		return time.UTC, fmt.Errorf("unknown STUDY_TIMEZONE %q: %w", c.StudyTimezone, err)
	}
	return loc, nil
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
