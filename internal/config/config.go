package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the settings for both services. Each binary reads the
// fields it needs.
type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	ServerPort string

	AccountServiceURL     string
	AccountServiceTimeout time.Duration

	ReconcileInterval   time.Duration
	ReconcileStuckAfter time.Duration
	ReconcileBatchSize  int
}

// Load reads an optional .env file, then the environment. Missing or
// malformed values fall back to defaults.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to read .env file", "error", err)
	}

	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "p2p_ledger"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		ServerPort: getEnv("SERVER_PORT", "8080"),

		AccountServiceURL:     getEnv("ACCOUNT_SERVICE_URL", "http://localhost:8081"),
		AccountServiceTimeout: getDuration("ACCOUNT_SERVICE_TIMEOUT", 5*time.Second),

		ReconcileInterval:   getDuration("RECONCILE_INTERVAL", 30*time.Second),
		ReconcileStuckAfter: getDuration("RECONCILE_STUCK_AFTER", 5*time.Minute),
		ReconcileBatchSize:  getInt("RECONCILE_BATCH_SIZE", 100),
	}
}

// GetDBConnectionString returns the lib/pq DSN.
func (c *Config) GetDBConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.sslMode())
}

func (c *Config) sslMode() string {
	if c.DBSSLMode == "" {
		return "disable"
	}
	return c.DBSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		slog.Warn("Invalid duration, using default", "key", key, "value", val, "default", fallback.String())
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		slog.Warn("Invalid integer, using default", "key", key, "value", val, "default", fallback)
		return fallback
	}
	return n
}
