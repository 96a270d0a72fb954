package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

type Config struct {
	Port        string
	StoreDriver string
	DBPath      string
	DBDebug     bool
	RedisURL    string
	LogLevel    string

	AllowedOrigins []string
	HistoryLimit   int

	PersistQueueSize int
	PersistWorkers   int
	PersistTimeout   time.Duration

	MaxMessageSize     int64
	RateLimitBurst     int
	RateLimitPerSecond float64

	ShutdownTimeout time.Duration
}

func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "3020"),
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", DriverSQLite)),
		DBPath:      getEnv("DB_PATH", "chat.db"),
		DBDebug:     getEnvBool("DB_DEBUG", false),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		AllowedOrigins: getEnvList("ALLOWED_ORIGINS"),
		HistoryLimit:   getEnvInt("HISTORY_LIMIT", 50),

		PersistQueueSize: getEnvInt("PERSIST_QUEUE_SIZE", 256),
		PersistWorkers:   getEnvInt("PERSIST_WORKERS", 1),
		PersistTimeout:   time.Duration(getEnvInt("PERSIST_TIMEOUT_SECONDS", 5)) * time.Second,

		MaxMessageSize:     int64(getEnvInt("MAX_MESSAGE_SIZE", 64*1024)),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 20),
		RateLimitPerSecond: getEnvFloat("RATE_LIMIT_PER_SECOND", 10),

		ShutdownTimeout: time.Duration(getEnvInt("SHUTDOWN_TIMEOUT_SECONDS", 30)) * time.Second,
	}
}

// SlogLevel maps LogLevel to a slog.Level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string) []string {
	var list []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}
