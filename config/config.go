package config

import (
	"os"
	"strconv"
	"time"
)

// Config is assembled from the environment. Empty DatabaseURL,
// FirestoreProject and RedisURL leave the matching backend disabled.
type Config struct {
	Addr             string
	DatabaseURL      string
	FirestoreProject string
	RedisURL         string
	CacheDocs        int
	WorkerIdle       time.Duration
	LogLevel         string
}

func Load() Config {
	return Config{
		Addr:             getenv("OUTLINE_ADDR", ":8080"),
		DatabaseURL:      getenv("DATABASE_URL", ""),
		FirestoreProject: getenv("FIRESTORE_PROJECT", ""),
		RedisURL:         getenv("REDIS_URL", ""),
		CacheDocs:        getenvInt("OUTLINE_CACHE_DOCS", 0),
		WorkerIdle:       time.Duration(getenvInt("OUTLINE_WORKER_IDLE_SECONDS", 120)) * time.Second,
		LogLevel:         getenv("LOG_LEVEL", "info"),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
