package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"OUTLINE_ADDR", "DATABASE_URL", "FIRESTORE_PROJECT", "REDIS_URL",
		"OUTLINE_CACHE_DOCS", "OUTLINE_WORKER_IDLE_SECONDS", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q, want :8080", cfg.Addr)
	}
	if cfg.DatabaseURL != "" || cfg.FirestoreProject != "" || cfg.RedisURL != "" {
		t.Errorf("backends should default to disabled: %+v", cfg)
	}
	if cfg.CacheDocs != 0 {
		t.Errorf("CacheDocs = %d, want 0", cfg.CacheDocs)
	}
	if cfg.WorkerIdle != 2*time.Minute {
		t.Errorf("WorkerIdle = %v, want 2m", cfg.WorkerIdle)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("OUTLINE_ADDR", ":9000")
	t.Setenv("DATABASE_URL", "postgres://localhost/outline")
	t.Setenv("OUTLINE_CACHE_DOCS", "16")
	t.Setenv("OUTLINE_WORKER_IDLE_SECONDS", "30")

	cfg := Load()
	if cfg.Addr != ":9000" {
		t.Errorf("Addr = %q, want :9000", cfg.Addr)
	}
	if cfg.DatabaseURL != "postgres://localhost/outline" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.CacheDocs != 16 {
		t.Errorf("CacheDocs = %d, want 16", cfg.CacheDocs)
	}
	if cfg.WorkerIdle != 30*time.Second {
		t.Errorf("WorkerIdle = %v, want 30s", cfg.WorkerIdle)
	}
}

func TestLoadIgnoresBadInt(t *testing.T) {
	t.Setenv("OUTLINE_CACHE_DOCS", "many")

	cfg := Load()
	if cfg.CacheDocs != 0 {
		t.Errorf("CacheDocs = %d, want fallback 0", cfg.CacheDocs)
	}
}
