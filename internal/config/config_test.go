package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"ADDR", "DB_DSN", "AI_PROVIDER", "CHAT_HISTORY_WINDOW", "WORKER_CONCURRENCY", "ACCESS_TOKEN_TTL"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	if cfg.Addr != ":8000" {
		t.Fatalf("addr = %q", cfg.Addr)
	}
	if cfg.AIProvider != "openai" {
		t.Fatalf("provider = %q", cfg.AIProvider)
	}
	if cfg.ChatHistoryWindow != 10 {
		t.Fatalf("history window = %d", cfg.ChatHistoryWindow)
	}
	if cfg.AccessTokenTTL != 30*time.Minute {
		t.Fatalf("token ttl = %s", cfg.AccessTokenTTL)
	}
	if cfg.WorkerConcurrency != 2 {
		t.Fatalf("worker concurrency = %d", cfg.WorkerConcurrency)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("AI_PROVIDER", "Ollama")
	t.Setenv("WORKER_CONCURRENCY", "500")
	t.Setenv("ACCESS_TOKEN_TTL", "2h")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "not-a-number")

	cfg := Load()
	if cfg.AIProvider != "ollama" {
		t.Fatalf("provider = %q", cfg.AIProvider)
	}
	if cfg.WorkerConcurrency != 50 {
		t.Fatalf("worker concurrency should clamp to 50, got %d", cfg.WorkerConcurrency)
	}
	if cfg.AccessTokenTTL != 2*time.Hour {
		t.Fatalf("token ttl = %s", cfg.AccessTokenTTL)
	}
	if cfg.RateLimitPerMinute != 30 {
		t.Fatalf("bad int should fall back, got %d", cfg.RateLimitPerMinute)
	}
}

func TestSlogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := (Config{LogLevel: in}).SlogLevel(); got != want {
			t.Fatalf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoad_CORSOrigins(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example.com , ,https://b.example.com")
	cfg := Load()
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[0] != "https://a.example.com" || cfg.CORSOrigins[1] != "https://b.example.com" {
		t.Fatalf("cors origins = %q", cfg.CORSOrigins)
	}
}
