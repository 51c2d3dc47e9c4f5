package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr           string
	DBDSN          string
	JWTSecret      string
	AccessTokenTTL time.Duration
	LogLevel       string

	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RateLimitPerMinute int

	// AI provider
	AIProvider        string
	LLMBaseURL        string
	LLMAPIKey         string
	LLMModel          string
	OllamaBaseURL     string
	OllamaModel       string
	OpenRouterSiteURL string
	OpenRouterAppName string
	ChatHistoryWindow int

	// Aliyun NLS (text-to-speech)
	NLSAppKey          string
	NLSAccessKeyID     string
	NLSAccessKeySecret string
	NLSToken           string
	TTSVoice           string

	VisionURL   string
	UploadDir   string
	PersonaFile string

	// CORSOrigins may send credentialed requests; everyone else gets "*" without credentials.
	CORSOrigins []string

	// rabbitMQ
	RabbitURL         string
	RabbitQueue       string
	WorkerConcurrency int
}

// Load reads the process environment, after merging an optional .env file.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	return Config{
		Addr:           getEnv("ADDR", ":8000"),
		DBDSN:          getEnv("DB_DSN", "ai_chat.db"),
		JWTSecret:      getEnv("JWT_SECRET", "dev-secret-change-me"),
		AccessTokenTTL: getEnvDuration("ACCESS_TOKEN_TTL", 30*time.Minute),
		LogLevel:       getEnv("LOG_LEVEL", "info"),

		RedisAddr:          getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 30),

		AIProvider:        strings.ToLower(getEnv("AI_PROVIDER", "openai")),
		LLMBaseURL:        getEnv("LLM_BASE_URL", "https://dashscope.aliyuncs.com/compatible-mode/v1"),
		LLMAPIKey:         os.Getenv("LLM_API_KEY"),
		LLMModel:          getEnv("LLM_MODEL", "qwen-vl-max"),
		OllamaBaseURL:     getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:       getEnv("OLLAMA_MODEL", "llava:latest"),
		OpenRouterSiteURL: os.Getenv("OPENROUTER_SITE_URL"),
		OpenRouterAppName: os.Getenv("OPENROUTER_APP_NAME"),
		ChatHistoryWindow: getEnvInt("CHAT_HISTORY_WINDOW", 10),

		NLSAppKey:          os.Getenv("ALIYUN_NLS_APP_KEY"),
		NLSAccessKeyID:     os.Getenv("ALIYUN_ACCESS_KEY_ID"),
		NLSAccessKeySecret: os.Getenv("ALIYUN_ACCESS_KEY_SECRET"),
		NLSToken:           os.Getenv("ALIYUN_NLS_TOKEN"),
		TTSVoice:           getEnv("TTS_VOICE", "jielidou"),

		VisionURL:   os.Getenv("VISION_URL"),
		UploadDir:   getEnv("UPLOAD_DIR", "uploads"),
		PersonaFile: os.Getenv("PERSONA_FILE"),
		CORSOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),

		RabbitURL:         os.Getenv("RABBIT_URL"),
		RabbitQueue:       getEnv("RABBIT_QUEUE", "learning_events"),
		WorkerConcurrency: clamp(getEnvInt("WORKER_CONCURRENCY", 2), 1, 50),
	}
}

// SlogLevel maps LOG_LEVEL onto a slog level; unknown values mean info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
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
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
