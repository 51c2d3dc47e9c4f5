package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/suPer8Hu/sealchat/internal/ai"
	"github.com/suPer8Hu/sealchat/internal/chat"
	"github.com/suPer8Hu/sealchat/internal/config"
	"github.com/suPer8Hu/sealchat/internal/db"
	"github.com/suPer8Hu/sealchat/internal/httpapi"
	"github.com/suPer8Hu/sealchat/internal/learning"
	"github.com/suPer8Hu/sealchat/internal/persona"
	"github.com/suPer8Hu/sealchat/internal/ratelimit"
	"github.com/suPer8Hu/sealchat/internal/speech"
	"github.com/suPer8Hu/sealchat/internal/store/rabbitmq"
	"github.com/suPer8Hu/sealchat/internal/store/redisstore"
	"github.com/suPer8Hu/sealchat/internal/vision"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		slog.Error("db connect failed", "error", err)
		os.Exit(1)
	}
	if err := db.Migrate(gdb); err != nil {
		slog.Error("db migrate failed", "error", err)
		os.Exit(1)
	}

	provider, streamer, err := newRegistry(cfg).GetStreaming(ctx, cfg.AIProvider, "")
	if err != nil {
		slog.Error("ai provider init failed", "provider", cfg.AIProvider, "error", err)
		os.Exit(1)
	}

	personas, err := persona.LoadSelector(cfg.PersonaFile)
	if err != nil {
		slog.Error("persona load failed", "file", cfg.PersonaFile, "error", err)
		os.Exit(1)
	}

	// keep the interfaces nil unless the backend is configured
	var synth speech.Synthesizer
	nls := speech.NewAliyunNLS(speech.NLSConfig{
		AppKey:          cfg.NLSAppKey,
		AccessKeyID:     cfg.NLSAccessKeyID,
		AccessKeySecret: cfg.NLSAccessKeySecret,
		StaticToken:     cfg.NLSToken,
		Voice:           cfg.TTSVoice,
	})
	if nls.Enabled() {
		synth = nls
	} else {
		slog.Warn("aliyun nls not configured, speech disabled")
	}

	var classifier vision.Classifier
	if cfg.VisionURL != "" {
		classifier = vision.NewHTTPClassifier(cfg.VisionURL)
	}

	learnRepo := learning.NewRepo(gdb)

	var events chat.EventRecorder = learning.NewDBRecorder(learnRepo)
	if cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			slog.Error("rabbitmq publisher init failed", "error", err)
			os.Exit(1)
		}
		defer pub.Close()
		events = pub
	}

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rds.Close()
	limiter, kind := ratelimit.New(ctx, rds, cfg.RateLimitPerMinute, time.Minute)

	chatSvc := chat.NewService(chat.Deps{
		Repo:          chat.NewRepo(gdb),
		LLM:           streamer,
		Personas:      personas,
		Speech:        synth,
		Events:        events,
		UploadDir:     cfg.UploadDir,
		HistoryWindow: cfg.ChatHistoryWindow,
	})

	r := httpapi.NewRouter(httpapi.Deps{
		DB:       gdb,
		Cfg:      cfg,
		Chat:     chatSvc,
		Learning: learning.NewService(learnRepo, provider),
		Speech:   synth,
		Vision:   classifier,
		Limiter:  limiter,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("api listening",
		"addr", cfg.Addr,
		"provider", cfg.AIProvider,
		"rate_limiter", kind,
		"speech", synth != nil,
		"vision", classifier != nil,
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// newRegistry registers every supported completion backend; an empty model picks the configured default.
func newRegistry(cfg config.Config) *ai.Registry {
	reg := ai.NewRegistry()
	pick := func(model, fallback string) string {
		if m := strings.TrimSpace(model); m != "" {
			return m
		}
		return fallback
	}

	reg.Register("openai", func(ctx context.Context, model string) (ai.Provider, error) {
		return ai.NewOpenAIProvider(cfg.LLMBaseURL, cfg.LLMAPIKey, pick(model, cfg.LLMModel)), nil
	})
	reg.Register("openrouter", func(ctx context.Context, model string) (ai.Provider, error) {
		return ai.NewOpenRouterProvider(cfg.LLMBaseURL, cfg.LLMAPIKey, pick(model, cfg.LLMModel), cfg.OpenRouterSiteURL, cfg.OpenRouterAppName), nil
	})
	reg.Register("ollama", func(ctx context.Context, model string) (ai.Provider, error) {
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, pick(model, cfg.OllamaModel)), nil
	})
	reg.Register("eino", func(ctx context.Context, model string) (ai.Provider, error) {
		return ai.NewEinoProvider(ctx, cfg.LLMBaseURL, cfg.LLMAPIKey, pick(model, cfg.LLMModel))
	})
	return reg
}
