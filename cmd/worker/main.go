package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/suPer8Hu/sealchat/internal/config"
	"github.com/suPer8Hu/sealchat/internal/db"
	"github.com/suPer8Hu/sealchat/internal/learning"
	"github.com/suPer8Hu/sealchat/internal/store/rabbitmq"
)

const maxRetries = 3

func main() {
	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	if cfg.RabbitURL == "" {
		slog.Error("RABBIT_URL is required for the worker")
		os.Exit(1)
	}

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		slog.Error("db connect failed", "error", err)
		os.Exit(1)
	}
	if err := db.Migrate(gdb); err != nil {
		slog.Error("db migrate failed", "error", err)
		os.Exit(1)
	}
	repo := learning.NewRepo(gdb)

	consumer, err := rabbitmq.NewConsumer(cfg.RabbitURL, cfg.RabbitQueue, cfg.WorkerConcurrency, maxRetries)
	if err != nil {
		slog.Error("rabbitmq consumer init failed", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = consumer.Run(ctx, func(ctx context.Context, body []byte) error {
		ev, err := learning.DecodeEvent(body)
		if err != nil {
			return fmt.Errorf("%w: %v", rabbitmq.ErrPermanent, err)
		}

		start := time.Now()
		rec := ev.Record()
		if err := repo.Insert(ctx, rec); err != nil {
			return err
		}
		if cost := time.Since(start); cost > 500*time.Millisecond {
			slog.Warn("slow learning insert", "user_id", ev.UserID, "event_type", ev.EventType, "cost", cost)
		}
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("worker stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("worker shut down")
}
