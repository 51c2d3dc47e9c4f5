package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	retryHeader = "x-retry-count"
	retryDelay  = 5 * time.Second
)

// ErrPermanent marks a message that must go straight to the DLQ.
var ErrPermanent = errors.New("permanent failure")

type Handler func(ctx context.Context, body []byte) error

type Consumer struct {
	conn        *amqp.Connection
	ch          *amqp.Channel
	queue       string
	concurrency int
	maxRetries  int
}

func NewConsumer(url, queue string, concurrency, maxRetries int) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbit dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbit channel: %w", err)
	}
	if err := declareTopology(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	// strict concurrency control
	if err := ch.Qos(concurrency, 0, false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("qos: %w", err)
	}
	return &Consumer{conn: conn, ch: ch, queue: queue, concurrency: concurrency, maxRetries: maxRetries}, nil
}

func (c *Consumer) Close() error {
	_ = c.ch.Close()
	return c.conn.Close()
}

// Run dispatches deliveries to a fixed worker pool until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	msgs, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	slog.Info("worker started", "queue", c.queue, "concurrency", c.concurrency)

	// worker pool
	jobs := make(chan amqp.Delivery, c.concurrency*2)

	var wg sync.WaitGroup
	wg.Add(c.concurrency)
	for i := 0; i < c.concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				start := time.Now()
				if err := handle(ctx, d.Body); err != nil {
					slog.Error("event failed", "worker", workerID, "cost", time.Since(start), "error", err)
					c.retryOrDrop(ctx, d, err)
					continue
				}
				if err := d.Ack(false); err != nil {
					slog.Error("ack failed", "worker", workerID, "error", err)
				}
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			slog.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return nil

		case d, ok := <-msgs:
			if !ok {
				close(jobs)
				wg.Wait()
				return errors.New("delivery channel closed")
			}
			jobs <- d
		}
	}
}

// retryOrDrop republishes a failed delivery to the retry queue until maxRetries,
// then nacks it into the DLQ.
func (c *Consumer) retryOrDrop(ctx context.Context, d amqp.Delivery, cause error) {
	attempt := retryCount(d.Headers) + 1
	if errors.Is(cause, ErrPermanent) || attempt > c.maxRetries {
		_ = d.Nack(false, false)
		return
	}

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	err := c.ch.PublishWithContext(cctx, "", RetryQueue(c.queue), false, false, amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		Body:         d.Body,
		Headers:      amqp.Table{retryHeader: int32(attempt)},
		Expiration:   strconv.FormatInt(retryDelay.Milliseconds(), 10),
		Timestamp:    time.Now(),
	})
	if err != nil {
		slog.Error("retry publish failed", "error", err)
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

func retryCount(h amqp.Table) int {
	switch v := h[retryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
