package rabbitmq

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestRetryCount(t *testing.T) {
	cases := []struct {
		h    amqp.Table
		want int
	}{
		{nil, 0},
		{amqp.Table{}, 0},
		{amqp.Table{retryHeader: int32(2)}, 2},
		{amqp.Table{retryHeader: int64(3)}, 3},
		{amqp.Table{retryHeader: "x"}, 0},
	}
	for _, tc := range cases {
		if got := retryCount(tc.h); got != tc.want {
			t.Fatalf("retryCount(%v) = %d, want %d", tc.h, got, tc.want)
		}
	}
}

func TestQueueNames(t *testing.T) {
	if RetryQueue("learning_events") != "learning_events.retry" || DeadLetterQueue("learning_events") != "learning_events.dlq" {
		t.Fatalf("unexpected queue names")
	}
}
