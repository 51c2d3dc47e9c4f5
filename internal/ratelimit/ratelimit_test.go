package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestMemory_SlidingWindow(t *testing.T) {
	m := NewMemory(3, time.Minute)
	now := time.Unix(1000, 0)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if ok, _ := m.Allow(ctx, "1.2.3.4"); !ok {
			t.Fatalf("hit %d should pass", i)
		}
		now = now.Add(10 * time.Second)
	}
	if ok, _ := m.Allow(ctx, "1.2.3.4"); ok {
		t.Fatalf("4th hit inside the window should be limited")
	}
	if ok, _ := m.Allow(ctx, "5.6.7.8"); !ok {
		t.Fatalf("keys are independent")
	}

	// the first hit (t=1000) slides out at t=1060
	now = time.Unix(1061, 0)
	if ok, _ := m.Allow(ctx, "1.2.3.4"); !ok {
		t.Fatalf("hit should pass once the oldest entry left the window")
	}
	if ok, _ := m.Allow(ctx, "1.2.3.4"); ok {
		t.Fatalf("window is full again")
	}
}

func TestMemory_ForgetsIdleKeys(t *testing.T) {
	m := NewMemory(2, time.Minute)
	now := time.Unix(1000, 0)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		_, _ = m.Allow(ctx, fmt.Sprintf("10.0.0.%d", i))
	}
	if len(m.hits) != 100 {
		t.Fatalf("expected 100 tracked keys, got %d", len(m.hits))
	}

	now = now.Add(2 * time.Minute)
	if ok, _ := m.Allow(ctx, "10.0.1.1"); !ok {
		t.Fatalf("fresh key should pass")
	}
	if len(m.hits) != 1 {
		t.Fatalf("idle keys should be dropped, %d remain", len(m.hits))
	}
}

func TestNew_FallsBackToMemory(t *testing.T) {
	l, kind := New(context.Background(), nil, 5, time.Minute)
	if kind != "memory" {
		t.Fatalf("kind = %s", kind)
	}
	if _, ok := l.(*Memory); !ok {
		t.Fatalf("expected *Memory, got %T", l)
	}
}
