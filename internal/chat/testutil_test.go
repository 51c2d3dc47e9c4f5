package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/suPer8Hu/sealchat/internal/ai"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(gormsqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&Session{}, &Message{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// fakeLLM replays scripted deltas and records every prompt it receives.
type fakeLLM struct {
	mu        sync.Mutex
	calls     [][]ai.Message
	samplings []ai.Sampling

	chunks []string
	err    error
	// block keeps the stream open after the scripted deltas until ctx is cancelled.
	block bool
}

func (f *fakeLLM) StreamChat(ctx context.Context, messages []ai.Message, sampling ai.Sampling) (<-chan string, <-chan error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]ai.Message(nil), messages...))
	f.samplings = append(f.samplings, sampling)
	f.mu.Unlock()

	chunks := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		for _, c := range f.chunks {
			select {
			case chunks <- c:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		if f.block {
			<-ctx.Done()
			errs <- ctx.Err()
			return
		}
		if f.err != nil {
			errs <- f.err
		}
	}()
	return chunks, errs
}

func (f *fakeLLM) lastCall(t *testing.T) []ai.Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		t.Fatalf("provider was never called")
	}
	return f.calls[len(f.calls)-1]
}

type echoSpeech struct{}

func (echoSpeech) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return []byte("mp3:" + text), nil
}

type countingRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *countingRecorder) Record(ctx context.Context, userID uint64, eventType, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType+":"+content)
	return nil
}

func drain(ch <-chan StreamEvent) []StreamEvent {
	var out []StreamEvent
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func eventTypes(evs []StreamEvent) []EventType {
	out := make([]EventType, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Type)
	}
	return out
}

func storedMessages(t *testing.T, db *gorm.DB, sessionID string) []Message {
	t.Helper()
	var msgs []Message
	if err := db.Where("session_id = ?", sessionID).Order("id ASC").Find(&msgs).Error; err != nil {
		t.Fatalf("query messages: %v", err)
	}
	return msgs
}
