package learning

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	EventLogin         = "login"
	EventQuestionAsked = "question_asked"
	EventQuizResult    = "quiz_result"
	EventAIAnalysis    = "ai_analysis"
)

// Record is an append-only audit row feeding the learning dashboard.
type Record struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint64    `gorm:"index:idx_learning_user_type,priority:1;not null" json:"-"`
	EventType string    `gorm:"type:varchar(32);index:idx_learning_user_type,priority:2;not null" json:"event_type"`
	Content   string    `gorm:"type:text" json:"content"`
	Score     *int      `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

func (Record) TableName() string { return "learning_records" }

// Event is the queue payload for a record produced elsewhere.
type Event struct {
	UserID     uint64    `json:"user_id"`
	EventType  string    `json:"event_type"`
	Content    string    `json:"content,omitempty"`
	Score      *int      `json:"score,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e Event) Record() *Record {
	r := &Record{UserID: e.UserID, EventType: e.EventType, Content: e.Content, Score: e.Score}
	if !e.OccurredAt.IsZero() {
		r.CreatedAt = e.OccurredAt
	}
	return r
}

var ErrInvalidEvent = errors.New("invalid learning event")

// DecodeEvent parses a queue payload. Malformed JSON, a zero user or a blank type
// wrap ErrInvalidEvent; redelivering those cannot help.
func DecodeEvent(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return ev, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	ev.EventType = strings.TrimSpace(ev.EventType)
	if ev.UserID == 0 || ev.EventType == "" {
		return ev, fmt.Errorf("%w: user_id and event_type are required", ErrInvalidEvent)
	}
	return ev, nil
}
