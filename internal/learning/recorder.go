package learning

import (
	"context"
	"time"
)

// DBRecorder writes learning events straight to the database.
type DBRecorder struct {
	repo *Repo
}

func NewDBRecorder(repo *Repo) *DBRecorder {
	return &DBRecorder{repo: repo}
}

func (r *DBRecorder) Record(ctx context.Context, userID uint64, eventType, content string) error {
	return r.repo.Insert(ctx, Event{UserID: userID, EventType: eventType, Content: content, OccurredAt: time.Now()}.Record())
}
