package learning

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Insert(ctx context.Context, rec *Record) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *Repo) CountByType(ctx context.Context, userID uint64, eventType string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Record{}).
		Where("user_id = ? AND event_type = ?", userID, eventType).
		Count(&n).Error
	return n, err
}

func (r *Repo) ListByType(ctx context.Context, userID uint64, eventType string) ([]Record, error) {
	var recs []Record
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND event_type = ?", userID, eventType).
		Order("id ASC").
		Find(&recs).Error
	return recs, err
}

// Recent returns the newest records first.
func (r *Repo) Recent(ctx context.Context, userID uint64, limit int) ([]Record, error) {
	var recs []Record
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

// Latest returns the newest record of a type, or nil when there is none.
func (r *Repo) Latest(ctx context.Context, userID uint64, eventType string) (*Record, error) {
	var rec Record
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND event_type = ?", userID, eventType).
		Order("id DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *Repo) userQuestions(ctx context.Context, userID uint64) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("chat_messages").
		Joins("JOIN chat_sessions ON chat_sessions.id = chat_messages.session_id").
		Where("chat_sessions.user_id = ? AND chat_messages.role = ?", userID, "user")
}

// CountQuestions counts the user's chat messages across all sessions.
func (r *Repo) CountQuestions(ctx context.Context, userID uint64) (int64, error) {
	var n int64
	err := r.userQuestions(ctx, userID).Count(&n).Error
	return n, err
}

// RecentQuestions returns the text of the user's newest chat messages, newest first.
func (r *Repo) RecentQuestions(ctx context.Context, userID uint64, limit int) ([]string, error) {
	var out []string
	err := r.userQuestions(ctx, userID).
		Order("chat_messages.id DESC").
		Limit(limit).
		Pluck("chat_messages.content", &out).Error
	return out, err
}
