package chat

import (
	"context"
	"errors"
	"time"

	"github.com/suPer8Hu/sealchat/internal/persona"
	"gorm.io/gorm"
)

// ErrSessionNotFound covers both missing sessions and sessions owned by someone else.
var ErrSessionNotFound = errors.New("chat session not found")

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) GetSession(ctx context.Context, owner uint64, sessionID string) (*Session, error) {
	var s Session
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", sessionID, owner).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// EnsureSession creates the session on first reference and bumps updated_at otherwise.
// created reports whether this call inserted the row.
func (r *Repo) EnsureSession(ctx context.Context, sessionID string, owner uint64, title, mode string) (*Session, bool, error) {
	var s Session
	err := r.db.WithContext(ctx).First(&s, "id = ?", sessionID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		s = Session{ID: sessionID, UserID: owner, Title: title, Mode: mode}
		if err := r.db.WithContext(ctx).Create(&s).Error; err != nil {
			return nil, false, err
		}
		return &s, true, nil
	case err != nil:
		return nil, false, err
	}

	if s.UserID != owner {
		return nil, false, ErrSessionNotFound
	}
	now := time.Now()
	if err := r.db.WithContext(ctx).Model(&s).UpdateColumn("updated_at", now).Error; err != nil {
		return nil, false, err
	}
	s.UpdatedAt = now
	return &s, false, nil
}

func (r *Repo) InsertMessage(ctx context.Context, m *Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// ListRecentMessages returns the newest limit messages of a session in chronological order.
func (r *Repo) ListRecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 11
	}
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id DESC").
		Limit(limit).
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	// reverse to ASC (oldest -> newest)
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// ListMessages returns every message of an owned session, oldest first.
func (r *Repo) ListMessages(ctx context.Context, owner uint64, sessionID string) ([]Message, error) {
	if _, err := r.GetSession(ctx, owner, sessionID); err != nil {
		return nil, err
	}
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListSessions returns the owner's sessions, most recently active first. An empty mode
// lists everything; casual also matches legacy rows without a mode.
func (r *Repo) ListSessions(ctx context.Context, owner uint64, mode string) ([]Session, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", owner)
	switch {
	case mode == "":
	case persona.ParseMode(mode) == persona.Casual:
		q = q.Where("(mode = ? OR mode = '' OR mode IS NULL)", string(persona.Casual))
	default:
		q = q.Where("mode = ?", string(persona.Professional))
	}

	var sessions []Session
	if err := q.Order("updated_at DESC").Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

// DeleteSession removes the session and all of its messages in one transaction.
func (r *Repo) DeleteSession(ctx context.Context, owner uint64, sessionID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s Session
		err := tx.Where("id = ? AND user_id = ?", sessionID, owner).First(&s).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		if err := tx.Where("session_id = ?", sessionID).Delete(&Message{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&s)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrSessionNotFound
		}
		return nil
	})
}
