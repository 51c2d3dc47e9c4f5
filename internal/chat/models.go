package chat

import (
	"time"

	"gorm.io/datatypes"
)

type Session struct {
	ID     string `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID uint64 `gorm:"index;not null" json:"-"`
	Title  string `gorm:"type:varchar(255);not null" json:"title"`
	// Mode is empty on rows created before modes existed; read it through persona.ParseMode.
	Mode      string    `gorm:"type:varchar(16);index" json:"mode"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Session) TableName() string { return "chat_sessions" }

// Message rows are append-only. ID is the order key; CreatedAt can tie.
type Message struct {
	ID          uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID   string         `gorm:"type:varchar(36);index;not null" json:"session_id"`
	Role        string         `gorm:"type:varchar(16);not null" json:"role"`
	Content     string         `gorm:"type:text;not null" json:"content"`
	Attachments datatypes.JSON `json:"attachments,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

func (Message) TableName() string { return "chat_messages" }

// Attachment references a previously uploaded file by its served URL.
type Attachment struct {
	URL string `json:"url"`
}
