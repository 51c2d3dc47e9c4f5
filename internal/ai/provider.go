package ai

import (
	"context"
	"strings"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	PartText  = "text"
	PartImage = "image"
)

// ContentPart is one element of a multimodal user turn. Image parts carry
// base64-encoded bytes in Data.
type ContentPart struct {
	Type     string
	Text     string
	MIMEType string
	Data     string
}

// Message is a chat turn. When Parts is non-empty it replaces Content on the wire.
type Message struct {
	Role    string
	Content string
	Parts   []ContentPart
}

// Text returns the plain text of a message, joining text parts when present.
func (m Message) Text() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// Sampling holds optional per-call tuning; nil fields are left to the provider default.
type Sampling struct {
	Temperature      *float64
	PresencePenalty  *float64
	FrequencyPenalty *float64
}

func Float(v float64) *float64 { return &v }

type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// StreamProvider is an optional interface. Providers may implement streaming chat.
// Both returned channels are closed when the stream ends; at most one error is sent.
type StreamProvider interface {
	StreamChat(ctx context.Context, messages []Message, sampling Sampling) (<-chan string, <-chan error)
}
