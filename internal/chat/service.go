package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/suPer8Hu/sealchat/internal/ai"
	"github.com/suPer8Hu/sealchat/internal/persona"
	"github.com/suPer8Hu/sealchat/internal/speech"
)

var ErrEmptyMessage = errors.New("message is empty")

const (
	defaultHistoryWindow = 10
	titleLen             = 50
	realtimeTitleLen     = 20

	EventQuestionAsked = "question_asked"
)

type EventType string

const (
	EventSessionUpdate EventType = "session_update"
	EventMessage       EventType = "message"
	EventAudio         EventType = "audio"
	EventDone          EventType = "done"
	EventError         EventType = "error"
)

// StreamEvent is one item of a reply stream. A stream ends with exactly one
// EventDone or EventError unless the caller's context is cancelled first.
type StreamEvent struct {
	Type      EventType
	SessionID string
	Delta     string
	Audio     []byte
	Err       error
}

// EventRecorder receives learning events produced as a side effect of chatting.
type EventRecorder interface {
	Record(ctx context.Context, userID uint64, eventType, content string) error
}

type Deps struct {
	Repo     *Repo
	LLM      ai.StreamProvider
	Personas *persona.Selector
	// Speech and Events are optional.
	Speech        speech.Synthesizer
	Events        EventRecorder
	UploadDir     string
	HistoryWindow int
}

type Service struct {
	repo          *Repo
	llm           ai.StreamProvider
	personas      *persona.Selector
	speech        speech.Synthesizer
	events        EventRecorder
	uploadDir     string
	historyWindow int
}

func NewService(d Deps) *Service {
	if d.HistoryWindow <= 0 || d.HistoryWindow > 100 {
		d.HistoryWindow = defaultHistoryWindow
	}
	if d.Personas == nil {
		d.Personas = persona.NewSelector(persona.Prompts{})
	}
	return &Service{
		repo:          d.Repo,
		llm:           d.LLM,
		personas:      d.Personas,
		speech:        d.Speech,
		events:        d.Events,
		uploadDir:     d.UploadDir,
		historyWindow: d.HistoryWindow,
	}
}

// Turn is one inbound message on the request channel.
type Turn struct {
	UserID      uint64
	SessionID   string
	Message     string
	Mode        string
	Attachments []Attachment
}

// SendMessageStream resolves the session and stores the user message before returning,
// then streams the reply on the returned channel. Only session ownership failures are
// returned as errors; storage errors are logged and the reply still proceeds.
func (s *Service) SendMessageStream(ctx context.Context, t Turn) (string, <-chan StreamEvent, error) {
	if strings.TrimSpace(t.Message) == "" && len(t.Attachments) == 0 {
		return "", nil, ErrEmptyMessage
	}

	sessionID := strings.TrimSpace(t.SessionID)
	if sessionID == "" {
		sessionID = NewSessionID()
	}

	mode := persona.ParseMode(t.Mode)
	sess, _, err := s.repo.EnsureSession(ctx, sessionID, t.UserID, titleFrom(t.Message, titleLen), string(mode))
	if errors.Is(err, ErrSessionNotFound) {
		return "", nil, err
	}
	if err != nil {
		slog.Error("ensure chat session failed", "session_id", sessionID, "user_id", t.UserID, "error", err)
	} else if strings.TrimSpace(t.Mode) == "" {
		mode = persona.ParseMode(sess.Mode)
	}

	currentID := s.saveMessage(ctx, sessionID, ai.RoleUser, t.Message, t.Attachments)
	s.recordQuestion(ctx, t.UserID, t.Message)

	out := make(chan StreamEvent, 16)
	go func() {
		defer close(out)

		if !emit(ctx, out, StreamEvent{Type: EventSessionUpdate, SessionID: sessionID}) {
			return
		}

		msgs := s.buildPrompt(ctx, s.personas.System(mode), sessionID, currentID, t.Message, t.Attachments)
		chunks, errs := s.llm.StreamChat(ctx, msgs, s.personas.Sampling(mode))

		reply, streamErr := consume(ctx, chunks, errs, func(delta string) bool {
			return emit(ctx, out, StreamEvent{Type: EventMessage, SessionID: sessionID, Delta: delta})
		})
		s.finish(ctx, out, sessionID, reply, streamErr)
	}()

	return sessionID, out, nil
}

// RealtimeTurn is one voice transcript on the realtime channel.
type RealtimeTurn struct {
	UserID     uint64
	SessionID  string
	Message    string
	VisualNote string
}

// RealtimeReply streams text deltas plus sentence-sized audio chunks for one transcript.
func (s *Service) RealtimeReply(ctx context.Context, t RealtimeTurn) (<-chan StreamEvent, error) {
	if strings.TrimSpace(t.Message) == "" {
		return nil, ErrEmptyMessage
	}
	if _, _, err := s.repo.EnsureSession(ctx, t.SessionID, t.UserID, titleFrom(t.Message, realtimeTitleLen), string(persona.Casual)); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
		slog.Error("ensure realtime session failed", "session_id", t.SessionID, "user_id", t.UserID, "error", err)
	}

	currentID := s.saveMessage(ctx, t.SessionID, ai.RoleUser, t.Message, nil)
	s.recordQuestion(ctx, t.UserID, t.Message)

	out := make(chan StreamEvent, 16)
	go func() {
		defer close(out)

		msgs := s.buildPrompt(ctx, s.personas.Realtime(t.VisualNote), t.SessionID, currentID, t.Message, nil)
		chunks, errs := s.llm.StreamChat(ctx, msgs, s.personas.RealtimeSampling())

		var sentences speech.SentenceBuffer
		reply, streamErr := consume(ctx, chunks, errs, func(delta string) bool {
			if !emit(ctx, out, StreamEvent{Type: EventMessage, SessionID: t.SessionID, Delta: delta}) {
				return false
			}
			if sentence, ok := sentences.Push(delta); ok {
				return s.emitAudio(ctx, out, t.SessionID, sentence)
			}
			return true
		})
		if streamErr == nil {
			if sentence, ok := sentences.Flush(); ok && !s.emitAudio(ctx, out, t.SessionID, sentence) {
				streamErr = ctx.Err()
			}
		}
		s.finish(ctx, out, t.SessionID, reply, streamErr)
	}()

	return out, nil
}

// SaveExchange persists a question and an answer produced without the model.
func (s *Service) SaveExchange(ctx context.Context, owner uint64, sessionID, question, answer string) error {
	if _, _, err := s.repo.EnsureSession(ctx, sessionID, owner, titleFrom(question, realtimeTitleLen), string(persona.Casual)); err != nil {
		return err
	}
	if err := s.repo.InsertMessage(ctx, &Message{SessionID: sessionID, Role: ai.RoleUser, Content: question}); err != nil {
		return err
	}
	s.recordQuestion(ctx, owner, question)
	return s.repo.InsertMessage(ctx, &Message{SessionID: sessionID, Role: ai.RoleAssistant, Content: answer})
}

// Synthesize exposes the speech backend to callers that need audio outside a reply stream.
func (s *Service) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if s.speech == nil {
		return nil, errors.New("speech synthesis is not configured")
	}
	return s.speech.Synthesize(ctx, text)
}

func (s *Service) ListSessions(ctx context.Context, owner uint64, mode string) ([]Session, error) {
	return s.repo.ListSessions(ctx, owner, mode)
}

func (s *Service) ListMessages(ctx context.Context, owner uint64, sessionID string) ([]Message, error) {
	return s.repo.ListMessages(ctx, owner, sessionID)
}

func (s *Service) DeleteSession(ctx context.Context, owner uint64, sessionID string) error {
	return s.repo.DeleteSession(ctx, owner, sessionID)
}

// NewSessionID returns a random 128-bit identifier.
func NewSessionID() string {
	return uuid.NewString()
}

func (s *Service) buildPrompt(ctx context.Context, system, sessionID string, currentID uint64, current string, attachments []Attachment) []ai.Message {
	msgs := []ai.Message{{Role: ai.RoleSystem, Content: system}}

	rows, err := s.repo.ListRecentMessages(ctx, sessionID, s.historyWindow+1)
	if err != nil {
		slog.Error("load chat history failed", "session_id", sessionID, "error", err)
	}
	msgs = append(msgs, historyContext(rows, currentID, current, s.historyWindow)...)

	if len(attachments) == 0 {
		return append(msgs, ai.Message{Role: ai.RoleUser, Content: current})
	}

	parts := []ai.ContentPart{{Type: ai.PartText, Text: current}}
	for _, a := range attachments {
		part, err := loadImagePart(s.uploadDir, a.URL)
		if err != nil {
			slog.Warn("skipping attachment", "session_id", sessionID, "url", a.URL, "error", err)
			continue
		}
		parts = append(parts, part)
	}
	if len(parts) == 1 {
		return append(msgs, ai.Message{Role: ai.RoleUser, Content: current})
	}
	return append(msgs, ai.Message{Role: ai.RoleUser, Parts: parts})
}

// finish persists whatever text accumulated, then emits the terminal event.
func (s *Service) finish(ctx context.Context, out chan<- StreamEvent, sessionID, reply string, streamErr error) {
	if reply != "" {
		// partial replies are kept when the client goes away
		s.saveMessage(context.WithoutCancel(ctx), sessionID, ai.RoleAssistant, reply, nil)
	}
	if ctx.Err() != nil {
		return
	}
	if streamErr != nil {
		slog.Error("chat stream failed", "session_id", sessionID, "error", streamErr)
		emit(ctx, out, StreamEvent{Type: EventError, SessionID: sessionID, Err: streamErr})
		return
	}
	emit(ctx, out, StreamEvent{Type: EventDone, SessionID: sessionID})
}

// saveMessage returns the new row id, or 0 when the write failed.
func (s *Service) saveMessage(ctx context.Context, sessionID, role, content string, attachments []Attachment) uint64 {
	m := &Message{SessionID: sessionID, Role: role, Content: content}
	if len(attachments) > 0 {
		if b, err := json.Marshal(attachments); err == nil {
			m.Attachments = b
		}
	}
	if err := s.repo.InsertMessage(ctx, m); err != nil {
		slog.Error("save chat message failed", "session_id", sessionID, "role", role, "error", err)
		return 0
	}
	return m.ID
}

func (s *Service) recordQuestion(ctx context.Context, userID uint64, content string) {
	if s.events == nil {
		return
	}
	if err := s.events.Record(ctx, userID, EventQuestionAsked, content); err != nil {
		slog.Error("record learning event failed", "user_id", userID, "error", err)
	}
}

// emitAudio synthesizes one sentence. Synthesis failures are logged and the sentence is
// skipped; false means the consumer is gone.
func (s *Service) emitAudio(ctx context.Context, out chan<- StreamEvent, sessionID, sentence string) bool {
	if s.speech == nil {
		return true
	}
	audio, err := s.speech.Synthesize(ctx, sentence)
	if err != nil {
		slog.Warn("sentence synthesis failed", "session_id", sessionID, "error", err)
		return ctx.Err() == nil
	}
	return emit(ctx, out, StreamEvent{Type: EventAudio, SessionID: sessionID, Audio: audio})
}

func emit(ctx context.Context, out chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// consume drains a provider stream, handing each delta to onDelta. It returns the
// accumulated text and the provider error, or ctx.Err() when onDelta stopped early.
func consume(ctx context.Context, chunks <-chan string, errs <-chan error, onDelta func(string) bool) (string, error) {
	var b strings.Builder
	for c := range chunks {
		b.WriteString(c)
		if !onDelta(c) {
			return b.String(), ctx.Err()
		}
	}
	if err := <-errs; err != nil {
		return b.String(), err
	}
	return b.String(), nil
}
