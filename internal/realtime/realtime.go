// Package realtime runs one voice/video chat connection: gesture shortcuts first,
// then the streamed model reply with sentence audio.
package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/suPer8Hu/sealchat/internal/chat"
	"github.com/suPer8Hu/sealchat/internal/gesture"
	"github.com/suPer8Hu/sealchat/internal/speech"
	"github.com/suPer8Hu/sealchat/internal/vision"
)

const (
	FrameText         = "text"
	FrameAudio        = "audio"
	FrameGestureAck   = "gesture_ack"
	FrameSystemStatus = "system_status"
	FrameHangup       = "hangup"
	FrameDone         = "done"

	FrameVideo = "video_frame"
)

// Frame is every server-to-client message.
type Frame struct {
	Type     string `json:"type"`
	Content  string `json:"content,omitempty"`
	Data     string `json:"data,omitempty"`
	IsDirect bool   `json:"is_direct,omitempty"`
	Gesture  string `json:"gesture,omitempty"`
	Vision   string `json:"vision,omitempty"`
}

type inbound struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// Conn is the transport. ReadText blocks until the next client message.
type Conn interface {
	ReadText(ctx context.Context) (string, error)
	WriteJSON(ctx context.Context, v any) error
}

// Chat is the part of the orchestrator a realtime session needs.
type Chat interface {
	RealtimeReply(ctx context.Context, t chat.RealtimeTurn) (<-chan chat.StreamEvent, error)
	SaveExchange(ctx context.Context, owner uint64, sessionID, question, answer string) error
}

type Session struct {
	UserID    uint64
	SessionID string

	Conn       Conn
	Chat       Chat
	Speech     speech.Synthesizer
	Classifier vision.Classifier // nil disables vision

	// HangupDelay gives the farewell audio time to start before the hangup frame.
	HangupDelay time.Duration
	Now         func() time.Time

	memory gesture.Memory
}

// Run serves the connection until the client goes away or a reply fails.
// Messages are handled strictly one at a time.
func (s *Session) Run(ctx context.Context) error {
	if s.Now == nil {
		s.Now = time.Now
	}

	status := "disabled"
	if s.Classifier != nil {
		status = "enabled"
	}
	if err := s.Conn.WriteJSON(ctx, Frame{Type: FrameSystemStatus, Vision: status}); err != nil {
		return err
	}

	for {
		msg, err := s.Conn.ReadText(ctx)
		if err != nil {
			return err
		}
		if env, ok := parseEnvelope(msg); ok {
			if env.Type == FrameVideo {
				if err := s.handleFrame(ctx, env.Data); err != nil {
					return err
				}
			}
			continue
		}
		if err := s.handleText(ctx, msg); err != nil {
			return err
		}
	}
}

func parseEnvelope(msg string) (inbound, bool) {
	var env inbound
	if !strings.HasPrefix(strings.TrimSpace(msg), "{") {
		return env, false
	}
	if err := json.Unmarshal([]byte(msg), &env); err != nil || env.Type == "" {
		return env, false
	}
	return env, true
}

func (s *Session) handleFrame(ctx context.Context, data string) error {
	if s.Classifier == nil {
		return nil
	}
	frame, err := vision.DecodeFrame(data)
	if err != nil {
		slog.Debug("dropping video frame", "session_id", s.SessionID, "error", err)
		return nil
	}
	labels, err := s.Classifier.Classify(ctx, frame)
	if err != nil {
		slog.Warn("gesture classification failed", "session_id", s.SessionID, "error", err)
		return nil
	}

	label, act := s.memory.Observe(labels, s.Now())
	if !act {
		return nil
	}
	if err := s.Conn.WriteJSON(ctx, Frame{Type: FrameGestureAck, Gesture: label}); err != nil {
		return err
	}
	reply, ok := gesture.CannedReply(label)
	if !ok {
		return nil
	}
	slog.Info("gesture fast path", "session_id", s.SessionID, "gesture", label)
	if err := s.sendDirect(ctx, reply); err != nil {
		return err
	}
	return s.Conn.WriteJSON(ctx, Frame{Type: FrameDone})
}

func (s *Session) handleText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if gesture.IsHangup(text) {
		if err := s.sendDirect(ctx, gesture.Farewell); err != nil {
			return err
		}
		select {
		case <-time.After(s.HangupDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
		return s.Conn.WriteJSON(ctx, Frame{Type: FrameHangup})
	}

	now := s.Now()
	if gesture.IsNumberQuery(text) {
		if n, ok := s.memory.RecentNumber(now); ok {
			answer := gesture.NumberAnswer(n)
			if err := s.Chat.SaveExchange(ctx, s.UserID, s.SessionID, text, answer); err != nil {
				slog.Error("save memory answer failed", "session_id", s.SessionID, "error", err)
			}
			// without speech sendDirect already delivers the answer as text
			if s.Speech != nil {
				if err := s.Conn.WriteJSON(ctx, Frame{Type: FrameText, Content: answer}); err != nil {
					return err
				}
			}
			if err := s.sendDirect(ctx, answer); err != nil {
				return err
			}
			return s.Conn.WriteJSON(ctx, Frame{Type: FrameDone})
		}
	}

	events, err := s.Chat.RealtimeReply(ctx, chat.RealtimeTurn{
		UserID:     s.UserID,
		SessionID:  s.SessionID,
		Message:    text,
		VisualNote: s.memory.VisualNote(now),
	})
	if err != nil {
		return err
	}
	return s.forward(ctx, events)
}

func (s *Session) forward(ctx context.Context, events <-chan chat.StreamEvent) error {
	for ev := range events {
		var err error
		switch ev.Type {
		case chat.EventMessage:
			err = s.Conn.WriteJSON(ctx, Frame{Type: FrameText, Content: ev.Delta})
		case chat.EventAudio:
			err = s.Conn.WriteJSON(ctx, Frame{Type: FrameAudio, Data: base64.StdEncoding.EncodeToString(ev.Audio)})
		case chat.EventDone:
			err = s.Conn.WriteJSON(ctx, Frame{Type: FrameDone})
		case chat.EventError:
			err = ev.Err
			if err == nil {
				err = errors.New("realtime reply failed")
			}
		}
		if err != nil {
			// unblock the producer before giving up on the connection
			go func() {
				for range events {
				}
			}()
			return err
		}
	}
	return ctx.Err()
}

// sendDirect speaks text as interrupting audio; without speech it falls back to a text frame.
func (s *Session) sendDirect(ctx context.Context, text string) error {
	if s.Speech != nil {
		audio, err := s.Speech.Synthesize(ctx, text)
		if err == nil {
			return s.Conn.WriteJSON(ctx, Frame{Type: FrameAudio, Data: base64.StdEncoding.EncodeToString(audio), IsDirect: true})
		}
		slog.Warn("direct synthesis failed", "session_id", s.SessionID, "error", err)
	}
	return s.Conn.WriteJSON(ctx, Frame{Type: FrameText, Content: text})
}
