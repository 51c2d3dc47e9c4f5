package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/sealchat/internal/chat"
	"github.com/suPer8Hu/sealchat/internal/common"
)

type chatFile struct {
	Type           string `json:"type"`
	TransferMethod string `json:"transfer_method"`
	URL            string `json:"url"`
	UploadFileID   string `json:"upload_file_id"`
}

type chatReq struct {
	Message   string     `json:"message"`
	SessionID string     `json:"session_id"`
	Mode      string     `json:"mode"`
	Files     []chatFile `json:"files"`
}

func (r chatReq) attachments() []chat.Attachment {
	var out []chat.Attachment
	for _, f := range r.Files {
		if f.Type != "" && f.Type != "image" {
			continue
		}
		url := strings.TrimSpace(f.URL)
		if url == "" && f.UploadFileID != "" {
			url = "/uploads/" + f.UploadFileID
		}
		if url != "" {
			out = append(out, chat.Attachment{URL: url})
		}
	}
	return out
}

// Chat streams the reply as server-sent events: session_update, message*, then done or error.
func (h *Handler) Chat(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		unauthorized(c)
		return
	}

	var req chatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	ctx := c.Request.Context()
	sessionID, events, err := h.ChatSvc.SendMessageStream(ctx, chat.Turn{
		UserID:      uid,
		SessionID:   req.SessionID,
		Message:     req.Message,
		Mode:        req.Mode,
		Attachments: req.attachments(),
	})
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		common.Fail(c, http.StatusBadRequest, 10002, "message required")
		return
	case errors.Is(err, chat.ErrSessionNotFound):
		common.Fail(c, http.StatusNotFound, 40004, "session not found")
		return
	case err != nil:
		slog.Error("start chat stream failed", "user_id", uid, "error", err)
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		common.Fail(c, http.StatusInternalServerError, 50003, "streaming not supported")
		return
	}

	// SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // helpful if behind nginx

	// avoid gin writing a JSON response later
	c.Status(http.StatusOK)

	writeJSON := func(payload gin.H) {
		b, err := json.Marshal(payload)
		if err != nil {
			// last-resort: send a simple error that won't break SSE framing
			fmt.Fprint(c.Writer, "data: {\"event\":\"error\",\"message\":\"json marshal failed\"}\n\n")
			flusher.Flush()
			return
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", b)
		flusher.Flush()
	}

	// heartbeat ticker (keeps connections alive)
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case chat.EventSessionUpdate:
				writeJSON(gin.H{"event": "session_update", "session_id": ev.SessionID})
			case chat.EventMessage:
				writeJSON(gin.H{"event": "message", "answer": ev.Delta})
			case chat.EventDone:
				writeJSON(gin.H{"event": "done", "session_id": sessionID})
			case chat.EventError:
				msg := "stream failed"
				if ev.Err != nil {
					msg = ev.Err.Error()
				}
				writeJSON(gin.H{"event": "error", "message": msg})
			}

		case <-ticker.C:
			fmt.Fprint(c.Writer, ": ping\n\n")
			flusher.Flush()

		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) ListSessions(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		unauthorized(c)
		return
	}
	sessions, err := h.ChatSvc.ListSessions(c.Request.Context(), uid, c.Query("mode"))
	if err != nil {
		slog.Error("list sessions failed", "user_id", uid, "error", err)
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list sessions")
		return
	}
	common.OK(c, gin.H{"sessions": sessions})
}

func (h *Handler) ListMessages(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		unauthorized(c)
		return
	}
	msgs, err := h.ChatSvc.ListMessages(c.Request.Context(), uid, c.Param("session_id"))
	if err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			common.Fail(c, http.StatusNotFound, 40004, "session not found")
			return
		}
		slog.Error("list messages failed", "user_id", uid, "error", err)
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list messages")
		return
	}
	common.OK(c, gin.H{"messages": msgs})
}

func (h *Handler) DeleteSession(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		unauthorized(c)
		return
	}
	sessionID := c.Param("session_id")
	if err := h.ChatSvc.DeleteSession(c.Request.Context(), uid, sessionID); err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			common.Fail(c, http.StatusNotFound, 40004, "session not found")
			return
		}
		slog.Error("delete session failed", "user_id", uid, "session_id", sessionID, "error", err)
		common.Fail(c, http.StatusInternalServerError, 50004, "failed to delete session")
		return
	}
	common.OK(c, gin.H{"session_id": sessionID})
}
