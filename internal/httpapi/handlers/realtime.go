package handlers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/sealchat/internal/auth"
	"github.com/suPer8Hu/sealchat/internal/chat"
	"github.com/suPer8Hu/sealchat/internal/realtime"
)

const wsReadLimit = 8 << 20 // video frames arrive as base64 JSON

// wsConn adapts websocket.Conn to realtime.Conn.
type wsConn struct {
	ws *websocket.Conn
}

func (c wsConn) ReadText(ctx context.Context) (string, error) {
	_, b, err := c.ws.Read(ctx)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c wsConn) WriteJSON(ctx context.Context, v any) error {
	return wsjson.Write(ctx, c.ws, v)
}

// RealtimeChat serves the voice/video channel. The token travels in the query string
// because browsers cannot set headers on a WebSocket handshake.
func (h *Handler) RealtimeChat(c *gin.Context) {
	sessionID := c.Param("session_id")

	ws, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("failed to accept websocket", "session_id", sessionID, "error", err)
		return
	}
	ws.SetReadLimit(wsReadLimit)

	uid, err := auth.ParseJWT(c.Query("token"), h.Cfg.JWTSecret)
	if err != nil {
		_ = ws.Close(websocket.StatusPolicyViolation, "invalid token")
		return
	}

	slog.Info("realtime connection opened", "user_id", uid, "session_id", sessionID)

	sess := &realtime.Session{
		UserID:      uid,
		SessionID:   sessionID,
		Conn:        wsConn{ws: ws},
		Chat:        h.ChatSvc,
		Speech:      h.Speech,
		Classifier:  h.Vision,
		HangupDelay: 1500 * time.Millisecond,
	}

	err = sess.Run(c.Request.Context())
	switch {
	case websocket.CloseStatus(err) != -1:
		slog.Debug("realtime connection closed by client", "user_id", uid, "session_id", sessionID)
		_ = ws.CloseNow()
	case errors.Is(err, chat.ErrSessionNotFound):
		_ = ws.Close(websocket.StatusPolicyViolation, "session not found")
	case errors.Is(err, context.Canceled):
		_ = ws.CloseNow()
	default:
		slog.Error("realtime session failed", "user_id", uid, "session_id", sessionID, "error", err)
		_ = ws.Close(websocket.StatusInternalError, "reply failed")
	}
}
