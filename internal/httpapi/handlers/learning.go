package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/sealchat/internal/common"
	"github.com/suPer8Hu/sealchat/internal/learning"
)

type trackReq struct {
	EventType string `json:"event_type"`
	Content   string `json:"content"`
	Score     *int   `json:"score"`
}

func (h *Handler) TrackEvent(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		unauthorized(c)
		return
	}
	var req trackReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	rec, err := h.Learning.Track(c.Request.Context(), uid, req.EventType, req.Content, req.Score)
	if err != nil {
		if errors.Is(err, learning.ErrEmptyEventType) {
			common.Fail(c, http.StatusBadRequest, 10002, err.Error())
			return
		}
		slog.Error("track event failed", "user_id", uid, "error", err)
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to track event")
		return
	}
	common.OK(c, gin.H{"id": rec.ID})
}

func (h *Handler) Dashboard(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		unauthorized(c)
		return
	}
	d, err := h.Learning.Dashboard(c.Request.Context(), uid)
	if err != nil {
		slog.Error("load dashboard failed", "user_id", uid, "error", err)
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to load dashboard")
		return
	}
	common.OK(c, d)
}

func (h *Handler) Analyze(c *gin.Context) {
	uid, ok := userIDFromContext(c)
	if !ok {
		unauthorized(c)
		return
	}
	analysis, err := h.Learning.Analyze(c.Request.Context(), uid)
	if err != nil {
		slog.Error("learning analysis failed", "user_id", uid, "error", err)
		common.Fail(c, http.StatusBadGateway, 50201, "analysis failed")
		return
	}
	common.OK(c, gin.H{"analysis": analysis})
}
