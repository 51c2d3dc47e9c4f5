package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/sealchat/internal/common"
	"github.com/suPer8Hu/sealchat/internal/speech"
)

const maxUploadBytes = 10 << 20

// Upload stores one multipart "file" under the upload dir and returns its public URL.
func (h *Handler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	fh, err := c.FormFile("file")
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "file required")
		return
	}

	base := filepath.Base(fh.Filename)
	if base == "." || base == string(filepath.Separator) {
		base = "upload"
	}
	id, err := common.NewULID()
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50005, "upload failed")
		return
	}
	name := id + "_" + strings.ReplaceAll(base, " ", "_")

	if err := os.MkdirAll(h.Cfg.UploadDir, 0o755); err != nil {
		slog.Error("create upload dir failed", "dir", h.Cfg.UploadDir, "error", err)
		common.Fail(c, http.StatusInternalServerError, 50005, "upload failed")
		return
	}
	if err := c.SaveUploadedFile(fh, filepath.Join(h.Cfg.UploadDir, name)); err != nil {
		slog.Error("save upload failed", "name", name, "error", err)
		common.Fail(c, http.StatusInternalServerError, 50005, "upload failed")
		return
	}

	common.OK(c, gin.H{
		"filename": fh.Filename,
		"file_id":  name,
		"url":      "/uploads/" + name,
	})
}

type ttsReq struct {
	Text string `json:"text" binding:"required"`
}

// TTS returns raw mp3 bytes for the given text.
func (h *Handler) TTS(c *gin.Context) {
	var req ttsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "text required")
		return
	}
	if h.Speech == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "tts not configured")
		return
	}

	audio, err := h.ChatSvc.Synthesize(c.Request.Context(), req.Text)
	if err != nil {
		if errors.Is(err, speech.ErrEmptyText) {
			common.Fail(c, http.StatusBadRequest, 10001, "text required")
			return
		}
		slog.Error("tts failed", "error", err)
		common.Fail(c, http.StatusBadGateway, 50201, "tts failed")
		return
	}
	c.Data(http.StatusOK, "audio/mpeg", audio)
}
