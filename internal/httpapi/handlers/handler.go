package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/sealchat/internal/chat"
	"github.com/suPer8Hu/sealchat/internal/common"
	"github.com/suPer8Hu/sealchat/internal/config"
	"github.com/suPer8Hu/sealchat/internal/httpapi/middleware"
	"github.com/suPer8Hu/sealchat/internal/learning"
	"github.com/suPer8Hu/sealchat/internal/speech"
	"github.com/suPer8Hu/sealchat/internal/vision"
	"gorm.io/gorm"
)

type Handler struct {
	DB       *gorm.DB
	Cfg      config.Config
	ChatSvc  *chat.Service
	Learning *learning.Service
	// Speech and Vision are nil when not configured.
	Speech speech.Synthesizer
	Vision vision.Classifier
}

func (h *Handler) Health(c *gin.Context) {
	common.OK(c, gin.H{"status": "healthy"})
}

func userIDFromContext(c *gin.Context) (uint64, bool) {
	return middleware.UserID(c)
}

func unauthorized(c *gin.Context) {
	common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
}
