package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/sealchat/internal/chat"
	"github.com/suPer8Hu/sealchat/internal/common"
	"github.com/suPer8Hu/sealchat/internal/config"
	"github.com/suPer8Hu/sealchat/internal/httpapi/handlers"
	"github.com/suPer8Hu/sealchat/internal/httpapi/middleware"
	"github.com/suPer8Hu/sealchat/internal/learning"
	"github.com/suPer8Hu/sealchat/internal/ratelimit"
	"github.com/suPer8Hu/sealchat/internal/speech"
	"github.com/suPer8Hu/sealchat/internal/vision"
	"gorm.io/gorm"
)

type Deps struct {
	DB       *gorm.DB
	Cfg      config.Config
	Chat     *chat.Service
	Learning *learning.Service
	Speech   speech.Synthesizer // optional
	Vision   vision.Classifier  // optional
	Limiter  ratelimit.Limiter  // nil disables rate limiting on /api/chat
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.Use(middleware.RequestID())
	r.Use(middleware.CORS(d.Cfg.CORSOrigins))

	h := &handlers.Handler{
		DB:       d.DB,
		Cfg:      d.Cfg,
		ChatSvc:  d.Chat,
		Learning: d.Learning,
		Speech:   d.Speech,
		Vision:   d.Vision,
	}

	r.GET("/health", h.Health)
	r.GET("/ping", h.Health)
	r.Static("/uploads", d.Cfg.UploadDir)

	r.GET("/users/:id", h.GetUserByID)

	// auth
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)
	r.GET("/auth/me", middleware.AuthRequired(d.Cfg.JWTSecret), h.Me)

	// browsers cannot send headers on a websocket handshake; the handler checks ?token=
	r.GET("/api/ws/chat/:session_id", h.RealtimeChat)

	api := r.Group("/api")
	api.Use(middleware.AuthRequired(d.Cfg.JWTSecret))

	chatChain := []gin.HandlerFunc{h.Chat}
	if d.Limiter != nil {
		chatChain = append([]gin.HandlerFunc{middleware.RateLimit(d.Limiter)}, chatChain...)
	}
	api.POST("/chat", chatChain...)
	api.GET("/sessions", h.ListSessions)
	api.GET("/messages/:session_id", h.ListMessages)
	api.DELETE("/sessions/:session_id", h.DeleteSession)

	api.POST("/upload", h.Upload)
	api.POST("/tts", h.TTS)

	api.POST("/learning/track", h.TrackEvent)
	api.GET("/learning/dashboard", h.Dashboard)
	api.POST("/learning/analyze", h.Analyze)

	return r
}
