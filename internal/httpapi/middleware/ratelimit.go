package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/sealchat/internal/common"
	"github.com/suPer8Hu/sealchat/internal/ratelimit"
)

// RateLimit keys the limiter by client IP. Limiter errors let the request through.
func RateLimit(l ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil {
			c.Next()
			return
		}
		ok, err := l.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			slog.Warn("rate limiter unavailable", "error", err)
			c.Next()
			return
		}
		if !ok {
			common.AbortFail(c, http.StatusTooManyRequests, 42900, "rate limit exceeded, please try again later")
			return
		}
		c.Next()
	}
}
