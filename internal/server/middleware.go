package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/consultapj/consultapj/internal/usercontext"
	"github.com/gin-gonic/gin"
)

// UserAuthMiddleware resolves the calling user from the X-User-ID header.
// Authentication proper happens at the edge; this service trusts the gateway
// and only needs the identity for ledger and consultation scoping.
func UserAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader("X-User-ID"))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		userID, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		ctx := usercontext.WithUserID(c.Request.Context(), userID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func currentUserID(c *gin.Context) (snowflake.ID, bool) {
	return usercontext.UserIDFromContext(c.Request.Context())
}

// consultationRateLimit throttles consultation submissions per user. The
// limiter is nil when rate limiting is disabled, in which case this is a
// pass-through.
func (s *Server) consultationRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}
		userID, ok := currentUserID(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		result, err := s.limiter.Allow(c.Request.Context(), userID)
		if err != nil {
			// Redis being down must not block paying customers.
			c.Next()
			return
		}
		if !result.Allowed {
			if result.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())+1))
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: errorPayload{
				Type:    "rate_limited",
				Message: "too many consultation requests",
			}})
			return
		}
		c.Next()
	}
}
