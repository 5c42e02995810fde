package rest

import (
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/filekeeper/internal/common"
	"github.com/dmitrijs2005/filekeeper/internal/server/auth"
	"github.com/gin-gonic/gin"
)

const ownerKey = "owner_id"

// authMiddleware accepts "Bearer <jwt>" and stores the owner id in the context.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(common.AuthorizationHeaderName)
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || strings.TrimSpace(token) == "" {
			s.abort(c, common.ErrorUnauthorized)
			return
		}

		ownerID, err := auth.GetUserIDFromToken(strings.TrimSpace(token), s.jwtSecret)
		if err != nil {
			if !errors.Is(err, common.ErrTokenExpired) {
				s.logger.Warn(c.Request.Context(), "rejected token", "error", err)
			}
			s.abort(c, common.ErrorUnauthorized)
			return
		}

		c.Set(ownerKey, ownerID)
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		args := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if owner := c.GetString(ownerKey); owner != "" {
			args = append(args, "owner", owner)
		}
		if len(c.Errors) > 0 {
			args = append(args, "error", c.Errors.Last().Error())
		}
		s.logger.Info(c.Request.Context(), "request", args...)
	}
}
