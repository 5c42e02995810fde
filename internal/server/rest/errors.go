package rest

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/filekeeper/internal/common"
	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusOf maps an error to its HTTP status and a fixed message. Store
// error text never reaches the client.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrorValidation):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, common.ErrorPermission):
		return http.StatusForbidden, "permission denied"
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, common.ErrVersionConflict):
		return http.StatusConflict, "version conflict, retry"
	case errors.Is(err, common.ErrorStoreTransport):
		return http.StatusServiceUnavailable, "storage unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// abort writes the mapped response and records err for the request log.
func (s *Server) abort(c *gin.Context, err error) {
	code, msg := statusOf(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(code, errorResponse{Error: msg})
}
