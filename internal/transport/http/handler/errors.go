package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"bookplatform/internal/app"
	"bookplatform/internal/rag"
	"bookplatform/internal/transport/http/middleware"
	"bookplatform/internal/transport/http/response"
)

// writeModelError maps failures of the assistant and the personalization
// service. It reports false when err is not one of them.
func writeModelError(c *gin.Context, err error) bool {
	var svcErr *rag.ServiceError
	switch {
	case errors.Is(err, rag.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, rag.ErrFeatureDisabled):
		response.Error(c, http.StatusServiceUnavailable, response.CodeFeatureDisabled, "assistant is not configured")
	case errors.As(err, &svcErr):
		response.Error(c, http.StatusBadGateway, response.CodeUpstreamFailed, svcErr.Op+" service failed")
	default:
		return false
	}
	return true
}

func writeNotFound(c *gin.Context, err error) bool {
	switch {
	case errors.Is(err, app.ErrSessionNotFound):
		response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, err.Error())
	case errors.Is(err, app.ErrChapterNotFound):
		response.Error(c, http.StatusNotFound, response.CodeChapterNotFound, err.Error())
	case errors.Is(err, app.ErrUserNotFound):
		response.Error(c, http.StatusNotFound, response.CodeUserNotFound, err.Error())
	default:
		return false
	}
	return true
}

func getUserIDFromContext(c *gin.Context) (uint, bool) {
	raw, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}
	userID, ok := raw.(uint)
	return userID, ok && userID > 0
}
