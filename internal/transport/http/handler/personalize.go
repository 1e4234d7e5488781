package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"bookplatform/internal/app"
	"bookplatform/internal/transport/http/response"
)

// PersonalizationService is implemented by app.PersonalizationService.
type PersonalizationService interface {
	Personalize(ctx context.Context, userID, chapterID uint) (*app.PersonalizedResult, error)
	Translate(ctx context.Context, userID, chapterID uint, language string) (*app.PersonalizedResult, error)
}

type PersonalizeHandler struct {
	service PersonalizationService
}

type PersonalizeRequest struct {
	ChapterID uint `json:"chapter_id" binding:"required,gt=0"`
}

type TranslateRequest struct {
	ChapterID uint   `json:"chapter_id" binding:"required,gt=0"`
	Language  string `json:"language" binding:"required,max=10"`
}

func NewPersonalizeHandler(service PersonalizationService) *PersonalizeHandler {
	return &PersonalizeHandler{service: service}
}

func (h *PersonalizeHandler) Personalize(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req PersonalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.service.Personalize(c.Request.Context(), userID, req.ChapterID)
	if err != nil {
		h.writeError(c, err, "personalize chapter failed")
		return
	}
	response.OK(c, result)
}

func (h *PersonalizeHandler) Translate(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req TranslateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.service.Translate(c.Request.Context(), userID, req.ChapterID, req.Language)
	if err != nil {
		h.writeError(c, err, "translate chapter failed")
		return
	}
	response.OK(c, result)
}

func (h *PersonalizeHandler) writeError(c *gin.Context, err error, fallback string) {
	if writeNotFound(c, err) || writeModelError(c, err) {
		return
	}
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrUnsupportedLanguage):
		response.Error(c, http.StatusBadRequest, response.CodeUnsupportedLanguage, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}
