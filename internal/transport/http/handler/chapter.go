package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"bookplatform/internal/model"
	"bookplatform/internal/transport/http/response"
)

// ChapterService is implemented by app.ChapterService.
type ChapterService interface {
	List(ctx context.Context) ([]model.Chapter, error)
	Get(ctx context.Context, id uint) (*model.Chapter, error)
}

type ChapterHandler struct {
	chapterService ChapterService
}

func NewChapterHandler(chapterService ChapterService) *ChapterHandler {
	return &ChapterHandler{chapterService: chapterService}
}

func (h *ChapterHandler) List(c *gin.Context) {
	chapters, err := h.chapterService.List(c.Request.Context())
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list chapters failed")
		return
	}
	response.OK(c, chapters)
}

func (h *ChapterHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid chapter id")
		return
	}

	chapter, err := h.chapterService.Get(c.Request.Context(), uint(id))
	if err != nil {
		if writeNotFound(c, err) {
			return
		}
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get chapter failed")
		return
	}
	response.OK(c, chapter)
}
