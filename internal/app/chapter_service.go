package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"bookplatform/internal/model"
)

var ErrChapterNotFound = errors.New("chapter not found")

// ChapterStore is implemented by repository.ChapterRepository.
type ChapterStore interface {
	List(ctx context.Context) ([]model.Chapter, error)
	GetByID(ctx context.Context, id uint) (*model.Chapter, error)
	Upsert(ctx context.Context, chapter *model.Chapter) error
}

// DocumentReader is implemented by docsource.Directory.
type DocumentReader interface {
	List(ctx context.Context) ([]string, error)
	Read(ctx context.Context, name string) (string, error)
}

type ChapterService struct {
	chapterRepo ChapterStore
}

func NewChapterService(chapterRepo ChapterStore) *ChapterService {
	return &ChapterService{chapterRepo: chapterRepo}
}

func (s *ChapterService) List(ctx context.Context) ([]model.Chapter, error) {
	return s.chapterRepo.List(ctx)
}

func (s *ChapterService) Get(ctx context.Context, id uint) (*model.Chapter, error) {
	if id == 0 {
		return nil, ErrInvalidInput
	}
	chapter, err := s.chapterRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if chapter == nil {
		return nil, ErrChapterNotFound
	}
	return chapter, nil
}

// SyncFromDocuments stores one chapter per book document, keyed by slug and
// ordered by document name. It returns the number of chapters written.
func (s *ChapterService) SyncFromDocuments(ctx context.Context, docs DocumentReader) (int, error) {
	names, err := docs.List(ctx)
	if err != nil {
		return 0, err
	}
	for i, name := range names {
		text, err := docs.Read(ctx, name)
		if err != nil {
			return i, fmt.Errorf("read chapter %s failed: %w", name, err)
		}
		chapter := parseChapter(name, text)
		chapter.Position = i + 1
		if err := s.chapterRepo.Upsert(ctx, chapter); err != nil {
			return i, err
		}
	}
	return len(names), nil
}

// parseChapter takes the title from the first "# " heading and counts "## "
// headings as sections.
func parseChapter(name, text string) *model.Chapter {
	slug := strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
	chapter := &model.Chapter{Slug: slug, Title: slug, Content: text}

	titled := false
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case !titled && strings.HasPrefix(line, "# "):
			chapter.Title = strings.TrimSpace(line[2:])
			titled = true
		case strings.HasPrefix(line, "## "):
			chapter.SectionCount++
		}
	}
	return chapter
}
