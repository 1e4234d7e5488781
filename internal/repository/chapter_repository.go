package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bookplatform/internal/model"
)

type ChapterRepository struct {
	db *gorm.DB
}

func NewChapterRepository(db *gorm.DB) *ChapterRepository {
	return &ChapterRepository{db: db}
}

// List returns chapters in reading order without their content.
func (r *ChapterRepository) List(ctx context.Context) ([]model.Chapter, error) {
	var chapters []model.Chapter
	if err := r.db.WithContext(ctx).Omit("content").Order("position ASC").Find(&chapters).Error; err != nil {
		return nil, fmt.Errorf("list chapters failed: %w", err)
	}
	return chapters, nil
}

func (r *ChapterRepository) GetByID(ctx context.Context, id uint) (*model.Chapter, error) {
	var chapter model.Chapter
	err := r.db.WithContext(ctx).Take(&chapter, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get chapter failed: %w", err)
	}
	return &chapter, nil
}

// Upsert inserts the chapter or updates the row with the same slug.
func (r *ChapterRepository) Upsert(ctx context.Context, chapter *model.Chapter) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "content", "position", "section_count", "updated_at"}),
	}).Create(chapter).Error
	if err != nil {
		return fmt.Errorf("upsert chapter failed: %w", err)
	}
	return nil
}
