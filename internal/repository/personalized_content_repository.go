package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bookplatform/internal/model"
	"bookplatform/internal/personalize"
)

// PersonalizedContentRepository is the MySQL backend of the personalization cache.
type PersonalizedContentRepository struct {
	db *gorm.DB
}

func NewPersonalizedContentRepository(db *gorm.DB) *PersonalizedContentRepository {
	return &PersonalizedContentRepository{db: db}
}

func (r *PersonalizedContentRepository) Get(ctx context.Context, key personalize.Key) (*personalize.Entry, error) {
	var row model.PersonalizedContent
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND content_id = ? AND kind = ? AND variant = ? AND language = ?",
			key.SubjectID, key.ContentID, key.Kind, key.Variant, key.Language).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, personalize.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get personalized content failed: %w", err)
	}
	return &personalize.Entry{Key: key, Text: row.Text, CreatedAt: row.CreatedAt, ExpiresAt: row.ExpiresAt}, nil
}

// Put overwrites the row with the same key.
func (r *PersonalizedContentRepository) Put(ctx context.Context, entry personalize.Entry) error {
	row := model.PersonalizedContent{
		UserID:    entry.Key.SubjectID,
		ContentID: entry.Key.ContentID,
		Kind:      entry.Key.Kind,
		Variant:   entry.Key.Variant,
		Language:  entry.Key.Language,
		Text:      entry.Text,
		CreatedAt: entry.CreatedAt,
		ExpiresAt: entry.ExpiresAt,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "content_id"}, {Name: "kind"}, {Name: "variant"}, {Name: "language"}},
		DoUpdates: clause.AssignmentColumns([]string{"text", "created_at", "expires_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save personalized content failed: %w", err)
	}
	return nil
}
