package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"bookplatform/internal/model"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session *model.Session) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("create session failed: %w", err)
	}
	return nil
}

// ListByUserID returns the user's sessions, most recently active first.
func (r *SessionRepository) ListByUserID(ctx context.Context, userID uint) ([]model.Session, error) {
	var sessions []model.Session
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC, id DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("list sessions failed: %w", err)
	}
	return sessions, nil
}

// GetOwned returns nil, nil when the session does not exist or belongs to
// another user.
func (r *SessionRepository) GetOwned(ctx context.Context, sessionID, userID uint) (*model.Session, error) {
	var session model.Session
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", sessionID, userID).Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session failed: %w", err)
	}
	return &session, nil
}

// DeleteOwned removes a session together with its messages. It reports
// false when no session of that user matched.
func (r *SessionRepository) DeleteOwned(ctx context.Context, sessionID, userID uint) (bool, error) {
	deleted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", sessionID, userID).Delete(&model.Session{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		deleted = true
		return tx.Where("session_id = ?", sessionID).Delete(&model.Message{}).Error
	})
	if err != nil {
		return false, fmt.Errorf("delete session failed: %w", err)
	}
	return deleted, nil
}

// Touch bumps updated_at so the session sorts first in the list.
func (r *SessionRepository) Touch(ctx context.Context, sessionID uint, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&model.Session{}).Where("id = ?", sessionID).Update("updated_at", at).Error
	if err != nil {
		return fmt.Errorf("touch session failed: %w", err)
	}
	return nil
}
