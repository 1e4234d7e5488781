package model

import "time"

// PersonalizedContent is a cached LLM rewrite or translation of a chapter.
// One row per (user, content, kind, variant, language); writes overwrite.
type PersonalizedContent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:uniq_personalized_key,priority:1" json:"user_id"`
	ContentID string    `gorm:"size:64;not null;uniqueIndex:uniq_personalized_key,priority:2" json:"content_id"`
	Kind      string    `gorm:"size:16;not null;uniqueIndex:uniq_personalized_key,priority:3" json:"kind"`
	Variant   string    `gorm:"size:32;not null;uniqueIndex:uniq_personalized_key,priority:4" json:"variant"`
	Language  string    `gorm:"size:10;not null;uniqueIndex:uniq_personalized_key,priority:5" json:"language"`
	Text      string    `gorm:"type:mediumtext;not null" json:"text"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
}
