package model

import "time"

type Message struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	SessionID uint   `gorm:"not null;index" json:"session_id"`
	UserID    uint   `gorm:"not null;index" json:"user_id"`
	Role      string `gorm:"size:16;not null;index" json:"role"`
	Content   string `gorm:"type:text;not null" json:"content"`
	// Sources lists the cited documents of an assistant reply, comma separated.
	Sources   string    `gorm:"size:1024" json:"sources,omitempty"`
	Degraded  bool      `gorm:"not null;default:false" json:"degraded,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
