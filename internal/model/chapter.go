package model

import "time"

type Chapter struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Title        string    `gorm:"size:255;not null" json:"title"`
	Slug         string    `gorm:"size:100;not null;uniqueIndex" json:"slug"`
	Content      string    `gorm:"type:mediumtext;not null" json:"content,omitempty"`
	Position     int       `gorm:"not null;index" json:"order"`
	SectionCount int       `gorm:"not null;default:0" json:"section_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
