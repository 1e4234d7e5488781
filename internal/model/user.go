package model

import "time"

const (
	ExperienceBeginner     = "beginner"
	ExperienceIntermediate = "intermediate"
	ExperienceAdvanced     = "advanced"
)

type User struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	Email              string     `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Name               string     `gorm:"size:255;not null" json:"name"`
	PasswordHash       string     `gorm:"size:255;not null" json:"-"`
	OS                 string     `gorm:"size:50;not null" json:"os"`
	GPU                string     `gorm:"size:50;not null" json:"gpu"`
	ExperienceLevel    string     `gorm:"size:16;not null;default:beginner" json:"experience_level"`
	RoboticsBackground string     `gorm:"size:2000" json:"robotics_background"`
	LastLoginAt        *time.Time `json:"last_login_at"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func ValidExperienceLevel(level string) bool {
	switch level {
	case ExperienceBeginner, ExperienceIntermediate, ExperienceAdvanced:
		return true
	}
	return false
}
