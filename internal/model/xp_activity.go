package model

import (
	"time"

	"gorm.io/gorm"
)

type ActivityType string

const (
	ActivityLessonComplete      ActivityType = "lesson_complete"
	ActivityQuizComplete        ActivityType = "quiz_complete"
	ActivityStreakBonus         ActivityType = "streak_bonus"
	ActivityAchievementUnlocked ActivityType = "achievement_unlocked"
)

func (t ActivityType) Valid() bool {
	switch t {
	case ActivityLessonComplete, ActivityQuizComplete, ActivityStreakBonus, ActivityAchievementUnlocked:
		return true
	}
	return false
}

// XPActivity 经验流水，只追加不修改
type XPActivity struct {
	ID           string       `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID       uint         `gorm:"not null;index:idx_xp_activity_user_time,priority:1" json:"userId"`
	ActivityType ActivityType `gorm:"size:32;not null" json:"activityType"`
	Amount       int          `gorm:"not null" json:"xpAmount"`
	Description  string       `gorm:"size:255" json:"description"`
	CreatedAt    time.Time    `gorm:"index:idx_xp_activity_user_time,priority:2;index" json:"timestamp"`
}

func (XPActivity) TableName() string {
	return "xp_activities"
}

func (a *XPActivity) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = GenerateUUID()
	}
	return nil
}
