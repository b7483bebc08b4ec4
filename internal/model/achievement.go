package model

import "time"

// UserAchievement 已解锁成就，(user_id, achievement_id) 唯一
type UserAchievement struct {
	ID            uint      `gorm:"primaryKey" json:"-"`
	UserID        uint      `gorm:"not null;uniqueIndex:idx_user_achievement" json:"userId"`
	AchievementID string    `gorm:"size:64;not null;uniqueIndex:idx_user_achievement" json:"achievementId"`
	XPReward      int       `gorm:"not null;default:0" json:"xpReward"`
	UnlockedAt    time.Time `json:"unlockedAt"`
}

func (UserAchievement) TableName() string {
	return "user_achievements"
}
