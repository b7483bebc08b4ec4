package repository

import (
	"context"
	"mathpulse_backend/internal/model"

	"gorm.io/gorm"
)

type AchievementRepository struct {
	DB *gorm.DB
}

func NewAchievementRepository(db *gorm.DB) *AchievementRepository {
	return &AchievementRepository{DB: db}
}

func (r *AchievementRepository) FindByUserID(ctx context.Context, userID uint) ([]model.UserAchievement, error) {
	var achievements []model.UserAchievement
	err := r.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("unlocked_at ASC, id ASC").
		Find(&achievements).Error
	if err != nil {
		return nil, err
	}
	return achievements, nil
}

// Unlock 已解锁时返回 false，不重复记录
func (r *AchievementRepository) Unlock(ctx context.Context, ua *model.UserAchievement) (bool, error) {
	return insertIfAbsent(r.DB.WithContext(ctx), ua)
}
