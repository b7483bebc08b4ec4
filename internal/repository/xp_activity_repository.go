package repository

import (
	"context"
	"mathpulse_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type XPActivityRepository struct {
	DB *gorm.DB
}

func NewXPActivityRepository(db *gorm.DB) *XPActivityRepository {
	return &XPActivityRepository{DB: db}
}

func (r *XPActivityRepository) Create(ctx context.Context, activity *model.XPActivity) error {
	return r.DB.WithContext(ctx).Create(activity).Error
}

// ListByUser 最新的在前
func (r *XPActivityRepository) ListByUser(ctx context.Context, userID uint, limit int) ([]model.XPActivity, error) {
	var activities []model.XPActivity
	err := r.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&activities).Error
	return activities, err
}

// UserXPSum 时间窗口内的经验合计
type UserXPSum struct {
	UserID uint
	XP     int
}

// SumSinceForUsers 统计指定用户在 since 之后获得的经验
func (r *XPActivityRepository) SumSinceForUsers(ctx context.Context, since time.Time, userIDs []uint) (map[uint]int, error) {
	sums := make(map[uint]int, len(userIDs))
	if len(userIDs) == 0 {
		return sums, nil
	}

	var rows []UserXPSum
	err := r.DB.WithContext(ctx).Model(&model.XPActivity{}).
		Select("user_id, SUM(amount) AS xp").
		Where("created_at >= ? AND user_id IN ?", since, userIDs).
		Group("user_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		sums[row.UserID] = row.XP
	}
	return sums, nil
}

// TopStudentsSince 时间窗口内经验最多的学生，同分按用户 id 升序
func (r *XPActivityRepository) TopStudentsSince(ctx context.Context, since time.Time, limit int) ([]UserXPSum, error) {
	var rows []UserXPSum
	err := r.DB.WithContext(ctx).Model(&model.XPActivity{}).
		Select("xp_activities.user_id AS user_id, SUM(xp_activities.amount) AS xp").
		Joins("JOIN users ON users.id = xp_activities.user_id").
		Where("xp_activities.created_at >= ?", since).
		Where("users.role = ? AND users.disabled = ? AND users.deleted_at IS NULL", model.Student, false).
		Group("xp_activities.user_id").
		Order("xp DESC").
		Order("user_id ASC").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}
