package repository

import (
	"context"
	"mathpulse_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type UserRepository struct {
	DB *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{DB: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	return r.DB.WithContext(ctx).Create(user).Error
}

func (r *UserRepository) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	err := r.DB.WithContext(ctx).First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	err := r.DB.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByIDs 按 id 升序返回，作为排行榜同分时的稳定顺序
func (r *UserRepository) FindByIDs(ctx context.Context, ids []uint) ([]model.User, error) {
	var users []model.User
	if len(ids) == 0 {
		return users, nil
	}
	err := r.DB.WithContext(ctx).Where("id IN ?", ids).Order("id ASC").Find(&users).Error
	return users, err
}

// ApplyXP 写入重新计算后的等级与当前经验，总经验用原子自增
func (r *UserRepository) ApplyXP(ctx context.Context, userID uint, level, currentXP, delta int) error {
	return r.DB.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"level":      level,
			"current_xp": currentXP,
			"total_xp":   gorm.Expr("total_xp + ?", delta),
		}).Error
}

func (r *UserRepository) SetDisabled(ctx context.Context, userID uint, disabled bool) error {
	return r.DB.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Update("disabled", disabled).Error
}

func (r *UserRepository) UpdateStreak(ctx context.Context, userID uint, streak int, at time.Time) error {
	return r.DB.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"streak":             streak,
			"last_activity_date": at,
		}).Error
}

// IncrementCompletionCounters 原子累加课时/测验完成计数
func (r *UserRepository) IncrementCompletionCounters(ctx context.Context, userID uint, lessons, quizzes int) error {
	if lessons == 0 && quizzes == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"total_lessons_completed": gorm.Expr("total_lessons_completed + ?", lessons),
			"total_quizzes_completed": gorm.Expr("total_quizzes_completed + ?", quizzes),
		}).Error
}

func (r *UserRepository) UpdateLastSeen(userID uint) error {
	return r.DB.Model(&model.User{}).
		Where("id = ?", userID).
		UpdateColumn("last_seen", time.Now()).Error
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, userID uint, at time.Time) error {
	return r.DB.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		UpdateColumn("last_login", at).Error
}

func (r *UserRepository) UpdateAvatar(ctx context.Context, userID uint, avatar string) error {
	return r.DB.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Update("avatar", avatar).Error
}

// FindTopStudentsByXP 全局榜单在数据库侧排序并截断
func (r *UserRepository) FindTopStudentsByXP(ctx context.Context, limit int) ([]model.User, error) {
	var users []model.User
	err := r.DB.WithContext(ctx).
		Where("role = ? AND disabled = ?", model.Student, false).
		Order("total_xp DESC").
		Order("id ASC").
		Limit(limit).
		Find(&users).Error
	return users, err
}

// CountStudentsAbove 统计总经验严格大于 xp 的学生数
func (r *UserRepository) CountStudentsAbove(ctx context.Context, xp int) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.User{}).
		Where("role = ? AND disabled = ? AND total_xp > ?", model.Student, false, xp).
		Count(&count).Error
	return count, err
}

// StudentXP 排名索引重建用的精简行
type StudentXP struct {
	ID      uint
	TotalXP int
}

// EachStudentXP 按 id 游标分批遍历学生总经验
func (r *UserRepository) EachStudentXP(ctx context.Context, batchSize int, fn func([]StudentXP) error) error {
	var lastID uint
	for {
		var batch []StudentXP
		err := r.DB.WithContext(ctx).Model(&model.User{}).
			Select("id, total_xp").
			Where("role = ? AND disabled = ? AND id > ?", model.Student, false, lastID).
			Order("id ASC").
			Limit(batchSize).
			Scan(&batch).Error
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < batchSize {
			return nil
		}
		lastID = batch[len(batch)-1].ID
	}
}

// UserFilter 定义用户筛选条件
type UserFilter struct {
	Role   string
	Search string
}

func (r *UserRepository) List(ctx context.Context, filter UserFilter, page, pageSize int) ([]model.User, int64, error) {
	var users []model.User
	var total int64

	query := r.DB.WithContext(ctx).Model(&model.User{})
	if filter.Role != "" {
		query = query.Where("role = ?", filter.Role)
	}
	if filter.Search != "" {
		searchTerm := "%" + filter.Search + "%"
		query = query.Where("name LIKE ? OR email LIKE ?", searchTerm, searchTerm)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Offset(offset).Limit(pageSize).Order("id ASC").Find(&users).Error
	return users, total, err
}
