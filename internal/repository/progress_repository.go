package repository

import (
	"context"
	"mathpulse_backend/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProgressRepository struct {
	DB *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{DB: db}
}

// insertIfAbsent 依赖唯一索引实现集合语义，返回是否新插入
func insertIfAbsent(db *gorm.DB, value interface{}) (bool, error) {
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(value)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *ProgressRepository) InsertLessonCompletion(ctx context.Context, lc *model.LessonCompletion) (bool, error) {
	return insertIfAbsent(r.DB.WithContext(ctx), lc)
}

func (r *ProgressRepository) InsertQuizCompletion(ctx context.Context, qc *model.QuizCompletion) (bool, error) {
	return insertIfAbsent(r.DB.WithContext(ctx), qc)
}

// RaiseQuizBestScore 仅在新分数更高时更新
func (r *ProgressRepository) RaiseQuizBestScore(ctx context.Context, userID uint, quizID string, score int) error {
	return r.DB.WithContext(ctx).Model(&model.QuizCompletion{}).
		Where("user_id = ? AND quiz_id = ? AND best_score < ?", userID, quizID, score).
		Update("best_score", score).Error
}

func (r *ProgressRepository) CountAttempts(ctx context.Context, userID uint, quizID string) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.QuizAttempt{}).
		Where("user_id = ? AND quiz_id = ?", userID, quizID).
		Count(&count).Error
	return count, err
}

// CreateAttempt 若作答序号已被占用返回 false
func (r *ProgressRepository) CreateAttempt(ctx context.Context, attempt *model.QuizAttempt) (bool, error) {
	return insertIfAbsent(r.DB.WithContext(ctx), attempt)
}

func (r *ProgressRepository) HasScore(ctx context.Context, userID uint, score int) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.QuizAttempt{}).
		Where("user_id = ? AND score = ?", userID, score).
		Limit(1).
		Count(&count).Error
	return count > 0, err
}

// ModuleTouch 一次模块进度变更
type ModuleTouch struct {
	UserID       uint
	SubjectID    string
	ModuleID     string
	LessonsDelta int
	QuizzesDelta int
	TimeSpent    int
	TotalLessons int
	At           time.Time
}

// TouchModule 按字段更新模块进度（不整行覆盖），返回更新后的行
func (r *ProgressRepository) TouchModule(ctx context.Context, t ModuleTouch) (*model.ModuleProgress, error) {
	db := r.DB.WithContext(ctx)

	seed := &model.ModuleProgress{
		UserID:         t.UserID,
		SubjectID:      t.SubjectID,
		ModuleID:       t.ModuleID,
		LastAccessedAt: t.At,
	}
	if _, err := insertIfAbsent(db, seed); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"lessons_completed": gorm.Expr("lessons_completed + ?", t.LessonsDelta),
		"quizzes_completed": gorm.Expr("quizzes_completed + ?", t.QuizzesDelta),
		"time_spent":        gorm.Expr("time_spent + ?", t.TimeSpent),
		"last_accessed_at":  t.At,
	}
	if t.TotalLessons > 0 {
		updates["total_lessons"] = t.TotalLessons
	}

	scope := db.Model(&model.ModuleProgress{}).
		Where("user_id = ? AND subject_id = ? AND module_id = ?", t.UserID, t.SubjectID, t.ModuleID)
	if err := scope.Updates(updates).Error; err != nil {
		return nil, err
	}

	var mp model.ModuleProgress
	err := db.Where("user_id = ? AND subject_id = ? AND module_id = ?", t.UserID, t.SubjectID, t.ModuleID).
		First(&mp).Error
	if err != nil {
		return nil, err
	}

	if pct := modulePercent(mp.LessonsCompleted, mp.TotalLessons); pct != mp.Progress {
		if err := db.Model(&model.ModuleProgress{}).Where("id = ?", mp.ID).Update("progress", pct).Error; err != nil {
			return nil, err
		}
		mp.Progress = pct
	}
	return &mp, nil
}

func modulePercent(completed, total int) int {
	if total <= 0 {
		return 0
	}
	pct := completed * 100 / total
	if pct > 100 {
		return 100
	}
	return pct
}

func (r *ProgressRepository) TouchSubject(ctx context.Context, userID uint, subjectID string, lessonsDelta, quizzesDelta int, at time.Time) error {
	db := r.DB.WithContext(ctx)

	seed := &model.SubjectProgress{
		UserID:         userID,
		SubjectID:      subjectID,
		LastAccessedAt: at,
	}
	if _, err := insertIfAbsent(db, seed); err != nil {
		return err
	}

	return db.Model(&model.SubjectProgress{}).
		Where("user_id = ? AND subject_id = ?", userID, subjectID).
		Updates(map[string]interface{}{
			"lessons_completed": gorm.Expr("lessons_completed + ?", lessonsDelta),
			"quizzes_completed": gorm.Expr("quizzes_completed + ?", quizzesDelta),
			"last_accessed_at":  at,
		}).Error
}

func (r *ProgressRepository) ListSubjects(ctx context.Context, userID uint) ([]model.SubjectProgress, error) {
	var rows []model.SubjectProgress
	err := r.DB.WithContext(ctx).Where("user_id = ?", userID).Order("subject_id ASC").Find(&rows).Error
	return rows, err
}

func (r *ProgressRepository) ListModules(ctx context.Context, userID uint) ([]model.ModuleProgress, error) {
	var rows []model.ModuleProgress
	err := r.DB.WithContext(ctx).Where("user_id = ?", userID).Order("subject_id ASC, module_id ASC").Find(&rows).Error
	return rows, err
}

func (r *ProgressRepository) ListLessonCompletions(ctx context.Context, userID uint) ([]model.LessonCompletion, error) {
	var rows []model.LessonCompletion
	err := r.DB.WithContext(ctx).Where("user_id = ?", userID).Order("completed_at ASC, id ASC").Find(&rows).Error
	return rows, err
}

func (r *ProgressRepository) ListQuizCompletions(ctx context.Context, userID uint) ([]model.QuizCompletion, error) {
	var rows []model.QuizCompletion
	err := r.DB.WithContext(ctx).Where("user_id = ?", userID).Order("completed_at ASC, id ASC").Find(&rows).Error
	return rows, err
}

func (r *ProgressRepository) ListAttempts(ctx context.Context, userID uint) ([]model.QuizAttempt, error) {
	var rows []model.QuizAttempt
	err := r.DB.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC, id ASC").Find(&rows).Error
	return rows, err
}
