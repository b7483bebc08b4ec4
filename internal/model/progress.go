package model

import (
	"time"

	"gorm.io/datatypes"
)

// SubjectProgress 科目级汇总
type SubjectProgress struct {
	ID               uint      `gorm:"primaryKey" json:"-"`
	UserID           uint      `gorm:"not null;uniqueIndex:idx_subject_progress_user_subject" json:"userId"`
	SubjectID        string    `gorm:"size:64;not null;uniqueIndex:idx_subject_progress_user_subject" json:"subjectId"`
	LessonsCompleted int       `gorm:"not null;default:0" json:"lessonsCompleted"`
	QuizzesCompleted int       `gorm:"not null;default:0" json:"quizzesCompleted"`
	LastAccessedAt   time.Time `json:"lastAccessedAt"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func (SubjectProgress) TableName() string {
	return "subject_progress"
}

// ModuleProgress 模块级进度，TotalLessons 为 0 表示课时总数未知
type ModuleProgress struct {
	ID               uint      `gorm:"primaryKey" json:"-"`
	UserID           uint      `gorm:"not null;uniqueIndex:idx_module_progress_user_module" json:"userId"`
	SubjectID        string    `gorm:"size:64;not null;uniqueIndex:idx_module_progress_user_module" json:"subjectId"`
	ModuleID         string    `gorm:"size:64;not null;uniqueIndex:idx_module_progress_user_module" json:"moduleId"`
	LessonsCompleted int       `gorm:"not null;default:0" json:"lessonsCompleted"`
	QuizzesCompleted int       `gorm:"not null;default:0" json:"quizzesCompleted"`
	TotalLessons     int       `gorm:"not null;default:0" json:"totalLessons"`
	Progress         int       `gorm:"not null;default:0" json:"progress"`
	TimeSpent        int       `gorm:"not null;default:0" json:"timeSpent"`
	LastAccessedAt   time.Time `json:"lastAccessedAt"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func (ModuleProgress) TableName() string {
	return "module_progress"
}

// LessonCompletion 课时完成集合的成员，(user_id, lesson_id) 唯一
type LessonCompletion struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	UserID      uint      `gorm:"not null;uniqueIndex:idx_lesson_completion_user_lesson" json:"userId"`
	LessonID    string    `gorm:"size:64;not null;uniqueIndex:idx_lesson_completion_user_lesson" json:"lessonId"`
	SubjectID   string    `gorm:"size:64;not null;index" json:"subjectId"`
	ModuleID    string    `gorm:"size:64;not null;index" json:"moduleId"`
	TimeSpent   int       `gorm:"not null;default:0" json:"timeSpent"`
	CompletedAt time.Time `json:"completedAt"`
}

func (LessonCompletion) TableName() string {
	return "lesson_completions"
}

// QuizCompletion 测验完成集合的成员，与作答次数无关
type QuizCompletion struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	UserID      uint      `gorm:"not null;uniqueIndex:idx_quiz_completion_user_quiz" json:"userId"`
	QuizID      string    `gorm:"size:64;not null;uniqueIndex:idx_quiz_completion_user_quiz" json:"quizId"`
	SubjectID   string    `gorm:"size:64;not null;index" json:"subjectId"`
	ModuleID    string    `gorm:"size:64;not null;index" json:"moduleId"`
	BestScore   int       `gorm:"not null;default:0" json:"bestScore"`
	CompletedAt time.Time `json:"completedAt"`
}

func (QuizCompletion) TableName() string {
	return "quiz_completions"
}

// QuizAnswer 单题作答
type QuizAnswer struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
	Correct    bool   `json:"correct"`
}

// QuizAttempt 只追加，不覆盖历史
type QuizAttempt struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	UserID        uint           `gorm:"not null;uniqueIndex:idx_quiz_attempt_number" json:"userId"`
	QuizID        string         `gorm:"size:64;not null;uniqueIndex:idx_quiz_attempt_number" json:"quizId"`
	AttemptNumber int            `gorm:"not null;uniqueIndex:idx_quiz_attempt_number" json:"attemptNumber"`
	SubjectID     string         `gorm:"size:64;not null" json:"subjectId"`
	ModuleID      string         `gorm:"size:64;not null" json:"moduleId"`
	Score         int            `gorm:"not null" json:"score"`
	Answers       datatypes.JSON `json:"answers"`
	TimeSpent     int            `gorm:"not null;default:0" json:"timeSpent"`
	CreatedAt     time.Time      `gorm:"index" json:"timestamp"`
}

func (QuizAttempt) TableName() string {
	return "quiz_attempts"
}
