package service

import (
	"context"
	"encoding/json"
	"fmt"
	"mathpulse_backend/internal/model"
	"mathpulse_backend/internal/repository"
	"mathpulse_backend/internal/util"
	"mathpulse_backend/pkg/logger"
	"mathpulse_backend/pkg/monitoring"
	"mathpulse_backend/pkg/tracing"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const maxAttemptRetries = 3

type ProgressService struct {
	ProgressRepo *repository.ProgressRepository
	UserRepo     *repository.UserRepository
	Gamification *GamificationService
	Settings     *Settings

	now func() time.Time
}

func NewProgressService(
	progressRepo *repository.ProgressRepository,
	userRepo *repository.UserRepository,
	gamification *GamificationService,
	settings *Settings,
) *ProgressService {
	return &ProgressService{
		ProgressRepo: progressRepo,
		UserRepo:     userRepo,
		Gamification: gamification,
		Settings:     settings,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// LessonCompletionInput XPReward 为 0 时使用配置的默认课时经验
type LessonCompletionInput struct {
	UserID            uint   `json:"-"`
	SubjectID         string `json:"subjectId" binding:"required"`
	ModuleID          string `json:"moduleId" binding:"required"`
	LessonID          string `json:"lessonId" binding:"required"`
	TimeSpent         int    `json:"timeSpent" binding:"min=0"`
	XPReward          int    `json:"xpReward" binding:"min=0,max=100000"`
	ModuleLessonCount int    `json:"moduleLessonCount" binding:"min=0"`
}

type LessonResult struct {
	NewlyCompleted bool                  `json:"newlyCompleted"`
	Module         *model.ModuleProgress `json:"module"`
	Award          *AwardResult          `json:"award,omitempty"`
}

type QuizCompletionInput struct {
	UserID    uint               `json:"-"`
	SubjectID string             `json:"subjectId" binding:"required"`
	ModuleID  string             `json:"moduleId" binding:"required"`
	QuizID    string             `json:"quizId" binding:"required"`
	Score     int                `json:"score"`
	Answers   []model.QuizAnswer `json:"answers"`
	TimeSpent int                `json:"timeSpent" binding:"min=0"`
}

type QuizResult struct {
	Attempt        *model.QuizAttempt `json:"attempt"`
	NewlyCompleted bool               `json:"newlyCompleted"`
	Award          *AwardResult       `json:"award,omitempty"`
}

func validIDs(ids ...string) bool {
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return false
		}
	}
	return true
}

func (s *ProgressService) CompleteLesson(ctx context.Context, in LessonCompletionInput) (result *LessonResult, err error) {
	if !validIDs(in.SubjectID, in.ModuleID, in.LessonID) {
		return nil, util.ErrInvalidContentID
	}
	if in.XPReward < 0 || in.XPReward > s.Settings.Gamification().AwardCap() {
		return nil, util.ErrInvalidXPAmount
	}

	ctx, span := tracing.StartSpan(ctx, "ProgressService.CompleteLesson",
		tracing.UserID(in.UserID),
		attribute.String("lesson.id", in.LessonID),
	)
	defer func() { tracing.End(span, err) }()

	// 先确认用户存在，避免为不存在的用户写入进度
	if _, err := s.Gamification.findUser(ctx, in.UserID); err != nil {
		return nil, err
	}

	now := s.now()
	newly, err := s.ProgressRepo.InsertLessonCompletion(ctx, &model.LessonCompletion{
		UserID:      in.UserID,
		LessonID:    in.LessonID,
		SubjectID:   in.SubjectID,
		ModuleID:    in.ModuleID,
		TimeSpent:   in.TimeSpent,
		CompletedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("record lesson completion: %w", err)
	}

	delta := 0
	if newly {
		delta = 1
	}

	module, err := s.ProgressRepo.TouchModule(ctx, repository.ModuleTouch{
		UserID:       in.UserID,
		SubjectID:    in.SubjectID,
		ModuleID:     in.ModuleID,
		LessonsDelta: delta,
		TimeSpent:    in.TimeSpent,
		TotalLessons: in.ModuleLessonCount,
		At:           now,
	})
	if err != nil {
		return nil, fmt.Errorf("update module progress: %w", err)
	}
	if err := s.ProgressRepo.TouchSubject(ctx, in.UserID, in.SubjectID, delta, 0, now); err != nil {
		return nil, fmt.Errorf("update subject progress: %w", err)
	}
	if err := s.UserRepo.IncrementCompletionCounters(ctx, in.UserID, delta, 0); err != nil {
		return nil, fmt.Errorf("update lesson counter: %w", err)
	}

	result = &LessonResult{NewlyCompleted: newly, Module: module}

	cfg := s.Settings.Gamification()
	if newly || !cfg.FirstCompletionXPOnly {
		xp := in.XPReward
		if xp == 0 {
			xp = cfg.LessonXP
		}
		award, err := s.Gamification.AwardXP(ctx, in.UserID, xp, model.ActivityLessonComplete,
			fmt.Sprintf("Completed lesson %s", in.LessonID))
		if err != nil {
			return nil, err
		}
		result.Award = award
	}

	return result, nil
}

func (s *ProgressService) CompleteQuiz(ctx context.Context, in QuizCompletionInput) (result *QuizResult, err error) {
	if !validIDs(in.SubjectID, in.ModuleID, in.QuizID) {
		return nil, util.ErrInvalidContentID
	}
	if in.Score < 0 || in.Score > 100 {
		return nil, util.ErrInvalidScore
	}

	ctx, span := tracing.StartSpan(ctx, "ProgressService.CompleteQuiz",
		tracing.UserID(in.UserID),
		attribute.String("quiz.id", in.QuizID),
		attribute.Int("quiz.score", in.Score),
	)
	defer func() { tracing.End(span, err) }()

	if _, err := s.Gamification.findUser(ctx, in.UserID); err != nil {
		return nil, err
	}

	answers := in.Answers
	if answers == nil {
		answers = []model.QuizAnswer{}
	}
	raw, err := json.Marshal(answers)
	if err != nil {
		return nil, fmt.Errorf("encode answers: %w", err)
	}

	now := s.now()
	attempt, err := s.appendAttempt(ctx, in, datatypes.JSON(raw), now)
	if err != nil {
		return nil, err
	}
	monitoring.QuizAttempts.Inc()

	newly, err := s.ProgressRepo.InsertQuizCompletion(ctx, &model.QuizCompletion{
		UserID:      in.UserID,
		QuizID:      in.QuizID,
		SubjectID:   in.SubjectID,
		ModuleID:    in.ModuleID,
		BestScore:   in.Score,
		CompletedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("record quiz completion: %w", err)
	}
	if !newly {
		if err := s.ProgressRepo.RaiseQuizBestScore(ctx, in.UserID, in.QuizID, in.Score); err != nil {
			return nil, fmt.Errorf("update best score: %w", err)
		}
	}

	delta := 0
	if newly {
		delta = 1
	}

	if _, err := s.ProgressRepo.TouchModule(ctx, repository.ModuleTouch{
		UserID:       in.UserID,
		SubjectID:    in.SubjectID,
		ModuleID:     in.ModuleID,
		QuizzesDelta: delta,
		TimeSpent:    in.TimeSpent,
		At:           now,
	}); err != nil {
		return nil, fmt.Errorf("update module progress: %w", err)
	}
	if err := s.ProgressRepo.TouchSubject(ctx, in.UserID, in.SubjectID, 0, delta, now); err != nil {
		return nil, fmt.Errorf("update subject progress: %w", err)
	}
	if err := s.UserRepo.IncrementCompletionCounters(ctx, in.UserID, 0, delta); err != nil {
		return nil, fmt.Errorf("update quiz counter: %w", err)
	}

	award, err := s.Gamification.AwardXP(ctx, in.UserID, QuizXP(in.Score), model.ActivityQuizComplete,
		fmt.Sprintf("Scored %d on quiz %s", in.Score, in.QuizID))
	if err != nil {
		return nil, err
	}

	return &QuizResult{Attempt: attempt, NewlyCompleted: newly, Award: award}, nil
}

// appendAttempt 序号取已有次数+1，唯一索引冲突时重新计数
func (s *ProgressService) appendAttempt(ctx context.Context, in QuizCompletionInput, answers datatypes.JSON, at time.Time) (*model.QuizAttempt, error) {
	for i := 0; i < maxAttemptRetries; i++ {
		count, err := s.ProgressRepo.CountAttempts(ctx, in.UserID, in.QuizID)
		if err != nil {
			return nil, fmt.Errorf("count quiz attempts: %w", err)
		}

		attempt := &model.QuizAttempt{
			UserID:        in.UserID,
			QuizID:        in.QuizID,
			AttemptNumber: int(count) + 1,
			SubjectID:     in.SubjectID,
			ModuleID:      in.ModuleID,
			Score:         in.Score,
			Answers:       answers,
			TimeSpent:     in.TimeSpent,
			CreatedAt:     at,
		}
		inserted, err := s.ProgressRepo.CreateAttempt(ctx, attempt)
		if err != nil {
			return nil, fmt.Errorf("record quiz attempt: %w", err)
		}
		if inserted {
			return attempt, nil
		}
		logger.Log.Debug("quiz attempt number taken, retrying",
			zap.Uint("userID", in.UserID),
			zap.String("quizID", in.QuizID),
			zap.Int("attempt", attempt.AttemptNumber))
	}
	return nil, util.ErrAttemptConflict
}

// ModuleView 模块进度视图
type ModuleView struct {
	ModuleID         string    `json:"moduleId"`
	CompletedLessons []string  `json:"completedLessons"`
	CompletedQuizzes []string  `json:"completedQuizzes"`
	TotalLessons     int       `json:"totalLessons"`
	Progress         int       `json:"progress"`
	TimeSpent        int       `json:"timeSpent"`
	LastAccessedAt   time.Time `json:"lastAccessedAt"`
}

type SubjectView struct {
	SubjectID        string                 `json:"subjectId"`
	LessonsCompleted int                    `json:"lessonsCompleted"`
	QuizzesCompleted int                    `json:"quizzesCompleted"`
	LastAccessedAt   time.Time              `json:"lastAccessedAt"`
	Modules          map[string]*ModuleView `json:"modules"`
}

type LessonState struct {
	Completed   bool      `json:"completed"`
	SubjectID   string    `json:"subjectId"`
	ModuleID    string    `json:"moduleId"`
	TimeSpent   int       `json:"timeSpent"`
	CompletedAt time.Time `json:"completedAt"`
}

// ProgressRecord 用户学习进度的完整读视图
type ProgressRecord struct {
	UserID                uint                    `json:"userId"`
	Subjects              map[string]*SubjectView `json:"subjects"`
	Lessons               map[string]LessonState  `json:"lessons"`
	QuizAttempts          []model.QuizAttempt     `json:"quizAttempts"`
	TotalLessonsCompleted int                     `json:"totalLessonsCompleted"`
	TotalQuizzesCompleted int                     `json:"totalQuizzesCompleted"`
}

func (r *ProgressRecord) module(subjectID, moduleID string) *ModuleView {
	subject, ok := r.Subjects[subjectID]
	if !ok {
		subject = &SubjectView{SubjectID: subjectID, Modules: map[string]*ModuleView{}}
		r.Subjects[subjectID] = subject
	}
	m, ok := subject.Modules[moduleID]
	if !ok {
		m = &ModuleView{ModuleID: moduleID, CompletedLessons: []string{}, CompletedQuizzes: []string{}}
		subject.Modules[moduleID] = m
	}
	return m
}

func (s *ProgressService) GetProgress(ctx context.Context, userID uint) (record *ProgressRecord, err error) {
	ctx, span := tracing.StartSpan(ctx, "ProgressService.GetProgress", tracing.UserID(userID))
	defer func() { tracing.End(span, err) }()

	user, err := s.Gamification.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	subjects, err := s.ProgressRepo.ListSubjects(ctx, userID)
	if err != nil {
		return nil, err
	}
	modules, err := s.ProgressRepo.ListModules(ctx, userID)
	if err != nil {
		return nil, err
	}
	lessons, err := s.ProgressRepo.ListLessonCompletions(ctx, userID)
	if err != nil {
		return nil, err
	}
	quizzes, err := s.ProgressRepo.ListQuizCompletions(ctx, userID)
	if err != nil {
		return nil, err
	}
	attempts, err := s.ProgressRepo.ListAttempts(ctx, userID)
	if err != nil {
		return nil, err
	}

	record = &ProgressRecord{
		UserID:                userID,
		Subjects:              make(map[string]*SubjectView, len(subjects)),
		Lessons:               make(map[string]LessonState, len(lessons)),
		QuizAttempts:          attempts,
		TotalLessonsCompleted: user.TotalLessonsCompleted,
		TotalQuizzesCompleted: user.TotalQuizzesCompleted,
	}
	if record.QuizAttempts == nil {
		record.QuizAttempts = []model.QuizAttempt{}
	}

	for _, sp := range subjects {
		record.Subjects[sp.SubjectID] = &SubjectView{
			SubjectID:        sp.SubjectID,
			LessonsCompleted: sp.LessonsCompleted,
			QuizzesCompleted: sp.QuizzesCompleted,
			LastAccessedAt:   sp.LastAccessedAt,
			Modules:          map[string]*ModuleView{},
		}
	}
	for _, mp := range modules {
		m := record.module(mp.SubjectID, mp.ModuleID)
		m.TotalLessons = mp.TotalLessons
		m.Progress = mp.Progress
		m.TimeSpent = mp.TimeSpent
		m.LastAccessedAt = mp.LastAccessedAt
	}
	for _, lc := range lessons {
		m := record.module(lc.SubjectID, lc.ModuleID)
		m.CompletedLessons = append(m.CompletedLessons, lc.LessonID)
		record.Lessons[lc.LessonID] = LessonState{
			Completed:   true,
			SubjectID:   lc.SubjectID,
			ModuleID:    lc.ModuleID,
			TimeSpent:   lc.TimeSpent,
			CompletedAt: lc.CompletedAt,
		}
	}
	for _, qc := range quizzes {
		m := record.module(qc.SubjectID, qc.ModuleID)
		m.CompletedQuizzes = append(m.CompletedQuizzes, qc.QuizID)
	}

	return record, nil
}
