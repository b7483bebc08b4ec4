package service

import (
	"context"
	"fmt"
	"mathpulse_backend/internal/model"
	"mathpulse_backend/internal/repository"
	"mathpulse_backend/pkg/logger"
	"mathpulse_backend/pkg/monitoring"
	"mathpulse_backend/pkg/tracing"
	"time"

	"go.uber.org/zap"
)

type AchievementService struct {
	AchievementRepo *repository.AchievementRepository
	ProgressRepo    *repository.ProgressRepository
	Gamification    *GamificationService
	Leaderboard     *LeaderboardService

	now func() time.Time
}

func NewAchievementService(
	achievementRepo *repository.AchievementRepository,
	progressRepo *repository.ProgressRepository,
	gamification *GamificationService,
	leaderboard *LeaderboardService,
) *AchievementService {
	return &AchievementService{
		AchievementRepo: achievementRepo,
		ProgressRepo:    progressRepo,
		Gamification:    gamification,
		Leaderboard:     leaderboard,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Badge 成就目录中的一项及其解锁状态
type Badge struct {
	AchievementDefinition
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlockedAt,omitempty"`
}

// UserAchievements 个人成长概览
type UserAchievements struct {
	Level         int     `json:"level"`
	CurrentXP     int     `json:"currentXP"`
	XPToNextLevel int     `json:"xpToNextLevel"`
	NextLevelXP   int     `json:"nextLevelXP"`
	TotalXP       int     `json:"totalXP"`
	Streak        int     `json:"streak"`
	Rank          int     `json:"rank"`
	Unlocked      int     `json:"unlocked"`
	Badges        []Badge `json:"badges"`
}

func (s *AchievementService) snapshot(ctx context.Context, user *model.User) (AchievementSnapshot, error) {
	perfect, err := s.ProgressRepo.HasScore(ctx, user.ID, 100)
	if err != nil {
		return AchievementSnapshot{}, fmt.Errorf("check perfect score: %w", err)
	}
	return AchievementSnapshot{
		LessonsCompleted: user.TotalLessonsCompleted,
		QuizzesCompleted: user.TotalQuizzesCompleted,
		Streak:           user.Streak,
		Level:            user.Level,
		TotalXP:          user.TotalXP,
		HasPerfectScore:  perfect,
	}, nil
}

// CheckAchievements 对同一份快照判定全部成就，新解锁的逐个发放经验
func (s *AchievementService) CheckAchievements(ctx context.Context, userID uint) (unlocked []AchievementDefinition, err error) {
	ctx, span := tracing.StartSpan(ctx, "AchievementService.CheckAchievements", tracing.UserID(userID))
	defer func() { tracing.End(span, err) }()

	user, err := s.Gamification.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	snap, err := s.snapshot(ctx, user)
	if err != nil {
		return nil, err
	}

	unlocked = []AchievementDefinition{}
	for _, def := range achievementCatalog {
		if !def.Condition(snap) {
			continue
		}

		inserted, err := s.AchievementRepo.Unlock(ctx, &model.UserAchievement{
			UserID:        userID,
			AchievementID: def.ID,
			XPReward:      def.XPReward,
			UnlockedAt:    s.now(),
		})
		if err != nil {
			return nil, fmt.Errorf("unlock %s: %w", def.ID, err)
		}
		if !inserted {
			continue
		}

		if _, err := s.Gamification.AwardXP(ctx, userID, def.XPReward, model.ActivityAchievementUnlocked,
			fmt.Sprintf("Unlocked achievement: %s", def.Name)); err != nil {
			return nil, err
		}

		monitoring.AchievementsUnlocked.WithLabelValues(def.ID).Inc()
		logger.Log.Info("achievement unlocked", zap.Uint("userID", userID), zap.String("achievement", def.ID))
		unlocked = append(unlocked, def)
	}

	return unlocked, nil
}

func (s *AchievementService) GetUserAchievements(ctx context.Context, userID uint) (result *UserAchievements, err error) {
	ctx, span := tracing.StartSpan(ctx, "AchievementService.GetUserAchievements", tracing.UserID(userID))
	defer func() { tracing.End(span, err) }()

	user, err := s.Gamification.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	rows, err := s.AchievementRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	unlockedAt := make(map[string]time.Time, len(rows))
	for _, row := range rows {
		if _, ok := findAchievement(row.AchievementID); !ok {
			logger.Log.Warn("unknown achievement id in store", zap.String("achievement", row.AchievementID))
			continue
		}
		unlockedAt[row.AchievementID] = row.UnlockedAt
	}

	rank, err := s.Leaderboard.GetUserRank(ctx, userID)
	if err != nil {
		return nil, err
	}

	badges := make([]Badge, 0, len(achievementCatalog))
	for _, def := range achievementCatalog {
		b := Badge{AchievementDefinition: def}
		if at, ok := unlockedAt[def.ID]; ok {
			at := at
			b.Unlocked = true
			b.UnlockedAt = &at
		}
		badges = append(badges, b)
	}

	next := XPThreshold(user.Level)
	return &UserAchievements{
		Level:         user.Level,
		CurrentXP:     user.CurrentXP,
		XPToNextLevel: next - user.CurrentXP,
		NextLevelXP:   next,
		TotalXP:       user.TotalXP,
		Streak:        user.Streak,
		Rank:          rank.Rank,
		Unlocked:      len(unlockedAt),
		Badges:        badges,
	}, nil
}
