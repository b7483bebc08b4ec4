package service

import (
	"context"
	"errors"
	"fmt"
	"mathpulse_backend/internal/model"
	"mathpulse_backend/internal/repository"
	"mathpulse_backend/internal/util"
	"mathpulse_backend/pkg/logger"
	"mathpulse_backend/pkg/monitoring"
	"mathpulse_backend/pkg/tracing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultHistoryLimit = 50

// GamificationService 经验、等级与连续打卡；users 表的 level/current_xp/total_xp 只在这里写
type GamificationService struct {
	UserRepo     *repository.UserRepository
	ActivityRepo *repository.XPActivityRepository
	RankIndex    *repository.RankIndex
	Settings     *Settings

	now func() time.Time
}

func NewGamificationService(
	userRepo *repository.UserRepository,
	activityRepo *repository.XPActivityRepository,
	rankIndex *repository.RankIndex,
	settings *Settings,
) *GamificationService {
	return &GamificationService{
		UserRepo:     userRepo,
		ActivityRepo: activityRepo,
		RankIndex:    rankIndex,
		Settings:     settings,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// AwardResult 一次发放经验后的结果
type AwardResult struct {
	NewLevel      int  `json:"newLevel"`
	LeveledUp     bool `json:"leveledUp"`
	XPAwarded     int  `json:"xpAwarded"`
	CurrentXP     int  `json:"currentXP"`
	TotalXP       int  `json:"totalXP"`
	XPToNextLevel int  `json:"xpToNextLevel"`
}

// StreakResult 打卡结果，Award 仅在连续天数增加时非空
type StreakResult struct {
	Streak      int          `json:"streak"`
	Previous    int          `json:"previous"`
	Incremented bool         `json:"incremented"`
	Reset       bool         `json:"reset"`
	BonusXP     int          `json:"bonusXP"`
	Award       *AwardResult `json:"award,omitempty"`
}

// notFoundAsUser 把 gorm 的记录不存在转换为 ErrUserNotFound
func notFoundAsUser(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return util.ErrUserNotFound
	}
	return err
}

func (s *GamificationService) findUser(ctx context.Context, userID uint) (*model.User, error) {
	user, err := s.UserRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrUserNotFound
		}
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}
	return user, nil
}

func (s *GamificationService) AwardXP(ctx context.Context, userID uint, amount int, activityType model.ActivityType, description string) (result *AwardResult, err error) {
	if amount < 0 || amount > s.Settings.Gamification().AwardCap() {
		return nil, util.ErrInvalidXPAmount
	}
	if !activityType.Valid() {
		return nil, util.ErrInvalidActivityType
	}

	ctx, span := tracing.StartSpan(ctx, "GamificationService.AwardXP",
		tracing.UserID(userID),
		attribute.Int("xp.amount", amount),
		attribute.String("xp.activity_type", string(activityType)),
	)
	defer func() { tracing.End(span, err) }()

	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	level, currentXP := ApplyXP(user.Level, user.CurrentXP, amount)
	if err := s.UserRepo.ApplyXP(ctx, userID, level, currentXP, amount); err != nil {
		return nil, fmt.Errorf("persist xp for user %d: %w", userID, err)
	}

	activity := &model.XPActivity{
		UserID:       userID,
		ActivityType: activityType,
		Amount:       amount,
		Description:  description,
		CreatedAt:    s.now(),
	}
	if err := s.ActivityRepo.Create(ctx, activity); err != nil {
		logger.Log.Warn("failed to append xp activity",
			zap.Uint("userID", userID),
			zap.String("activityType", string(activityType)),
			zap.Error(err))
	}

	if user.Role == model.Student && !user.Disabled {
		if err := s.RankIndex.Incr(ctx, userID, amount); err != nil {
			logger.Log.Warn("failed to update rank index", zap.Uint("userID", userID), zap.Error(err))
		}
	}

	monitoring.XPAwarded.WithLabelValues(string(activityType)).Add(float64(amount))
	if gained := level - user.Level; gained > 0 {
		monitoring.LevelUps.Add(float64(gained))
		logger.Log.Info("user leveled up",
			zap.Uint("userID", userID),
			zap.Int("from", user.Level),
			zap.Int("to", level))
	}

	return &AwardResult{
		NewLevel:      level,
		LeveledUp:     level > user.Level,
		XPAwarded:     amount,
		CurrentXP:     currentXP,
		TotalXP:       user.TotalXP + amount,
		XPToNextLevel: XPThreshold(level) - currentXP,
	}, nil
}

// civilDay 把时刻折算成所在时区的日历日（以 UTC 零点表示），便于做天数差
func civilDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

// StreakBonus min(streak*perDay, maxBonus)
func StreakBonus(streak, perDay, maxBonus int) int {
	bonus := streak * perDay
	if bonus > maxBonus {
		return maxBonus
	}
	return bonus
}

func (s *GamificationService) UpdateStreak(ctx context.Context, userID uint) (result *StreakResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "GamificationService.UpdateStreak", tracing.UserID(userID))
	defer func() { tracing.End(span, err) }()

	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	cfg := s.Settings.Gamification()
	loc := cfg.Location()
	now := s.now()

	result = &StreakResult{Previous: user.Streak, Streak: user.Streak}
	if user.LastActivityDate == nil {
		result.Streak = 1
	} else {
		diff := daysBetween(civilDay(*user.LastActivityDate, loc), civilDay(now, loc))
		switch {
		case diff <= 0:
			// 同一天或时钟回拨，保持不变
		case diff == 1:
			result.Streak = user.Streak + 1
			result.Incremented = true
		default:
			result.Streak = 1
			result.Reset = true
		}
	}

	if err := s.UserRepo.UpdateStreak(ctx, userID, result.Streak, now); err != nil {
		return nil, fmt.Errorf("persist streak for user %d: %w", userID, err)
	}

	if result.Incremented {
		result.BonusXP = StreakBonus(result.Streak, cfg.StreakBonusPerDay, cfg.StreakBonusCap)
		if result.BonusXP > 0 {
			desc := fmt.Sprintf("%d-day streak bonus", result.Streak)
			award, err := s.AwardXP(ctx, userID, result.BonusXP, model.ActivityStreakBonus, desc)
			if err != nil {
				return nil, err
			}
			result.Award = award
		}
	}

	span.SetAttributes(attribute.Int("streak", result.Streak))
	return result, nil
}

func (s *GamificationService) GetXPHistory(ctx context.Context, userID uint, limit int) (history []model.XPActivity, err error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = util.ClampInt(limit, 1, 200)

	ctx, span := tracing.StartSpan(ctx, "GamificationService.GetXPHistory",
		tracing.UserID(userID),
		attribute.Int("history.limit", limit),
	)
	defer func() { tracing.End(span, err) }()

	return s.ActivityRepo.ListByUser(ctx, userID, limit)
}
