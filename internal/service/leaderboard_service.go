package service

import (
	"context"
	"fmt"
	"mathpulse_backend/internal/model"
	"mathpulse_backend/internal/repository"
	"mathpulse_backend/internal/util"
	"mathpulse_backend/pkg/logger"
	"mathpulse_backend/pkg/monitoring"
	"mathpulse_backend/pkg/tracing"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const rankRebuildBatch = 500

type LeaderboardService struct {
	UserRepo     *repository.UserRepository
	ActivityRepo *repository.XPActivityRepository
	FriendRepo   *repository.FriendshipRepository
	RankIndex    *repository.RankIndex
	Settings     *Settings

	now func() time.Time
}

func NewLeaderboardService(
	userRepo *repository.UserRepository,
	activityRepo *repository.XPActivityRepository,
	friendRepo *repository.FriendshipRepository,
	rankIndex *repository.RankIndex,
	settings *Settings,
) *LeaderboardService {
	return &LeaderboardService{
		UserRepo:     userRepo,
		ActivityRepo: activityRepo,
		FriendRepo:   friendRepo,
		RankIndex:    rankIndex,
		Settings:     settings,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

type LeaderboardQuery struct {
	UserID      uint
	FriendsOnly bool
	TimeRange   string
	Limit       int
}

type LeaderboardEntry struct {
	Rank          int    `json:"rank"`
	UserID        uint   `json:"userId"`
	Name          string `json:"name"`
	Avatar        string `json:"avatar,omitempty"`
	Level         int    `json:"level"`
	XP            int    `json:"xp"`
	IsCurrentUser bool   `json:"isCurrentUser"`
}

type UserRank struct {
	UserID  uint `json:"userId"`
	Rank    int  `json:"rank"`
	TotalXP int  `json:"totalXP"`
}

// since 返回时间窗口起点；all 返回零值
func (s *LeaderboardService) since(timeRange string) (time.Time, error) {
	switch timeRange {
	case "", util.TimeRangeAll:
		return time.Time{}, nil
	case util.TimeRangeWeek:
		return s.now().AddDate(0, 0, -7), nil
	case util.TimeRangeMonth:
		return s.now().AddDate(0, 0, -30), nil
	}
	return time.Time{}, util.ErrInvalidTimeRange
}

func (s *LeaderboardService) limit(requested int) int {
	cfg := s.Settings.Leaderboard()
	if requested <= 0 {
		return cfg.DefaultLimit
	}
	return util.ClampInt(requested, 1, cfg.MaxLimit)
}

func (s *LeaderboardService) GetLeaderboard(ctx context.Context, q LeaderboardQuery) (entries []LeaderboardEntry, err error) {
	since, err := s.since(q.TimeRange)
	if err != nil {
		return nil, err
	}
	limit := s.limit(q.Limit)

	ctx, span := tracing.StartSpan(ctx, "LeaderboardService.GetLeaderboard",
		tracing.UserID(q.UserID),
		attribute.Bool("leaderboard.friends_only", q.FriendsOnly),
		attribute.String("leaderboard.time_range", q.TimeRange),
		attribute.Int("leaderboard.limit", limit),
	)
	defer func() { tracing.End(span, err) }()

	if q.FriendsOnly {
		entries, err = s.friendsBoard(ctx, q.UserID, since, limit)
	} else {
		entries, err = s.globalBoard(ctx, since, limit)
	}
	if err != nil {
		return nil, err
	}

	for i := range entries {
		entries[i].Rank = i + 1
		entries[i].IsCurrentUser = entries[i].UserID == q.UserID
	}
	return entries, nil
}

func entryFor(u model.User, xp int) LeaderboardEntry {
	return LeaderboardEntry{
		UserID: u.ID,
		Name:   u.Name,
		Avatar: u.Avatar,
		Level:  u.Level,
		XP:     xp,
	}
}

func (s *LeaderboardService) globalBoard(ctx context.Context, since time.Time, limit int) ([]LeaderboardEntry, error) {
	if since.IsZero() {
		users, err := s.UserRepo.FindTopStudentsByXP(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("load top students: %w", err)
		}
		entries := make([]LeaderboardEntry, 0, len(users))
		for _, u := range users {
			entries = append(entries, entryFor(u, u.TotalXP))
		}
		return entries, nil
	}

	sums, err := s.ActivityRepo.TopStudentsSince(ctx, since, limit)
	if err != nil {
		return nil, fmt.Errorf("sum xp since %s: %w", since.Format(util.TimeFormat), err)
	}
	ids := make([]uint, 0, len(sums))
	for _, row := range sums {
		ids = append(ids, row.UserID)
	}
	users, err := s.UserRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]model.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	entries := make([]LeaderboardEntry, 0, len(sums))
	for _, row := range sums {
		u, ok := byID[row.UserID]
		if !ok {
			continue
		}
		entries = append(entries, entryFor(u, row.XP))
	}
	return entries, nil
}

// friendsBoard 好友 + 自己，不限角色，在内存中排序
func (s *LeaderboardService) friendsBoard(ctx context.Context, userID uint, since time.Time, limit int) ([]LeaderboardEntry, error) {
	friendIDs, err := s.FriendRepo.GetFriendIDsCached(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load friends of %d: %w", userID, err)
	}
	ids := append([]uint{userID}, friendIDs...)

	users, err := s.UserRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	var windowed map[uint]int
	if !since.IsZero() {
		windowed, err = s.ActivityRepo.SumSinceForUsers(ctx, since, ids)
		if err != nil {
			return nil, err
		}
	}

	entries := make([]LeaderboardEntry, 0, len(users))
	for _, u := range users {
		xp := u.TotalXP
		if windowed != nil {
			xp = windowed[u.ID]
		}
		entries = append(entries, entryFor(u, xp))
	}

	// users 已按 id 升序，稳定排序保证同分时 id 小的在前
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].XP > entries[j].XP
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// GetUserRank 全局排名 = 总经验严格更高的学生数 + 1
func (s *LeaderboardService) GetUserRank(ctx context.Context, userID uint) (rank *UserRank, err error) {
	ctx, span := tracing.StartSpan(ctx, "LeaderboardService.GetUserRank", tracing.UserID(userID))
	defer func() { tracing.End(span, err) }()

	user, err := s.UserRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, notFoundAsUser(err)
	}

	above, ok, err := s.RankIndex.CountAbove(ctx, user.TotalXP)
	if err != nil {
		logger.Log.Warn("rank index lookup failed, falling back to database", zap.Uint("userID", userID), zap.Error(err))
	}
	if !ok {
		if s.RankIndex.Enabled() {
			monitoring.RankIndexFallbacks.Inc()
		}
		above, err = s.UserRepo.CountStudentsAbove(ctx, user.TotalXP)
		if err != nil {
			return nil, fmt.Errorf("count students above %d: %w", user.TotalXP, err)
		}
	}

	return &UserRank{UserID: userID, Rank: int(above) + 1, TotalXP: user.TotalXP}, nil
}

// RebuildRankIndex 从 users 表全量重建 redis 排名索引
func (s *LeaderboardService) RebuildRankIndex(ctx context.Context) (n int, err error) {
	if !s.RankIndex.Enabled() {
		return 0, nil
	}

	ctx, span := tracing.StartSpan(ctx, "LeaderboardService.RebuildRankIndex")
	defer func() { tracing.End(span, err) }()

	start := time.Now()
	n, err = s.RankIndex.Rebuild(ctx, func(fn func([]repository.StudentXP) error) error {
		return s.UserRepo.EachStudentXP(ctx, rankRebuildBatch, fn)
	})
	if err != nil {
		return 0, fmt.Errorf("rebuild rank index: %w", err)
	}

	logger.Log.Info("rank index rebuilt", zap.Int("students", n), zap.Duration("took", time.Since(start)))
	return n, nil
}
