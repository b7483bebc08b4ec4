package service

import (
	"mathpulse_backend/internal/repository"
	"mathpulse_backend/internal/testutil"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

type harness struct {
	db           *gorm.DB
	settings     *Settings
	users        *repository.UserRepository
	rank         *repository.RankIndex
	user         *UserService
	gamification *GamificationService
	progress     *ProgressService
	leaderboard  *LeaderboardService
	achievement  *AchievementService
	friendship   *FriendshipService
	clock        *fakeClock
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newHarness(t *testing.T, rdb *redis.Client) *harness {
	t.Helper()

	db := testutil.NewDB(t)
	settings := DefaultSettings()
	clock := &fakeClock{t: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)}

	users := repository.NewUserRepository(db)
	activity := repository.NewXPActivityRepository(db)
	progressRepo := repository.NewProgressRepository(db)
	friends := repository.NewFriendshipRepository(db, rdb)
	rank := repository.NewRankIndex(rdb)

	h := &harness{db: db, settings: settings, users: users, rank: rank, clock: clock}
	h.user = NewUserService(users, rank, nil)
	h.gamification = NewGamificationService(users, activity, rank, settings)
	h.gamification.now = clock.Now
	h.progress = NewProgressService(progressRepo, users, h.gamification, settings)
	h.progress.now = clock.Now
	h.leaderboard = NewLeaderboardService(users, activity, friends, rank, settings)
	h.leaderboard.now = clock.Now
	h.achievement = NewAchievementService(repository.NewAchievementRepository(db), progressRepo, h.gamification, h.leaderboard)
	h.achievement.now = clock.Now
	h.friendship = NewFriendshipService(friends, users)
	return h
}
