package service

import (
	"context"
	"math"
	"mathpulse_backend/internal/config"
	"mathpulse_backend/internal/model"
	"mathpulse_backend/internal/testutil"
	"mathpulse_backend/internal/util"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rankIndexKey = "mathpulse:rank:total_xp"

func TestAwardXPLevelsUpWithRemainder(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	user := testutil.CreateUser(t, h.db, "ada", model.Student, 0)
	require.NoError(t, h.db.Model(user).Updates(map[string]interface{}{"current_xp": 80, "total_xp": 80}).Error)

	res, err := h.gamification.AwardXP(ctx, user.ID, 30, model.ActivityQuizComplete, "quiz")
	require.NoError(t, err)
	assert.Equal(t, 2, res.NewLevel)
	assert.True(t, res.LeveledUp)
	assert.Equal(t, 30, res.XPAwarded)
	assert.Equal(t, 10, res.CurrentXP)
	assert.Equal(t, 110, res.TotalXP)
	assert.Equal(t, 140, res.XPToNextLevel)

	stored, err := h.users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Level)
	assert.Equal(t, 10, stored.CurrentXP)
	assert.Equal(t, 110, stored.TotalXP)

	history, err := h.gamification.GetXPHistory(ctx, user.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.ActivityQuizComplete, history[0].ActivityType)
	assert.Equal(t, 30, history[0].Amount)
	assert.NotEmpty(t, history[0].ID)
}

func TestAwardXPTotalsMatchSumOfAwards(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	user := testutil.CreateUser(t, h.db, "bob", model.Student, 0)

	awards := []int{40, 0, 75, 130, 5}
	sum := 0
	for _, a := range awards {
		_, err := h.gamification.AwardXP(ctx, user.ID, a, model.ActivityLessonComplete, "")
		require.NoError(t, err)
		sum += a
	}

	stored, err := h.users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, sum, stored.TotalXP)

	level, current := ApplyXP(1, 0, sum)
	assert.Equal(t, level, stored.Level)
	assert.Equal(t, current, stored.CurrentXP)
}

func TestAwardXPRejectsInvalidInput(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	user := testutil.CreateUser(t, h.db, "cy", model.Student, 0)

	_, err := h.gamification.AwardXP(ctx, user.ID, -1, model.ActivityLessonComplete, "")
	assert.ErrorIs(t, err, util.ErrInvalidXPAmount)

	_, err = h.gamification.AwardXP(ctx, user.ID, 10, model.ActivityType("bribe"), "")
	assert.ErrorIs(t, err, util.ErrInvalidActivityType)

	_, err = h.gamification.AwardXP(ctx, 9999, 10, model.ActivityLessonComplete, "")
	assert.ErrorIs(t, err, util.ErrUserNotFound)
}

func TestAwardXPEnforcesConfiguredCap(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	user := testutil.CreateUser(t, h.db, "cap", model.Student, 0)

	cfg := config.Config{Gamification: config.DefaultGamification(), Leaderboard: config.DefaultLeaderboard()}
	cfg.Gamification.MaxAwardXP = 500
	h.settings.Apply(&cfg)

	_, err := h.gamification.AwardXP(ctx, user.ID, 500, model.ActivityLessonComplete, "")
	require.NoError(t, err)

	for _, amount := range []int{501, math.MaxInt} {
		_, err = h.gamification.AwardXP(ctx, user.ID, amount, model.ActivityLessonComplete, "")
		assert.ErrorIs(t, err, util.ErrInvalidXPAmount, "amount %d", amount)
	}

	stored, err := h.users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 500, stored.TotalXP)
	assert.GreaterOrEqual(t, stored.CurrentXP, 0)
}

func TestAwardXPUpdatesRankIndexForStudents(t *testing.T) {
	rdb, _ := testutil.NewRedis(t)
	h := newHarness(t, rdb)
	ctx := context.Background()

	student := testutil.CreateUser(t, h.db, "stu", model.Student, 20)
	teacher := testutil.CreateUser(t, h.db, "tea", model.Teacher, 0)

	_, err := h.leaderboard.RebuildRankIndex(ctx)
	require.NoError(t, err)

	_, err = h.gamification.AwardXP(ctx, student.ID, 15, model.ActivityLessonComplete, "")
	require.NoError(t, err)
	_, err = h.gamification.AwardXP(ctx, teacher.ID, 15, model.ActivityLessonComplete, "")
	require.NoError(t, err)

	score, err := rdb.ZScore(ctx, rankIndexKey, strconv.Itoa(int(student.ID))).Result()
	require.NoError(t, err)
	assert.Equal(t, float64(35), score)

	err = rdb.ZScore(ctx, rankIndexKey, strconv.Itoa(int(teacher.ID))).Err()
	assert.ErrorIs(t, err, redis.Nil, "teachers are not ranked")
}

func TestUpdateStreakPolicy(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	user := testutil.CreateUser(t, h.db, "dee", model.Student, 0)

	// 首次活动
	res, err := h.gamification.UpdateStreak(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Streak)
	assert.False(t, res.Incremented)
	assert.Nil(t, res.Award)

	// 同一天再次调用
	h.clock.Advance(10 * time.Hour)
	res, err = h.gamification.UpdateStreak(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Streak)
	assert.False(t, res.Incremented)
	assert.False(t, res.Reset)

	// 第二天
	h.clock.Advance(6 * time.Hour)
	res, err = h.gamification.UpdateStreak(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Streak)
	assert.True(t, res.Incremented)
	assert.Equal(t, 10, res.BonusXP)
	require.NotNil(t, res.Award)
	assert.Equal(t, 10, res.Award.TotalXP)

	// 中断两天以上
	h.clock.Advance(72 * time.Hour)
	res, err = h.gamification.UpdateStreak(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Streak)
	assert.True(t, res.Reset)
	assert.Equal(t, 2, res.Previous)
	assert.Zero(t, res.BonusXP)

	stored, err := h.users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Streak)
	require.NotNil(t, stored.LastActivityDate)
	assert.True(t, stored.LastActivityDate.Equal(h.clock.Now()))
	assert.Equal(t, 10, stored.TotalXP)
}

func TestUpdateStreakBonusIsCapped(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	user := testutil.CreateUser(t, h.db, "eve", model.Student, 0)

	yesterday := h.clock.Now().Add(-24 * time.Hour)
	require.NoError(t, h.users.UpdateStreak(ctx, user.ID, 14, yesterday))

	res, err := h.gamification.UpdateStreak(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, res.Streak)
	assert.Equal(t, 50, res.BonusXP)
}

func TestUpdateStreakIgnoresFutureActivityDate(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	user := testutil.CreateUser(t, h.db, "fay", model.Student, 0)

	tomorrow := h.clock.Now().Add(30 * time.Hour)
	require.NoError(t, h.users.UpdateStreak(ctx, user.ID, 4, tomorrow))

	res, err := h.gamification.UpdateStreak(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Streak)
	assert.False(t, res.Reset)
	assert.False(t, res.Incremented)
}

func TestUpdateStreakUnknownUser(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.gamification.UpdateStreak(context.Background(), 42)
	assert.ErrorIs(t, err, util.ErrUserNotFound)
}

func TestCivilDayUsesLocation(t *testing.T) {
	east := time.FixedZone("UTC+8", 8*3600)
	late := time.Date(2024, 1, 1, 15, 30, 0, 0, time.UTC) // 23:30 local
	early := time.Date(2024, 1, 1, 16, 30, 0, 0, time.UTC) // 00:30 local next day

	assert.Equal(t, 0, daysBetween(civilDay(late, time.UTC), civilDay(early, time.UTC)))
	assert.Equal(t, 1, daysBetween(civilDay(late, east), civilDay(early, east)))
}

func TestAwardXPSkipsRankIndexUntilBuilt(t *testing.T) {
	rdb, mr := testutil.NewRedis(t)
	h := newHarness(t, rdb)
	ctx := context.Background()
	student := testutil.CreateUser(t, h.db, "new", model.Student, 0)

	_, err := h.gamification.AwardXP(ctx, student.ID, 15, model.ActivityLessonComplete, "")
	require.NoError(t, err)
	assert.False(t, mr.Exists(rankIndexKey), "a single member must not pose as a complete index")
}

// 模拟两次发放交错：B 已写库但索引增量晚于 A 到达
func TestRankIndexStaysInParityWithInterleavedAwards(t *testing.T) {
	rdb, _ := testutil.NewRedis(t)
	h := newHarness(t, rdb)
	ctx := context.Background()

	student := testutil.CreateUser(t, h.db, "par", model.Student, 100)
	_, err := h.leaderboard.RebuildRankIndex(ctx)
	require.NoError(t, err)

	// B: 数据库 +300 已提交
	user, err := h.users.FindByID(ctx, student.ID)
	require.NoError(t, err)
	level, current := ApplyXP(user.Level, user.CurrentXP, 300)
	require.NoError(t, h.users.ApplyXP(ctx, student.ID, level, current, 300))

	// A: 完整发放 +50
	_, err = h.gamification.AwardXP(ctx, student.ID, 50, model.ActivityQuizComplete, "")
	require.NoError(t, err)

	// B: 索引增量最后到达
	require.NoError(t, h.rank.Incr(ctx, student.ID, 300))

	stored, err := h.users.FindByID(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, 450, stored.TotalXP)

	score, err := rdb.ZScore(ctx, rankIndexKey, strconv.Itoa(int(student.ID))).Result()
	require.NoError(t, err)
	assert.Equal(t, float64(stored.TotalXP), score)
}

func TestConcurrentAwardsKeepRankIndexInParity(t *testing.T) {
	rdb, _ := testutil.NewRedis(t)
	h := newHarness(t, rdb)
	ctx := context.Background()

	student := testutil.CreateUser(t, h.db, "con", model.Student, 0)
	_, err := h.leaderboard.RebuildRankIndex(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.gamification.AwardXP(ctx, student.ID, 25, model.ActivityQuizComplete, "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := h.users.FindByID(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, 200, stored.TotalXP)

	score, err := rdb.ZScore(ctx, rankIndexKey, strconv.Itoa(int(student.ID))).Result()
	require.NoError(t, err)
	assert.Equal(t, float64(200), score)
}

func TestDisabledStudentsLeaveRankIndex(t *testing.T) {
	rdb, _ := testutil.NewRedis(t)
	h := newHarness(t, rdb)
	ctx := context.Background()

	top := testutil.CreateUser(t, h.db, "top", model.Student, 900)
	low := testutil.CreateUser(t, h.db, "low", model.Student, 100)
	_, err := h.leaderboard.RebuildRankIndex(ctx)
	require.NoError(t, err)

	disabled, err := h.user.SetDisabled(ctx, top.ID, true)
	require.NoError(t, err)
	assert.True(t, disabled.Disabled)

	err = rdb.ZScore(ctx, rankIndexKey, strconv.Itoa(int(top.ID))).Err()
	assert.ErrorIs(t, err, redis.Nil)

	// 禁用期间发放的经验不进入索引
	_, err = h.gamification.AwardXP(ctx, top.ID, 50, model.ActivityLessonComplete, "")
	require.NoError(t, err)
	err = rdb.ZScore(ctx, rankIndexKey, strconv.Itoa(int(top.ID))).Err()
	assert.ErrorIs(t, err, redis.Nil)

	rank, err := h.leaderboard.GetUserRank(ctx, low.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, rank.Rank)

	_, err = h.user.SetDisabled(ctx, top.ID, false)
	require.NoError(t, err)
	score, err := rdb.ZScore(ctx, rankIndexKey, strconv.Itoa(int(top.ID))).Result()
	require.NoError(t, err)
	assert.Equal(t, float64(950), score)

	rank, err = h.leaderboard.GetUserRank(ctx, low.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, rank.Rank)

	_, err = h.user.SetDisabled(ctx, 4242, true)
	assert.ErrorIs(t, err, util.ErrUserNotFound)
}
