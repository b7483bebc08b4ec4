package service

import (
	"context"
	"mathpulse_backend/internal/model"
	"mathpulse_backend/internal/testutil"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func achievementIDs(defs []AchievementDefinition) []string {
	out := make([]string, len(defs))
	for i, d := range defs {
		out[i] = d.ID
	}
	return out
}

func TestCheckAchievementsUnlocksOnce(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	user := testutil.CreateUser(t, h.db, "hal", model.Student, 0)

	none, err := h.achievement.CheckAchievements(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = h.progress.CompleteLesson(ctx, lessonInput(user.ID, "lesson-1"))
	require.NoError(t, err)

	unlocked, err := h.achievement.CheckAchievements(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"first_lesson"}, achievementIDs(unlocked))

	again, err := h.achievement.CheckAchievements(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, again)

	stored, err := h.users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 50+25, stored.TotalXP)

	history, err := h.gamification.GetXPHistory(ctx, user.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	var achievementRows int
	for _, a := range history {
		if a.ActivityType == model.ActivityAchievementUnlocked {
			achievementRows++
			assert.Equal(t, 25, a.Amount)
		}
	}
	assert.Equal(t, 1, achievementRows)
}

func TestPerfectQuizUnlocksTwoBadges(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	user := testutil.CreateUser(t, h.db, "ivy", model.Student, 0)

	_, err := h.progress.CompleteQuiz(ctx, quizInput(user.ID, "quiz-1", 100))
	require.NoError(t, err)

	unlocked, err := h.achievement.CheckAchievements(ctx, user.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"first_quiz", "perfect_score"}, achievementIDs(unlocked))

	stored, err := h.users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 100+25+50, stored.TotalXP)
}

func TestCheckAchievementsEvaluatesOneSnapshot(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	user := testutil.CreateUser(t, h.db, "jay", model.Student, 990)
	require.NoError(t, h.db.Model(&model.User{}).Where("id = ?", user.ID).
		Update("total_lessons_completed", 1).Error)

	// first_lesson 的奖励让总经验越过 1000，但同一轮不再判定
	unlocked, err := h.achievement.CheckAchievements(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"first_lesson"}, achievementIDs(unlocked))

	next, err := h.achievement.CheckAchievements(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"xp_1000"}, achievementIDs(next))
}

func TestStreakAchievement(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	user := testutil.CreateUser(t, h.db, "kim", model.Student, 0)

	for day := 0; day < 3; day++ {
		_, err := h.gamification.UpdateStreak(ctx, user.ID)
		require.NoError(t, err)
		h.clock.Advance(24 * time.Hour)
	}

	unlocked, err := h.achievement.CheckAchievements(ctx, user.ID)
	require.NoError(t, err)
	assert.Contains(t, achievementIDs(unlocked), "streak_3")
	assert.NotContains(t, achievementIDs(unlocked), "streak_7")
}

func TestGetUserAchievementsListsWholeCatalog(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	testutil.CreateUser(t, h.db, "leo", model.Student, 5000)
	user := testutil.CreateUser(t, h.db, "max", model.Student, 0)

	_, err := h.progress.CompleteLesson(ctx, lessonInput(user.ID, "lesson-1"))
	require.NoError(t, err)
	_, err = h.achievement.CheckAchievements(ctx, user.ID)
	require.NoError(t, err)

	view, err := h.achievement.GetUserAchievements(ctx, user.ID)
	require.NoError(t, err)

	assert.Len(t, view.Badges, len(AchievementCatalog()))
	assert.Equal(t, 1, view.Unlocked)
	assert.Equal(t, 2, view.Rank)
	assert.Equal(t, 75, view.TotalXP)
	assert.Equal(t, view.NextLevelXP-view.CurrentXP, view.XPToNextLevel)

	for _, b := range view.Badges {
		if b.ID == "first_lesson" {
			assert.True(t, b.Unlocked)
			require.NotNil(t, b.UnlockedAt)
			assert.True(t, b.UnlockedAt.Equal(h.clock.Now()))
		} else {
			assert.False(t, b.Unlocked, b.ID)
			assert.Nil(t, b.UnlockedAt)
		}
	}
}

func TestCatalogIDsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, def := range AchievementCatalog() {
		assert.False(t, seen[def.ID], def.ID)
		seen[def.ID] = true
		assert.Positive(t, def.XPReward)
		assert.NotNil(t, def.Condition)
	}
	assert.Len(t, seen, 9)
}
