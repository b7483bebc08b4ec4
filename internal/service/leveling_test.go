package service

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestXPThreshold(t *testing.T) {
	assert.Equal(t, 100, XPThreshold(1))
	assert.Equal(t, 150, XPThreshold(2))
	assert.Equal(t, 225, XPThreshold(3))
	assert.Equal(t, 337, XPThreshold(4))
	assert.Equal(t, 100, XPThreshold(0), "levels below 1 use the first threshold")
	assert.Equal(t, maxThreshold, XPThreshold(200))
}

func TestApplyXP(t *testing.T) {
	cases := []struct {
		name             string
		level, xp, award int
		wantLevel        int
		wantXP           int
	}{
		{"below threshold", 1, 0, 99, 1, 99},
		{"exact boundary rolls over", 1, 0, 100, 2, 0},
		{"carry remainder", 1, 80, 30, 2, 10},
		{"multi level jump", 1, 0, 250, 3, 0},
		{"zero award", 3, 12, 0, 3, 12},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			level, xp := ApplyXP(tc.level, tc.xp, tc.award)
			assert.Equal(t, tc.wantLevel, level)
			assert.Equal(t, tc.wantXP, xp)
		})
	}
}

func TestApplyXPHugeAmountsStayBounded(t *testing.T) {
	start := time.Now()
	level, xp := ApplyXP(1, 10, math.MaxInt)
	assert.Less(t, time.Since(start), time.Second)
	assert.GreaterOrEqual(t, xp, 0)
	assert.Less(t, xp, maxThreshold)
	assert.Greater(t, level, 1)

	// 阈值封顶后每 maxThreshold 升一级
	capped := 60
	assert.Equal(t, maxThreshold, XPThreshold(capped))
	level, xp = ApplyXP(capped, 5, 3*maxThreshold)
	assert.Equal(t, capped+3, level)
	assert.Equal(t, 5, xp)

	level, xp = ApplyXP(capped, maxThreshold-1, math.MaxInt)
	assert.GreaterOrEqual(t, xp, 0)
	assert.Greater(t, level, capped)
}

func TestApplyXPMatchesStepwiseLoop(t *testing.T) {
	stepwise := func(level, xp, amount int) (int, int) {
		xp += amount
		for xp >= XPThreshold(level) {
			xp -= XPThreshold(level)
			level++
		}
		return level, xp
	}
	for _, amount := range []int{0, 99, 100, 12345, 1 << 31, 1<<33 + 17} {
		wantLevel, wantXP := stepwise(1, 0, amount)
		level, xp := ApplyXP(1, 0, amount)
		assert.Equal(t, wantLevel, level, "amount %d", amount)
		assert.Equal(t, wantXP, xp, "amount %d", amount)
	}
}

func TestQuizXPUsesIntegerMath(t *testing.T) {
	assert.Equal(t, 0, QuizXP(0))
	assert.Equal(t, 29, QuizXP(29))
	assert.Equal(t, 57, QuizXP(57))
	assert.Equal(t, 100, QuizXP(100))
}

func TestStreakBonus(t *testing.T) {
	assert.Equal(t, 10, StreakBonus(2, 5, 50))
	assert.Equal(t, 50, StreakBonus(10, 5, 50))
	assert.Equal(t, 50, StreakBonus(30, 5, 50))
}
