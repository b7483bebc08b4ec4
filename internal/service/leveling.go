package service

import "math"

const (
	baseLevelXP   = 100
	levelXPGrowth = 1.5
	maxThreshold  = math.MaxInt32
)

// XPThreshold 从 level 升到 level+1 所需经验：floor(100 * 1.5^(level-1))
func XPThreshold(level int) int {
	if level < 1 {
		level = 1
	}
	t := math.Floor(baseLevelXP * math.Pow(levelXPGrowth, float64(level-1)))
	if t > maxThreshold {
		return maxThreshold
	}
	return int(t)
}

// ApplyXP 累加经验并处理连续升级，恰好达到阈值时也会升级。
// 阈值封顶后剩余等级一次除法算完；累加结果饱和在 math.MaxInt
func ApplyXP(level, currentXP, amount int) (int, int) {
	if level < 1 {
		level = 1
	}
	if currentXP < 0 {
		currentXP = 0
	}
	if amount < 0 {
		amount = 0
	}
	if amount > math.MaxInt-currentXP {
		currentXP = math.MaxInt
	} else {
		currentXP += amount
	}
	for {
		threshold := XPThreshold(level)
		if currentXP < threshold {
			break
		}
		if threshold == maxThreshold {
			level += currentXP / threshold
			currentXP %= threshold
			break
		}
		currentXP -= threshold
		level++
	}
	return level, currentXP
}

// QuizXP 测验奖励按分数线性折算，满分 100 XP
func QuizXP(score int) int {
	return score * quizMaxXP / 100
}

const quizMaxXP = 100
