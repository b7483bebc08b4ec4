package service

// AchievementSnapshot 成就判定所依据的用户状态快照
type AchievementSnapshot struct {
	LessonsCompleted int
	QuizzesCompleted int
	Streak           int
	Level            int
	TotalXP          int
	HasPerfectScore  bool
}

// AchievementDefinition 固定的成就定义
type AchievementDefinition struct {
	ID          string                         `json:"id"`
	Name        string                         `json:"name"`
	Description string                         `json:"description"`
	XPReward    int                            `json:"xpReward"`
	Condition   func(AchievementSnapshot) bool `json:"-"`
}

var achievementCatalog = []AchievementDefinition{
	{
		ID:          "first_lesson",
		Name:        "First Steps",
		Description: "Complete your first lesson",
		XPReward:    25,
		Condition:   func(s AchievementSnapshot) bool { return s.LessonsCompleted >= 1 },
	},
	{
		ID:          "lesson_10",
		Name:        "Dedicated Learner",
		Description: "Complete 10 lessons",
		XPReward:    100,
		Condition:   func(s AchievementSnapshot) bool { return s.LessonsCompleted >= 10 },
	},
	{
		ID:          "first_quiz",
		Name:        "Quiz Taker",
		Description: "Complete your first quiz",
		XPReward:    25,
		Condition:   func(s AchievementSnapshot) bool { return s.QuizzesCompleted >= 1 },
	},
	{
		ID:          "quiz_10",
		Name:        "Quiz Master",
		Description: "Complete 10 different quizzes",
		XPReward:    100,
		Condition:   func(s AchievementSnapshot) bool { return s.QuizzesCompleted >= 10 },
	},
	{
		ID:          "perfect_score",
		Name:        "Perfectionist",
		Description: "Score 100 on any quiz",
		XPReward:    50,
		Condition:   func(s AchievementSnapshot) bool { return s.HasPerfectScore },
	},
	{
		ID:          "streak_3",
		Name:        "On a Roll",
		Description: "Keep a 3-day streak",
		XPReward:    30,
		Condition:   func(s AchievementSnapshot) bool { return s.Streak >= 3 },
	},
	{
		ID:          "streak_7",
		Name:        "Week Warrior",
		Description: "Keep a 7-day streak",
		XPReward:    75,
		Condition:   func(s AchievementSnapshot) bool { return s.Streak >= 7 },
	},
	{
		ID:          "level_5",
		Name:        "Rising Star",
		Description: "Reach level 5",
		XPReward:    100,
		Condition:   func(s AchievementSnapshot) bool { return s.Level >= 5 },
	},
	{
		ID:          "xp_1000",
		Name:        "XP Collector",
		Description: "Earn 1000 XP in total",
		XPReward:    100,
		Condition:   func(s AchievementSnapshot) bool { return s.TotalXP >= 1000 },
	},
}

// AchievementCatalog 返回成就列表的副本
func AchievementCatalog() []AchievementDefinition {
	out := make([]AchievementDefinition, len(achievementCatalog))
	copy(out, achievementCatalog)
	return out
}

func findAchievement(id string) (AchievementDefinition, bool) {
	for _, def := range achievementCatalog {
		if def.ID == id {
			return def, true
		}
	}
	return AchievementDefinition{}, false
}
