package service

import (
	"mathpulse_backend/internal/config"
	"sync"
)

// Settings 运行时可热更新的玩法参数
type Settings struct {
	mu           sync.RWMutex
	gamification config.GamificationConfig
	leaderboard  config.LeaderboardConfig
}

func NewSettings(g config.GamificationConfig, l config.LeaderboardConfig) *Settings {
	return &Settings{gamification: g, leaderboard: l}
}

// DefaultSettings 测试与未配置时使用
func DefaultSettings() *Settings {
	return NewSettings(config.DefaultGamification(), config.DefaultLeaderboard())
}

func (s *Settings) Gamification() config.GamificationConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gamification
}

func (s *Settings) Leaderboard() config.LeaderboardConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.leaderboard
}

// Apply 接收重新加载后的配置
func (s *Settings) Apply(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gamification = cfg.Gamification
	s.leaderboard = cfg.Leaderboard
}
