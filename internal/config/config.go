package config

import (
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	JWT          JWTConfig
	Storage      StorageConfig
	Tracing      TracingConfig `mapstructure:"tracing"`
	Redis        RedisConfig
	Log          LogConfig          `mapstructure:"log"`
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	Gamification GamificationConfig `mapstructure:"gamification"`
	Leaderboard  LeaderboardConfig  `mapstructure:"leaderboard"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"`
	MigrateOnly  bool `mapstructure:"-"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int      `mapstructure:"max_requests"`
	WindowMinutes int      `mapstructure:"window_minutes"`
	Burst         int      `mapstructure:"burst"`
	ExemptPaths   []string `mapstructure:"exempt_paths"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Driver    string `mapstructure:"driver"`
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
	SSLMode   string `mapstructure:"sslmode"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type StorageConfig struct {
	Type          string `mapstructure:"type"`
	LocalPath     string `mapstructure:"local_path"`
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
	MinioUseSSL   bool   `mapstructure:"minio_use_ssl"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
	ServiceName       string `mapstructure:"service_name"`
}

type RedisConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	Host        string
	Port        int
	Password    string
	DB          int
	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// LogConfig 日志级别与滚动文件参数
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Console    bool   `mapstructure:"console"`
}

// GamificationConfig holds the tunable parts of XP, streak and lesson rewards.
type GamificationConfig struct {
	LessonXP              int    `mapstructure:"lesson_xp"`
	StreakBonusPerDay     int    `mapstructure:"streak_bonus_per_day"`
	StreakBonusCap        int    `mapstructure:"streak_bonus_cap"`
	FirstCompletionXPOnly bool   `mapstructure:"first_completion_xp_only"`
	Timezone              string `mapstructure:"timezone"`
	MaxAwardXP            int    `mapstructure:"max_award_xp"`
}

// AwardXPLimit 单次发放经验的硬上限，配置值不能超过它
const AwardXPLimit = 100000

type LeaderboardConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"`
}

// Location resolves the configured timezone, falling back to UTC.
func (g GamificationConfig) Location() *time.Location {
	if g.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// AwardCap 单次发放经验的上限，未配置时取默认值
func (g GamificationConfig) AwardCap() int {
	if g.MaxAwardXP <= 0 || g.MaxAwardXP > AwardXPLimit {
		return DefaultGamification().MaxAwardXP
	}
	return g.MaxAwardXP
}

// DefaultGamification mirrors the values shipped in configs/config.yaml.
func DefaultGamification() GamificationConfig {
	return GamificationConfig{
		LessonXP:          50,
		StreakBonusPerDay: 5,
		StreakBonusCap:    50,
		Timezone:          "UTC",
		MaxAwardXP:        10000,
	}
}

func DefaultRateLimit() RateLimitConfig {
	return RateLimitConfig{
		MaxRequests:   600,
		WindowMinutes: 1,
		ExemptPaths:   []string{"/metrics", "/api/health", "/swagger/"},
	}
}

func DefaultLeaderboard() LeaderboardConfig {
	return LeaderboardConfig{
		DefaultLimit: 10,
		MaxLimit:     100,
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.parsetime", true)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("jwt.expire_hours", 72)
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "uploads")
	v.SetDefault("tracing.service_name", "mathpulse")
	v.SetDefault("redis.pool_size", 50)
	v.SetDefault("redis.dial_timeout", "3s")
	v.SetDefault("log.file", "logs/mathpulse.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.console", true)
	rl := DefaultRateLimit()
	v.SetDefault("rate_limit.max_requests", rl.MaxRequests)
	v.SetDefault("rate_limit.window_minutes", rl.WindowMinutes)
	v.SetDefault("rate_limit.exempt_paths", rl.ExemptPaths)

	g := DefaultGamification()
	v.SetDefault("gamification.lesson_xp", g.LessonXP)
	v.SetDefault("gamification.streak_bonus_per_day", g.StreakBonusPerDay)
	v.SetDefault("gamification.streak_bonus_cap", g.StreakBonusCap)
	v.SetDefault("gamification.first_completion_xp_only", g.FirstCompletionXPOnly)
	v.SetDefault("gamification.timezone", g.Timezone)
	v.SetDefault("gamification.max_award_xp", g.MaxAwardXP)

	l := DefaultLeaderboard()
	v.SetDefault("leaderboard.default_limit", l.DefaultLimit)
	v.SetDefault("leaderboard.max_limit", l.MaxLimit)
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("MATHPULSE")
	v.AutomaticEnv()

	setDefaults(v)

	// Database
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	v.BindEnv("server.mode", "SERVER_MODE")
	v.BindEnv("server.port", "PORT")

	// Storage
	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	v.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("storage.minio_bucket", "MINIO_BUCKET")

	// Log
	v.BindEnv("log.level", "LOG_LEVEL")

	// Tracing
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour

	// 生产环境校验 JWT Secret 强度
	if cfg.Server.Mode == "release" && len(cfg.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.JWT.Secret))
	}

	if cfg.Leaderboard.MaxLimit <= 0 {
		cfg.Leaderboard.MaxLimit = DefaultLeaderboard().MaxLimit
	}
	if cfg.Leaderboard.DefaultLimit <= 0 || cfg.Leaderboard.DefaultLimit > cfg.Leaderboard.MaxLimit {
		cfg.Leaderboard.DefaultLimit = DefaultLeaderboard().DefaultLimit
	}

	if cfg.Gamification.MaxAwardXP <= 0 || cfg.Gamification.MaxAwardXP > AwardXPLimit {
		return nil, fmt.Errorf("gamification max_award_xp must be in (0, %d], got %d", AwardXPLimit, cfg.Gamification.MaxAwardXP)
	}

	if _, err := time.LoadLocation(cfg.Gamification.Timezone); err != nil {
		return nil, fmt.Errorf("invalid gamification timezone %q: %w", cfg.Gamification.Timezone, err)
	}

	if cfg.Storage.Type == "local" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, 0755)
		}
	}

	return &cfg, nil
}
