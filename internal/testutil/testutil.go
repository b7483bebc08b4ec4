// Package testutil 提供测试用的内存数据库与 redis
package testutil

import (
	"fmt"
	"mathpulse_backend/internal/model"
	"mathpulse_backend/pkg/database"
	"regexp"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9]+`)

// NewDB 每个测试独立的内存 sqlite，已完成迁移
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", unsafeName.ReplaceAllString(t.Name(), "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func NewRedis(t testing.TB) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb, mr
}

// CreateUser 直接写库，绕过注册流程
func CreateUser(t testing.TB, db *gorm.DB, name string, role model.UserRole, totalXP int) *model.User {
	t.Helper()

	user := &model.User{
		Name:     name,
		Email:    fmt.Sprintf("%s-%d@example.com", unsafeName.ReplaceAllString(name, "_"), time.Now().UnixNano()),
		Password: "x",
		Role:     role,
		Level:    1,
		TotalXP:  totalXP,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func Befriend(t testing.TB, db *gorm.DB, a, b uint) {
	t.Helper()

	pair := []model.Friendship{
		{UserID: a, FriendID: b, Status: model.FriendRequestAccepted},
		{UserID: b, FriendID: a, Status: model.FriendRequestAccepted},
	}
	require.NoError(t, db.Create(&pair).Error)
}
