package database

import (
	"mathpulse_backend/internal/config"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitRedisDisabled(t *testing.T) {
	rdb, err := InitRedis(&config.RedisConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, rdb)
}

func TestInitRedisConnects(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	rdb, err := InitRedis(&config.RedisConfig{Enabled: true, Host: mr.Host(), Port: port, PoolSize: 2})
	require.NoError(t, err)
	require.NotNil(t, rdb)
	defer rdb.Close()
}

func TestInitRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	mr.Close()

	_, err = InitRedis(&config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: port, DialTimeout: 200 * time.Millisecond})
	assert.Error(t, err)
}
