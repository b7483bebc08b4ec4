package repository

import (
	"context"
	"errors"
	"strconv"

	"github.com/go-redis/redis/v8"
)

const rankIndexKey = "mathpulse:rank:total_xp"

// RankIndex 学生总经验的 redis 有序集合，用于 O(log n) 查询全局排名
type RankIndex struct {
	Redis *redis.Client
	key   string
}

func NewRankIndex(rdb *redis.Client) *RankIndex {
	return &RankIndex{Redis: rdb, key: rankIndexKey}
}

func (i *RankIndex) Enabled() bool {
	return i != nil && i.Redis != nil
}

func member(userID uint) string {
	return strconv.FormatUint(uint64(userID), 10)
}

// 索引键不存在时不写入，避免残缺索引被 CountAbove 当作权威结果
var (
	incrIfIndexed = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then return false end
return redis.call("ZINCRBY", KEYS[1], ARGV[1], ARGV[2])`)
	setIfIndexed = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then return false end
return redis.call("ZADD", KEYS[1], ARGV[1], ARGV[2])`)
)

func (i *RankIndex) runIfIndexed(ctx context.Context, script *redis.Script, args ...interface{}) error {
	if !i.Enabled() {
		return nil
	}
	err := script.Run(ctx, i.Redis, []string{i.key}, args...).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

// Incr 按增量累加成员分数，并发发放时与数据库的原子自增保持一致
func (i *RankIndex) Incr(ctx context.Context, userID uint, delta int) error {
	return i.runIfIndexed(ctx, incrIfIndexed, delta, member(userID))
}

// Set 覆盖成员分数，用于重新启用的学生回到索引
func (i *RankIndex) Set(ctx context.Context, userID uint, totalXP int) error {
	return i.runIfIndexed(ctx, setIfIndexed, totalXP, member(userID))
}

func (i *RankIndex) Remove(ctx context.Context, userID uint) error {
	if !i.Enabled() {
		return nil
	}
	return i.Redis.ZRem(ctx, i.key, member(userID)).Err()
}

// CountAbove 返回分数严格大于 totalXP 的成员数；索引尚未建立时 ok 为 false
func (i *RankIndex) CountAbove(ctx context.Context, totalXP int) (count int64, ok bool, err error) {
	if !i.Enabled() {
		return 0, false, nil
	}
	exists, err := i.Redis.Exists(ctx, i.key).Result()
	if err != nil {
		return 0, false, err
	}
	if exists == 0 {
		return 0, false, nil
	}
	count, err = i.Redis.ZCount(ctx, i.key, "("+strconv.Itoa(totalXP), "+inf").Result()
	if err != nil {
		return 0, false, err
	}
	return count, true, nil
}

// Rebuild 先写临时键再 RENAME，重建期间读者始终看到完整索引
func (i *RankIndex) Rebuild(ctx context.Context, each func(func([]StudentXP) error) error) (int, error) {
	if !i.Enabled() {
		return 0, nil
	}

	tmp := i.key + ":rebuild"
	if err := i.Redis.Del(ctx, tmp).Err(); err != nil {
		return 0, err
	}

	total := 0
	err := each(func(batch []StudentXP) error {
		if len(batch) == 0 {
			return nil
		}
		members := make([]*redis.Z, len(batch))
		for n, s := range batch {
			members[n] = &redis.Z{Score: float64(s.TotalXP), Member: member(s.ID)}
		}
		total += len(batch)
		return i.Redis.ZAdd(ctx, tmp, members...).Err()
	})
	if err != nil {
		return 0, err
	}

	if total == 0 {
		return 0, i.Redis.Del(ctx, i.key).Err()
	}
	return total, i.Redis.Rename(ctx, tmp, i.key).Err()
}
