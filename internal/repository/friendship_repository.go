package repository

import (
	"context"
	"fmt"
	"mathpulse_backend/internal/model"
	"mathpulse_backend/pkg/logger"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const friendCacheTTL = 24 * time.Hour

type FriendshipRepository struct {
	DB    *gorm.DB
	Redis *redis.Client
}

func NewFriendshipRepository(db *gorm.DB, rdb *redis.Client) *FriendshipRepository {
	return &FriendshipRepository{
		DB:    db,
		Redis: rdb,
	}
}

func friendCacheKey(userID uint) string {
	return fmt.Sprintf("mathpulse:friends:%d", userID)
}

func (r *FriendshipRepository) invalidate(ctx context.Context, userIDs ...uint) {
	if r.Redis == nil {
		return
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, friendCacheKey(id))
	}
	if err := r.Redis.Del(ctx, keys...).Err(); err != nil {
		logger.Log.Warn("failed to invalidate friend cache", zap.Error(err))
	}
}

func (r *FriendshipRepository) CreateFriendship(ctx context.Context, userID, friendID uint) error {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pair := []model.Friendship{
			{UserID: userID, FriendID: friendID, Status: model.FriendRequestAccepted},
			{UserID: friendID, FriendID: userID, Status: model.FriendRequestAccepted},
		}
		return tx.Create(&pair).Error
	})

	if err == nil {
		r.invalidate(ctx, userID, friendID)
	}
	return err
}

func (r *FriendshipRepository) DeleteFriendship(ctx context.Context, userID, friendID uint) error {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND friend_id = ?", userID, friendID).Delete(&model.Friendship{}).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ? AND friend_id = ?", friendID, userID).Delete(&model.Friendship{}).Error
	})

	if err == nil {
		r.invalidate(ctx, userID, friendID)
	}
	return err
}

func (r *FriendshipRepository) GetFriends(ctx context.Context, userID uint) ([]model.User, error) {
	var friends []model.User
	err := r.DB.WithContext(ctx).
		Joins("JOIN friendships ON friendships.friend_id = users.id").
		Where("friendships.user_id = ?", userID).
		Order("users.id ASC").
		Find(&friends).Error
	return friends, err
}

// GetFriendIDs 只获取好友的 ID 列表
func (r *FriendshipRepository) GetFriendIDs(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	err := r.DB.WithContext(ctx).Model(&model.Friendship{}).
		Where("user_id = ? AND status = ?", userID, model.FriendRequestAccepted).
		Order("friend_id ASC").
		Pluck("friend_id", &ids).Error
	return ids, err
}

// GetFriendIDsCached 获取好友 ID 列表（带缓存），缓存不可用时回源数据库
func (r *FriendshipRepository) GetFriendIDsCached(ctx context.Context, userID uint) ([]uint, error) {
	if r.Redis == nil {
		return r.GetFriendIDs(ctx, userID)
	}

	key := friendCacheKey(userID)
	cached, err := r.Redis.SMembers(ctx, key).Result()
	if err == nil && len(cached) > 0 {
		ids := make([]uint, 0, len(cached))
		for _, s := range cached {
			id, convErr := strconv.ParseUint(s, 10, 64)
			if convErr == nil && id > 0 {
				ids = append(ids, uint(id))
			}
		}
		return ids, nil
	}
	if err != nil {
		logger.Log.Warn("friend cache read failed", zap.Uint("userID", userID), zap.Error(err))
	}

	ids, err := r.GetFriendIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	pipe := r.Redis.Pipeline()
	if len(ids) > 0 {
		members := make([]interface{}, len(ids))
		for i, id := range ids {
			members[i] = id
		}
		pipe.SAdd(ctx, key, members...)
		pipe.Expire(ctx, key, friendCacheTTL)
	} else {
		// 空集合存哨兵值 0，防止缓存穿透
		pipe.SAdd(ctx, key, 0)
		pipe.Expire(ctx, key, 5*time.Minute)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Log.Warn("friend cache write failed", zap.Uint("userID", userID), zap.Error(err))
	}
	return ids, nil
}

func (r *FriendshipRepository) IsFriend(ctx context.Context, userID, friendID uint) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Friendship{}).
		Where("user_id = ? AND friend_id = ?", userID, friendID).
		Count(&count).Error
	return count > 0, err
}

func (r *FriendshipRepository) CreateRequest(ctx context.Context, req *model.FriendRequest) error {
	return r.DB.WithContext(ctx).Create(req).Error
}

func (r *FriendshipRepository) GetRequest(ctx context.Context, id string) (*model.FriendRequest, error) {
	var req model.FriendRequest
	err := r.DB.WithContext(ctx).First(&req, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *FriendshipRepository) FindPendingRequest(ctx context.Context, senderID, receiverID uint) (*model.FriendRequest, error) {
	var req model.FriendRequest
	err := r.DB.WithContext(ctx).
		Where("sender_id = ? AND receiver_id = ? AND status = ?", senderID, receiverID, model.FriendRequestPending).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *FriendshipRepository) UpdateRequestStatus(ctx context.Context, id string, status string) error {
	return r.DB.WithContext(ctx).Model(&model.FriendRequest{}).Where("id = ?", id).Update("status", status).Error
}

// AcceptPendingBetween 同步处理反向申请
func (r *FriendshipRepository) AcceptPendingBetween(ctx context.Context, senderID, receiverID uint) error {
	return r.DB.WithContext(ctx).Model(&model.FriendRequest{}).
		Where("sender_id = ? AND receiver_id = ? AND status = ?", senderID, receiverID, model.FriendRequestPending).
		Update("status", model.FriendRequestAccepted).Error
}

func (r *FriendshipRepository) GetRequests(ctx context.Context, userID uint, limit, offset int) ([]model.FriendRequest, int64, error) {
	var reqs []model.FriendRequest
	var total int64

	db := r.DB.WithContext(ctx).Model(&model.FriendRequest{}).
		Where("sender_id = ? OR receiver_id = ?", userID, userID)

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Preload("Sender").Preload("Receiver").
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&reqs).Error

	return reqs, total, err
}
