package service

import (
	"context"
	"fmt"
	"io"
	"mathpulse_backend/internal/model"
	"mathpulse_backend/internal/repository"
	"mathpulse_backend/internal/util"
	"mathpulse_backend/pkg/logger"
	"mathpulse_backend/pkg/tracing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UserService 处理用户资料相关的业务逻辑
type UserService struct {
	UserRepo  *repository.UserRepository
	RankIndex *repository.RankIndex
	Storage   *StorageService
}

func NewUserService(userRepo *repository.UserRepository, rankIndex *repository.RankIndex, storage *StorageService) *UserService {
	return &UserService{
		UserRepo:  userRepo,
		RankIndex: rankIndex,
		Storage:   storage,
	}
}

// Profile 个人资料 + 升级进度
type Profile struct {
	*model.User
	XPToNextLevel int `json:"xpToNextLevel"`
	NextLevelXP   int `json:"nextLevelXP"`
}

func (s *UserService) GetProfile(ctx context.Context, userID uint) (*Profile, error) {
	user, err := s.UserRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, notFoundAsUser(err)
	}
	next := XPThreshold(user.Level)
	return &Profile{
		User:          user,
		XPToNextLevel: next - user.CurrentXP,
		NextLevelXP:   next,
	}, nil
}

// UploadAvatar 校验文件头后上传，返回访问地址
func (s *UserService) UploadAvatar(ctx context.Context, userID uint, file io.ReadSeeker, size int64) (string, error) {
	mimeType, ext, err := util.SniffAvatar(file, size)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("avatars/%d/%s_%s%s", userID, time.Now().Format("20060102"), uuid.New().String(), ext)

	url, err := s.Storage.Upload(ctx, key, file, size, mimeType)
	if err != nil {
		return "", fmt.Errorf("store avatar: %w", err)
	}
	if err := s.UserRepo.UpdateAvatar(ctx, userID, url); err != nil {
		if delErr := s.Storage.Delete(ctx, key); delErr != nil {
			logger.Log.Warn("failed to remove orphaned avatar", zap.String("key", key), zap.Error(delErr))
		}
		return "", err
	}
	return url, nil
}

// ListUsers 管理端分页查询
func (s *UserService) ListUsers(ctx context.Context, filter repository.UserFilter, page, pageSize int) ([]model.User, int64, error) {
	if page < 1 {
		page = 1
	}
	pageSize = util.ClampInt(pageSize, 1, 100)
	return s.UserRepo.List(ctx, filter, page, pageSize)
}

// SetDisabled 启用/禁用账号；被禁用的学生同时移出排名索引
func (s *UserService) SetDisabled(ctx context.Context, userID uint, disabled bool) (user *model.User, err error) {
	ctx, span := tracing.StartSpan(ctx, "UserService.SetDisabled", tracing.UserID(userID))
	defer func() { tracing.End(span, err) }()

	user, err = s.UserRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, notFoundAsUser(err)
	}
	if err := s.UserRepo.SetDisabled(ctx, userID, disabled); err != nil {
		return nil, fmt.Errorf("update disabled flag for user %d: %w", userID, err)
	}
	user.Disabled = disabled

	if user.Role == model.Student {
		var idxErr error
		if disabled {
			idxErr = s.RankIndex.Remove(ctx, userID)
		} else {
			idxErr = s.RankIndex.Set(ctx, userID, user.TotalXP)
		}
		if idxErr != nil {
			logger.Log.Warn("failed to sync rank index", zap.Uint("userID", userID), zap.Bool("disabled", disabled), zap.Error(idxErr))
		}
	}

	logger.Log.Info("user disabled flag changed", zap.Uint("userID", userID), zap.Bool("disabled", disabled))
	return user, nil
}
