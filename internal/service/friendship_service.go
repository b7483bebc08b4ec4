package service

import (
	"context"
	"errors"
	"fmt"
	"mathpulse_backend/internal/model"
	"mathpulse_backend/internal/repository"
	"mathpulse_backend/internal/util"

	"gorm.io/gorm"
)

type FriendshipService struct {
	FriendRepo *repository.FriendshipRepository
	UserRepo   *repository.UserRepository
}

func NewFriendshipService(friendRepo *repository.FriendshipRepository, userRepo *repository.UserRepository) *FriendshipService {
	return &FriendshipService{
		FriendRepo: friendRepo,
		UserRepo:   userRepo,
	}
}

// SendFriendRequest 对方已发来待处理申请时直接同意
func (s *FriendshipService) SendFriendRequest(ctx context.Context, senderID, receiverID uint, message string) (*model.FriendRequest, error) {
	if senderID == receiverID {
		return nil, util.ErrFriendSelf
	}

	if _, err := s.UserRepo.FindByID(ctx, receiverID); err != nil {
		return nil, notFoundAsUser(err)
	}

	isFriend, err := s.FriendRepo.IsFriend(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}
	if isFriend {
		return nil, util.ErrAlreadyFriends
	}

	reciprocal, err := s.FriendRepo.FindPendingRequest(ctx, receiverID, senderID)
	if err == nil {
		if err := s.HandleFriendRequest(ctx, reciprocal.ID, senderID, true); err != nil {
			return nil, err
		}
		reciprocal.Status = model.FriendRequestAccepted
		return reciprocal, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// 重复发送时复用已有的待处理申请
	if existing, err := s.FriendRepo.FindPendingRequest(ctx, senderID, receiverID); err == nil {
		return existing, nil
	}

	req := &model.FriendRequest{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Message:    message,
		Status:     model.FriendRequestPending,
	}
	if err := s.FriendRepo.CreateRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("create friend request: %w", err)
	}
	return req, nil
}

func (s *FriendshipService) HandleFriendRequest(ctx context.Context, requestID string, receiverID uint, accept bool) error {
	req, err := s.FriendRepo.GetRequest(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.ErrFriendRequestNotFound
		}
		return err
	}

	if req.ReceiverID != receiverID {
		return util.ErrPermissionDenied
	}
	if req.Status != model.FriendRequestPending {
		return util.ErrFriendRequestHandled
	}

	if !accept {
		return s.FriendRepo.UpdateRequestStatus(ctx, requestID, model.FriendRequestRejected)
	}

	if err := s.FriendRepo.UpdateRequestStatus(ctx, requestID, model.FriendRequestAccepted); err != nil {
		return err
	}

	// 互相发过申请时可能已建立关系
	isFriend, err := s.FriendRepo.IsFriend(ctx, req.SenderID, req.ReceiverID)
	if err != nil {
		return err
	}
	if isFriend {
		return nil
	}

	if err := s.FriendRepo.AcceptPendingBetween(ctx, req.ReceiverID, req.SenderID); err != nil {
		return err
	}
	return s.FriendRepo.CreateFriendship(ctx, req.SenderID, req.ReceiverID)
}

func (s *FriendshipService) GetFriends(ctx context.Context, userID uint) ([]model.User, error) {
	return s.FriendRepo.GetFriends(ctx, userID)
}

func (s *FriendshipService) GetFriendRequests(ctx context.Context, userID uint, limit, offset int) ([]model.FriendRequest, int64, error) {
	return s.FriendRepo.GetRequests(ctx, userID, limit, offset)
}

func (s *FriendshipService) DeleteFriend(ctx context.Context, userID, friendID uint) error {
	return s.FriendRepo.DeleteFriendship(ctx, userID, friendID)
}
