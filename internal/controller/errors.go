package controller

import (
	"errors"
	"mathpulse_backend/internal/util"
	"net/http"

	"github.com/gin-gonic/gin"
)

var badRequestErrors = []error{
	util.ErrInvalidXPAmount,
	util.ErrInvalidActivityType,
	util.ErrInvalidScore,
	util.ErrInvalidTimeRange,
	util.ErrInvalidContentID,
	util.ErrFriendSelf,
	util.ErrInvalidFileType,
	util.ErrFileTooLarge,
}

var conflictErrors = []error{
	util.ErrEmailRegistered,
	util.ErrAlreadyFriends,
	util.ErrFriendRequestHandled,
	util.ErrAttemptConflict,
}

func isAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// respondError 业务错误映射为 HTTP 状态码，其余记录日志并返回 500
func respondError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrUserNotFound), errors.Is(err, util.ErrFriendRequestNotFound):
		util.Error(ctx, http.StatusNotFound, err.Error())
	case isAny(err, badRequestErrors):
		util.BadRequest(ctx, err.Error())
	case isAny(err, conflictErrors):
		util.Conflict(ctx, err.Error())
	case errors.Is(err, util.ErrInvalidCredentials):
		util.Error(ctx, http.StatusUnauthorized, err.Error())
	case errors.Is(err, util.ErrPermissionDenied):
		util.Forbidden(ctx)
	default:
		util.LogInternalError(ctx, err)
	}
}

// currentUser 读取 JWT 声明，缺失时直接返回 401
func currentUser(ctx *gin.Context) (*util.Claims, bool) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return nil, false
	}
	return claims, true
}
