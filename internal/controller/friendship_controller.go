package controller

import (
	"mathpulse_backend/internal/service"
	"mathpulse_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// FriendshipController 好友关系，供好友排行榜使用
type FriendshipController struct {
	FriendshipService *service.FriendshipService
}

func NewFriendshipController(friendshipService *service.FriendshipService) *FriendshipController {
	return &FriendshipController{FriendshipService: friendshipService}
}

// SendFriendRequestRequest 发送好友申请请求
type SendFriendRequestRequest struct {
	ReceiverID uint   `json:"receiverId" binding:"required" example:"1"`
	Message    string `json:"message" binding:"max=255" example:"一起刷题吧"`
}

// HandleFriendRequestRequest 处理好友申请请求
type HandleFriendRequestRequest struct {
	Action string `json:"action" binding:"required,oneof=accept reject" example:"accept" enums:"accept,reject"`
}

// GetFriends godoc
// @Summary 获取好友列表
// @Tags 好友
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]model.User} "成功"
// @Router /api/friends [get]
func (ctrl *FriendshipController) GetFriends(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}

	friends, err := ctrl.FriendshipService.GetFriends(c.Request.Context(), claims.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	util.Success(c, friends)
}

// DeleteFriend godoc
// @Summary 删除好友
// @Tags 好友
// @Produce  json
// @Security BearerAuth
// @Param   id path uint true "好友用户ID"
// @Success 200 {object} util.Response "成功"
// @Router /api/friends/{id} [delete]
func (ctrl *FriendshipController) DeleteFriend(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}

	friendID := util.MustParseUint(c.Param("id"))
	if friendID == 0 {
		util.BadRequest(c, "invalid friend id")
		return
	}

	if err := ctrl.FriendshipService.DeleteFriend(c.Request.Context(), claims.UserID, friendID); err != nil {
		respondError(c, err)
		return
	}
	util.Success(c, gin.H{"deleted": friendID})
}

// GetFriendRequests godoc
// @Summary 获取好友申请列表
// @Description 我发出和收到的申请（含历史状态），分页
// @Tags 好友
// @Produce  json
// @Security BearerAuth
// @Param   page query int false "页码 (从1开始)" default(1)
// @Param   limit query int false "每页条数" default(10)
// @Success 200 {object} util.Response{data=util.PageResponse{list=[]model.FriendRequest}} "成功"
// @Router /api/friends/requests [get]
func (ctrl *FriendshipController) GetFriendRequests(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}

	paging := util.ParsePaging(c, "limit", 10, 100)

	reqs, total, err := ctrl.FriendshipService.GetFriendRequests(c.Request.Context(), claims.UserID, paging.Limit, paging.Offset())
	if err != nil {
		respondError(c, err)
		return
	}

	util.Paged(c, reqs, total, paging)
}

// SendFriendRequest godoc
// @Summary 发送好友申请
// @Description 对方已向我发出待处理申请时直接成为好友
// @Tags 好友
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   request body SendFriendRequestRequest true "发送好友申请请求"
// @Success 201 {object} util.Response{data=model.FriendRequest} "成功"
// @Router /api/friends/requests [post]
func (ctrl *FriendshipController) SendFriendRequest(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}

	var req SendFriendRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, err.Error())
		return
	}

	fr, err := ctrl.FriendshipService.SendFriendRequest(c.Request.Context(), claims.UserID, req.ReceiverID, req.Message)
	if err != nil {
		respondError(c, err)
		return
	}
	util.Created(c, fr)
}

// HandleFriendRequest godoc
// @Summary 处理好友申请
// @Description 同意或拒绝好友申请
// @Tags 好友
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   id path string true "申请ID"
// @Param   request body HandleFriendRequestRequest true "处理动作"
// @Success 200 {object} util.Response "成功"
// @Router /api/friends/requests/{id}/handle [post]
func (ctrl *FriendshipController) HandleFriendRequest(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}

	var req HandleFriendRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, err.Error())
		return
	}

	accept := req.Action == "accept"
	if err := ctrl.FriendshipService.HandleFriendRequest(c.Request.Context(), c.Param("id"), claims.UserID, accept); err != nil {
		respondError(c, err)
		return
	}
	util.Success(c, gin.H{"accepted": accept})
}
