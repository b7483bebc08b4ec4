package controller

import (
	"mathpulse_backend/internal/repository"
	"mathpulse_backend/internal/service"
	"mathpulse_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// UserController 个人资料与管理端用户列表
type UserController struct {
	UserService *service.UserService
}

func NewUserController(userService *service.UserService) *UserController {
	return &UserController{UserService: userService}
}

// GetProfile godoc
// @Summary 获取当前用户资料
// @Description 包含等级、经验、连续打卡天数与升级进度
// @Tags 用户
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=service.Profile} "成功"
// @Failure 401 {object} util.Response "未授权"
// @Router /api/profile [get]
func (c *UserController) GetProfile(ctx *gin.Context) {
	claims, ok := currentUser(ctx)
	if !ok {
		return
	}

	profile, err := c.UserService.GetProfile(ctx.Request.Context(), claims.UserID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, profile)
}

// UploadAvatar godoc
// @Summary 上传头像
// @Description 仅支持图片，最大 2MB
// @Tags 用户
// @Accept  multipart/form-data
// @Produce  json
// @Security BearerAuth
// @Param   file formData file true "头像文件"
// @Success 200 {object} util.Response "成功"
// @Failure 400 {object} util.Response "文件无效"
// @Router /api/profile/avatar [post]
func (c *UserController) UploadAvatar(ctx *gin.Context) {
	claims, ok := currentUser(ctx)
	if !ok {
		return
	}

	header, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "file is required")
		return
	}
	file, err := header.Open()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	defer file.Close()

	url, err := c.UserService.UploadAvatar(ctx.Request.Context(), claims.UserID, file, header.Size)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"avatar": url})
}

// GetUsers godoc
// @Summary 获取用户列表
// @Description 管理员分页查询用户
// @Tags 用户管理
// @Produce  json
// @Security BearerAuth
// @Param   page query int false "页码" default(1)
// @Param   pageSize query int false "每页条数" default(10)
// @Param   role query string false "角色筛选"
// @Param   search query string false "搜索关键词"
// @Success 200 {object} util.Response{data=util.PageResponse} "成功"
// @Router /api/admin/users [get]
func (c *UserController) GetUsers(ctx *gin.Context) {
	paging := util.ParsePaging(ctx, "pageSize", 10, 100)
	filter := repository.UserFilter{
		Role:   ctx.Query("role"),
		Search: ctx.Query("search"),
	}

	users, total, err := c.UserService.ListUsers(ctx.Request.Context(), filter, paging.Page, paging.Limit)
	if err != nil {
		respondError(ctx, err)
		return
	}

	util.Paged(ctx, users, total, paging)
}

type SetUserStatusRequest struct {
	Disabled *bool `json:"disabled" binding:"required"`
}

// SetUserStatus godoc
// @Summary 启用/禁用用户
// @Description 禁用的学生不再出现在排行榜与排名中
// @Tags 用户管理
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param   id path uint true "用户ID"
// @Param   body body SetUserStatusRequest true "状态"
// @Success 200 {object} util.Response{data=model.User} "成功"
// @Failure 404 {object} util.Response "用户不存在"
// @Router /api/admin/users/{id}/status [put]
func (c *UserController) SetUserStatus(ctx *gin.Context) {
	userID := util.MustParseUint(ctx.Param("id"))
	if userID == 0 {
		util.BadRequest(ctx, "invalid user id")
		return
	}

	var req SetUserStatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	user, err := c.UserService.SetDisabled(ctx.Request.Context(), userID, *req.Disabled)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, user)
}
