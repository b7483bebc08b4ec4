package controller

import (
	"mathpulse_backend/internal/model"
	"mathpulse_backend/internal/service"
	"mathpulse_backend/internal/util"
	"mathpulse_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type GamificationController struct {
	GamificationService *service.GamificationService
}

func NewGamificationController(gamificationService *service.GamificationService) *GamificationController {
	return &GamificationController{GamificationService: gamificationService}
}

// UpdateStreak godoc
// @Summary 每日打卡
// @Description 同一天重复调用不变，隔天连续加一并奖励经验，中断则重置为 1
// @Tags 成长体系
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=service.StreakResult}
// @Router /api/gamification/streak [post]
func (c *GamificationController) UpdateStreak(ctx *gin.Context) {
	claims, ok := currentUser(ctx)
	if !ok {
		return
	}

	result, err := c.GamificationService.UpdateStreak(ctx.Request.Context(), claims.UserID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// GetXPHistory godoc
// @Summary 经验流水
// @Tags 成长体系
// @Produce json
// @Security BearerAuth
// @Param limit query int false "返回数量" default(50)
// @Success 200 {object} util.Response{data=[]model.XPActivity}
// @Router /api/gamification/xp-history [get]
func (c *GamificationController) GetXPHistory(ctx *gin.Context) {
	claims, ok := currentUser(ctx)
	if !ok {
		return
	}

	limit := util.ParseIntDefault(ctx.Query("limit"), 0)
	history, err := c.GamificationService.GetXPHistory(ctx.Request.Context(), claims.UserID, limit)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, history)
}

// swagger:model AwardXPRequest
type AwardXPRequest struct {
	UserID       uint   `json:"userId" binding:"required"`
	Amount       int    `json:"amount" binding:"min=0,max=100000"`
	ActivityType string `json:"activityType" binding:"required"`
	Description  string `json:"description" binding:"max=255"`
}

// AwardXP godoc
// @Summary 教师/管理员发放经验
// @Tags 成长体系
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body AwardXPRequest true "发放信息"
// @Success 200 {object} util.Response{data=service.AwardResult}
// @Router /api/teacher/xp/award [post]
func (c *GamificationController) AwardXP(ctx *gin.Context) {
	claims, ok := currentUser(ctx)
	if !ok {
		return
	}

	var req AwardXPRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.GamificationService.AwardXP(ctx.Request.Context(), req.UserID, req.Amount,
		model.ActivityType(req.ActivityType), req.Description)
	if err != nil {
		respondError(ctx, err)
		return
	}

	logger.Log.Info("xp awarded manually",
		zap.Uint("by", claims.UserID),
		zap.Uint("userID", req.UserID),
		zap.Int("amount", req.Amount))
	util.Success(ctx, result)
}
