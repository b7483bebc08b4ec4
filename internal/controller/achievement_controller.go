package controller

import (
	"mathpulse_backend/internal/service"
	"mathpulse_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AchievementController struct {
	AchievementService *service.AchievementService
}

func NewAchievementController(achievementService *service.AchievementService) *AchievementController {
	return &AchievementController{AchievementService: achievementService}
}

// @Summary 获取用户成就
// @Description 等级、经验、排名与全部徽章的解锁状态
// @Tags 成就系统
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=service.UserAchievements}
// @Router /api/achievements [get]
func (c *AchievementController) GetUserAchievements(ctx *gin.Context) {
	claims, ok := currentUser(ctx)
	if !ok {
		return
	}

	achievements, err := c.AchievementService.GetUserAchievements(ctx.Request.Context(), claims.UserID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, achievements)
}

// @Summary 检查成就
// @Description 判定并解锁新达成的成就，返回本次新解锁的列表
// @Tags 成就系统
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]service.AchievementDefinition}
// @Router /api/achievements/check [post]
func (c *AchievementController) CheckAchievements(ctx *gin.Context) {
	claims, ok := currentUser(ctx)
	if !ok {
		return
	}

	unlocked, err := c.AchievementService.CheckAchievements(ctx.Request.Context(), claims.UserID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"unlocked": unlocked})
}
