package controller

import (
	"context"
	"mathpulse_backend/internal/service"
	"mathpulse_backend/internal/util"
	"mathpulse_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ProgressController struct {
	ProgressService     *service.ProgressService
	GamificationService *service.GamificationService
	AchievementService  *service.AchievementService
}

func NewProgressController(
	progressService *service.ProgressService,
	gamificationService *service.GamificationService,
	achievementService *service.AchievementService,
) *ProgressController {
	return &ProgressController{
		ProgressService:     progressService,
		GamificationService: gamificationService,
		AchievementService:  achievementService,
	}
}

// followUp 完成课时/测验后推进打卡并检查成就；主操作已落库，这里失败只记日志
func (c *ProgressController) followUp(ctx context.Context, userID uint) gin.H {
	out := gin.H{}

	streak, err := c.GamificationService.UpdateStreak(ctx, userID)
	if err != nil {
		logger.Log.Warn("streak update after completion failed", zap.Uint("userID", userID), zap.Error(err))
	} else {
		out["streak"] = streak
	}

	unlocked, err := c.AchievementService.CheckAchievements(ctx, userID)
	if err != nil {
		logger.Log.Warn("achievement check after completion failed", zap.Uint("userID", userID), zap.Error(err))
	} else {
		out["achievements"] = unlocked
	}
	return out
}

// GetProgress godoc
// @Summary 获取学习进度
// @Description 返回科目/模块进度、课时完成状态与全部测验作答记录
// @Tags 学习进度
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=service.ProgressRecord}
// @Router /api/progress [get]
func (c *ProgressController) GetProgress(ctx *gin.Context) {
	claims, ok := currentUser(ctx)
	if !ok {
		return
	}

	record, err := c.ProgressService.GetProgress(ctx.Request.Context(), claims.UserID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, record)
}

// CompleteLesson godoc
// @Summary 完成课时
// @Description 记录课时完成并发放经验，同时推进连续打卡
// @Tags 学习进度
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.LessonCompletionInput true "课时信息"
// @Success 200 {object} util.Response
// @Router /api/progress/lessons/complete [post]
func (c *ProgressController) CompleteLesson(ctx *gin.Context) {
	claims, ok := currentUser(ctx)
	if !ok {
		return
	}

	var in service.LessonCompletionInput
	if err := ctx.ShouldBindJSON(&in); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	in.UserID = claims.UserID

	result, err := c.ProgressService.CompleteLesson(ctx.Request.Context(), in)
	if err != nil {
		respondError(ctx, err)
		return
	}

	resp := c.followUp(ctx.Request.Context(), claims.UserID)
	resp["lesson"] = result
	util.Success(ctx, resp)
}

// CompleteQuiz godoc
// @Summary 完成测验
// @Description 追加一次作答记录，按分数发放经验，同时推进连续打卡
// @Tags 学习进度
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.QuizCompletionInput true "作答信息"
// @Success 200 {object} util.Response
// @Router /api/progress/quizzes/complete [post]
func (c *ProgressController) CompleteQuiz(ctx *gin.Context) {
	claims, ok := currentUser(ctx)
	if !ok {
		return
	}

	var in service.QuizCompletionInput
	if err := ctx.ShouldBindJSON(&in); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	in.UserID = claims.UserID

	result, err := c.ProgressService.CompleteQuiz(ctx.Request.Context(), in)
	if err != nil {
		respondError(ctx, err)
		return
	}

	resp := c.followUp(ctx.Request.Context(), claims.UserID)
	resp["quiz"] = result
	util.Success(ctx, resp)
}
