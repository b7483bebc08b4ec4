package controller

import (
	"mathpulse_backend/internal/service"
	"mathpulse_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

type LeaderboardController struct {
	LeaderboardService *service.LeaderboardService
}

func NewLeaderboardController(leaderboardService *service.LeaderboardService) *LeaderboardController {
	return &LeaderboardController{LeaderboardService: leaderboardService}
}

// GetLeaderboard godoc
// @Summary 获取排行榜
// @Description 全局（仅学生）或好友榜，可按周/月统计
// @Tags 排行榜
// @Produce json
// @Security BearerAuth
// @Param friendsOnly query bool false "仅好友"
// @Param timeRange query string false "all | week | month" default(all)
// @Param limit query int false "返回数量" default(10)
// @Success 200 {object} util.Response{data=[]service.LeaderboardEntry}
// @Failure 400 {object} util.Response "参数错误"
// @Router /api/leaderboard [get]
func (c *LeaderboardController) GetLeaderboard(ctx *gin.Context) {
	claims, ok := currentUser(ctx)
	if !ok {
		return
	}

	friendsOnly := false
	if v := ctx.Query("friendsOnly"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			util.BadRequest(ctx, "friendsOnly must be a boolean")
			return
		}
		friendsOnly = b
	}

	entries, err := c.LeaderboardService.GetLeaderboard(ctx.Request.Context(), service.LeaderboardQuery{
		UserID:      claims.UserID,
		FriendsOnly: friendsOnly,
		TimeRange:   ctx.DefaultQuery("timeRange", util.TimeRangeAll),
		Limit:       util.ParseIntDefault(ctx.Query("limit"), 0),
	})
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, entries)
}

// GetMyRank godoc
// @Summary 获取我的全局排名
// @Tags 排行榜
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=service.UserRank}
// @Router /api/leaderboard/rank [get]
func (c *LeaderboardController) GetMyRank(ctx *gin.Context) {
	claims, ok := currentUser(ctx)
	if !ok {
		return
	}

	rank, err := c.LeaderboardService.GetUserRank(ctx.Request.Context(), claims.UserID)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, rank)
}

// RebuildRankIndex godoc
// @Summary 重建排名索引
// @Tags 排行榜
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response
// @Router /api/admin/leaderboard/rebuild [post]
func (c *LeaderboardController) RebuildRankIndex(ctx *gin.Context) {
	n, err := c.LeaderboardService.RebuildRankIndex(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"indexed": n, "enabled": c.LeaderboardService.RankIndex.Enabled()})
}
