package app

import (
	"mathpulse_backend/docs"
	"mathpulse_backend/internal/config"
	"mathpulse_backend/internal/middleware"
	"mathpulse_backend/internal/model"
	"mathpulse_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	registerPublicRoutes(router, c)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg.JWT.Secret), middleware.ActivityMiddleware(repos.user))
	{
		registerStudentRoutes(authGroup, c)
		registerTeacherRoutes(authGroup, c)
		registerAdminRoutes(authGroup, c)
	}
}

func registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}
}

func registerStudentRoutes(group *gin.RouterGroup, c *controllers) {
	group.GET("/profile", c.user.GetProfile)
	group.POST("/profile/avatar", c.user.UploadAvatar)

	progress := group.Group("/progress")
	{
		progress.GET("", c.progress.GetProgress)
		progress.POST("/lessons/complete", c.progress.CompleteLesson)
		progress.POST("/quizzes/complete", c.progress.CompleteQuiz)
	}

	gamification := group.Group("/gamification")
	{
		gamification.POST("/streak", c.gamification.UpdateStreak)
		gamification.GET("/xp-history", c.gamification.GetXPHistory)
	}

	leaderboard := group.Group("/leaderboard")
	{
		leaderboard.GET("", c.leaderboard.GetLeaderboard)
		leaderboard.GET("/rank", c.leaderboard.GetMyRank)
	}

	achievements := group.Group("/achievements")
	{
		achievements.GET("", c.achievement.GetUserAchievements)
		achievements.POST("/check", c.achievement.CheckAchievements)
	}

	friends := group.Group("/friends")
	{
		friends.GET("", c.friendship.GetFriends)
		friends.DELETE("/:id", c.friendship.DeleteFriend)
		friends.GET("/requests", c.friendship.GetFriendRequests)
		friends.POST("/requests", c.friendship.SendFriendRequest)
		friends.POST("/requests/:id/handle", c.friendship.HandleFriendRequest)
	}
}

func registerTeacherRoutes(group *gin.RouterGroup, c *controllers) {
	teacher := group.Group("/teacher")
	teacher.Use(middleware.RoleMiddleware(model.Teacher))
	{
		teacher.POST("/xp/award", c.gamification.AwardXP)
	}
}

func registerAdminRoutes(group *gin.RouterGroup, c *controllers) {
	admin := group.Group("/admin")
	admin.Use(middleware.RoleMiddleware(model.Admin))
	{
		admin.GET("/users", c.user.GetUsers)
		admin.PUT("/users/:id/status", c.user.SetUserStatus)
		admin.POST("/leaderboard/rebuild", c.leaderboard.RebuildRankIndex)
	}
}
