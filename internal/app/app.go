package app

import (
	"context"
	"log"
	"mathpulse_backend/internal/config"
	"mathpulse_backend/internal/controller"
	"mathpulse_backend/internal/repository"
	"mathpulse_backend/internal/service"
	"mathpulse_backend/pkg/database"
	"mathpulse_backend/pkg/logger"
	"mathpulse_backend/pkg/monitoring"
	"mathpulse_backend/pkg/security"
	"mathpulse_backend/pkg/tracing"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const rankIndexRebuildInterval = 30 * time.Minute

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	Settings        *service.Settings
	services        *services
	tracer          *sdktrace.TracerProvider
	stop            context.CancelFunc
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user        *repository.UserRepository
	progress    *repository.ProgressRepository
	activity    *repository.XPActivityRepository
	achievement *repository.AchievementRepository
	friendship  *repository.FriendshipRepository
	rankIndex   *repository.RankIndex
}

type services struct {
	auth         *service.AuthService
	user         *service.UserService
	storage      *service.StorageService
	gamification *service.GamificationService
	progress     *service.ProgressService
	leaderboard  *service.LeaderboardService
	achievement  *service.AchievementService
	friendship   *service.FriendshipService
}

type controllers struct {
	auth         *controller.AuthController
	user         *controller.UserController
	progress     *controller.ProgressController
	gamification *controller.GamificationController
	leaderboard  *controller.LeaderboardController
	achievement  *controller.AchievementController
	friendship   *controller.FriendshipController
	health       *controller.HealthController
}

// RegisterConfigCallback 配置热更新时依次调用
func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

// ReloadConfig 由配置监听器调用
func (a *App) ReloadConfig(cfg *config.Config) {
	for _, cb := range a.configCallbacks {
		cb(cfg)
	}
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client) *repositories {
	return &repositories{
		user:        repository.NewUserRepository(db),
		progress:    repository.NewProgressRepository(db),
		activity:    repository.NewXPActivityRepository(db),
		achievement: repository.NewAchievementRepository(db),
		friendship:  repository.NewFriendshipRepository(db, rdb),
		rankIndex:   repository.NewRankIndex(rdb),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config) *services {
	storage := service.NewStorageService(&cfg.Storage)
	gamification := service.NewGamificationService(repos.user, repos.activity, repos.rankIndex, a.Settings)
	leaderboard := service.NewLeaderboardService(repos.user, repos.activity, repos.friendship, repos.rankIndex, a.Settings)

	return &services{
		auth:         service.NewAuthService(repos.user, cfg),
		user:         service.NewUserService(repos.user, repos.rankIndex, storage),
		storage:      storage,
		gamification: gamification,
		progress:     service.NewProgressService(repos.progress, repos.user, gamification, a.Settings),
		leaderboard:  leaderboard,
		achievement:  service.NewAchievementService(repos.achievement, repos.progress, gamification, leaderboard),
		friendship:   service.NewFriendshipService(repos.friendship, repos.user),
	}
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:         controller.NewAuthController(s.auth),
		user:         controller.NewUserController(s.user),
		progress:     controller.NewProgressController(s.progress, s.gamification, s.achievement),
		gamification: controller.NewGamificationController(s.gamification),
		leaderboard:  controller.NewLeaderboardController(s.leaderboard),
		achievement:  controller.NewAchievementController(s.achievement),
		friendship:   controller.NewFriendshipController(s.friendship),
		health:       controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// startBackgroundTasks 启动时及之后定期重建 redis 排名索引
func (a *App) startBackgroundTasks(ctx context.Context, s *services) {
	if !s.leaderboard.RankIndex.Enabled() {
		return
	}

	go func() {
		ticker := time.NewTicker(rankIndexRebuildInterval)
		defer ticker.Stop()

		for {
			if _, err := s.leaderboard.RebuildRankIndex(ctx); err != nil {
				logger.Log.Error("rank index rebuild error", zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode == "debug")
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	// release 模式下只有显式要求才迁移
	if cfg.Server.Mode != "release" || cfg.ForceMigrate {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	app := &App{
		Config:   cfg,
		DB:       db,
		Settings: service.NewSettings(cfg.Gamification, cfg.Leaderboard),
	}
	if cfg.MigrateOnly {
		return app
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		// redis 只承载缓存与排名索引，连接失败时降级运行
		logger.Log.Warn("Redis unavailable, continuing without cache", zap.Error(err))
		rdb = nil
	}
	app.Redis = rdb

	repos := app.initRepositories(db, rdb)
	svcs := app.initServices(repos, cfg)
	app.services = svcs
	ctrls := app.initControllers(svcs, db, rdb)

	app.RegisterConfigCallback(app.Settings.Apply)
	app.RegisterConfigCallback(func(c *config.Config) {
		logger.Log.Info("gamification settings updated",
			zap.Int("lessonXP", c.Gamification.LessonXP),
			zap.Int("streakBonusPerDay", c.Gamification.StreakBonusPerDay),
			zap.Int("streakBonusCap", c.Gamification.StreakBonusCap),
			zap.Bool("firstCompletionXPOnly", c.Gamification.FirstCompletionXPOnly),
			zap.Int("leaderboardMaxLimit", c.Leaderboard.MaxLimit))
	})

	// 监控初始化
	monitoring.Init()

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(cfg.Tracing.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Error("Failed to initialize tracing", zap.Error(err))
		} else {
			app.tracer = tp
		}
	}

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, ctrls, repos, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	ctx, cancel := context.WithCancel(context.Background())
	app.stop = cancel
	app.startBackgroundTasks(ctx, svcs)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	if a.stop != nil {
		a.stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}

	logger.Log.Info("Server exiting")
}
