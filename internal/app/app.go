package app

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"studyquiz_backend/internal/config"
	"studyquiz_backend/internal/controller"
	"studyquiz_backend/internal/repository"
	"studyquiz_backend/internal/selection"
	"studyquiz_backend/internal/service"
	"studyquiz_backend/internal/util"
	"studyquiz_backend/pkg/configwatcher"
	"studyquiz_backend/pkg/database"
	"studyquiz_backend/pkg/logger"
	"studyquiz_backend/pkg/monitoring"
	"studyquiz_backend/pkg/security"
	"studyquiz_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/jonboulle/clockwork"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// gameRetention 已结束对局在内存中保留的时长，供客户端拉取最终结果
const gameRetention = 10 * time.Minute

type App struct {
	Config     *config.Config
	ConfigPath string
	Router     *gin.Engine
	DB         *gorm.DB
	Redis      *redis.Client
	services   *services
	tracer     *sdktrace.TracerProvider

	// 后台任务的生命周期
	ctx    context.Context
	cancel context.CancelFunc
}

type repositories struct {
	user        *repository.UserRepository
	group       *repository.GroupRepository
	message     *repository.MessageRepository
	question    *repository.QuestionRepository
	stat        *repository.StatRepository
	badge       *repository.BadgeRepository
	result      *repository.ResultRepository
	game        *repository.GameRepository
	leaderboard *repository.LeaderboardRepository
	snapshot    *repository.SnapshotRepository
}

type services struct {
	settings *service.Settings
	hub      *service.EventHub
	auth     *service.AuthService
	storage  *service.StorageService
	group    *service.GroupService
	progress *service.ProgressService
	question *service.QuestionService
	practice *service.PracticeService
	game     *service.GameService
	badge    *service.BadgeService
}

type controllers struct {
	auth     *controller.AuthController
	group    *controller.GroupController
	question *controller.QuestionController
	practice *controller.PracticeController
	game     *controller.GameController
	badge    *controller.BadgeController
	health   *controller.HealthController
	settings *controller.SettingsController
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *repositories {
	return &repositories{
		user:        repository.NewUserRepository(db),
		group:       repository.NewGroupRepository(db),
		message:     repository.NewMessageRepository(db),
		question:    repository.NewQuestionRepository(db),
		stat:        repository.NewStatRepository(db),
		badge:       repository.NewBadgeRepository(db),
		result:      repository.NewResultRepository(db),
		game:        repository.NewGameRepository(db),
		leaderboard: repository.NewLeaderboardRepository(rdb, cfg.Quiz.LeaderboardKey),
		snapshot:    repository.NewSnapshotRepository(rdb, cfg.Quiz.SnapshotTTL()),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	clk := clockwork.NewRealClock()
	s.settings = service.NewSettings(cfg.Quiz)
	s.hub = service.NewEventHub(rdb, security.OriginChecker(cfg.CORS.AllowedOrigins))
	go s.hub.Run(a.ctx)

	s.storage = service.NewStorageService(&cfg.Storage)
	s.auth = service.NewAuthService(repos.user, cfg.JWT.Secret, cfg.JWT.ExpireTime)
	s.group = service.NewGroupService(repos.group)

	s.progress = service.NewProgressService(repos.stat, repos.badge, repos.leaderboard, s.hub, nil)
	s.progress.Points = repos.user

	s.question = service.NewQuestionService(repos.group, repos.message, repos.question, s.progress, s.storage)
	s.practice = service.NewPracticeService(repos.group, repos.message, repos.stat, repos.result, repos.snapshot,
		s.progress, s.hub, s.settings, selection.NewSampler(), clk)
	s.game = service.NewGameService(repos.group, repos.message, repos.stat, repos.game,
		s.progress, s.hub, s.settings, selection.NewSampler(), clk)
	s.badge = service.NewBadgeService(repos.badge, repos.stat, repos.user, repos.leaderboard, s.progress.Defs)

	s.hub.Handle(service.EventGameAnswer, s.game.HandleSocketAnswer)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:     controller.NewAuthController(s.auth),
		group:    controller.NewGroupController(s.group),
		question: controller.NewQuestionController(s.question),
		practice: controller.NewPracticeController(s.practice),
		game:     controller.NewGameController(s.game, s.hub),
		badge:    controller.NewBadgeController(s.badge),
		health:   controller.NewHealthController(db, rdb),
		settings: controller.NewSettingsController(s.settings),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func (a *App) startBackgroundTasks(s *services) {
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-a.ctx.Done():
				return
			case <-ticker.C:
				if n := s.game.Sweep(gameRetention); n > 0 {
					logger.Log.Debug("Finished games swept", zap.Int("count", n))
				}
			}
		}
	}()

	if a.ConfigPath != "" {
		go func() {
			if err := configwatcher.WatchQuizConfig(a.ctx, a.ConfigPath, s.settings.Update); err != nil {
				logger.Log.Error("Config watcher stopped", zap.Error(err))
			}
		}()
	}
}

// NewApp 初始化依赖；MigrateOnly 时完成迁移后直接返回
func NewApp(cfg *config.Config, configDir string) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	if cfg.Server.Mode != gin.ReleaseMode || cfg.ForceMigrate {
		if err := database.Migrate(db); err != nil {
			logger.Log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Config:     cfg,
		ConfigPath: filepath.Join(configDir, "config.yaml"),
		DB:         db,
		ctx:        ctx,
		cancel:     cancel,
	}
	if cfg.MigrateOnly {
		return app
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}
	app.Redis = rdb

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(tracing.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	// 监控初始化
	monitoring.Init()

	repos := app.initRepositories(db, rdb, cfg)
	services := app.initServices(repos, cfg, rdb)
	app.services = services
	controllers := app.initControllers(services, db, rdb)

	gin.SetMode(cfg.Server.Mode)
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, repos, cfg)

	if cfg.Storage.Type == util.StorageLocal {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	app.startBackgroundTasks(services)

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
			logger.Log.Fatal("listen failed", zap.Error(err))
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	// 停止后台任务和 WebSocket 连接；未完成的会话留在 redis 快照中
	a.cancel()
	if a.services != nil {
		a.services.practice.Shutdown()
		a.services.game.Shutdown()
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

	logger.Log.Info("Server exiting")
}
