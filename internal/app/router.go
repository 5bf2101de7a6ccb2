package app

import (
	"time"

	"studyquiz_backend/docs"
	"studyquiz_backend/internal/config"
	"studyquiz_backend/internal/middleware"
	"studyquiz_backend/internal/model"
	"studyquiz_backend/internal/util"
	"studyquiz_backend/pkg/monitoring"
	"studyquiz_backend/pkg/security"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// 上传图片单独限流，每个用户每分钟最多 10 次
const uploadsPerMinute = 10

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())
	router.GET("/health", c.health.HealthCheck)

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg.JWT.Secret), middleware.ActivityMiddleware(repos.user))
	{
		authGroup.GET("/profile", c.auth.GetProfile)
		authGroup.GET("/ws", c.game.HandleWS)

		a.registerGroupRoutes(authGroup, c)
		a.registerPracticeRoutes(authGroup, c)
		a.registerGameRoutes(authGroup, c)
		a.registerBadgeRoutes(authGroup, c)
		a.registerAdminRoutes(authGroup, c)
	}
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
		public.GET("/badges/definitions", c.badge.ListDefinitions)
		public.GET("/leaderboard", c.badge.Leaderboard)
	}
}

func (a *App) registerGroupRoutes(rg *gin.RouterGroup, c *controllers) {
	groups := rg.Group("/groups")
	{
		groups.POST("", c.group.CreateGroup)
		groups.GET("/:id", c.group.GetGroup)
		groups.POST("/:id/join", c.group.JoinGroup)
		groups.POST("/:id/leave", c.group.LeaveGroup)
		groups.GET("/:id/members", c.group.ListMembers)
		groups.PUT("/:id/members/:userId/role", c.group.SetMemberRole)

		// 题目创作与浏览
		groups.POST("/:id/questions", c.question.AuthorQuestion)
		groups.GET("/:id/questions", c.question.ListQuestions)
		groups.POST("/:id/diagrams", security.KeyedRateLimiter(uploadsPerMinute, time.Minute, util.CurrentUserID), c.question.UploadDiagram)
	}

	questions := rg.Group("/questions")
	{
		questions.POST("/:questionId/vote", c.question.VoteQuestion)
		questions.POST("/:questionId/flag", c.question.FlagQuestion)
		questions.DELETE("/:questionId", c.question.ArchiveQuestion)
		questions.PUT("/:questionId/diagram", c.question.AttachDiagram)
	}
}

func (a *App) registerPracticeRoutes(rg *gin.RouterGroup, c *controllers) {
	sessions := rg.Group("/sessions")
	{
		sessions.POST("", c.practice.StartSession)
		sessions.GET("/history", c.practice.History)
		sessions.POST("/sync", c.practice.SyncPending)
		sessions.GET("/:id", c.practice.GetSession)
		sessions.DELETE("/:id", c.practice.Exit)
		sessions.PUT("/:id/answers/:questionId", c.practice.UpdateAnswer)
		sessions.PUT("/:id/cursor", c.practice.ChangeQuestion)
		sessions.POST("/:id/bookmarks/:questionId", c.practice.ToggleBookmark)
		sessions.POST("/:id/review", c.practice.Review)
		sessions.POST("/:id/submit", c.practice.Submit)
		sessions.POST("/:id/finish", c.practice.Finish)
	}
}

func (a *App) registerGameRoutes(rg *gin.RouterGroup, c *controllers) {
	games := rg.Group("/games")
	{
		games.POST("", c.game.StartGame)
		games.GET("", c.game.RecentGames)
		games.GET("/:id", c.game.GetGame)
		games.DELETE("/:id", c.game.LeaveGame)
		games.POST("/:id/answers", c.game.AnswerGame)
		games.POST("/:id/rematch", c.game.Rematch)
	}
}

func (a *App) registerBadgeRoutes(rg *gin.RouterGroup, c *controllers) {
	rg.GET("/badges/me", c.badge.MyBadges)
}

func (a *App) registerAdminRoutes(rg *gin.RouterGroup, c *controllers) {
	admin := rg.Group("/admin")
	admin.Use(middleware.RoleMiddleware(model.RoleAdmin))
	{
		admin.GET("/quiz-settings", c.settings.GetQuizSettings)
	}
}
