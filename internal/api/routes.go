package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"jobassist/internal/api/middleware"
	"jobassist/internal/auth"
	"jobassist/internal/config"
	"jobassist/internal/documents"
	"jobassist/internal/generator"
	"jobassist/internal/storage"
)

// Dependencies 汇总路由注册所需的外部依赖。Redis 与 Queue 可为 nil。
type Dependencies struct {
	Config      *config.Config
	DB          *gorm.DB
	AuthService *auth.AuthService
	Redis       redis.UniversalClient
	Queue       TaskEnqueuer
	Store       storage.ObjectStore
	Documents   *documents.Service
	Scraper     generator.JobScraper
	Logger      *slog.Logger
}

// RegisterRoutes 注册 API 路由，不包含 /api 前缀。
func RegisterRoutes(router *gin.Engine, deps Dependencies) {
	cfg := deps.Config
	authMiddleware := middleware.AuthMiddleware(deps.AuthService)

	authHandler := NewAuthHandler(deps.DB, deps.AuthService, deps.Redis, deps.Logger, LoginLimits{
		RatePerHour:   cfg.Auth.LoginRateLimitPerHour,
		LockThreshold: cfg.Auth.LoginLockThreshold,
		LockTTL:       cfg.Auth.LoginLockTTL,
	})
	settingsHandler := NewSettingsHandler(deps.DB, deps.Logger)
	jobHandler := NewJobHandler(deps.DB, deps.Scraper, deps.Logger, cfg.Scripts.DefaultJobsCount)
	resumeHandler := NewResumeHandler(deps.DB, deps.Store, deps.Documents, deps.Logger, cfg.API.ClamdAddr)
	coverLetterHandler := NewCoverLetterHandler(deps.DB, deps.Documents, deps.Queue, deps.Logger, cfg.Worker.MaxRetry)

	if deps.Redis != nil {
		wsHandler := NewWsHandler(deps.Redis, deps.AuthService, deps.Logger, cfg.API.AllowedOrigins)
		router.GET("/ws", wsHandler.HandleConnection)
	}

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/signup", authHandler.Signup)
		authGroup.POST("/signin", authHandler.Signin)
		authGroup.POST("/google", authHandler.GoogleAuth)
		authGroup.GET("/me", authMiddleware, authHandler.Me)
		authGroup.PUT("/me", authMiddleware, authHandler.UpdateMe)
	}

	settings := router.Group("")
	settings.Use(authMiddleware)
	{
		settings.GET("/api-keys", settingsHandler.GetAPIKeys)
		settings.PUT("/api-keys", settingsHandler.UpdateAPIKeys)
		settings.GET("/llm-settings", settingsHandler.GetLLMSettings)
		settings.PUT("/llm-settings", settingsHandler.UpdateLLMSettings)
	}

	jobGroup := router.Group("/jobs")
	jobGroup.Use(authMiddleware)
	{
		jobGroup.POST("/search", jobHandler.SearchJobs)
		jobGroup.GET("/my-jobs", jobHandler.GetUserJobs)
	}

	resumeGroup := router.Group("/resumes")
	resumeGroup.Use(authMiddleware)
	{
		resumeGroup.GET("", resumeHandler.ListResumes)
		resumeGroup.POST("", resumeHandler.CreateResume)
		resumeGroup.POST("/upload", resumeHandler.UploadResume)
		resumeGroup.POST("/tailor/:jobId", resumeHandler.TailorResume)
		resumeGroup.PUT("/:id", resumeHandler.UpdateResume)
		resumeGroup.DELETE("/:id", resumeHandler.DeleteResume)
		resumeGroup.POST("/:id/primary", resumeHandler.SetPrimaryResume)
		resumeGroup.GET("/:id/file", resumeHandler.DownloadResumeFile)
		resumeGroup.GET("/:id/download-link", resumeHandler.GetDownloadLink)
	}

	coverLetterGroup := router.Group("/cover-letters")
	coverLetterGroup.Use(authMiddleware)
	{
		coverLetterGroup.GET("", coverLetterHandler.ListCoverLetters)
		// 生成路由中的 :id 为职位 ID，与下载路由共用通配名。
		coverLetterGroup.POST("/:id/generate", coverLetterHandler.GenerateCoverLetter)
		coverLetterGroup.POST("/:id/generate-async", coverLetterHandler.GenerateCoverLetterAsync)
		coverLetterGroup.GET("/:id/download", coverLetterHandler.DownloadCoverLetter)
	}
}
