package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"phFolio/internal/api/middleware"
	"phFolio/internal/auth"
	"phFolio/internal/config"
	"phFolio/internal/dashboard"
	"phFolio/internal/render"
	"phFolio/internal/storage"
)

// Dependencies 汇总路由所需的全部组件。
type Dependencies struct {
	Config      config.Config
	DB          *gorm.DB
	Redis       redis.UniversalClient
	Auth        *auth.AuthService
	Loader      *dashboard.Loader
	Coordinator *dashboard.Coordinator
	Usernames   *dashboard.UsernameChecker
	Renderer    *render.Renderer
	Storage     storage.ObjectStore
	Scanner     Scanner
	Tasks       TaskEnqueuer
	Logger      *slog.Logger
}

// RegisterRoutes 注册 /v1 下的业务路由。
func RegisterRoutes(router *gin.Engine, deps Dependencies) {
	cfg := deps.Config
	authHandler := NewAuthHandler(deps.DB, deps.Auth, deps.Redis, deps.Loader, deps.Logger, cfg.Auth)
	wsHandler := NewWsHandler(deps.Redis, deps.Auth, deps.Usernames,
		time.Duration(cfg.API.UsernameCheckDebounceMS)*time.Millisecond, deps.Logger, cfg.API.AllowedOrigins)
	dashboardHandler := NewDashboardHandler(deps.Loader, deps.Coordinator.Profiles, deps.Tasks, cfg.Worker.MaxRetry)
	profileHandler := NewProfileHandler(deps.Coordinator.Profiles, deps.Usernames)
	uploadHandler := NewUploadHandler(deps.Storage, deps.Scanner, deps.Coordinator, cfg.API.MaxUploadBytes, deps.Logger)
	portfolioHandler := NewPortfolioHandler(deps.Loader, deps.Renderer, cfg.API.PublicBaseURL)

	authMiddleware := middleware.AuthMiddleware(deps.Auth)
	passwordGate := middleware.RequirePasswordChangeCompletedMiddleware()
	usernameLimiter := middleware.NewRateLimiter(rate.Limit(cfg.API.UsernameCheckRPS), cfg.API.UsernameCheckBurst)

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", wsHandler.HandleConnection)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authMiddleware, authHandler.Logout)
			authGroup.POST("/change-password", authMiddleware, authHandler.ChangePassword)
		}

		portfolioGroup := v1.Group("/portfolio/:username")
		{
			portfolioGroup.GET("", portfolioHandler.Get)
			portfolioGroup.GET("/page", portfolioHandler.Page)
			portfolioGroup.GET("/qrcode", portfolioHandler.QRCode)
		}

		secured := v1.Group("")
		secured.Use(authMiddleware, passwordGate)
		{
			secured.GET("/dashboard", dashboardHandler.Get)
			secured.POST("/dashboard/refresh", dashboardHandler.Refresh)
			secured.POST("/dashboard/export", dashboardHandler.Export)

			registerEntity(secured, "/projects", deps.Coordinator.Projects)
			registerEntity(secured, "/education", deps.Coordinator.Education)
			registerEntity(secured, "/experience", deps.Coordinator.Experience)
			registerEntity(secured, "/blogs", deps.Coordinator.Blogs)

			secured.PUT("/profile", profileHandler.Upsert)
			secured.GET("/profile/username-check", usernameLimiter.Middleware(), profileHandler.CheckUsername)

			secured.POST("/uploads/avatar", uploadHandler.UploadAvatar)
			secured.POST("/uploads/project-image", uploadHandler.UploadProjectImage)
		}
	}
}
