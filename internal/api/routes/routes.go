package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xnrt-platform/xnrt_service/internal/api/handlers"
	"github.com/xnrt-platform/xnrt_service/internal/api/middleware"
	"github.com/xnrt-platform/xnrt_service/internal/infrastructure/config"
	"github.com/xnrt-platform/xnrt_service/pkg/logger"
)

// Services bundles everything the HTTP surface depends on
type Services struct {
	DB              *sqlx.DB
	DepositHandlers *handlers.DepositHandlers
	AdminHandlers   *handlers.AdminHandlers
}

// SetupRoutes configures all application routes
func SetupRoutes(cfg *config.Config, log *logger.Logger, services *Services) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestSizeLimit())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(middleware.RateLimit(cfg.Server.RateLimitPerMin))

	healthHandlers := handlers.NewHealthHandlers(services.DB)
	router.GET("/health", healthHandlers.Health)
	router.GET("/ready", healthHandlers.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")

	deposits := v1.Group("/deposits")
	deposits.Use(middleware.UserIdentity())
	{
		deposits.GET("/address", services.DepositHandlers.GetDepositAddress)
		deposits.POST("/wallets", services.DepositHandlers.LinkWallet)
		deposits.GET("/wallets", services.DepositHandlers.ListWallets)
		deposits.POST("/report", services.DepositHandlers.ReportDeposit)
	}

	admin := v1.Group("/admin")
	admin.Use(middleware.UserIdentity(), middleware.AdminIdentity())
	{
		admin.GET("/deposits/unmatched", services.AdminHandlers.ListUnmatchedDeposits)
		admin.POST("/deposits/unmatched/:id/match", services.AdminHandlers.MatchUnmatchedDeposit)
		admin.GET("/deposits/reports", services.AdminHandlers.ListDepositReports)
		admin.POST("/deposits/reports/:id/resolve", services.AdminHandlers.ResolveDepositReport)
		admin.GET("/scanner/status", services.AdminHandlers.ScannerStatus)
	}

	return router
}
