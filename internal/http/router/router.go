package router

import (
	"github.com/gin-gonic/gin"

	"github.com/grantflow/grantflow-backend/internal/config"
	"github.com/grantflow/grantflow-backend/internal/http/handlers"
	"github.com/grantflow/grantflow-backend/internal/http/middleware"
	"github.com/grantflow/grantflow-backend/internal/service"
)

// SetupRouter собирает маршруты приложения.
func SetupRouter(
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	profileHandler *handlers.ProfileHandler,
	treasuryHandler *handlers.TreasuryHandler,
	proposalHandler *handlers.ProposalHandler,
	deliverableHandler *handlers.DeliverableHandler,
	webhookHandler *handlers.WebhookHandler,
	wsHandler *handlers.WSHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)

	api := r.Group("/api")
	api.Use(middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod))

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware(5, cfg.RateLimitPeriod))
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
	}

	// Публичные маршруты
	api.GET("/ws", wsHandler.Handle)
	api.GET("/treasury", treasuryHandler.GetLedger)
	api.GET("/proposals", proposalHandler.List)
	api.GET("/proposals/recent", proposalHandler.ListRecent)
	api.GET("/proposals/:id", proposalHandler.Get)
	api.GET("/proposals/:id/body", proposalHandler.GetBody)
	api.GET("/proposals/:id/deliverables", deliverableHandler.List)
	api.GET("/proposals/:id/deliverables/:deliverableId", deliverableHandler.Get)
	api.GET("/profiles/:owner", profileHandler.Get)

	// Обратные вызовы доверенных сервисов
	webhooks := api.Group("/webhooks")
	webhooks.Use(middleware.AuthorityOnly(cfg.BallotAuthorityToken))
	{
		webhooks.POST("/transfer", webhookHandler.Transfer)
		webhooks.POST("/vote-result", webhookHandler.VoteResult)
	}

	// Защищённые маршруты
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	{
		protected.GET("/profile", profileHandler.GetMe)
		protected.PUT("/profile", profileHandler.Upsert)
		protected.DELETE("/profile", profileHandler.Delete)

		protected.GET("/balance", treasuryHandler.GetBalance)
		protected.POST("/balance/withdraw", treasuryHandler.Withdraw)
		protected.DELETE("/balance/:owner", treasuryHandler.DeleteBalance)

		protected.GET("/proposals/mine", proposalHandler.ListMine)
		protected.GET("/proposals/reviewing", proposalHandler.ListReviewing)
		protected.POST("/proposals", proposalHandler.CreateDraft)
		protected.PATCH("/proposals/:id", proposalHandler.EditDraft)
		protected.DELETE("/proposals/:id", proposalHandler.Delete)
		protected.POST("/proposals/:id/submit", proposalHandler.Submit)
		protected.POST("/proposals/:id/voting", proposalHandler.BeginVoting)
		protected.POST("/proposals/:id/voting/end", proposalHandler.EndVoting)
		protected.POST("/proposals/:id/cancel", proposalHandler.Cancel)

		protected.POST("/proposals/:id/deliverables", deliverableHandler.Add)
		protected.PUT("/proposals/:id/deliverables/:deliverableId", deliverableHandler.Edit)
		protected.DELETE("/proposals/:id/deliverables/:deliverableId", deliverableHandler.Remove)
		protected.POST("/proposals/:id/deliverables/:deliverableId/report", deliverableHandler.SubmitReport)
		protected.POST("/proposals/:id/deliverables/:deliverableId/review", deliverableHandler.Review)
		protected.POST("/proposals/:id/deliverables/:deliverableId/claim", deliverableHandler.ClaimFunds)
	}

	// Админские маршруты
	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware(tokenManager), middleware.AdminOnly())
	{
		admin.PUT("/treasury/vote-duration", treasuryHandler.SetVoteDuration)
		admin.PUT("/treasury/thresholds", treasuryHandler.SetThresholds)
		admin.PUT("/treasury/requested-bounds", treasuryHandler.SetRequestedBounds)
		admin.POST("/treasury/categories", treasuryHandler.AddCategory)
		admin.DELETE("/treasury/categories/:category", treasuryHandler.DeprecateCategory)

		admin.POST("/proposals/:id/review", proposalHandler.Review)
		admin.PUT("/proposals/:id/reviewer", proposalHandler.SetReviewer)
		admin.POST("/proposals/:id/skip-voting", proposalHandler.SkipVoting)
	}

	return r
}
