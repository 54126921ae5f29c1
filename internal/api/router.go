package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/tallyhq/tally/internal/app"
	iauth "github.com/tallyhq/tally/internal/auth"
	"github.com/tallyhq/tally/internal/handlers"
	"github.com/tallyhq/tally/internal/middleware"
	"github.com/tallyhq/tally/internal/services"
	"github.com/tallyhq/tally/pkg/mail"
)

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, mailer mail.Mailer, cfg *app.Config) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	users, err := services.NewUserService(db)
	if err != nil {
		return nil, err
	}
	workspaces, err := services.NewWorkspaceService(db)
	if err != nil {
		return nil, err
	}
	memberships, err := services.NewMembershipService(db, mailer,
		services.WithInviteBaseURL(cfg.Invites.BaseURL),
		services.WithInviteTokenSize(cfg.Invites.TokenLength),
	)
	if err != nil {
		return nil, err
	}
	inventory, err := services.NewInventoryService(db)
	if err != nil {
		return nil, err
	}
	sales, err := services.NewSaleService(db)
	if err != nil {
		return nil, err
	}
	chat, err := services.NewChatService(db)
	if err != nil {
		return nil, err
	}
	resets, err := services.NewPasswordResetService(db, users, mailer)
	if err != nil {
		return nil, err
	}

	authHandler := handlers.NewAuthHandler(users, resets, jwt)
	workspaceHandler := handlers.NewWorkspaceHandler(workspaces, memberships)
	itemHandler := handlers.NewItemHandler(inventory, sales)
	saleHandler := handlers.NewSaleHandler(sales)
	chatHandler := handlers.NewChatHandler(chat)
	healthHandler := handlers.NewHealthHandler(db)

	r := gin.New()

	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	r.GET("/health", healthHandler.Check)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public auth routes
	auth := r.Group("/api/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/password-reset/request", authHandler.RequestPasswordReset)
		auth.POST("/password-reset/confirm", authHandler.ConfirmPasswordReset)
	}

	api := r.Group("/api")
	api.Use(middleware.Auth(jwt))

	api.GET("/profile", authHandler.Profile)

	invites := api.Group("/invites")
	{
		invites.GET("/:token", workspaceHandler.GetInvite)
		invites.POST("/:token/accept", workspaceHandler.AcceptInvite)
	}

	ws := api.Group("/workspaces")
	{
		ws.GET("", workspaceHandler.List)
		ws.POST("", workspaceHandler.Create)
		ws.GET("/:id", workspaceHandler.Get)
		ws.PATCH("/:id", workspaceHandler.Rename)

		ws.GET("/:id/members", workspaceHandler.ListMembers)
		ws.DELETE("/:id/members/:userID", workspaceHandler.RemoveMember)
		ws.POST("/:id/invites", workspaceHandler.Invite)
		ws.DELETE("/:id/invites/:inviteID", workspaceHandler.CancelInvite)

		ws.GET("/:id/items", itemHandler.List)
		ws.POST("/:id/items", itemHandler.Create)
		ws.GET("/:id/items/:itemID", itemHandler.Get)
		ws.PATCH("/:id/items/:itemID", itemHandler.Update)
		ws.DELETE("/:id/items/:itemID", itemHandler.Deactivate)
		ws.GET("/:id/items/:itemID/history", itemHandler.History)

		ws.POST("/:id/sales", saleHandler.Record)
		ws.GET("/:id/sales", saleHandler.List)
		ws.GET("/:id/sales/summary", saleHandler.Summary)
		ws.GET("/:id/sales/best-sellers", saleHandler.BestSellers)

		ws.GET("/:id/messages", chatHandler.List)
		ws.POST("/:id/messages", chatHandler.Post)
		ws.DELETE("/:id/messages", chatHandler.Clear)
	}

	return r, nil
}
