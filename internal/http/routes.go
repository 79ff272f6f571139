// Package http wires the engine into the public webhook endpoint and the
// owner/operator APIs.
package http

import (
	"github.com/gin-gonic/gin"

	"github.com/guildpay/guildpay/internal/config"
	"github.com/guildpay/guildpay/internal/engine"
	"github.com/guildpay/guildpay/internal/gateway"
	"github.com/guildpay/guildpay/internal/http/handlers"
)

// RegisterRoutes mounts all API routes on the gin engine.
func RegisterRoutes(r *gin.Engine, eng *engine.Engine, card *gateway.StripeGateway, jwtCfg config.JWTConfig, webhookSecret string) {
	if r == nil || eng == nil {
		return
	}
	st := eng.Store()

	webhookHandler := handlers.NewWebhookHandler(eng, webhookSecret)
	r.POST("/v0/webhooks/stripe", webhookHandler.Handle)

	authHandler := handlers.NewAuthHandler(st, jwtCfg)
	planHandler := handlers.NewPlanHandler(st, card)
	checkoutHandler := handlers.NewCheckoutHandler(eng)
	affiliateHandler := handlers.NewAffiliateHandler(eng)

	public := r.Group("/v0/public")
	public.GET("/plans/:slug", planHandler.ListPublic)
	public.POST("/subscribers", checkoutHandler.RegisterSubscriber)
	public.POST("/checkout", checkoutHandler.Create)
	public.POST("/subscriptions/:id/cancel", checkoutHandler.Cancel)
	public.POST("/affiliates/:id/invitees", affiliateHandler.Invite)

	owner := r.Group("/v0/owner")
	owner.POST("/register", authHandler.RegisterOwner)

	ownerAuthed := owner.Group("")
	ownerAuthed.Use(ownerAuthMiddleware(st, jwtCfg))
	ownerAuthed.POST("/plans", planHandler.Create)
	ownerAuthed.GET("/plans", planHandler.List)
	ownerAuthed.POST("/plans/:id/deactivate", planHandler.Deactivate)
	ownerAuthed.POST("/affiliates", affiliateHandler.Promote)
	ownerAuthed.GET("/affiliates/pending", affiliateHandler.ListPending)
	ownerAuthed.POST("/affiliates/:id/settle", affiliateHandler.Settle)

	ops := r.Group("/v0/ops")
	ops.POST("/login", authHandler.OperatorLogin)

	opsAuthed := ops.Group("")
	opsAuthed.Use(operatorAuthMiddleware(st, jwtCfg))
	opsHandler := handlers.NewOpsHandler(eng)
	opsAuthed.POST("/access-codes", opsHandler.GenerateAccessCodes)
	opsAuthed.POST("/expire-sweep", opsHandler.ExpireSweep)
}
