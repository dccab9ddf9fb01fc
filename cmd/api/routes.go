package main

import (
	"voicegate/internal/cloudonix"
	"voicegate/internal/httpapi"
	"voicegate/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, webhooks *cloudonix.WebhookHandlers, api httpapi.Handlers, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Provider webhooks (public). Sender verification is advisory inside the
	// handlers; idempotency lives in the storage keys.
	r.POST("/application/:application_id", webhooks.HandleApplication)
	r.POST("/session/update", webhooks.HandleSessionUpdate)
	r.POST("/session/cdr", webhooks.HandleCdrCallback)

	// AUTH routes (token issuance).
	// NOTE: This is a placeholder login route; real credential validation is not implemented.
	r.POST("/v1/auth/login", api.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	v1.Use(rbac.RequireTenant())
	{
		calls := v1.Group("/calls")
		calls.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleAdmin, rbac.RoleAnalyst, rbac.RoleViewer))
		{
			calls.GET("/active", api.ActiveCalls)
			calls.GET("/statistics", api.Statistics)
		}

		cdrs := v1.Group("/cdrs")
		cdrs.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleAdmin, rbac.RoleAnalyst, rbac.RoleViewer))
		{
			cdrs.GET("", api.ListCdrs)
			cdrs.GET("/:id", api.GetCdr)
			cdrs.GET("/export", api.ExportCdrs)
		}
	}
}
