package handlers

import (
	"github.com/labstack/echo/v4"

	"cynix/middleware"
	"cynix/models"
)

// Routes groups the handler sets mounted by Register.
type Routes struct {
	System  *Handler
	Analyze *AnalyzeHandlers
	Data    *DataHandlers
	Webhook *WebhookHandlers
	Alerts  *AlertHandlers
}

// Register mounts the public routes and the API group on e. The gate's
// Middleware and Enforce must already be installed app-wide; Register only
// adds the per-route tier checks.
func (r Routes) Register(e *echo.Echo, gate *middleware.Gate) {
	e.GET("/", r.System.GetRoot)
	e.GET("/health", r.System.GetHealth)

	api := e.Group(middleware.APIPrefix)

	analyze := api.Group("/analyze")
	analyze.POST("/code", r.Analyze.AnalyzeCode)
	analyze.POST("/meme", r.Analyze.AnalyzeMeme)
	analyze.POST("/influencer", r.Analyze.AnalyzeInfluencer)

	// raw_data_access is checked by the data service itself
	api.GET("/data/:data_type", r.Data.GetRawData)
	api.GET("/analytics/:metric", r.Data.GetAnalytics, gate.RequireTier(models.TierAPI))
	api.GET("/usage", r.Data.GetUsage)
	api.GET("/access", r.Data.GetAccess)

	api.POST("/webhook", r.Webhook.HandleWebhook)
	api.GET("/alerts/history", r.Alerts.GetAlertHistory, gate.RequireTier(models.TierAlpha))
}
