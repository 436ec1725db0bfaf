package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"cynix/models"
)

type AlertHistorySource interface {
	GetHistory(ctx context.Context, limit int) []*models.AlertHistory
}

// AlertHandlers manages alert-related endpoints
type AlertHandlers struct {
	alerts AlertHistorySource
}

func NewAlertHandlers(alerts AlertHistorySource) *AlertHandlers {
	return &AlertHandlers{alerts: alerts}
}

// GetAlertHistory returns recent alert deliveries, newest first.
func (ah *AlertHandlers) GetAlertHistory(c echo.Context) error {
	limit := 50
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil && l > 0 {
		limit = min(l, 500)
	}

	history := ah.alerts.GetHistory(c.Request().Context(), limit)
	if history == nil {
		history = []*models.AlertHistory{}
	}
	return c.JSON(http.StatusOK, history)
}
