package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"cynix/config"
	"cynix/services"
)

const (
	serviceName    = "Cynix API"
	serviceVersion = "1.0.0"
)

// DatabaseStats is the optional document store shown on /health.
type DatabaseStats interface {
	Enabled() bool
	GetDatabaseStats(ctx context.Context) (map[string]interface{}, error)
}

type Handler struct {
	Cfg     *config.Config
	Store   services.Store
	Mongo   DatabaseStats
	started time.Time
}

func NewHandler(cfg *config.Config, store services.Store, mongo DatabaseStats) *Handler {
	return &Handler{
		Cfg:     cfg,
		Store:   store,
		Mongo:   mongo,
		started: time.Now(),
	}
}

// GetRoot returns the service banner.
func (h *Handler) GetRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"name":    serviceName,
		"version": serviceVersion,
		"status":  "operational",
	})
}

// GetHealth reports store and database reachability. The endpoint answers
// 200 while the process is serving; degraded dependencies show up in the body.
func (h *Handler) GetHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	store := map[string]interface{}{
		"mode":   h.Store.Mode(),
		"status": "ok",
	}
	if err := h.Store.Ping(ctx); err != nil {
		store["status"] = "unreachable"
	}

	status := map[string]interface{}{
		"status":    "ok",
		"uptime":    time.Since(h.started).Round(time.Second).String(),
		"store":     store,
		"timestamp": time.Now().UTC(),
	}

	if h.Mongo != nil && h.Mongo.Enabled() {
		if stats, err := h.Mongo.GetDatabaseStats(ctx); err == nil {
			status["mongodb"] = stats
		} else {
			status["mongodb"] = map[string]string{"status": "unreachable"}
		}
	}
	return c.JSON(http.StatusOK, status)
}
