package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"cynix/middleware"
	"cynix/models"
)

const maxWebhookBody = 1 << 20

type WebhookProcessor interface {
	Process(ctx context.Context, eventType, wallet string, body []byte) (any, error)
}

type WebhookHandlers struct {
	webhooks WebhookProcessor
}

func NewWebhookHandlers(webhooks WebhookProcessor) *WebhookHandlers {
	return &WebhookHandlers{webhooks: webhooks}
}

// HandleWebhook dispatches on the X-Cynix-Event header.
func (wh *WebhookHandlers) HandleWebhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return models.NewAppErrorWithCause(models.ErrBadRequest, "failed to read body", err)
	}

	eventType := c.Request().Header.Get(middleware.HeaderCynixEvent)
	result, err := wh.webhooks.Process(c.Request().Context(), eventType, middleware.WalletFrom(c), body)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":     "processed",
		"event_type": eventType,
		"result":     result,
	})
}
