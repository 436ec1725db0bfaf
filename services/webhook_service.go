package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cynix/models"
)

// AlertPublisher fans an alert out to the messaging channels.
type AlertPublisher interface {
	Publish(ctx context.Context, alert *models.Alert) *models.AlertHistory
}

// MemeAnalyzer scores a meme image.
type MemeAnalyzer interface {
	AnalyzeMeme(ctx context.Context, imageURL string) (*models.MemeAnalysisResult, error)
}

// EventRecorder persists inbound webhook events.
type EventRecorder interface {
	InsertWebhookEvent(ctx context.Context, event *models.WebhookEvent) error
}

type webhookHandler func(ctx context.Context, body []byte) (any, error)

// WebhookService dispatches X-Cynix-Event webhooks to their handlers.
type WebhookService struct {
	handlers map[models.EventType]webhookHandler
	alerts   AlertPublisher
	meme     MemeAnalyzer
	events   EventRecorder
	now      func() time.Time
	logger   *zap.Logger
}

func NewWebhookService(alerts AlertPublisher, meme MemeAnalyzer, events EventRecorder, logger *zap.Logger) *WebhookService {
	s := &WebhookService{
		alerts: alerts,
		meme:   meme,
		events: events,
		now:    time.Now,
		logger: logger,
	}
	s.handlers = map[models.EventType]webhookHandler{
		models.EventNewAlpha:   s.handleAlpha,
		models.EventNewMeme:    s.handleMeme,
		models.EventPriceAlert: s.handlePrice,
	}
	return s
}

// Process runs the handler for eventType and records the event.
func (s *WebhookService) Process(ctx context.Context, eventType, wallet string, body []byte) (any, error) {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return nil, models.NewAppError(models.ErrBadRequest, "missing event type header")
	}

	var result any
	handler, ok := s.handlers[models.EventType(eventType)]
	err := error(models.NewAppError(models.ErrUnsupportedEvent, "unsupported event type: "+eventType))
	if ok {
		result, err = handler(ctx, body)
	}

	s.record(ctx, models.EventType(eventType), wallet, body, err)
	if err != nil {
		s.logger.Warn("Webhook event failed",
			zap.String("event_type", eventType),
			zap.Error(err))
		return nil, err
	}
	return result, nil
}

func (s *WebhookService) record(ctx context.Context, eventType models.EventType, wallet string, body []byte, procErr error) {
	if s.events == nil {
		return
	}

	var payload map[string]any
	_ = json.Unmarshal(body, &payload)

	event := &models.WebhookEvent{
		ID:            uuid.NewString(),
		EventType:     eventType,
		WalletAddress: wallet,
		Payload:       payload,
		Success:       procErr == nil,
		Timestamp:     s.now().UTC(),
	}
	if procErr != nil {
		event.Error = procErr.Error()
	}

	if err := s.events.InsertWebhookEvent(ctx, event); err != nil {
		s.logger.Warn("Failed to persist webhook event", zap.Error(err))
	}
}

func decodePayload(body []byte, out any) error {
	if len(body) == 0 {
		return models.NewAppError(models.ErrBadRequest, "empty payload")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return models.NewAppErrorWithCause(models.ErrBadRequest, "invalid JSON payload", err)
	}
	return nil
}

func deliveryResult(h *models.AlertHistory) map[string]any {
	return map[string]any{
		"alert_id":   h.AlertID,
		"deliveries": h.Deliveries,
	}
}

func (s *WebhookService) handleAlpha(ctx context.Context, body []byte) (any, error) {
	var p models.AlphaAlertPayload
	if err := decodePayload(body, &p); err != nil {
		return nil, err
	}
	if p.Title == "" && p.Message == "" {
		return nil, models.NewAppError(models.ErrBadRequest, "alpha alert needs a title or message")
	}

	h := s.alerts.Publish(ctx, &models.Alert{
		Kind:       models.AlertKindAlpha,
		Title:      p.Title,
		Message:    p.Message,
		Confidence: p.Confidence,
		Insights:   p.Insights,
		Data:       p.Data,
	})
	return deliveryResult(h), nil
}

func (s *WebhookService) handleMeme(ctx context.Context, body []byte) (any, error) {
	var p models.MemeAlertPayload
	if err := decodePayload(body, &p); err != nil {
		return nil, err
	}
	if p.ImageURL == "" {
		return nil, models.NewAppError(models.ErrBadRequest, "missing image_url")
	}
	if s.meme == nil {
		return nil, fmt.Errorf("meme analysis not configured")
	}

	analysis, err := s.meme.AnalyzeMeme(ctx, p.ImageURL)
	if err != nil {
		return nil, fmt.Errorf("analyze meme: %w", err)
	}

	originality := "⚠️"
	if analysis.IsOriginal {
		originality = "✅"
	}
	message := fmt.Sprintf("Alpha Score: %.0f/100\nOriginality: %s (%.0f%%)",
		analysis.AlphaScore, originality, analysis.OriginalityScore*100)
	if p.Caption != "" {
		message = p.Caption + "\n\n" + message
	}

	h := s.alerts.Publish(ctx, &models.Alert{
		Kind:    models.AlertKindMeme,
		Title:   "New meme analyzed",
		Message: message,
		Data: map[string]any{
			"image_url":         p.ImageURL,
			"image_hash":        analysis.ImageHash,
			"alpha_score":       analysis.AlphaScore,
			"originality_score": analysis.OriginalityScore,
		},
	})

	result := deliveryResult(h)
	result["analysis"] = analysis
	return result, nil
}

func (s *WebhookService) handlePrice(ctx context.Context, body []byte) (any, error) {
	var p models.PriceAlertPayload
	if err := decodePayload(body, &p); err != nil {
		return nil, err
	}
	if p.Token == "" {
		return nil, models.NewAppError(models.ErrBadRequest, "missing token")
	}

	message := fmt.Sprintf("%s is at $%.6g (%+.2f%%)", p.Token, p.Price, p.ChangePct)
	if p.Message != "" {
		message += "\n" + p.Message
	}

	h := s.alerts.Publish(ctx, &models.Alert{
		Kind:    models.AlertKindPrice,
		Title:   p.Token + " price alert",
		Message: message,
		Data: map[string]any{
			"token":      p.Token,
			"price":      p.Price,
			"change_pct": p.ChangePct,
		},
	})
	return deliveryResult(h), nil
}
