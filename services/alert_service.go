package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cynix/models"
	"cynix/utils"
)

const maxAlertHistory = 1000

// AlertChannel delivers alerts to one messaging platform.
type AlertChannel interface {
	Name() string
	Enabled() bool
	SendAlert(ctx context.Context, alert *models.Alert) []models.DeliveryResult
}

// ThreadPoster publishes text as a reply chain.
type ThreadPoster interface {
	Enabled() bool
	PostThread(ctx context.Context, parts []string) ([]string, error)
}

// AlertRecorder persists alerts and their delivery history.
type AlertRecorder interface {
	InsertAlert(ctx context.Context, alert *models.Alert) error
	InsertAlertHistory(ctx context.Context, history *models.AlertHistory) error
}

// AlertHistoryReader reads persisted deliveries, newest first.
type AlertHistoryReader interface {
	Enabled() bool
	GetRecentAlertHistory(ctx context.Context, limit int64) ([]models.AlertHistory, error)
}

type AlertService struct {
	channels []AlertChannel
	twitter  ThreadPoster
	recorder AlertRecorder
	logger   *zap.Logger
	now      func() time.Time

	historyMutex sync.RWMutex
	history      []*models.AlertHistory
}

func NewAlertService(channels []AlertChannel, twitter ThreadPoster, recorder AlertRecorder, logger *zap.Logger) *AlertService {
	return &AlertService{
		channels: channels,
		twitter:  twitter,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
		history:  make([]*models.AlertHistory, 0),
	}
}

// Publish fans the alert out to every enabled channel and records the
// deliveries. Channel failures are reported in the history, not returned.
func (as *AlertService) Publish(ctx context.Context, alert *models.Alert) *models.AlertHistory {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = as.now().UTC()
	}

	as.logger.Info("Publishing alert",
		zap.String("alert_id", alert.ID),
		zap.String("kind", string(alert.Kind)))

	var deliveries []models.DeliveryResult
	for _, ch := range as.channels {
		if ch == nil || !ch.Enabled() {
			continue
		}
		deliveries = append(deliveries, ch.SendAlert(ctx, alert)...)
	}

	if as.shouldTweet(alert.Kind) {
		deliveries = append(deliveries, as.postThread(ctx, alert))
	}

	for _, d := range deliveries {
		result := "success"
		if !d.Success {
			result = "error"
		}
		utils.NotificationsTotal.WithLabelValues(d.Channel, result).Inc()
	}

	history := &models.AlertHistory{
		ID:         uuid.NewString(),
		AlertID:    alert.ID,
		Kind:       alert.Kind,
		Title:      alert.Title,
		Timestamp:  as.now().UTC(),
		Deliveries: deliveries,
	}

	as.historyMutex.Lock()
	as.history = append(as.history, history)
	if len(as.history) > maxAlertHistory {
		as.history = as.history[len(as.history)-maxAlertHistory:]
	}
	as.historyMutex.Unlock()

	// Persist to MongoDB
	if as.recorder != nil {
		if err := as.recorder.InsertAlert(ctx, alert); err != nil {
			as.logger.Warn("Failed to persist alert", zap.String("alert_id", alert.ID), zap.Error(err))
		}
		if err := as.recorder.InsertAlertHistory(ctx, history); err != nil {
			as.logger.Warn("Failed to persist alert history", zap.String("alert_id", alert.ID), zap.Error(err))
		}
	}

	return history
}

// Price alerts stay on the regular channels.
func (as *AlertService) shouldTweet(kind models.AlertKind) bool {
	if as.twitter == nil || !as.twitter.Enabled() {
		return false
	}
	return kind == models.AlertKindAlpha || kind == models.AlertKindMeme
}

func (as *AlertService) postThread(ctx context.Context, alert *models.Alert) models.DeliveryResult {
	result := models.DeliveryResult{Channel: "twitter"}
	parts := SplitThread(FormatTweet(alert, as.now()), TweetLimit)
	if _, err := as.twitter.PostThread(ctx, parts); err != nil {
		as.logger.Warn("Twitter thread failed", zap.String("alert_id", alert.ID), zap.Error(err))
		result.Error = err.Error()
		return result
	}
	result.Success = true
	return result
}

// GetHistory returns up to limit deliveries, newest first. When the recorder
// persists history it is the source, so the list survives restarts; the
// in-memory history is used otherwise or when the read fails.
func (as *AlertService) GetHistory(ctx context.Context, limit int) []*models.AlertHistory {
	if reader, ok := as.recorder.(AlertHistoryReader); ok && reader.Enabled() {
		n := limit
		if n <= 0 {
			n = maxAlertHistory
		}
		stored, err := reader.GetRecentAlertHistory(ctx, int64(n))
		if err == nil {
			result := make([]*models.AlertHistory, len(stored))
			for i := range stored {
				result[i] = &stored[i]
			}
			return result
		}
		as.logger.Warn("Failed to read alert history, using in-memory copy", zap.Error(err))
	}
	return as.recentHistory(limit)
}

func (as *AlertService) recentHistory(limit int) []*models.AlertHistory {
	as.historyMutex.RLock()
	defer as.historyMutex.RUnlock()

	if limit <= 0 || limit > len(as.history) {
		limit = len(as.history)
	}

	result := make([]*models.AlertHistory, limit)
	copy(result, as.history[len(as.history)-limit:])

	// Reverse to get newest first
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result
}

// ============================================
// Formatting
// ============================================

// FormatAlert renders an alert as chat text. Premium alpha alerts carry the
// full data payload.
func FormatAlert(alert *models.Alert, premium bool) string {
	var sb strings.Builder

	switch alert.Kind {
	case models.AlertKindAlpha:
		if premium {
			sb.WriteString("🔥 PREMIUM ALPHA")
		} else {
			sb.WriteString("🔔 ALPHA ALERT")
		}
	default:
		sb.WriteString(alertEmoji(alert.Kind) + " " + strings.ToUpper(formatAlertKind(alert.Kind)))
	}
	sb.WriteString("\n\n")

	if alert.Title != "" {
		sb.WriteString(alert.Title)
		sb.WriteString("\n")
	}
	sb.WriteString(alert.Message)

	if len(alert.Insights) > 0 {
		sb.WriteString("\n\nKey Insights:\n")
		sb.WriteString(formatInsights(alert.Insights))
	}

	if premium && len(alert.Data) > 0 {
		if data, err := json.MarshalIndent(alert.Data, "", "  "); err == nil {
			sb.WriteString("\n\nDetailed Analysis:\n")
			sb.Write(data)
		}
	}

	sb.WriteString("\n\n")
	sb.WriteString(alertHashtags(alert.Kind))
	return sb.String()
}

// FormatTweet renders the text that is split into a thread.
func FormatTweet(alert *models.Alert, now time.Time) string {
	var sb strings.Builder
	switch alert.Kind {
	case models.AlertKindMeme:
		sb.WriteString("🎭 CYNIX MEME ANALYSIS 🎭\n\n")
		sb.WriteString(alert.Message)
		sb.WriteString("\n\n#CynixMemes #SolanaMemes")
	default:
		sb.WriteString("🔥 CYNIX ALPHA ALERT 🔥\n\n")
		sb.WriteString(alert.Title)
		sb.WriteString("\n\n")
		strength := max(0, min(int(alert.Confidence*5), 5))
		fmt.Fprintf(&sb, "Signal Strength: %s\nConfidence: %.1f%%\n\n", strings.Repeat("🟢", strength), alert.Confidence*100)
		if len(alert.Insights) > 0 {
			sb.WriteString("Key Insights:\n")
			sb.WriteString(formatInsights(alert.Insights))
			sb.WriteString("\n\n")
		}
		sb.WriteString(now.UTC().Format("2006-01-02 15:04 UTC"))
		sb.WriteString("\n#CynixAlpha #Solana")
	}
	return sb.String()
}

func formatInsights(insights []string) string {
	lines := make([]string, 0, len(insights))
	for _, in := range insights {
		lines = append(lines, "• "+in)
	}
	return strings.Join(lines, "\n")
}

func formatAlertKind(kind models.AlertKind) string {
	switch kind {
	case models.AlertKindAlpha:
		return "Alpha Signal"
	case models.AlertKindMeme:
		return "Meme Analysis"
	case models.AlertKindPrice:
		return "Price Alert"
	default:
		return string(kind)
	}
}

func alertEmoji(kind models.AlertKind) string {
	switch kind {
	case models.AlertKindAlpha:
		return "🔥"
	case models.AlertKindMeme:
		return "🎭"
	case models.AlertKindPrice:
		return "📈"
	default:
		return "🔔"
	}
}

func alertHashtags(kind models.AlertKind) string {
	switch kind {
	case models.AlertKindMeme:
		return "#CynixMemes"
	case models.AlertKindPrice:
		return "#CynixPrice"
	default:
		return "#CynixAlpha"
	}
}
