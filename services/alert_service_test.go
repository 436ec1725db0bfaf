package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cynix/models"
)

type fakeChannel struct {
	name    string
	enabled bool
	alerts  []*models.Alert
	fail    bool
}

func (f *fakeChannel) Name() string  { return f.name }
func (f *fakeChannel) Enabled() bool { return f.enabled }

func (f *fakeChannel) SendAlert(ctx context.Context, alert *models.Alert) []models.DeliveryResult {
	f.alerts = append(f.alerts, alert)
	if f.fail {
		return []models.DeliveryResult{{Channel: f.name, Error: "down"}}
	}
	return []models.DeliveryResult{{Channel: f.name, Success: true}}
}

type fakePoster struct {
	threads [][]string
	err     error
}

func (f *fakePoster) Enabled() bool { return true }

func (f *fakePoster) PostThread(ctx context.Context, parts []string) ([]string, error) {
	f.threads = append(f.threads, parts)
	return []string{"1"}, f.err
}

type fakeRecorder struct {
	alerts  []*models.Alert
	history []*models.AlertHistory
	events  []*models.WebhookEvent
}

func (f *fakeRecorder) InsertAlert(ctx context.Context, alert *models.Alert) error {
	f.alerts = append(f.alerts, alert)
	return nil
}

func (f *fakeRecorder) InsertAlertHistory(ctx context.Context, h *models.AlertHistory) error {
	f.history = append(f.history, h)
	return nil
}

func (f *fakeRecorder) InsertWebhookEvent(ctx context.Context, e *models.WebhookEvent) error {
	f.events = append(f.events, e)
	return nil
}

// storedHistory is a recorder that also serves persisted history.
type storedHistory struct {
	fakeRecorder
	enabled bool
	stored  []models.AlertHistory
	err     error
	limits  []int64
}

func (s *storedHistory) Enabled() bool { return s.enabled }

func (s *storedHistory) GetRecentAlertHistory(ctx context.Context, limit int64) ([]models.AlertHistory, error) {
	s.limits = append(s.limits, limit)
	return s.stored, s.err
}

func TestAlertServicePublishFansOut(t *testing.T) {
	tg := &fakeChannel{name: "telegram", enabled: true}
	dc := &fakeChannel{name: "discord", enabled: true, fail: true}
	off := &fakeChannel{name: "off"}
	poster := &fakePoster{}
	rec := &fakeRecorder{}

	svc := NewAlertService([]AlertChannel{tg, dc, off}, poster, rec, zap.NewNop())
	h := svc.Publish(context.Background(), &models.Alert{
		Kind:       models.AlertKindAlpha,
		Title:      "Breakout",
		Confidence: 0.6,
		Insights:   []string{strings.Repeat("volume spike ", 30)},
	})

	assert.Len(t, tg.alerts, 1)
	assert.Len(t, dc.alerts, 1)
	assert.Empty(t, off.alerts)
	require.Len(t, poster.threads, 1)
	require.Greater(t, len(poster.threads[0]), 1)
	for _, part := range poster.threads[0] {
		assert.LessOrEqual(t, utf8.RuneCountInString(part), TweetLimit)
	}

	require.Len(t, h.Deliveries, 3)
	assert.True(t, h.Deliveries[0].Success)
	assert.False(t, h.Deliveries[1].Success)
	assert.Equal(t, "twitter", h.Deliveries[2].Channel)
	assert.NotEmpty(t, h.AlertID)

	require.Len(t, rec.alerts, 1)
	require.Len(t, rec.history, 1)
	assert.Equal(t, h.AlertID, rec.alerts[0].ID)
	assert.Equal(t, []*models.AlertHistory{h}, svc.GetHistory(context.Background(), 10))
}

func TestAlertServicePriceSkipsTwitter(t *testing.T) {
	poster := &fakePoster{}
	svc := NewAlertService(nil, poster, nil, zap.NewNop())
	h := svc.Publish(context.Background(), &models.Alert{Kind: models.AlertKindPrice, Message: "SOL +5%"})
	assert.Empty(t, poster.threads)
	assert.Empty(t, h.Deliveries)

	poster.err = errors.New("forbidden")
	h = svc.Publish(context.Background(), &models.Alert{Kind: models.AlertKindMeme, Message: "funny"})
	require.Len(t, h.Deliveries, 1)
	assert.Equal(t, "forbidden", h.Deliveries[0].Error)
}

func TestAlertServiceHistoryNewestFirst(t *testing.T) {
	svc := NewAlertService(nil, nil, nil, zap.NewNop())
	for i := 0; i < maxAlertHistory+5; i++ {
		svc.Publish(context.Background(), &models.Alert{Kind: models.AlertKindPrice, Title: "t"})
	}
	all := svc.GetHistory(context.Background(), 0)
	assert.Len(t, all, maxAlertHistory)

	last := svc.GetHistory(context.Background(), 2)
	require.Len(t, last, 2)
	assert.Same(t, all[0], last[0])
	assert.Same(t, all[1], last[1])
}

func TestAlertServiceHistoryPrefersStore(t *testing.T) {
	rec := &storedHistory{
		enabled: true,
		stored:  []models.AlertHistory{{AlertID: "persisted-2"}, {AlertID: "persisted-1"}},
	}
	svc := NewAlertService(nil, nil, rec, zap.NewNop())
	svc.Publish(context.Background(), &models.Alert{Kind: models.AlertKindPrice, Title: "fresh"})

	got := svc.GetHistory(context.Background(), 5)
	require.Len(t, got, 2)
	assert.Equal(t, "persisted-2", got[0].AlertID)
	assert.Equal(t, "persisted-1", got[1].AlertID)

	svc.GetHistory(context.Background(), 0)
	assert.Equal(t, []int64{5, maxAlertHistory}, rec.limits)
}

func TestAlertServiceHistoryFallsBackToMemory(t *testing.T) {
	for name, rec := range map[string]*storedHistory{
		"disabled":    {stored: []models.AlertHistory{{AlertID: "ignored"}}},
		"read failed": {enabled: true, err: errors.New("connection reset")},
	} {
		t.Run(name, func(t *testing.T) {
			svc := NewAlertService(nil, nil, rec, zap.NewNop())
			h := svc.Publish(context.Background(), &models.Alert{Kind: models.AlertKindPrice, Title: "t"})

			got := svc.GetHistory(context.Background(), 10)
			require.Len(t, got, 1)
			assert.Same(t, h, got[0])
		})
	}
}

func TestFormatAlert(t *testing.T) {
	alert := &models.Alert{
		Kind:    models.AlertKindAlpha,
		Title:   "Breakout",
		Message: "Token X",
		Data:    map[string]any{"score": 91},
	}
	premium := FormatAlert(alert, true)
	assert.True(t, strings.HasPrefix(premium, "🔥 PREMIUM ALPHA"))
	assert.Contains(t, premium, `"score": 91`)
	assert.True(t, strings.HasSuffix(premium, "#CynixAlpha"))

	regular := FormatAlert(alert, false)
	assert.True(t, strings.HasPrefix(regular, "🔔 ALPHA ALERT"))
	assert.NotContains(t, regular, "score")

	price := FormatAlert(&models.Alert{Kind: models.AlertKindPrice, Message: "up"}, false)
	assert.True(t, strings.HasPrefix(price, "📈 PRICE ALERT"))

	tweet := FormatTweet(&models.Alert{Kind: models.AlertKindAlpha, Title: "T", Confidence: 0.81}, time.Date(2024, 1, 2, 3, 4, 0, 0, time.UTC))
	assert.Contains(t, tweet, "Signal Strength: 🟢🟢🟢🟢\n")
	assert.Contains(t, tweet, "Confidence: 81.0%")
	assert.Contains(t, tweet, "2024-01-02 03:04 UTC")
}

type fakePublisher struct {
	alerts []*models.Alert
}

func (f *fakePublisher) Publish(ctx context.Context, alert *models.Alert) *models.AlertHistory {
	alert.ID = "alert-1"
	f.alerts = append(f.alerts, alert)
	return &models.AlertHistory{AlertID: alert.ID, Deliveries: []models.DeliveryResult{{Channel: "telegram", Success: true}}}
}

type fakeMeme struct {
	result *models.MemeAnalysisResult
	err    error
	urls   []string
}

func (f *fakeMeme) AnalyzeMeme(ctx context.Context, imageURL string) (*models.MemeAnalysisResult, error) {
	f.urls = append(f.urls, imageURL)
	return f.result, f.err
}

func TestWebhookDispatch(t *testing.T) {
	pub := &fakePublisher{}
	meme := &fakeMeme{result: &models.MemeAnalysisResult{ImageHash: "a:ff", IsOriginal: true, OriginalityScore: 1, AlphaScore: 72}}
	rec := &fakeRecorder{}
	svc := NewWebhookService(pub, meme, rec, zap.NewNop())
	ctx := context.Background()

	res, err := svc.Process(ctx, "new_alpha", testWallet, []byte(`{"title":"Breakout","message":"X","confidence":0.9,"insights":["a"]}`))
	require.NoError(t, err)
	assert.Equal(t, "alert-1", res.(map[string]any)["alert_id"])
	require.Len(t, pub.alerts, 1)
	assert.Equal(t, models.AlertKindAlpha, pub.alerts[0].Kind)
	assert.Equal(t, 0.9, pub.alerts[0].Confidence)

	res, err = svc.Process(ctx, "new_meme", testWallet, []byte(`{"image_url":"https://img/x.png","caption":"lol"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://img/x.png"}, meme.urls)
	assert.Same(t, meme.result, res.(map[string]any)["analysis"])
	assert.Contains(t, pub.alerts[1].Message, "Alpha Score: 72/100")

	_, err = svc.Process(ctx, "price_alert", testWallet, []byte(`{"token":"SOL","price":101.5,"change_pct":4.2}`))
	require.NoError(t, err)
	assert.Equal(t, "SOL is at $101.5 (+4.20%)", pub.alerts[2].Message)

	require.Len(t, rec.events, 3)
	assert.Equal(t, models.EventPriceAlert, rec.events[2].EventType)
	assert.True(t, rec.events[2].Success)
	assert.Equal(t, "SOL", rec.events[2].Payload["token"])
}

func TestWebhookRejections(t *testing.T) {
	pub := &fakePublisher{}
	rec := &fakeRecorder{}
	svc := NewWebhookService(pub, &fakeMeme{err: errors.New("vision down")}, rec, zap.NewNop())
	ctx := context.Background()

	_, err := svc.Process(ctx, "rug_pull", testWallet, []byte(`{}`))
	assert.Equal(t, models.ErrUnsupportedEvent, models.CodeOf(err))

	_, err = svc.Process(ctx, "", testWallet, []byte(`{}`))
	assert.Equal(t, models.ErrBadRequest, models.CodeOf(err))

	_, err = svc.Process(ctx, "new_alpha", testWallet, []byte(`{not json`))
	assert.Equal(t, models.ErrBadRequest, models.CodeOf(err))

	_, err = svc.Process(ctx, "price_alert", testWallet, []byte(`{"price":1}`))
	assert.Equal(t, models.ErrBadRequest, models.CodeOf(err))

	_, err = svc.Process(ctx, "new_meme", testWallet, []byte(`{"image_url":"https://img/x.png"}`))
	require.Error(t, err)
	assert.Equal(t, models.ErrInternal, models.CodeOf(err))

	assert.Empty(t, pub.alerts)
	// every typed event is recorded, failed or not
	require.Len(t, rec.events, 4)
	assert.False(t, rec.events[0].Success)
	assert.Equal(t, models.EventType("rug_pull"), rec.events[0].EventType)
}
