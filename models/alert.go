package models

import "time"

// EventType is the value of the X-Cynix-Event webhook header.
type EventType string

const (
	EventNewAlpha   EventType = "new_alpha"
	EventNewMeme    EventType = "new_meme"
	EventPriceAlert EventType = "price_alert"
)

// AlertKind selects how a notification is formatted per channel.
type AlertKind string

const (
	AlertKindAlpha AlertKind = "alpha"
	AlertKindMeme  AlertKind = "meme"
	AlertKindPrice AlertKind = "price"
)

// Alert is a message fanned out to the configured channels.
type Alert struct {
	ID         string         `json:"id" bson:"_id"`
	Kind       AlertKind      `json:"kind" bson:"kind"`
	Title      string         `json:"title" bson:"title"`
	Message    string         `json:"message" bson:"message"`
	Confidence float64        `json:"confidence,omitempty" bson:"confidence,omitempty"`
	Insights   []string       `json:"insights,omitempty" bson:"insights,omitempty"`
	Data       map[string]any `json:"data,omitempty" bson:"data,omitempty"`
	CreatedAt  time.Time      `json:"created_at" bson:"created_at"`
}

// AlphaAlertPayload is the body of a new_alpha webhook.
type AlphaAlertPayload struct {
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	Confidence float64        `json:"confidence"`
	Insights   []string       `json:"insights"`
	Data       map[string]any `json:"data"`
}

// PriceAlertPayload is the body of a price_alert webhook.
type PriceAlertPayload struct {
	Token     string  `json:"token"`
	Price     float64 `json:"price"`
	ChangePct float64 `json:"change_pct"`
	Message   string  `json:"message"`
}

// MemeAlertPayload is the body of a new_meme webhook.
type MemeAlertPayload struct {
	ImageURL string `json:"image_url"`
	Caption  string `json:"caption"`
}

// DeliveryResult is the outcome of sending an alert to one channel.
type DeliveryResult struct {
	Channel     string     `json:"channel" bson:"channel"`
	Success     bool       `json:"success" bson:"success"`
	Error       string     `json:"error,omitempty" bson:"error,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty" bson:"scheduled_at,omitempty"`
}

// AlertHistory tracks when alerts fire
type AlertHistory struct {
	ID         string           `json:"id" bson:"_id"`
	AlertID    string           `json:"alert_id" bson:"alert_id"`
	Kind       AlertKind        `json:"kind" bson:"kind"`
	Title      string           `json:"title" bson:"title"`
	Timestamp  time.Time        `json:"timestamp" bson:"timestamp"`
	Deliveries []DeliveryResult `json:"deliveries" bson:"deliveries"`
}

// WebhookEvent is the persisted record of an inbound webhook.
type WebhookEvent struct {
	ID            string         `json:"id" bson:"_id"`
	EventType     EventType      `json:"event_type" bson:"event_type"`
	WalletAddress string         `json:"wallet_address" bson:"wallet_address"`
	Payload       map[string]any `json:"payload" bson:"payload"`
	Success       bool           `json:"success" bson:"success"`
	Error         string         `json:"error,omitempty" bson:"error,omitempty"`
	Timestamp     time.Time      `json:"timestamp" bson:"timestamp"`
}
