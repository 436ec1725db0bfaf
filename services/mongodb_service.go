package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"cynix/config"
	"cynix/models"
)

type MongoDBService struct {
	client  *mongo.Client
	db      *mongo.Database
	enabled bool
	logger  *zap.Logger
}

const (
	CollectionWebhookEvents = "webhook_events"
	CollectionAlertHistory  = "alert_history"
	CollectionAlerts        = "alerts"
)

func NewMongoDBService(cfg *config.Config, logger *zap.Logger) (*MongoDBService, error) {
	if !cfg.MongoDB.Enabled {
		logger.Info("MongoDB is disabled in configuration")
		return &MongoDBService{enabled: false, logger: logger}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(cfg.MongoDB.URI)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	service := &MongoDBService{
		client:  client,
		db:      client.Database(cfg.MongoDB.Database),
		enabled: true,
		logger:  logger,
	}

	if err := service.createIndexes(ctx); err != nil {
		logger.Warn("Failed to create indexes", zap.Error(err))
	}

	logger.Info("MongoDB connected", zap.String("database", cfg.MongoDB.Database))
	return service, nil
}

func (m *MongoDBService) Enabled() bool {
	return m != nil && m.enabled
}

func (m *MongoDBService) createIndexes(ctx context.Context) error {
	if !m.enabled {
		return nil
	}

	// Webhook events: by time, and by type within time for analytics
	_, err := m.db.Collection(CollectionWebhookEvents).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("timestamp_desc"),
		},
		{
			Keys:    bson.D{{Key: "event_type", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("event_timestamp"),
		},
	})
	if err != nil {
		return err
	}

	_, err = m.db.Collection(CollectionAlertHistory).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "timestamp", Value: -1}},
		Options: options.Index().SetName("timestamp_desc"),
	})
	if err != nil {
		return err
	}

	_, err = m.db.Collection(CollectionAlerts).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "created_at", Value: -1}},
		Options: options.Index().SetName("created_at_desc"),
	})
	return err
}

func (m *MongoDBService) Close() error {
	if !m.enabled || m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *MongoDBService) Ping(ctx context.Context) error {
	if !m.enabled {
		return fmt.Errorf("MongoDB not enabled")
	}
	return m.client.Ping(ctx, nil)
}

// ============================================
// INSERT METHODS
// ============================================

func (m *MongoDBService) InsertWebhookEvent(ctx context.Context, event *models.WebhookEvent) error {
	if !m.enabled {
		return nil
	}
	_, err := m.db.Collection(CollectionWebhookEvents).InsertOne(ctx, event)
	return err
}

func (m *MongoDBService) InsertAlert(ctx context.Context, alert *models.Alert) error {
	if !m.enabled {
		return nil
	}
	_, err := m.db.Collection(CollectionAlerts).InsertOne(ctx, alert)
	return err
}

func (m *MongoDBService) InsertAlertHistory(ctx context.Context, history *models.AlertHistory) error {
	if !m.enabled {
		return nil
	}
	_, err := m.db.Collection(CollectionAlertHistory).InsertOne(ctx, history)
	return err
}

// ============================================
// QUERY METHODS
// ============================================

// EventTimestamps implements MetricSource. With MongoDB disabled every
// series is empty.
func (m *MongoDBService) EventTimestamps(ctx context.Context, metric models.Metric, from, to time.Time) ([]time.Time, error) {
	if !m.enabled {
		return nil, nil
	}

	var collection, field string
	switch metric {
	case models.MetricWebhookEvents:
		collection, field = CollectionWebhookEvents, "timestamp"
	case models.MetricAlerts:
		collection, field = CollectionAlertHistory, "timestamp"
	default:
		return nil, fmt.Errorf("metric %s is not stored in MongoDB", metric)
	}

	filter := bson.M{field: bson.M{"$gte": from, "$lt": to}}
	opts := options.Find().
		SetSort(bson.M{field: 1}).
		SetProjection(bson.M{field: 1, "_id": 0})

	cursor, err := m.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []struct {
		Timestamp time.Time `bson:"timestamp"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]time.Time, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Timestamp)
	}
	return out, nil
}

// GetRecentAlertHistory returns the newest alert deliveries first.
func (m *MongoDBService) GetRecentAlertHistory(ctx context.Context, limit int64) ([]models.AlertHistory, error) {
	if !m.enabled {
		return nil, fmt.Errorf("MongoDB not enabled")
	}

	opts := options.Find().SetSort(bson.M{"timestamp": -1}).SetLimit(limit)
	cursor, err := m.db.Collection(CollectionAlertHistory).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var results []models.AlertHistory
	if err := cursor.All(ctx, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// GetDatabaseStats returns document counts per collection.
func (m *MongoDBService) GetDatabaseStats(ctx context.Context) (map[string]interface{}, error) {
	if !m.enabled {
		return nil, fmt.Errorf("MongoDB not enabled")
	}

	stats := make(map[string]interface{})

	counts := []struct{ collection, key string }{
		{CollectionWebhookEvents, "webhook_events_count"},
		{CollectionAlerts, "alerts_count"},
		{CollectionAlertHistory, "alert_history_count"},
	}
	for _, c := range counts {
		n, err := m.db.Collection(c.collection).CountDocuments(ctx, bson.M{})
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", c.collection, err)
		}
		stats[c.key] = n
	}

	var latest models.WebhookEvent
	err := m.db.Collection(CollectionWebhookEvents).FindOne(ctx, bson.M{},
		options.FindOne().SetSort(bson.M{"timestamp": -1})).Decode(&latest)
	if err == nil {
		stats["latest_webhook_event"] = latest.Timestamp
	}

	return stats, nil
}
