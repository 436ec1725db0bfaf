package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"cynix/models"
)

const (
	RequestLogKey = "api:request_logs"
	AccessLogKey  = "cynix:access_logs"

	// MaxLogEntries bounds both logs; older entries are trimmed.
	MaxLogEntries = 10000

	usageWindows = 60
)

// RequestLogger owns the request and access logs in the shared store.
type RequestLogger struct {
	store   Store
	limiter *RateLimiter
	logger  *zap.Logger
}

func NewRequestLogger(store Store, limiter *RateLimiter, logger *zap.Logger) *RequestLogger {
	return &RequestLogger{store: store, limiter: limiter, logger: logger}
}

func (l *RequestLogger) push(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}
	return l.store.PushBounded(ctx, key, string(data), MaxLogEntries)
}

// LogRequest appends to the request log. Store failures are logged, not returned.
func (l *RequestLogger) LogRequest(ctx context.Context, entry models.RequestLogEntry) {
	if err := l.push(ctx, RequestLogKey, entry); err != nil {
		l.logger.Error("Failed to append request log",
			zap.String("request_id", entry.RequestID),
			zap.Error(err))
	}
}

func (l *RequestLogger) LogAccess(ctx context.Context, entry models.AccessLogEntry) error {
	return l.push(ctx, AccessLogKey, entry)
}

// RequestLogs returns the request log, newest first.
func (l *RequestLogger) RequestLogs(ctx context.Context) ([]models.RequestLogEntry, error) {
	raw, err := l.store.Range(ctx, RequestLogKey, 0, -1)
	if err != nil {
		return nil, err
	}
	return decodeEntries[models.RequestLogEntry](raw, l.logger), nil
}

// AccessLogs returns the access log, newest first.
func (l *RequestLogger) AccessLogs(ctx context.Context) ([]models.AccessLogEntry, error) {
	raw, err := l.store.Range(ctx, AccessLogKey, 0, -1)
	if err != nil {
		return nil, err
	}
	return decodeEntries[models.AccessLogEntry](raw, l.logger), nil
}

func decodeEntries[T any](raw []string, logger *zap.Logger) []T {
	out := make([]T, 0, len(raw))
	for _, r := range raw {
		var e T
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			logger.Debug("Skipping unreadable log entry", zap.Error(err))
			continue
		}
		out = append(out, e)
	}
	return out
}

// Usage reports the last hour of rate-limit windows and the logged request
// count for identity.
func (l *RequestLogger) Usage(ctx context.Context, identity string, now time.Time) (*models.UsageStats, error) {
	hourly, err := l.limiter.WindowUsage(ctx, identity, now, usageWindows)
	if err != nil {
		return nil, fmt.Errorf("window usage: %w", err)
	}

	logs, err := l.RequestLogs(ctx)
	if err != nil {
		return nil, fmt.Errorf("read request log: %w", err)
	}
	total := 0
	for _, e := range logs {
		if e.Identity == identity {
			total++
		}
	}

	limit := l.limiter.Limit()
	return &models.UsageStats{
		Identity:      identity,
		HourlyUsage:   hourly,
		TotalRequests: total,
		RateLimit:     limit,
		Remaining:     max(0, limit-hourly),
	}, nil
}
