package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"cynix/models"
	"cynix/utils"
)

// Fetcher loads one kind of raw data.
type Fetcher interface {
	Fetch(ctx context.Context, params map[string]any) (any, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, params map[string]any) (any, error)

func (f FetcherFunc) Fetch(ctx context.Context, params map[string]any) (any, error) {
	return f(ctx, params)
}

// Authorizer decides whether a wallet holds a tier.
type Authorizer interface {
	Authorize(ctx context.Context, wallet string, tier models.Tier) (*models.WalletAccessInfo, error)
}

// MetricSource supplies event timestamps for metrics not kept in the store.
type MetricSource interface {
	EventTimestamps(ctx context.Context, metric models.Metric, from, to time.Time) ([]time.Time, error)
}

// DataService serves token-gated raw data through the shared cache and
// builds analytics series.
type DataService struct {
	access   Authorizer
	store    Store
	logs     *RequestLogger
	fetchers map[models.DataType]Fetcher
	metrics  MetricSource
	ttl      time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

func NewDataService(access Authorizer, store Store, logs *RequestLogger, fetchers map[models.DataType]Fetcher,
	metrics MetricSource, ttl time.Duration, logger *zap.Logger) *DataService {
	if ttl <= 0 {
		ttl = 300 * time.Second
	}
	return &DataService{
		access:   access,
		store:    store,
		logs:     logs,
		fetchers: fetchers,
		metrics:  metrics,
		ttl:      ttl,
		now:      time.Now,
		logger:   logger,
	}
}

// CacheKey returns cynix:raw:{type} or cynix:raw:{type}:{params} with the
// params serialized as JSON with sorted keys.
func CacheKey(dataType models.DataType, params map[string]any) (string, error) {
	if len(params) == 0 {
		return "cynix:raw:" + string(dataType), nil
	}
	// encoding/json writes map keys in sorted order at every depth
	b, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("serialize params: %w", err)
	}
	return "cynix:raw:" + string(dataType) + ":" + string(b), nil
}

// GetRawData authorizes raw_data_access, then serves the payload from the
// cache or the data type's fetcher. Every successful call is written to the
// access log.
func (s *DataService) GetRawData(ctx context.Context, wallet, dataType string, params map[string]any) (json.RawMessage, error) {
	if _, err := s.access.Authorize(ctx, wallet, models.TierRawData); err != nil {
		return nil, err
	}

	dt, ok := models.ParseDataType(dataType)
	if !ok {
		return nil, models.NewAppError(models.ErrUnsupportedDataType, "unsupported data type: "+dataType)
	}
	fetcher, ok := s.fetchers[dt]
	if !ok {
		return nil, models.NewAppError(models.ErrUnsupportedDataType, "no fetcher registered for "+dataType)
	}

	key, err := CacheKey(dt, params)
	if err != nil {
		return nil, models.NewAppErrorWithCause(models.ErrBadRequest, "invalid params", err)
	}

	payload, hit := s.cached(ctx, key)
	if hit {
		utils.CacheLookups.WithLabelValues("hit").Inc()
	} else {
		utils.CacheLookups.WithLabelValues("miss").Inc()

		data, err := fetcher.Fetch(ctx, params)
		if err != nil {
			// caller mistakes pass through; everything else is an upstream failure
			if models.CodeOf(err).HTTPStatus() == http.StatusBadRequest {
				return nil, err
			}
			return nil, models.NewAppErrorWithCause(models.ErrUpstreamFetchFailed, "failed to fetch "+dataType+" data", err)
		}
		payload, err = json.Marshal(data)
		if err != nil {
			return nil, models.NewAppErrorWithCause(models.ErrUpstreamFetchFailed, "failed to encode "+dataType+" data", err)
		}
		if err := s.store.Set(ctx, key, string(payload), s.ttl); err != nil {
			s.logger.Warn("Failed to cache raw data", zap.String("key", key), zap.Error(err))
		}
	}

	entry := models.AccessLogEntry{
		WalletAddress: wallet,
		DataType:      dt,
		Params:        params,
		Timestamp:     s.now().UTC(),
	}
	if err := s.logs.LogAccess(ctx, entry); err != nil {
		s.logger.Warn("Failed to append access log", zap.String("wallet", wallet), zap.Error(err))
	}

	return payload, nil
}

// cached treats store errors as a miss.
func (s *DataService) cached(ctx context.Context, key string) (json.RawMessage, bool) {
	val, ok, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return json.RawMessage(val), true
}

// BucketInterval picks 1h buckets for spans up to a day, 1d up to a week and 7d beyond.
func BucketInterval(span time.Duration) time.Duration {
	switch {
	case span <= 24*time.Hour:
		return time.Hour
	case span <= 7*24*time.Hour:
		return 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// Bucketize counts timestamps in [start, end) into consecutive buckets of
// width interval starting at start. Empty buckets are kept with value 0.
func Bucketize(timestamps []time.Time, start, end time.Time, interval time.Duration) []models.AnalyticsBucket {
	var buckets []models.AnalyticsBucket
	for t := start; t.Before(end); t = t.Add(interval) {
		buckets = append(buckets, models.AnalyticsBucket{BucketStart: t})
	}
	for _, ts := range timestamps {
		if ts.Before(start) || !ts.Before(end) {
			continue
		}
		idx := int(ts.Sub(start) / interval)
		if idx < len(buckets) {
			buckets[idx].Value++
		}
	}
	return buckets
}

func formatInterval(d time.Duration) string {
	if d%(24*time.Hour) == 0 {
		return fmt.Sprintf("%dd", int(d/(24*time.Hour)))
	}
	return fmt.Sprintf("%dh", int(d/time.Hour))
}

// GetAnalyticsData returns a bucketed series for metric over timeframe, ending now.
func (s *DataService) GetAnalyticsData(ctx context.Context, wallet, metric, timeframe string) (*models.AnalyticsResult, error) {
	tf := models.Timeframe(timeframe)
	span, ok := tf.Span()
	if !ok {
		return nil, models.NewAppError(models.ErrInvalidTimeframe, "invalid timeframe: "+timeframe)
	}

	end := s.now().UTC()
	start := end.Add(-span)

	m := models.Metric(metric)
	timestamps, err := s.metricTimestamps(ctx, m, start, end)
	if err != nil {
		return nil, err
	}

	interval := BucketInterval(span)
	s.logger.Debug("Analytics computed",
		zap.String("wallet", wallet),
		zap.String("metric", metric),
		zap.Int("events", len(timestamps)))

	return &models.AnalyticsResult{
		Metric:    m,
		Timeframe: tf,
		Interval:  formatInterval(interval),
		Data:      Bucketize(timestamps, start, end, interval),
	}, nil
}

func (s *DataService) metricTimestamps(ctx context.Context, metric models.Metric, from, to time.Time) ([]time.Time, error) {
	switch metric {
	case models.MetricAPIRequests, models.MetricRateLimited:
		logs, err := s.logs.RequestLogs(ctx)
		if err != nil {
			return nil, fmt.Errorf("read request log: %w", err)
		}
		out := make([]time.Time, 0, len(logs))
		for _, e := range logs {
			if metric == models.MetricRateLimited && e.StatusCode != 429 {
				continue
			}
			out = append(out, e.Timestamp)
		}
		return out, nil

	case models.MetricDataAccess:
		logs, err := s.logs.AccessLogs(ctx)
		if err != nil {
			return nil, fmt.Errorf("read access log: %w", err)
		}
		out := make([]time.Time, 0, len(logs))
		for _, e := range logs {
			out = append(out, e.Timestamp)
		}
		return out, nil

	case models.MetricWebhookEvents, models.MetricAlerts:
		if s.metrics == nil {
			return nil, nil
		}
		return s.metrics.EventTimestamps(ctx, metric, from, to)
	}

	return nil, models.NewAppError(models.ErrUnsupportedMetric, "unsupported metric: "+string(metric))
}

// ============================================
// Fetchers
// ============================================

// RepoSource loads repository metadata.
type RepoSource interface {
	GetRepoSnapshot(ctx context.Context, owner, repo string) (*models.RepoSnapshot, error)
}

// TimelineSource loads a social account and its recent posts.
type TimelineSource interface {
	GetTimeline(ctx context.Context, handle string, limit int) (*models.TwitterTimeline, error)
}

// HistorySource loads on-chain account history.
type HistorySource interface {
	GetAccountHistory(ctx context.Context, address string) (*models.AccountHistory, error)
}

func stringParam(params map[string]any, names ...string) string {
	for _, n := range names {
		if v, ok := params[n].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func missingParam(name string) error {
	return models.NewAppError(models.ErrBadRequest, "missing parameter: "+name)
}

// ParseRepoURL accepts owner/repo or a github.com URL.
func ParseRepoURL(s string) (owner, repo string, ok bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ".git")
	s = strings.TrimSuffix(s, "/")
	for _, prefix := range []string{"https://", "http://", "www.", "github.com/"} {
		s = strings.TrimPrefix(s, prefix)
	}
	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// GitHubFetcher takes repo_url, or owner and repo.
func GitHubFetcher(src RepoSource) Fetcher {
	return FetcherFunc(func(ctx context.Context, params map[string]any) (any, error) {
		owner := stringParam(params, "owner")
		repo := stringParam(params, "repo")
		if owner == "" || repo == "" {
			url := stringParam(params, "repo_url", "github_url")
			if url == "" {
				return nil, missingParam("repo_url")
			}
			var ok bool
			if owner, repo, ok = ParseRepoURL(url); !ok {
				return nil, models.NewAppError(models.ErrBadRequest, "invalid repo_url")
			}
		}
		return src.GetRepoSnapshot(ctx, owner, repo)
	})
}

// TwitterFetcher takes handle and an optional max_results.
func TwitterFetcher(src TimelineSource) Fetcher {
	return FetcherFunc(func(ctx context.Context, params map[string]any) (any, error) {
		handle := strings.TrimPrefix(stringParam(params, "handle", "twitter_handle"), "@")
		if handle == "" {
			return nil, missingParam("handle")
		}
		limit := 100
		if v, ok := params["max_results"].(float64); ok && v > 0 {
			limit = int(v)
		}
		return src.GetTimeline(ctx, handle, limit)
	})
}

// BlockchainFetcher takes address.
func BlockchainFetcher(src HistorySource) Fetcher {
	return FetcherFunc(func(ctx context.Context, params map[string]any) (any, error) {
		address := stringParam(params, "address")
		if address == "" {
			return nil, missingParam("address")
		}
		return src.GetAccountHistory(ctx, address)
	})
}
