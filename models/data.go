package models

import "time"

// DataType selects a raw data fetcher.
type DataType string

const (
	DataTypeGitHub     DataType = "github"
	DataTypeTwitter    DataType = "twitter"
	DataTypeBlockchain DataType = "blockchain"
)

// ParseDataType accepts only the known data types.
func ParseDataType(s string) (DataType, bool) {
	switch DataType(s) {
	case DataTypeGitHub, DataTypeTwitter, DataTypeBlockchain:
		return DataType(s), true
	}
	return "", false
}

// Metric names an analytics series.
type Metric string

const (
	MetricAPIRequests   Metric = "api_requests"
	MetricRateLimited   Metric = "rate_limited"
	MetricDataAccess    Metric = "data_access"
	MetricWebhookEvents Metric = "webhook_events"
	MetricAlerts        Metric = "alerts"
)

// Timeframe is a lookback span accepted by the analytics endpoint.
type Timeframe string

const (
	Timeframe24h Timeframe = "24h"
	Timeframe7d  Timeframe = "7d"
	Timeframe30d Timeframe = "30d"
)

// Span returns the duration of the timeframe.
func (t Timeframe) Span() (time.Duration, bool) {
	switch t {
	case Timeframe24h:
		return 24 * time.Hour, true
	case Timeframe7d:
		return 7 * 24 * time.Hour, true
	case Timeframe30d:
		return 30 * 24 * time.Hour, true
	}
	return 0, false
}

type AnalyticsBucket struct {
	BucketStart time.Time `json:"bucket_start"`
	Value       float64   `json:"value"`
}

type AnalyticsResult struct {
	Metric    Metric            `json:"metric"`
	Timeframe Timeframe         `json:"timeframe"`
	Interval  string            `json:"interval"`
	Data      []AnalyticsBucket `json:"data"`
}
