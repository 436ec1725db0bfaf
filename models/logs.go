package models

import "time"

// RequestLogEntry is appended to the request log once per HTTP request.
type RequestLogEntry struct {
	RequestID  string    `json:"request_id"`
	Timestamp  time.Time `json:"timestamp"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	StatusCode int       `json:"status_code"`
	Duration   float64   `json:"duration"` // seconds
	ClientIP   string    `json:"client_ip"`
	Country    string    `json:"country,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	Identity   string    `json:"identity"`
	Outcome    string    `json:"outcome"`
}

// AccessLogEntry records who read which raw data, and when.
type AccessLogEntry struct {
	WalletAddress string         `json:"wallet_address"`
	DataType      DataType       `json:"data_type"`
	Params        map[string]any `json:"params"`
	Timestamp     time.Time      `json:"timestamp"`
}

// UsageStats summarizes recent API usage for one identity.
type UsageStats struct {
	Identity      string `json:"identity"`
	HourlyUsage   int64  `json:"hourly_usage"`
	TotalRequests int    `json:"total_requests"`
	RateLimit     int64  `json:"rate_limit"`
	Remaining     int64  `json:"remaining"`
}
