package utils

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "cynix"

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "requests_total",
		Help:      "HTTP requests by gate outcome.",
	}, []string{"outcome"})

	RateLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "rate_limit_rejections_total",
		Help:      "Requests rejected by the rate limiter.",
	})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "raw_data_cache_lookups_total",
		Help:      "Raw data cache lookups by result.",
	}, []string{"result"})

	AccessChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "access_checks_total",
		Help:      "Wallet access evaluations by source.",
	}, []string{"source"})

	RPCDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "rpc_call_duration_seconds",
		Help:      "Ledger RPC call latency by method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "result"})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "notifications_total",
		Help:      "Alert deliveries by channel and result.",
	}, []string{"channel", "result"})
)

// ResultLabel turns an error into a success/error label value.
func ResultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
