package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamchat_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamchat_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	ProducersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamchat_producers_active",
		Help: "Number of messages currently streaming",
	})

	ChunksEmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamchat_chunks_emitted_total",
		Help: "Total agentChunk events appended to the event log",
	}, []string{"provider"})

	ProviderRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamchat_provider_requests_total",
		Help: "Total provider stream requests",
	}, []string{"provider", "model", "status"})

	ProviderRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "streamchat_provider_request_duration_seconds",
		Help:    "Provider stream duration from first byte to completion",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"provider", "model"})

	RateLimitRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamchat_rate_limit_rejections_total",
		Help: "Total sendWithStream calls rejected by the rate limiter",
	}, []string{"provider"})

	BatchFlushSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "streamchat_batch_flush_size",
		Help:    "Number of events written per batched writer flush",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
	})
)
