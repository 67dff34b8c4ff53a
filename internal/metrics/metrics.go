package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "contentsearch",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, route and status code.",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "contentsearch",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20},
	}, []string{"method", "route"})

	UpstreamRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "contentsearch",
		Name:      "upstream_requests_total",
		Help:      "Total requests to upstream APIs by upstream name and result status.",
	}, []string{"upstream", "status"})

	UpstreamRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "contentsearch",
		Name:      "upstream_request_duration_seconds",
		Help:      "Upstream API request duration in seconds.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"upstream"})

	PipelineStageTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "contentsearch",
		Name:      "pipeline_stage_total",
		Help:      "Discovery pipeline stage executions by stage and outcome (ok, empty, skipped, failed, degraded).",
	}, []string{"stage", "outcome"})

	PipelineItemsEmitted = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "contentsearch",
		Name:      "pipeline_items_emitted",
		Help:      "Number of enriched items emitted per discovery request.",
		Buckets:   []float64{0, 1, 5, 10, 20, 30, 50},
	})

	QuotaUnitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "contentsearch",
		Name:      "youtube_quota_units_total",
		Help:      "YouTube Data API quota units spent by API method.",
	}, []string{"api"})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		UpstreamRequestsTotal,
		UpstreamRequestDuration,
		PipelineStageTotal,
		PipelineItemsEmitted,
		QuotaUnitsTotal,
	)
}
