package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector the server exposes on /metrics.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	HTTPRequestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "formsheet_http_requests_total",
		Help: "HTTP requests by method, route and status code.",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "formsheet_http_request_duration_seconds",
		Help:    "HTTP request latency by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	SheetExportsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "formsheet_sheet_exports_total",
		Help: "Spreadsheet export attempts by outcome (exported, retry, failed).",
	}, []string{"outcome"})

	ExportQueueDepth = factory.NewGauge(prometheus.GaugeOpts{
		Name: "formsheet_export_queue_depth",
		Help: "Submissions waiting in the in-process export queue.",
	})

	LLMRequestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "formsheet_llm_requests_total",
		Help: "LLM completion calls by model and outcome.",
	}, []string{"model", "outcome"})

	RateLimitedTotal = factory.NewCounter(prometheus.CounterOpts{
		Name: "formsheet_rate_limited_total",
		Help: "Requests rejected by the rate limiter.",
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
