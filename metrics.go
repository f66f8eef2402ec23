package gqlmock

import (
	"net/http"
	"net/http/pprof"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// promOperationsIntercepted counts operations intercepted by a backend
	promOperationsIntercepted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "operations_intercepted_total",
			Help: "A counter of intercepted operations",
		},
		[]string{"kind"},
	)

	// promOperationsFlushed counts results delivered to intercepted operations
	promOperationsFlushed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "operations_flushed_total",
			Help: "A counter of results delivered to intercepted operations",
		},
		[]string{"outcome"},
	)

	// promOpenOperations is a gauge of operations waiting for a result
	promOpenOperations = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "open_operations",
		Help: "A gauge of operations waiting for a result",
	})

	// promHTTPRequestCounter is a counter for requests to the wrapped handler
	promHTTPRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_api_requests_total",
			Help: "A counter for served requests",
		},
		[]string{"code", "transport"},
	)

	// promHTTPResponseDurations is a histogram of request latencies
	promHTTPResponseDurations = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_duration_seconds",
			Help:    "A histogram of request latencies, websocket connections included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"transport"},
	)

	// promHTTPRequestSizes is a histogram of request sizes for requests
	promHTTPRequestSizes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_size_bytes",
			Help:    "A histogram of request sizes for requests",
			Buckets: prometheus.ExponentialBuckets(128, 2, 10),
		},
		[]string{},
	)

	// promHTTPResponseSizes is a histogram of response sizes for responses.
	promHTTPResponseSizes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "A histogram of response sizes for responses",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 10),
		},
		[]string{},
	)

	registerOnce sync.Once
)

// RegisterMetrics register the prometheus metrics. It is safe to call more
// than once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(promOperationsIntercepted)
		prometheus.MustRegister(promOperationsFlushed)
		prometheus.MustRegister(promOpenOperations)
		prometheus.MustRegister(promHTTPRequestCounter)
		prometheus.MustRegister(promHTTPResponseDurations)
		prometheus.MustRegister(promHTTPRequestSizes)
		prometheus.MustRegister(promHTTPResponseSizes)
	})
}

// NewMetricsHandler returns a new Prometheus metrics handler.
func NewMetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/debug/pprof/", pprof.Index)

	return mux
}
