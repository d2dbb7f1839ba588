// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TimingComputations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gojobgraph_timing_computations_total",
		Help: "Total number of timing analyses computed.",
	})

	TimingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gojobgraph_timing_duration_seconds",
		Help:    "Wall time of a single timing analysis.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})

	ExplorerOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gojobgraph_explorer_operations_total",
		Help: "Explorer operations, labelled by operation and result.",
	}, []string{"op", "result"})

	StoreQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gojobgraph_store_queries_total",
		Help: "Job store queries, labelled by query and result.",
	}, []string{"query", "result"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gojobgraph_http_requests_total",
		Help: "HTTP requests, labelled by method, route pattern and status.",
	}, []string{"method", "route", "status"})

	DocumentsLoaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gojobgraph_documents_loaded_total",
		Help: "Job documents loaded, labelled by result.",
	}, []string{"result"})
)

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveTiming records one timing computation. It matches the
// timing.WithObserver callback.
func ObserveTiming(d time.Duration) {
	TimingComputations.Inc()
	TimingDuration.Observe(d.Seconds())
}

// ObserveExplorer matches the explorer.WithObserver callback.
func ObserveExplorer(op string, err error) {
	ExplorerOperations.WithLabelValues(op, result(err)).Inc()
}

// ObserveStoreQuery matches the jobstore.WithQueryObserver callback.
func ObserveStoreQuery(query string, err error) {
	StoreQueries.WithLabelValues(query, result(err)).Inc()
}

func ObserveHTTPRequest(method, route string, status int) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

func ObserveDocumentLoad(err error) {
	DocumentsLoaded.WithLabelValues(result(err)).Inc()
}
