package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	captionReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Name:      "caption_requests_total",
			Help:      "Total model calls by model type and result",
		},
		[]string{"model_type", "result"},
	)

	captionLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sage",
			Name:      "caption_request_duration_seconds",
			Help:      "Duration of model calls by model type",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"model_type"},
	)

	retriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sage",
			Name:      "caption_retries_total",
			Help:      "Total number of caption retries",
		},
	)

	ingestedFiles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Name:      "ingested_files_total",
			Help:      "Files handled by the ingestion queue by result (copied, failed, sidecar)",
		},
		[]string{"result"},
	)

	batchRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Name:      "batch_runs_total",
			Help:      "Batch runs by terminal status",
		},
		[]string{"status"},
	)

	registerOnce sync.Once
)

// Init registers collectors. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(captionReqs, captionLatency, retriesTotal, ingestedFiles, batchRuns)
	})
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveCaption(modelType, result string, dur time.Duration) {
	captionReqs.WithLabelValues(modelType, result).Inc()
	captionLatency.WithLabelValues(modelType).Observe(dur.Seconds())
}

func IncRetry() { retriesTotal.Inc() }
func IncIngested(result string) { ingestedFiles.WithLabelValues(result).Inc() }
func IncBatchRun(status string) { batchRuns.WithLabelValues(status).Inc() }
