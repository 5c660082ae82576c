// Package metrics holds the process-wide prometheus collectors and the
// /metrics exposition handler.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hrvault"

const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

var (
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests handled, labeled by method, route and status.",
	}, []string{"method", "route", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency, labeled by method and route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	panics = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "panics_recovered_total",
		Help:      "Handler panics caught by the recovery middleware.",
	})

	uploads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "files",
		Name:      "uploads_total",
		Help:      "Heart-rate export uploads, labeled by outcome.",
	}, []string{"outcome"})

	extractionFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "files",
		Name:      "extraction_failures_total",
		Help:      "Uploads rejected because the export was malformed.",
	})

	samplesExtracted = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "files",
		Name:      "samples_extracted",
		Help:      "Number of non-null samples kept per processed export.",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
	})

	logins = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "identity",
		Name:      "logins_total",
		Help:      "Login attempts, labeled by outcome.",
	}, []string{"outcome"})

	eventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Upload events handed to the broker, labeled by outcome.",
	}, []string{"outcome"})

	dataAccess = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "audit",
		Name:      "data_access_total",
		Help:      "Audited accesses to patient data, labeled by resource and action.",
	}, []string{"resource", "action"})
)

func init() {
	prometheus.MustRegister(
		httpRequests, httpDuration, panics,
		uploads, extractionFailures, samplesExtracted,
		logins, eventsPublished, dataAccess,
	)
}

// Handler serves the default registry in the prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequest records one handled HTTP request.
func ObserveRequest(method, route, status string, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, route, status).Inc()
	httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func RecordPanic() {
	panics.Inc()
}

// RecordUpload counts an upload with the given outcome.
func RecordUpload(outcome string) {
	uploads.WithLabelValues(outcome).Inc()
}

// RecordExtractionFailure counts a malformed export.
func RecordExtractionFailure() {
	extractionFailures.Inc()
}

func RecordSamples(n int) {
	samplesExtracted.Observe(float64(n))
}

// RecordLogin counts a login attempt. Outcome is a short reason code.
func RecordLogin(outcome string) {
	logins.WithLabelValues(outcome).Inc()
}

func RecordEventPublished(outcome string) {
	eventsPublished.WithLabelValues(outcome).Inc()
}

// RecordDataAccess counts one audited access to patient data.
func RecordDataAccess(resource, action string) {
	dataAccess.WithLabelValues(resource, action).Inc()
}
