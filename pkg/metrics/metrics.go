// Package metrics exposes CAKE's operational counters and histograms via
// the standard Prometheus client, so an operator's existing scraping
// setup picks CAKE up without custom tooling.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InterventionsTotal counts rendered interventions by error kind and
	// severity.
	InterventionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cake_interventions_total",
		Help: "Total interventions delivered to the supervised agent.",
	}, []string{"kind", "severity"})

	// ErrorsPreventedTotal counts signatures whose outcome after
	// intervention was marked successful, i.e. did not recur.
	ErrorsPreventedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cake_errors_prevented_total",
		Help: "Total error signatures that did not recur after an intervention.",
	})

	// ResponseLatencySeconds measures end-to-end detect-to-intervene
	// latency.
	ResponseLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cake_response_latency_seconds",
		Help:    "Latency from event detection to intervention delivery.",
		Buckets: prometheus.DefBuckets,
	})

	// DBConnectionsActive reports the recall store's open connection
	// count.
	DBConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cake_db_connections_active",
		Help: "Open connections held by the recall store.",
	})

	// VoiceSimilarityScore records the Voice Gate's similarity score for
	// every validated candidate, approved or not.
	VoiceSimilarityScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cake_voice_similarity_score",
		Help:    "Voice Gate similarity score against the reference corpus.",
		Buckets: []float64{0.5, 0.7, 0.8, 0.85, 0.9, 0.95, 0.98, 1.0},
	})

	// InterceptorDecisionsTotal counts command interceptor verdicts by
	// action and decision source.
	InterceptorDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cake_interceptor_decisions_total",
		Help: "Total command interceptor decisions by action and source.",
	}, []string{"action", "source"})
)
