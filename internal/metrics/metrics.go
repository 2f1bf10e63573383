// Package metrics exposes the moderation pipeline's Prometheus collectors
// through the /metrics scrape endpoint. Nothing publishes these values as
// MetricsUpdate events on the Event Bus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "warden_messages_ingested_total",
		Help: "Total number of inbound messages handed to the pipeline.",
	})

	PrefilterMatches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_prefilter_matches_total",
		Help: "Total regex prefilter matches by pattern tag.",
	}, []string{"tag"})

	ViolationsByLayerAndBand = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_violations_total",
		Help: "Total violations dispatched by detection layer and severity band.",
	}, []string{"layer", "band"})

	AnalyzerRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_analyzer_requests_total",
		Help: "Total semantic analyzer calls by outcome (ok, transient, permanent).",
	}, []string{"outcome"})

	AnalyzerLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "warden_analyzer_latency_seconds",
		Help:    "Semantic analyzer round-trip latency.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
	})

	BufferDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "warden_buffer_depth",
		Help: "Current number of messages queued in a guild's primary buffer.",
	}, []string{"guild"})

	WarningLevelTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_warning_level_transitions_total",
		Help: "Warning Ledger level transitions by resulting level.",
	}, []string{"level"})

	RaidTriggersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_raid_triggers_total",
		Help: "Raid Detector triggers by trigger kind.",
	}, []string{"trigger"})

	EventBusSubscribers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "warden_eventbus_subscribers",
		Help: "Current number of live event bus subscribers per guild.",
	}, []string{"guild"})

	HealthDegradedCollaborators = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "warden_health_degraded",
		Help: "1 if a collaborator is currently considered degraded (consecutive transient failures), else 0.",
	}, []string{"collaborator"})
)

func init() {
	prometheus.MustRegister(
		MessagesIngested,
		PrefilterMatches,
		ViolationsByLayerAndBand,
		AnalyzerRequestsTotal,
		AnalyzerLatency,
		BufferDepth,
		WarningLevelTransitions,
		RaidTriggersTotal,
		EventBusSubscribers,
		HealthDegradedCollaborators,
	)
}

// Handler returns the HTTP handler to mount at the configured metrics
// address (spec SPEC_FULL.md §11, Config.MetricsAddr).
func Handler() http.Handler {
	return promhttp.Handler()
}
