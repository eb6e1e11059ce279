package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline stages
	StageRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scstat_stage_runs_total",
			Help: "Total number of pipeline stage runs",
		},
		[]string{"stage", "result"}, // "fetch" | "download" | "parse" | "gamedata", "ok" | "error"
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scstat_stage_duration_seconds",
			Help:    "Duration of pipeline stage runs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 1800},
		},
		[]string{"stage"},
	)

	ExternalMatchesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scstat_external_matches_fetched_total",
			Help: "New external match records stored by the fetch stage",
		},
		[]string{"mode"},
	)

	ReplayDownloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scstat_replay_downloads_total",
			Help: "Replay download attempts by outcome",
		},
		[]string{"result"}, // "ok" | "cached" | "http_error" | "rate_limited" | "unauthorized" | "transport"
	)

	ReplayQuotaRemaining = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scstat_replay_quota_remaining",
			Help: "Remaining replay download quota per reservoir",
		},
		[]string{"reservoir"},
	)

	ReplaysParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scstat_replays_parsed_total",
			Help: "Replay parse attempts by outcome",
		},
		[]string{"result"}, // "ok" | "BAD_MAP" | "NO_MAPPING" | "PARSING_ERROR" | "missing_file" | "error"
	)

	GameDataUpdates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scstat_gamedata_documents_updated_total",
			Help: "Game data documents fetched and stored",
		},
	)

	// Listing API circuit breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scstat_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scstat_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)
)

// SetQuota publishes the per-reservoir snapshot of the replay limiter.
func SetQuota(snapshot map[string]int) {
	for name, remaining := range snapshot {
		ReplayQuotaRemaining.WithLabelValues(name).Set(float64(remaining))
	}
}
