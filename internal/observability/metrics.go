package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline stages timed per turn.
const (
	StageNormalize  = "normalize"
	StageTranscribe = "transcribe"
	StageReply      = "reply"
	StageSynthesize = "synthesize"
	StageTurnTotal  = "turn_total"
)

// Turn outcomes.
const (
	OutcomeComplete         = "complete"
	OutcomeTranscriptFailed = "transcript_failed"
	OutcomeEmptyInput       = "empty_input"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveSessions prometheus.Gauge
	SessionEvents  *prometheus.CounterVec
	TurnOutcomes   *prometheus.CounterVec
	StageLatency   *prometheus.HistogramVec
	ProviderErrors *prometheus.CounterVec
	WSMessages     *prometheus.CounterVec
	ArtifactsSwept prometheus.Counter
	stageWindow    *stageWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active voice chat sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session events by type.",
		}, []string{"event"}),
		TurnOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_outcomes_total",
			Help:      "Finished turns by outcome.",
		}, []string{"outcome"}),
		StageLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_latency_ms",
			Help:      "Turn stage latency in milliseconds.",
			Buckets:   []float64{25, 50, 100, 250, 500, 1000, 2000, 4000, 8000, 16000},
		}, []string{"stage"}),
		ProviderErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Provider errors by provider and code.",
		}, []string{"provider", "code"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		ArtifactsSwept: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_swept_total",
			Help:      "Expired audio artifacts removed by the sweeper.",
		}),
		stageWindow: newStageWindow(512),
	}
}

// ObserveStage records d for stage in the histogram and the rolling window.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	ms := float64(d.Microseconds()) / 1000
	m.StageLatency.WithLabelValues(stage).Observe(ms)
	m.stageWindow.observe(stage, ms)
}

func (m *Metrics) ObserveSessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) ObserveOutcome(outcome string) {
	if m == nil {
		return
	}
	m.TurnOutcomes.WithLabelValues(outcome).Inc()
	m.stageWindow.outcome(outcome)
}

// ObserveIndicator counts a notable per-turn event such as a degraded reply.
func (m *Metrics) ObserveIndicator(name string) {
	if m == nil {
		return
	}
	m.stageWindow.indicator(name)
}

func (m *Metrics) ObserveProviderError(provider, code string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(provider, code).Inc()
}

func (m *Metrics) ObserveWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

func (m *Metrics) ObserveSwept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ArtifactsSwept.Add(float64(n))
}

func (m *Metrics) SnapshotTurnStages() TurnStageSnapshot {
	if m == nil {
		return newStageWindow(1).snapshot()
	}
	return m.stageWindow.snapshot()
}

func (m *Metrics) ResetTurnStages() {
	if m == nil {
		return
	}
	m.stageWindow.reset()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}
