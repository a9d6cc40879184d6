package telemetry

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/leafwise/leafwise/config"
)

// Telemetry records turn and capability events, keeps aggregate counters,
// and mirrors them into prometheus metrics.
type Telemetry struct {
	config  config.TelemetryConfig
	logger  *log.Logger
	metrics *Metrics

	turnsTotal    *prometheus.CounterVec
	turnDuration  prometheus.Histogram
	capTotal      *prometheus.CounterVec
	capDuration   *prometheus.HistogramVec
	completeness  prometheus.Histogram
	feedbackScore prometheus.Histogram
}

// Metrics holds aggregate orchestration metrics.
type Metrics struct {
	mu sync.RWMutex

	TotalTurns      int64
	SuccessfulTurns int64
	FailedTurns     int64
	AverageTurnTime time.Duration

	CapabilityExecutions   map[string]int64
	CapabilitySuccessRates map[string]float64
	CapabilityAverageTimes map[string]time.Duration

	TotalTokens int64
	TotalCost   float64
}

// TurnEvent describes one completed turn.
type TurnEvent struct {
	TurnID           string
	Strategy         string
	Intent           string
	Duration         time.Duration
	Success          bool
	Error            string
	Completeness     float64
	CapabilitiesUsed []string
	TokensUsed       int64
	Cost             float64
}

// CapabilityEvent describes one capability execution within a turn.
type CapabilityEvent struct {
	TurnID     string
	Capability string
	Duration   time.Duration
	Success    bool
	Error      string
	Confidence float64
}

// New creates a telemetry instance and registers its prometheus collectors
// on the default registry.
func New(cfg config.TelemetryConfig) *Telemetry {
	return NewWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewWithRegistry registers collectors on the given registerer. Tests use a
// private registry to avoid duplicate registration.
func NewWithRegistry(cfg config.TelemetryConfig, reg prometheus.Registerer) *Telemetry {
	factory := promauto.With(reg)
	t := &Telemetry{
		config: cfg,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		metrics: &Metrics{
			CapabilityExecutions:   make(map[string]int64),
			CapabilitySuccessRates: make(map[string]float64),
			CapabilityAverageTimes: make(map[string]time.Duration),
		},
		turnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leafwise_turns_total",
			Help: "Processed turns by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		turnDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "leafwise_turn_duration_seconds",
			Help:    "End-to-end turn processing time.",
			Buckets: prometheus.DefBuckets,
		}),
		capTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leafwise_capability_executions_total",
			Help: "Capability executions by capability and outcome.",
		}, []string{"capability", "outcome"}),
		capDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "leafwise_capability_duration_seconds",
			Help:    "Capability execution time.",
			Buckets: prometheus.DefBuckets,
		}, []string{"capability"}),
		completeness: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "leafwise_turn_completeness",
			Help:    "Completeness score per turn.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		feedbackScore: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "leafwise_feedback_score",
			Help:    "User feedback scores (0-100).",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
	}
	return t
}

// RecordTurn records a completed turn.
func (t *Telemetry) RecordTurn(ctx context.Context, event TurnEvent) {
	if !t.config.Enabled {
		return
	}

	outcome := "success"
	if !event.Success {
		outcome = "failure"
	}
	t.turnsTotal.WithLabelValues(event.Strategy, outcome).Inc()
	t.turnDuration.Observe(event.Duration.Seconds())
	t.completeness.Observe(event.Completeness)

	t.metrics.mu.Lock()
	defer t.metrics.mu.Unlock()

	t.metrics.TotalTurns++
	if event.Success {
		t.metrics.SuccessfulTurns++
	} else {
		t.metrics.FailedTurns++
	}
	if t.metrics.TotalTurns == 1 {
		t.metrics.AverageTurnTime = event.Duration
	} else {
		total := t.metrics.AverageTurnTime * time.Duration(t.metrics.TotalTurns-1)
		t.metrics.AverageTurnTime = (total + event.Duration) / time.Duration(t.metrics.TotalTurns)
	}
	for _, c := range event.CapabilitiesUsed {
		t.metrics.CapabilityExecutions[c]++
	}
	t.metrics.TotalTokens += event.TokensUsed
	if t.config.CostTracking {
		t.metrics.TotalCost += event.Cost
	}

	t.logger.Printf("Turn: ID=%s, Strategy=%s, Intent=%s, Success=%t, Duration=%v, Completeness=%.2f",
		event.TurnID, event.Strategy, event.Intent, event.Success, event.Duration, event.Completeness)
}

// RecordCapability records one capability execution.
func (t *Telemetry) RecordCapability(ctx context.Context, event CapabilityEvent) {
	if !t.config.Enabled {
		return
	}

	outcome := "success"
	if !event.Success {
		outcome = "failure"
	}
	t.capTotal.WithLabelValues(event.Capability, outcome).Inc()
	t.capDuration.WithLabelValues(event.Capability).Observe(event.Duration.Seconds())

	t.metrics.mu.Lock()
	defer t.metrics.mu.Unlock()

	t.metrics.CapabilityExecutions[event.Capability]++
	executions := t.metrics.CapabilityExecutions[event.Capability]

	successes := t.metrics.CapabilitySuccessRates[event.Capability] * float64(executions-1)
	if event.Success {
		successes++
	}
	t.metrics.CapabilitySuccessRates[event.Capability] = successes / float64(executions)

	currentAvg := t.metrics.CapabilityAverageTimes[event.Capability]
	if executions == 1 {
		t.metrics.CapabilityAverageTimes[event.Capability] = event.Duration
	} else {
		total := currentAvg * time.Duration(executions-1)
		t.metrics.CapabilityAverageTimes[event.Capability] = (total + event.Duration) / time.Duration(executions)
	}

	if !event.Success {
		t.logger.Printf("Capability: %s failed after %v: %s", event.Capability, event.Duration, event.Error)
	}
}

// RecordFeedback records a user feedback score.
func (t *Telemetry) RecordFeedback(ctx context.Context, score int) {
	if !t.config.Enabled {
		return
	}
	t.feedbackScore.Observe(float64(score))
}

// Snapshot returns a copy of the aggregate metrics.
func (t *Telemetry) Snapshot() Metrics {
	t.metrics.mu.RLock()
	defer t.metrics.mu.RUnlock()

	snap := Metrics{
		TotalTurns:             t.metrics.TotalTurns,
		SuccessfulTurns:        t.metrics.SuccessfulTurns,
		FailedTurns:            t.metrics.FailedTurns,
		AverageTurnTime:        t.metrics.AverageTurnTime,
		TotalTokens:            t.metrics.TotalTokens,
		TotalCost:              t.metrics.TotalCost,
		CapabilityExecutions:   make(map[string]int64, len(t.metrics.CapabilityExecutions)),
		CapabilitySuccessRates: make(map[string]float64, len(t.metrics.CapabilitySuccessRates)),
		CapabilityAverageTimes: make(map[string]time.Duration, len(t.metrics.CapabilityAverageTimes)),
	}
	for k, v := range t.metrics.CapabilityExecutions {
		snap.CapabilityExecutions[k] = v
	}
	for k, v := range t.metrics.CapabilitySuccessRates {
		snap.CapabilitySuccessRates[k] = v
	}
	for k, v := range t.metrics.CapabilityAverageTimes {
		snap.CapabilityAverageTimes[k] = v
	}
	return snap
}
