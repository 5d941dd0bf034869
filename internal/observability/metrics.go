package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. Each Metrics owns its registry
// so several instances can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry
	phases   *phaseWindow

	Turns            *prometheus.CounterVec
	TurnDuration     prometheus.Histogram
	IntentsCollected prometheus.Histogram
	OracleCalls      *prometheus.CounterVec
	ContractOps      *prometheus.CounterVec
	MemoryUpdates    *prometheus.CounterVec
	WSMessages       *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		phases:   newPhaseWindow(256),
		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Executed turns by outcome.",
		}, []string{"outcome"}),
		TurnDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_ms",
			Help:      "Wall time of a full turn in milliseconds.",
			Buckets:   []float64{500, 1000, 2500, 5000, 10000, 30000, 60000, 120000, 240000},
		}),
		IntentsCollected: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "intents_collected",
			Help:      "Intents that survived collection per turn.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		}),
		OracleCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oracle_calls_total",
			Help:      "Oracle calls by caller role and outcome.",
		}, []string{"role", "outcome"}),
		ContractOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contract_ops_total",
			Help:      "Contract operations by action and outcome.",
		}, []string{"action", "outcome"}),
		MemoryUpdates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_updates_total",
			Help:      "Per-actor memory consolidations by outcome.",
		}, []string{"outcome"}),
		WSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
	}
}

func (m *Metrics) ObserveTurn(outcome string, d time.Duration) {
	m.Turns.WithLabelValues(outcome).Inc()
	m.TurnDuration.Observe(float64(d.Milliseconds()))
	m.phases.observe(TotalPhase, d)
}

// ObservePhase records how long one turn phase took.
func (m *Metrics) ObservePhase(phase string, d time.Duration) {
	m.phases.observe(phase, d)
}

// SetPhaseBudgets replaces the latency budgets the phase snapshot is judged against.
func (m *Metrics) SetPhaseBudgets(b PhaseBudgets) {
	m.phases.setBudgets(b)
}

// ObserveIndicator counts a notable event under a reason, e.g. ("intent_dropped", "timeout").
func (m *Metrics) ObserveIndicator(name, reason string) {
	m.phases.count(name, reason)
}

func (m *Metrics) SnapshotPhases() PhaseSnapshot {
	return m.phases.snapshot()
}

// Handler serves this instance's registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
