package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the routing core.
// A nil *Metrics is valid and drops every observation, so callers
// never have to guard the disabled case.
type Metrics struct {
	agentRegistrations prometheus.Counter
	activeAgents       prometheus.Gauge
	routingDecisions   *prometheus.CounterVec
	toolSelections     *prometheus.CounterVec
	selectionMisses    prometheus.Counter
	toolExecutions     *prometheus.CounterVec
	toolExecutionTime  *prometheus.HistogramVec
	sessionsActive     prometheus.Gauge
	gcSweeps           prometheus.Counter
	gcReaped           prometheus.Counter
}

// New registers the instrument set with registerer.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Metrics{
		agentRegistrations: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "switchboard_agent_registrations_total",
				Help: "Total number of agent registrations",
			},
		),
		activeAgents: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "switchboard_active_agents",
				Help: "Current number of agents with active status",
			},
		),
		routingDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switchboard_routing_decisions_total",
				Help: "Total number of routing decisions",
			},
			[]string{"capability", "outcome"},
		),
		toolSelections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switchboard_tool_selections_total",
				Help: "Total number of tool selections",
			},
			[]string{"tool"},
		),
		selectionMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "switchboard_tool_selection_misses_total",
				Help: "Tools skipped for a failed confidence check plus rounds where none met the floor",
			},
		),
		toolExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switchboard_tool_executions_total",
				Help: "Total number of tool executions",
			},
			[]string{"tool", "outcome"},
		),
		toolExecutionTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "switchboard_tool_execution_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"tool"},
		),
		sessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "switchboard_sessions_active",
				Help: "Current number of live sessions (memory backend)",
			},
		),
		gcSweeps: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "switchboard_gc_sweeps_total",
				Help: "Total number of session GC sweeps",
			},
		),
		gcReaped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "switchboard_gc_reaped_total",
				Help: "Total number of sessions removed by GC",
			},
		),
	}
}

// ObserveRegistration counts one agent registration.
func (m *Metrics) ObserveRegistration() {
	if m == nil {
		return
	}
	m.agentRegistrations.Inc()
}

// SetActiveAgents records the current active-agent count.
func (m *Metrics) SetActiveAgents(count int) {
	if m == nil {
		return
	}
	m.activeAgents.Set(float64(count))
}

// ObserveRoutingDecision counts one routing decision per capability.
func (m *Metrics) ObserveRoutingDecision(capability string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.routingDecisions.WithLabelValues(capability, outcome).Inc()
}

// ObserveToolSelection counts one successful tool selection.
func (m *Metrics) ObserveToolSelection(tool string) {
	if m == nil {
		return
	}
	m.toolSelections.WithLabelValues(tool).Inc()
}

// ObserveSelectionMiss counts a selection round that produced no tool.
func (m *Metrics) ObserveSelectionMiss() {
	if m == nil {
		return
	}
	m.selectionMisses.Inc()
}

// ObserveToolExecution records one tool execution and its duration.
func (m *Metrics) ObserveToolExecution(tool string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.toolExecutions.WithLabelValues(tool, outcome).Inc()
	m.toolExecutionTime.WithLabelValues(tool).Observe(duration.Seconds())
}

// SetActiveSessions records the current live-session count.
func (m *Metrics) SetActiveSessions(count int) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(float64(count))
}

// ObserveSweep records one GC sweep and how many sessions it removed.
func (m *Metrics) ObserveSweep(reaped int) {
	if m == nil {
		return
	}
	m.gcSweeps.Inc()
	m.gcReaped.Add(float64(reaped))
}
