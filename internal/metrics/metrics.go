// Package metrics defines the Prometheus collectors shared by the web tier and
// the agent runtime.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chat"

// LatencyBuckets covers sub-second cache hits up to multi-minute agent turns.
var LatencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13, 21, 34, 60, 120, 300,
}

var (
	// RuntimeInvocations counts agent runtime invocations by outcome.
	RuntimeInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runtime_invocations_total",
			Help:      "Total number of agent runtime invocations",
		},
		[]string{"outcome"},
	)

	// RuntimeInvocationLatency tracks end-to-end invocation latency.
	RuntimeInvocationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "runtime_invocation_duration_seconds",
			Help:      "Agent runtime invocation latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"outcome"},
	)

	// SessionBindings counts binding attempts on the agent container.
	SessionBindings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_bindings_total",
			Help:      "Session binding attempts by result (created, reused, mismatch, failed)",
		},
		[]string{"result"},
	)

	// AgentTurns counts turns executed by the agent process.
	AgentTurns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_turns_total",
			Help:      "Agent turns by outcome",
		},
		[]string{"outcome"},
	)

	// ToolCalls counts tool executions by tool name and status.
	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool executions by tool and status",
		},
		[]string{"tool", "status"},
	)

	// MemoryOperations counts durable memory calls by backend, operation and outcome.
	MemoryOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_operations_total",
			Help:      "Durable memory operations",
		},
		[]string{"backend", "op", "outcome"},
	)
)

// Outcome maps an error to the label used by the collectors above.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
