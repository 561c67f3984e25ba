package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "craftflow"

var (
	// NodeTransitions — переходы автоматов вершин по типу вершины и новому состоянию.
	NodeTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "node_transitions_total",
		Help:      "State machine transitions observed by nodes.",
	}, []string{"type", "state"})

	// NodeExecuteDuration — длительность Execute до complete.
	NodeExecuteDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "node_execute_duration_seconds",
		Help:      "Time from RUN to complete for node executions.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 4, 10),
	}, []string{"type"})

	// NodeExecuteTimeouts — выполнения, не дождавшиеся complete.
	NodeExecuteTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "node_execute_timeouts_total",
		Help:      "Node executions that hit the execute timeout.",
	}, []string{"type"})

	// DataflowCache — обращения к кэшу выходов: result = hit | miss.
	DataflowCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dataflow_cache_total",
		Help:      "Dataflow output cache lookups.",
	}, []string{"result"})

	// PersistenceWrites — записи состояния: kind = context | execution_node | trigger.
	PersistenceWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "persistence_writes_total",
		Help:      "State writes issued by nodes.",
	}, []string{"kind", "result"})

	// Executions — завершённые выполнения по итоговому статусу.
	Executions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "executions_total",
		Help:      "Workflow executions by final status.",
	}, []string{"status"})

	// Steps — обработанные шаги выполнения: result = executed | skipped | failed | locked.
	Steps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "execution_steps_total",
		Help:      "Execution steps handled by runners.",
	}, []string{"result"})
)

// Result возвращает метку результата для счётчиков.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
