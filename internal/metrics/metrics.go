// Package metrics is C9: the Prometheus registry the Task Engine, Vector
// Index, and Person Clusterer report into, plus the /health readiness
// aggregator of spec §4.9. Grounded on hortator-ai-Hortator's
// internal/controller/metrics.go (package-level prometheus.New*Vec
// registered once in a constructor), generalized from a single init()-time
// global registry to an instance so tests can register independent
// registries without colliding on prometheus.DefaultRegisterer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the concrete prometheus-backed implementation of
// internal/tasks.Metrics plus the additional gauges spec §4.5/§4.9 name
// that the task engine itself has no reason to know about.
type Metrics struct {
	registry *prometheus.Registry

	tasksProcessedTotal      *prometheus.CounterVec
	tasksRetriedTotal        *prometheus.CounterVec
	tasksDeadTotal           *prometheus.CounterVec
	taskDurationSeconds      *prometheus.HistogramVec
	embeddingsGeneratedTotal *prometheus.CounterVec

	tasksPending     prometheus.Gauge
	tasksRunning     prometheus.Gauge
	vectorIndexSize  prometheus.Gauge
	personsTotal     prometheus.Gauge
}

// New builds a Metrics with its own registry, so cmd/server's /metrics
// handler and any test in this package never touch the global
// prometheus.DefaultRegisterer.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		tasksProcessedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photokeep_tasks_processed_total",
			Help: "Tasks that finished dispatch, by type and result (done/failed/dead/cancelled).",
		}, []string{"type", "result"}),

		tasksRetriedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photokeep_tasks_retried_total",
			Help: "Tasks rescheduled for retry, by type.",
		}, []string{"type"}),

		tasksDeadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photokeep_tasks_dead_total",
			Help: "Tasks dead-lettered, by type.",
		}, []string{"type"}),

		taskDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "photokeep_task_duration_seconds",
			Help:    "Handler wall-clock duration per task type.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14), // 50ms .. ~7min
		}, []string{"type"}),

		embeddingsGeneratedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photokeep_embeddings_generated_total",
			Help: "Embeddings produced by modality (image/face/text).",
		}, []string{"modality"}),

		tasksPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "photokeep_tasks_pending",
			Help: "Current tasks in the pending state.",
		}),
		tasksRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "photokeep_tasks_running",
			Help: "Current tasks in the running state.",
		}),
		vectorIndexSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "photokeep_vector_index_size",
			Help: "Entries currently held in the in-memory vector index.",
		}),
		personsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "photokeep_persons_total",
			Help: "Active (non-merged, non-deleted) persons known to the clusterer.",
		}),
	}

	m.registry.MustRegister(
		m.tasksProcessedTotal, m.tasksRetriedTotal, m.tasksDeadTotal,
		m.taskDurationSeconds, m.embeddingsGeneratedTotal,
		m.tasksPending, m.tasksRunning, m.vectorIndexSize, m.personsTotal,
	)
	return m
}

// Registry exposes the underlying registry to the /metrics HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// The methods below satisfy internal/tasks.Metrics.

func (m *Metrics) TasksProcessedInc(taskType string, result string) {
	m.tasksProcessedTotal.WithLabelValues(taskType, result).Inc()
}

func (m *Metrics) TasksRetriedInc(taskType string) {
	m.tasksRetriedTotal.WithLabelValues(taskType).Inc()
}

func (m *Metrics) TasksDeadInc(taskType string) {
	m.tasksDeadTotal.WithLabelValues(taskType).Inc()
}

func (m *Metrics) TaskDurationObserve(taskType string, seconds float64) {
	m.taskDurationSeconds.WithLabelValues(taskType).Observe(seconds)
}

func (m *Metrics) EmbeddingsGeneratedInc(modality string) {
	m.embeddingsGeneratedTotal.WithLabelValues(modality).Inc()
}

// SetTasksPending and the gauges below are pulled on demand by a periodic
// sampler in cmd/server rather than pushed from the engine, since the
// engine has no reason to know the total queue depth of task types it did
// not just dispatch.
func (m *Metrics) SetTasksPending(n float64)    { m.tasksPending.Set(n) }
func (m *Metrics) SetTasksRunning(n float64)    { m.tasksRunning.Set(n) }
func (m *Metrics) SetVectorIndexSize(n float64) { m.vectorIndexSize.Set(n) }
func (m *Metrics) SetPersonsTotal(n float64)    { m.personsTotal.Set(n) }
