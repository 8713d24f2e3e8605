package metrics

import (
	"context"
	"strconv"
	"time"

	"photokeep/internal/database"
	"photokeep/internal/providers"
	"photokeep/internal/store"
	"photokeep/internal/vectorindex"
)

// Health is the /health response body: spec §4.9's readiness aggregation
// over the store, the vector index, and every configured provider.
type Health struct {
	Ready     bool                        `json:"ready"`
	Store     ComponentHealth             `json:"store"`
	Index     ComponentHealth             `json:"vector_index"`
	Providers map[string]ComponentHealth  `json:"providers"`
	CheckedAt time.Time                   `json:"checked_at"`
}

// ComponentHealth is one dependency's status line within Health.
type ComponentHealth struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// HealthChecker aggregates the three dependency classes spec §4.9 names
// into a single readiness verdict: "ready iff the store is reachable, the
// vector index has loaded its snapshot (or was never meant to have one
// yet), and every configured provider reports at least degraded".
type HealthChecker struct {
	db    *database.DB
	index *vectorindex.Index
	prov  providers.Set
}

func NewHealthChecker(db *database.DB, index *vectorindex.Index, prov providers.Set) *HealthChecker {
	return &HealthChecker{db: db, index: index, prov: prov}
}

func (h *HealthChecker) Check(ctx context.Context) Health {
	now := time.Now()
	result := Health{CheckedAt: now, Providers: map[string]ComponentHealth{}}

	ready := true

	if err := h.db.Health(ctx); err != nil {
		result.Store = ComponentHealth{Status: "unavailable", Detail: err.Error()}
		ready = false
	} else {
		result.Store = ComponentHealth{Status: "ready"}
	}

	if h.index == nil {
		result.Index = ComponentHealth{Status: "unavailable", Detail: "vector index not initialized"}
		ready = false
	} else {
		result.Index = ComponentHealth{Status: "ready", Detail: indexSizeDetail(h.index)}
	}

	for name, ph := range h.prov.HealthReport(ctx) {
		status := string(ph.Status)
		result.Providers[name] = ComponentHealth{Status: status, Detail: ph.Diagnostics}
		if ph.Status == providers.StatusUnavailable {
			ready = false
		}
	}

	result.Ready = ready
	return result
}

func indexSizeDetail(idx *vectorindex.Index) string {
	return "entries=" + strconv.Itoa(idx.Size())
}

// Sampler periodically pulls point-in-time gauges the engine does not push
// (queue depth, index size, person count) into Metrics, since those reflect
// total state rather than a single dispatch event.
type Sampler struct {
	metrics *Metrics
	tasks   *store.TaskRepository
	persons *store.PersonRepository
	index   *vectorindex.Index
	period  time.Duration
}

func NewSampler(m *Metrics, tasks *store.TaskRepository, persons *store.PersonRepository, index *vectorindex.Index, period time.Duration) *Sampler {
	if period <= 0 {
		period = 15 * time.Second
	}
	return &Sampler{metrics: m, tasks: tasks, persons: persons, index: index, period: period}
}

// Run blocks, sampling on an interval until ctx is cancelled. Intended to be
// launched in its own goroutine from cmd/server alongside the task engine.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	s.sampleOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sampleOnce(ctx)
		}
	}
}

func (s *Sampler) sampleOnce(ctx context.Context) {
	if s.tasks != nil {
		if pending, err := s.tasks.CountByState(ctx, store.TaskPending); err == nil {
			s.metrics.SetTasksPending(float64(pending))
		}
		if running, err := s.tasks.CountByState(ctx, store.TaskRunning); err == nil {
			s.metrics.SetTasksRunning(float64(running))
		}
	}
	if s.index != nil {
		s.metrics.SetVectorIndexSize(float64(s.index.Size()))
	}
	if s.persons != nil {
		if active, err := s.persons.ListActive(ctx); err == nil {
			s.metrics.SetPersonsTotal(float64(len(active)))
		}
	}
}
