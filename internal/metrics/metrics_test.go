package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTasksProcessedIncIncrementsLabeledCounter(t *testing.T) {
	m := New()
	m.TasksProcessedInc("thumbnail", "done")
	m.TasksProcessedInc("thumbnail", "done")
	m.TasksProcessedInc("image_embed", "failed")

	got := testutil.ToFloat64(m.tasksProcessedTotal.WithLabelValues("thumbnail", "done"))
	if got != 2 {
		t.Errorf("tasks_processed_total{thumbnail,done} = %v, want 2", got)
	}
}

func TestEmbeddingsGeneratedIncByModality(t *testing.T) {
	m := New()
	m.EmbeddingsGeneratedInc("image")
	m.EmbeddingsGeneratedInc("face")
	m.EmbeddingsGeneratedInc("image")

	if got := testutil.ToFloat64(m.embeddingsGeneratedTotal.WithLabelValues("image")); got != 2 {
		t.Errorf("embeddings_generated_total{image} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.embeddingsGeneratedTotal.WithLabelValues("face")); got != 1 {
		t.Errorf("embeddings_generated_total{face} = %v, want 1", got)
	}
}

func TestGaugesReflectLastSample(t *testing.T) {
	m := New()
	m.SetTasksPending(7)
	m.SetVectorIndexSize(1200)
	m.SetPersonsTotal(42)

	if got := testutil.ToFloat64(m.tasksPending); got != 7 {
		t.Errorf("tasks_pending = %v, want 7", got)
	}
	if got := testutil.ToFloat64(m.vectorIndexSize); got != 1200 {
		t.Errorf("vector_index_size = %v, want 1200", got)
	}
	if got := testutil.ToFloat64(m.personsTotal); got != 42 {
		t.Errorf("persons_total = %v, want 42", got)
	}
}

func TestHandlerExposesRegisteredMetricNames(t *testing.T) {
	m := New()
	m.TasksProcessedInc("caption", "done")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), "photokeep_tasks_processed_total") {
		t.Error("expected exposition text to contain photokeep_tasks_processed_total")
	}
}
