package ingest

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"photokeep/internal/config"
	"photokeep/internal/store"
)

func testScanner(t *testing.T) *Scanner {
	t.Helper()
	cfg := &config.Config{
		IngestExtensions:      []string{".jpg", ".png"},
		IngestMinBytes:        10,
		IngestMaxBytes:        1 << 20,
		MaxPendingBackpressure: 10000,
	}
	return New(cfg, nil, nil, nil, nil)
}

func direntFor(t *testing.T, path string) fs.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() == filepath.Base(path) {
			return e
		}
	}
	t.Fatalf("entry for %s not found", path)
	return nil
}

func TestEligibleFiltersByExtension(t *testing.T) {
	s := testScanner(t)
	dir := t.TempDir()

	jpg := filepath.Join(dir, "a.jpg")
	txt := filepath.Join(dir, "a.txt")
	writeFile(t, jpg, 100)
	writeFile(t, txt, 100)

	if !s.eligible(jpg, direntFor(t, jpg)) {
		t.Error("expected .jpg to be eligible")
	}
	if s.eligible(txt, direntFor(t, txt)) {
		t.Error("expected .txt to be ineligible")
	}
}

func TestEligibleFiltersBySize(t *testing.T) {
	s := testScanner(t)
	dir := t.TempDir()

	tiny := filepath.Join(dir, "tiny.jpg")
	huge := filepath.Join(dir, "huge.jpg")
	ok := filepath.Join(dir, "ok.jpg")
	writeFile(t, tiny, 1)
	writeFile(t, huge, 2<<20)
	writeFile(t, ok, 100)

	if s.eligible(tiny, direntFor(t, tiny)) {
		t.Error("expected file below IngestMinBytes to be ineligible")
	}
	if s.eligible(huge, direntFor(t, huge)) {
		t.Error("expected file above IngestMaxBytes to be ineligible")
	}
	if !s.eligible(ok, direntFor(t, ok)) {
		t.Error("expected file within bounds to be eligible")
	}
}

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	data := make([]byte, size)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDerivationTasksCoversFourHandlers(t *testing.T) {
	s := testScanner(t)
	assetID := uuid.New()

	tasks := s.derivationTasks(assetID)
	if len(tasks) != 4 {
		t.Fatalf("expected 4 derivation tasks, got %d", len(tasks))
	}

	want := map[store.TaskType]bool{
		store.TaskThumbnail:  true,
		store.TaskImageEmbed: true,
		store.TaskCaption:    true,
		store.TaskFaceDetect: true,
	}
	for _, task := range tasks {
		if !want[task.Type] {
			t.Errorf("unexpected task type %s", task.Type)
		}
		if task.IdempotencyKey == nil || *task.IdempotencyKey == "" {
			t.Errorf("task %s missing idempotency key", task.Type)
		}
	}
}

func TestTaskPayloadEmbedsAssetID(t *testing.T) {
	id := uuid.New()
	payload := taskPayload(id)
	if !strings.Contains(string(payload), id.String()) {
		t.Errorf("payload %s does not contain asset id %s", payload, id)
	}
}
