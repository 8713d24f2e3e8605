package tasks

import (
	"context"
	"testing"
	"time"
)

func TestNewAppliesDefaults(t *testing.T) {
	e := New(nil, Config{}, nil, nil)
	if e.cfg.WorkerConcurrency != 1 {
		t.Fatalf("WorkerConcurrency default = %d, want 1", e.cfg.WorkerConcurrency)
	}
	if e.cfg.PollInterval != 500*time.Millisecond {
		t.Fatalf("PollInterval default = %v, want 500ms", e.cfg.PollInterval)
	}
	if e.cfg.ShutdownTimeout != 30*time.Second {
		t.Fatalf("ShutdownTimeout default = %v, want 30s", e.cfg.ShutdownTimeout)
	}
	if _, ok := e.metrics.(noopMetrics); !ok {
		t.Fatalf("nil metrics should fall back to noopMetrics")
	}
}

func TestRegisterHandlerBindsType(t *testing.T) {
	e := New(nil, Config{WorkerConcurrency: 2}, nil, nil)
	e.RegisterHandler("thumbnail", func(ctx context.Context, rt *RunningTask) error {
		return nil
	})
	if _, ok := e.handlers["thumbnail"]; !ok {
		t.Fatalf("handler for thumbnail was not registered")
	}
}
