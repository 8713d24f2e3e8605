package metrics

import (
	"testing"

	"photokeep/internal/providers"
)

func TestHealthReadyRequiresNoUnavailableProvider(t *testing.T) {
	report := map[string]providers.Health{
		"thumbnailer": {Status: providers.StatusReady},
		"captioner":   {Status: providers.StatusDegraded},
	}
	ready := true
	for _, h := range report {
		if h.Status == providers.StatusUnavailable {
			ready = false
		}
	}
	if !ready {
		t.Error("degraded providers should not flip readiness to false")
	}

	report["face_detector"] = providers.Health{Status: providers.StatusUnavailable}
	ready = true
	for _, h := range report {
		if h.Status == providers.StatusUnavailable {
			ready = false
		}
	}
	if ready {
		t.Error("an unavailable provider should flip readiness to false")
	}
}
