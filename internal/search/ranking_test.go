package search

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"photokeep/internal/config"
	"photokeep/internal/store"
)

func TestRecencyDecayRecentIsCloseToOne(t *testing.T) {
	now := time.Now()
	takenAt := now.Add(-1 * time.Hour)
	d := recencyDecay(&takenAt, now, 24*365)
	if d <= 0.99 || d > 1 {
		t.Errorf("expected near-1 decay for a 1h-old photo with a year-scale tau, got %f", d)
	}
}

func TestRecencyDecayOldApproachesZero(t *testing.T) {
	now := time.Now()
	takenAt := now.Add(-10 * 365 * 24 * time.Hour)
	d := recencyDecay(&takenAt, now, 24*30)
	if d > 0.01 {
		t.Errorf("expected near-0 decay for a 10-year-old photo with a month-scale tau, got %f", d)
	}
}

func TestRecencyDecayMissingTakenAtIsZero(t *testing.T) {
	if d := recencyDecay(nil, time.Now(), 100); d != 0 {
		t.Errorf("expected 0 decay for missing taken_at, got %f", d)
	}
}

func TestRecencyDecayNeverNegativeForFutureTimestamp(t *testing.T) {
	now := time.Now()
	future := now.Add(1 * time.Hour)
	d := recencyDecay(&future, now, 24)
	if d < 0 || d > 1 || math.IsNaN(d) {
		t.Errorf("expected decay clamped to [0,1] for a future timestamp, got %f", d)
	}
}

func TestPersonMatches(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	if !personMatches([]uuid.UUID{a, b}, a) {
		t.Error("expected match")
	}
	if personMatches([]uuid.UUID{a}, b) {
		t.Error("expected no match")
	}
	if personMatches(nil, a) {
		t.Error("expected no match against empty set")
	}
}

func TestHybridScoreWeightsSumCorrectly(t *testing.T) {
	s := &service{cfg: &config.Config{Alpha: 0.7, Beta: 0.2, Gamma: 0.1, Tau: 24}}
	person := uuid.New()
	asset := store.Asset{ID: uuid.New()}
	filters := Filters{HasPersonID: &person}
	byAsset := map[uuid.UUID][]uuid.UUID{asset.ID: {person}}

	score := s.hybridScore(0.9, asset, asset.ID, filters, byAsset, time.Now())
	want := 0.7*0.9 + 0.2*1 + 0.1*0 // no taken_at set -> recency term is 0
	if math.Abs(score-want) > 1e-9 {
		t.Errorf("hybridScore = %f, want %f", score, want)
	}
}

func TestPageNormalizedDefaultsAndCaps(t *testing.T) {
	limit, offset := Page{}.normalized()
	if limit != 20 || offset != 0 {
		t.Errorf("zero-value Page should default to limit=20 offset=0, got %d/%d", limit, offset)
	}

	limit, offset = Page{Number: 3, Size: 10}.normalized()
	if limit != 10 || offset != 20 {
		t.Errorf("Page{3,10} should give limit=10 offset=20, got %d/%d", limit, offset)
	}

	limit, _ = Page{Size: 10000}.normalized()
	if limit != 200 {
		t.Errorf("Page size should be capped at 200, got %d", limit)
	}
}

func TestPassesFiltersMIME(t *testing.T) {
	s := &service{}
	asset := store.Asset{MIME: "image/png"}
	if !s.passesFilters(asset, uuid.Nil, Filters{}, nil) {
		t.Error("no filters should always pass")
	}
	if s.passesFilters(asset, uuid.Nil, Filters{MIME: "image/jpeg"}, nil) {
		t.Error("mismatched MIME filter should reject")
	}
	if !s.passesFilters(asset, uuid.Nil, Filters{MIME: "image/png"}, nil) {
		t.Error("matching MIME filter should pass")
	}
}
