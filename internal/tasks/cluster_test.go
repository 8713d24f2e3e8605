package tasks

import (
	"math"
	"testing"

	"github.com/google/uuid"
)

func TestUnionFindConnectsTransitively(t *testing.T) {
	uf := newUnionFind(5)
	uf.union(0, 1)
	uf.union(1, 2)
	if uf.find(0) != uf.find(2) {
		t.Fatalf("0 and 2 should be in the same component via 1")
	}
	if uf.find(0) == uf.find(3) {
		t.Fatalf("0 and 3 should not be connected")
	}
	uf.union(3, 4)
	if uf.find(3) != uf.find(4) {
		t.Fatalf("3 and 4 should be connected")
	}
	if uf.find(2) == uf.find(4) {
		t.Fatalf("the two components should remain distinct")
	}
}

func TestInnerProductOfIdenticalUnitVectorsIsOne(t *testing.T) {
	v := l2Normalize([]float64{1, 2, 3})
	got := innerProduct(v, v)
	if math.Abs(got-1.0) > 1e-9 {
		t.Fatalf("inner product of a unit vector with itself = %v, want 1", got)
	}
}

func TestL2NormalizeProducesUnitNorm(t *testing.T) {
	v := l2Normalize([]float64{3, 4})
	var sumSq float64
	for _, x := range v {
		sumSq += x * x
	}
	if math.Abs(sumSq-1.0) > 1e-9 {
		t.Fatalf("normalized vector has squared norm %v, want 1", sumSq)
	}
}

func TestScaleDownAverages(t *testing.T) {
	got := scaleDown([]float64{2, 4, 6}, 2)
	want := []float64{1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("scaleDown(%v, 2) = %v, want %v", []float64{2, 4, 6}, got, want)
		}
	}
}

func TestCaptionStyleForMapsKnownProfiles(t *testing.T) {
	cases := map[string]string{
		"fast":     "fast",
		"quality":  "quality",
		"balanced": "balanced",
		"auto":     "balanced",
		"unknown":  "balanced",
	}
	for profile, want := range cases {
		got := string(captionStyleFor(profile))
		if got != want {
			t.Fatalf("captionStyleFor(%q) = %q, want %q", profile, got, want)
		}
	}
}

func TestIdempotencyKeyIsDeterministic(t *testing.T) {
	id := uuid.New()
	a := IdempotencyKey("image_embed", id, "clip_b32", "v1")
	b := IdempotencyKey("image_embed", id, "clip_b32", "v1")
	if a != b {
		t.Fatalf("IdempotencyKey must be deterministic for identical inputs: %q != %q", a, b)
	}
	c := IdempotencyKey("image_embed", id, "clip_b32", "v2")
	if a == c {
		t.Fatalf("different model_version must produce a different idempotency key")
	}
}
