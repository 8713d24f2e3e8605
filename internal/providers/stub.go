package providers

import (
	"context"
	"crypto/sha256"
	"math"
)

// Stub implementations back the "stub" provider selection for every role
// (spec §4.10's enumerated IMAGE_EMBED_PROVIDER/FACE_DETECT_PROVIDER/etc
// values). They are deterministic functions of their input bytes, not
// models — useful as the default local-dev configuration and for the
// testable properties of spec §8 (e.g. index consistency: querying the
// index with the exact embedding of an asset must return that asset first).

const stubDim = 32

// deterministicVector maps arbitrary bytes to a unit-norm vector of dim d by
// hashing successive counters into a seed stream. Same input -> same output.
func deterministicVector(seed []byte, d int) []float64 {
	out := make([]float64, d)
	h := sha256.Sum256(seed)
	for i := 0; i < d; i++ {
		b := h[i%len(h)]
		extra := sha256.Sum256(append(seed, byte(i)))
		out[i] = (float64(b) + float64(extra[0])) / 255.0
	}
	return l2NormalizeStandalone(out)
}

func l2NormalizeStandalone(v []float64) []float64 {
	var sumSq float64
	for _, x := range v {
		sumSq += x * x
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return v
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

// StubImageEmbedder is the deterministic ImageEmbedder.
type StubImageEmbedder struct{}

func NewStubImageEmbedder() *StubImageEmbedder { return &StubImageEmbedder{} }

func (s *StubImageEmbedder) EmbedImage(ctx context.Context, imageBytes []byte) ([]float64, string, string, string, error) {
	return deterministicVector(imageBytes, stubDim), "stub", "v1", "cpu", nil
}
func (s *StubImageEmbedder) Dim() int { return stubDim }
func (s *StubImageEmbedder) Health(ctx context.Context) Health {
	return Health{Status: StatusReady, ModelVersion: "v1", Device: "cpu"}
}

// StubTextEmbedder is the deterministic TextEmbedder, sharing the stub's
// vector space with StubImageEmbedder so cross-modal search is meaningful
// in local-dev (spec §4.10 TEXT_EMBED_PROVIDER=same).
type StubTextEmbedder struct{}

func NewStubTextEmbedder() *StubTextEmbedder { return &StubTextEmbedder{} }

func (s *StubTextEmbedder) EmbedText(ctx context.Context, text string) ([]float64, string, string, error) {
	return deterministicVector([]byte(text), stubDim), "stub", "v1", nil
}
func (s *StubTextEmbedder) Dim() int { return stubDim }
func (s *StubTextEmbedder) Health(ctx context.Context) Health {
	return Health{Status: StatusReady, ModelVersion: "v1", Device: "cpu"}
}

// StubCaptioner returns the constant caption "an image" (confidence 0.5,
// version "v1") for any input; good enough to exercise the caption pipeline end-to-end without a real model.
type StubCaptioner struct{}

func NewStubCaptioner() *StubCaptioner { return &StubCaptioner{} }

func (s *StubCaptioner) Caption(ctx context.Context, imageBytes []byte, opts CaptionOptions) (string, float64, string, error) {
	return "an image", 0.5, "v1", nil
}
func (s *StubCaptioner) Health(ctx context.Context) Health {
	return Health{Status: StatusReady, ModelVersion: "v1", Device: "cpu"}
}

// StubFaceDetector always reports zero faces — a legitimate, documented
// result per spec §4.4 ("Returns empty list if none").
type StubFaceDetector struct{}

func NewStubFaceDetector() *StubFaceDetector { return &StubFaceDetector{} }

func (s *StubFaceDetector) DetectFaces(ctx context.Context, imageBytes []byte) ([]DetectedFace, error) {
	return nil, nil
}
func (s *StubFaceDetector) Health(ctx context.Context) Health {
	return Health{Status: StatusReady, ModelVersion: "v1", Device: "cpu"}
}

// StubFaceEmbedder is the deterministic FaceEmbedder, keyed on the crop
// region so distinct faces in the same image still get distinct vectors.
type StubFaceEmbedder struct{}

func NewStubFaceEmbedder() *StubFaceEmbedder { return &StubFaceEmbedder{} }

func (s *StubFaceEmbedder) EmbedFace(ctx context.Context, imageBytes []byte, bbox DetectedFace) ([]float64, string, error) {
	seed := append([]byte{}, imageBytes...)
	seed = append(seed, []byte(boxKey(bbox))...)
	return deterministicVector(seed, stubDim), "v1", nil
}
func (s *StubFaceEmbedder) Dim() int { return stubDim }
func (s *StubFaceEmbedder) Health(ctx context.Context) Health {
	return Health{Status: StatusReady, ModelVersion: "v1", Device: "cpu"}
}

func boxKey(b DetectedFace) string {
	return floatKey(b.BBoxX) + floatKey(b.BBoxY) + floatKey(b.BBoxW) + floatKey(b.BBoxH)
}

func floatKey(f float64) string {
	bits := math.Float64bits(f)
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[i] = byte(bits >> (8 * i))
	}
	return string(buf)
}
