// Package providers defines the abstract adapters the core invokes for every
// ML-backed operation (C4): Thumbnailer, ImageEmbedder, TextEmbedder,
// Captioner, FaceDetector, FaceEmbedder. Concrete models are out of scope
// (spec §1); this package ships stub implementations plus the subprocess
// protocol for out-of-process model runners, selected once at startup by
// internal/config rather than dispatched dynamically per call (spec §9).
package providers

import "context"

// Status is the closed set of health-report states.
type Status string

const (
	StatusReady       Status = "ready"
	StatusDegraded    Status = "degraded"
	StatusUnavailable Status = "unavailable"
)

// Health is the diagnostic snapshot every provider reports.
type Health struct {
	Status       Status
	ModelVersion string
	Device       string
	Diagnostics  string
}

// Provider is the common health-reporting surface every adapter implements.
type Provider interface {
	Health(ctx context.Context) Health
}

// Thumbnailer: (image_bytes, target_size) -> jpeg_bytes. Permanent error on
// decode failure.
type Thumbnailer interface {
	Provider
	Thumbnail(ctx context.Context, imageBytes []byte, targetSize int) (jpegBytes []byte, err error)
}

// ImageEmbedder: (image_bytes) -> (vector[D], model_name, model_version, device).
// Vectors are L2-normalized.
type ImageEmbedder interface {
	Provider
	EmbedImage(ctx context.Context, imageBytes []byte) (vector []float64, modelName, modelVersion, device string, err error)
	Dim() int
}

// TextEmbedder: (utf8_string) -> (vector[D'], model_name, model_version).
type TextEmbedder interface {
	Provider
	EmbedText(ctx context.Context, text string) (vector []float64, modelName, modelVersion string, err error)
	Dim() int
}

// CaptionStyle is the closed set of Captioner quality/speed trade-offs.
type CaptionStyle string

const (
	CaptionStyleFast     CaptionStyle = "fast"
	CaptionStyleBalanced CaptionStyle = "balanced"
	CaptionStyleQuality  CaptionStyle = "quality"
)

// CaptionOptions parametrizes a Captioner call.
type CaptionOptions struct {
	MaxLength int
	Style     CaptionStyle
}

// Captioner: (image_bytes, options) -> (text, confidence, model_version).
// May be backed by an out-of-process model runner speaking the
// line-delimited JSON protocol of spec §6; that detail is opaque here.
type Captioner interface {
	Provider
	Caption(ctx context.Context, imageBytes []byte, opts CaptionOptions) (text string, confidence float64, modelVersion string, err error)
}

// DetectedFace is one face found by a FaceDetector.
type DetectedFace struct {
	BBoxX, BBoxY, BBoxW, BBoxH float64
	Confidence                 float64
}

// FaceDetector: (image_bytes) -> [{bbox, confidence}]. Empty list if none;
// permanent error on decode failure.
type FaceDetector interface {
	Provider
	DetectFaces(ctx context.Context, imageBytes []byte) ([]DetectedFace, error)
}

// FaceEmbedder: (image_bytes, bbox) -> (vector[F], model_version). Vectors
// are L2-normalized.
type FaceEmbedder interface {
	Provider
	EmbedFace(ctx context.Context, imageBytes []byte, bbox DetectedFace) (vector []float64, modelVersion string, err error)
	Dim() int
}

// Set bundles one concrete provider per role, the config-driven selection
// handle threaded through the application context (spec §9's "dynamic
// provider dispatch" redesign: chosen once here, never resolved per-call).
type Set struct {
	Thumbnailer   Thumbnailer
	ImageEmbedder ImageEmbedder
	TextEmbedder  TextEmbedder
	Captioner     Captioner
	FaceDetector  FaceDetector
	FaceEmbedder  FaceEmbedder
}

// HealthReport is the aggregate health of every configured provider, the
// input to internal/metrics' /health readiness computation.
func (s Set) HealthReport(ctx context.Context) map[string]Health {
	report := map[string]Health{}
	if s.Thumbnailer != nil {
		report["thumbnailer"] = s.Thumbnailer.Health(ctx)
	}
	if s.ImageEmbedder != nil {
		report["image_embedder"] = s.ImageEmbedder.Health(ctx)
	}
	if s.TextEmbedder != nil {
		report["text_embedder"] = s.TextEmbedder.Health(ctx)
	}
	if s.Captioner != nil {
		report["captioner"] = s.Captioner.Health(ctx)
	}
	if s.FaceDetector != nil {
		report["face_detector"] = s.FaceDetector.Health(ctx)
	}
	if s.FaceEmbedder != nil {
		report["face_embedder"] = s.FaceEmbedder.Health(ctx)
	}
	return report
}
