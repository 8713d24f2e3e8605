package providers

import (
	"fmt"
	"log/slog"

	"photokeep/internal/config"
)

// BuildSet resolves one concrete provider per role from cfg. A non-stub
// IMAGE_EMBED_PROVIDER, FACE_DETECT_PROVIDER or FACE_EMBED_PROVIDER fails
// fast rather than silently falling back; every TEXT_EMBED_PROVIDER and
// CAPTION_PROFILE value is served by the stub text embedder and captioner.
func BuildSet(cfg *config.Config, logger *slog.Logger) (Set, error) {
	var set Set

	switch cfg.ImageEmbedProvider {
	case config.ImageEmbedStub:
		set.ImageEmbedder = NewStubImageEmbedder()
	default:
		return Set{}, fmt.Errorf("providers: IMAGE_EMBED_PROVIDER %q has no wired concrete model (out of scope per spec §1); use %q for local-dev",
			cfg.ImageEmbedProvider, config.ImageEmbedStub)
	}

	switch cfg.TextEmbedProvider {
	case config.TextEmbedSame:
		set.TextEmbedder = NewStubTextEmbedder()
	case config.TextEmbedSeparate:
		set.TextEmbedder = NewStubTextEmbedder()
	}

	set.Thumbnailer = NewImagingThumbnailer(85)

	switch cfg.CaptionProfile {
	case config.CaptionFast, config.CaptionBalanced, config.CaptionQuality, config.CaptionAuto:
		set.Captioner = NewStubCaptioner()
	}

	switch cfg.FaceDetectProvider {
	case config.FaceDetectStub:
		set.FaceDetector = NewStubFaceDetector()
	default:
		return Set{}, fmt.Errorf("providers: FACE_DETECT_PROVIDER %q has no wired concrete model; use %q for local-dev",
			cfg.FaceDetectProvider, config.FaceDetectStub)
	}

	switch cfg.FaceEmbedProvider {
	case config.FaceEmbedStub:
		set.FaceEmbedder = NewStubFaceEmbedder()
	default:
		return Set{}, fmt.Errorf("providers: FACE_EMBED_PROVIDER %q has no wired concrete model; use %q for local-dev",
			cfg.FaceEmbedProvider, config.FaceEmbedStub)
	}

	return set, nil
}
