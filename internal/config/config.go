// Package config assembles photokeep's entire runtime configuration into a
// single typed, validated struct at startup. Recognized options are
// enumerated; unknown APP-adjacent keys are rejected rather than silently
// ignored.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found or error loading it, using system environment variables")
	}
}

// ImageEmbedProvider enumerates the allowed IMAGE_EMBED_PROVIDER values.
type ImageEmbedProvider string

const (
	ImageEmbedStub   ImageEmbedProvider = "stub"
	ImageEmbedClipB32 ImageEmbedProvider = "clip_b32"
	ImageEmbedClipL14 ImageEmbedProvider = "clip_l14"
)

// TextEmbedProvider enumerates the allowed TEXT_EMBED_PROVIDER values.
type TextEmbedProvider string

const (
	TextEmbedSame     TextEmbedProvider = "same"
	TextEmbedSeparate TextEmbedProvider = "separate"
)

// CaptionProfile enumerates the allowed CAPTION_PROFILE values.
type CaptionProfile string

const (
	CaptionFast     CaptionProfile = "fast"
	CaptionBalanced CaptionProfile = "balanced"
	CaptionQuality  CaptionProfile = "quality"
	CaptionAuto     CaptionProfile = "auto"
)

// FaceDetectProvider enumerates the allowed FACE_DETECT_PROVIDER values.
type FaceDetectProvider string

const (
	FaceDetectStub    FaceDetectProvider = "stub"
	FaceDetectClassic FaceDetectProvider = "classic"
	FaceDetectLearned FaceDetectProvider = "learned"
)

// FaceEmbedProvider enumerates the allowed FACE_EMBED_PROVIDER values.
type FaceEmbedProvider string

const (
	FaceEmbedStub    FaceEmbedProvider = "stub"
	FaceEmbedFacenet FaceEmbedProvider = "facenet"
	FaceEmbedLVFace  FaceEmbedProvider = "lvface"
)

// Config is the application's entire runtime surface, assembled once at
// startup — spec §9's "explicit application context" redesign replacing the
// teacher's scattered env-reads.
type Config struct {
	DatabaseURL string
	Port        string

	AllowedOrigins []string

	Service string // for logging/otel resource attributes
	Env     string // "production" or anything else (dev)
	LogLevel string

	OTLPEndpoint    string
	EnableOTELLogs  bool

	WorkerConcurrency     int
	PollIntervalMS        int
	MaxTaskRetries        int
	BackoffBaseMS         int
	BackoffCapMS          int
	MaxPendingBackpressure int

	OriginalsPaths []string
	DerivedPath    string

	IngestExtensions []string
	IngestMinBytes   int64
	IngestMaxBytes   int64

	ImageEmbedProvider ImageEmbedProvider
	TextEmbedProvider  TextEmbedProvider
	CaptionProfile     CaptionProfile
	FaceDetectProvider FaceDetectProvider
	FaceEmbedProvider  FaceEmbedProvider
	VideoEnabled       bool

	TAssign  float64
	TMargin  float64
	TCluster float64

	Alpha float64
	Beta  float64
	Gamma float64
	Tau   float64

	VectorIndexAutoload bool
}

// recognized lists every environment variable photokeep reads. Load rejects
// any APP_-prefixed variable not in this set.
var recognized = map[string]bool{
	"DATABASE_URL": true, "PORT": true, "ALLOWED_ORIGINS": true,
	"APP_SERVICE": true, "APP_ENV": true, "LOG_LEVEL": true,
	"OTEL_EXPORTER_OTLP_ENDPOINT": true, "ENABLE_OTEL_LOGS": true,
	"WORKER_CONCURRENCY": true, "POLL_INTERVAL_MS": true, "MAX_TASK_RETRIES": true,
	"BACKOFF_BASE_MS": true, "BACKOFF_CAP_MS": true, "MAX_PENDING_BACKPRESSURE": true,
	"ORIGINALS_PATHS": true, "DERIVED_PATH": true,
	"INGEST_EXTENSIONS": true, "INGEST_MIN_BYTES": true, "INGEST_MAX_BYTES": true,
	"IMAGE_EMBED_PROVIDER": true, "TEXT_EMBED_PROVIDER": true, "CAPTION_PROFILE": true,
	"FACE_DETECT_PROVIDER": true, "FACE_EMBED_PROVIDER": true, "VIDEO_ENABLED": true,
	"T_ASSIGN": true, "T_MARGIN": true, "T_CLUSTER": true,
	"ALPHA": true, "BETA": true, "GAMMA": true, "TAU": true,
	"VECTOR_INDEX_AUTOLOAD": true,
}

// Load assembles Config from the environment, rejecting any APP_-prefixed
// variable it does not recognize — the closed configuration surface.
func Load() (*Config, error) {
	for _, kv := range os.Environ() {
		name := strings.SplitN(kv, "=", 2)[0]
		if strings.HasPrefix(name, "APP_") && !recognized[name] {
			return nil, fmt.Errorf("config: unrecognized environment variable %q", name)
		}
	}

	c := &Config{
		DatabaseURL:    getenv("DATABASE_URL", ""),
		Port:           getenv("PORT", "8080"),
		AllowedOrigins: splitCSV(getenv("ALLOWED_ORIGINS", "http://localhost:3000")),

		Service: getenv("APP_SERVICE", "photokeep"),
		Env:     getenv("APP_ENV", "development"),
		LogLevel: getenv("LOG_LEVEL", "INFO"),

		OTLPEndpoint:   getenv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		EnableOTELLogs: getenvBool("ENABLE_OTEL_LOGS", false),

		OriginalsPaths: splitCSV(getenv("ORIGINALS_PATHS", "")),
		DerivedPath:    getenv("DERIVED_PATH", "./data/derived"),

		IngestExtensions: splitCSV(getenv("INGEST_EXTENSIONS", ".jpg,.jpeg,.png,.heic,.webp")),

		VideoEnabled:        getenvBool("VIDEO_ENABLED", false),
		VectorIndexAutoload: getenvBool("VECTOR_INDEX_AUTOLOAD", true),
	}

	var err error
	if c.WorkerConcurrency, err = getenvInt("WORKER_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if c.WorkerConcurrency < 1 {
		return nil, fmt.Errorf("config: WORKER_CONCURRENCY must be >= 1, got %d", c.WorkerConcurrency)
	}
	if c.PollIntervalMS, err = getenvInt("POLL_INTERVAL_MS", 500); err != nil {
		return nil, err
	}
	if c.MaxTaskRetries, err = getenvInt("MAX_TASK_RETRIES", 5); err != nil {
		return nil, err
	}
	if c.BackoffBaseMS, err = getenvInt("BACKOFF_BASE_MS", 1000); err != nil {
		return nil, err
	}
	if c.BackoffCapMS, err = getenvInt("BACKOFF_CAP_MS", 60000); err != nil {
		return nil, err
	}
	if c.MaxPendingBackpressure, err = getenvInt("MAX_PENDING_BACKPRESSURE", 10000); err != nil {
		return nil, err
	}
	if c.IngestMinBytes, err = getenvInt64("INGEST_MIN_BYTES", 1024); err != nil {
		return nil, err
	}
	if c.IngestMaxBytes, err = getenvInt64("INGEST_MAX_BYTES", 200*1024*1024); err != nil {
		return nil, err
	}

	if c.TAssign, err = getenvFloat("T_ASSIGN", 0.90); err != nil {
		return nil, err
	}
	if c.TMargin, err = getenvFloat("T_MARGIN", 0.05); err != nil {
		return nil, err
	}
	if c.TCluster, err = getenvFloat("T_CLUSTER", 0.85); err != nil {
		return nil, err
	}
	if c.Alpha, err = getenvFloat("ALPHA", 0.7); err != nil {
		return nil, err
	}
	if c.Beta, err = getenvFloat("BETA", 0.2); err != nil {
		return nil, err
	}
	if c.Gamma, err = getenvFloat("GAMMA", 0.1); err != nil {
		return nil, err
	}
	if c.Tau, err = getenvFloat("TAU", 365*24); err != nil {
		return nil, err
	}

	imageEmbed := ImageEmbedProvider(getenv("IMAGE_EMBED_PROVIDER", string(ImageEmbedStub)))
	switch imageEmbed {
	case ImageEmbedStub, ImageEmbedClipB32, ImageEmbedClipL14:
		c.ImageEmbedProvider = imageEmbed
	default:
		return nil, fmt.Errorf("config: invalid IMAGE_EMBED_PROVIDER %q", imageEmbed)
	}

	textEmbed := TextEmbedProvider(getenv("TEXT_EMBED_PROVIDER", string(TextEmbedSame)))
	switch textEmbed {
	case TextEmbedSame, TextEmbedSeparate:
		c.TextEmbedProvider = textEmbed
	default:
		return nil, fmt.Errorf("config: invalid TEXT_EMBED_PROVIDER %q", textEmbed)
	}

	captionProfile := CaptionProfile(getenv("CAPTION_PROFILE", string(CaptionAuto)))
	switch captionProfile {
	case CaptionFast, CaptionBalanced, CaptionQuality, CaptionAuto:
		c.CaptionProfile = captionProfile
	default:
		return nil, fmt.Errorf("config: invalid CAPTION_PROFILE %q", captionProfile)
	}

	faceDetect := FaceDetectProvider(getenv("FACE_DETECT_PROVIDER", string(FaceDetectStub)))
	switch faceDetect {
	case FaceDetectStub, FaceDetectClassic, FaceDetectLearned:
		c.FaceDetectProvider = faceDetect
	default:
		return nil, fmt.Errorf("config: invalid FACE_DETECT_PROVIDER %q", faceDetect)
	}

	faceEmbed := FaceEmbedProvider(getenv("FACE_EMBED_PROVIDER", string(FaceEmbedStub)))
	switch faceEmbed {
	case FaceEmbedStub, FaceEmbedFacenet, FaceEmbedLVFace:
		c.FaceEmbedProvider = faceEmbed
	default:
		return nil, fmt.Errorf("config: invalid FACE_EMBED_PROVIDER %q", faceEmbed)
	}

	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL is required")
	}

	return c, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer: %w", key, err)
	}
	return n, nil
}

func getenvInt64(key string, def int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer: %w", key, err)
	}
	return n, nil
}

func getenvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be a number: %w", key, err)
	}
	return f, nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
