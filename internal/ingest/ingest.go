// Package ingest is the Ingestion Pipeline (C6): walks configured media
// roots, computes content and perceptual hashes, extracts best-effort EXIF,
// and reconciles the result against the Metadata Store's asset table —
// dedup by content hash, reactivation of rediscovered files, and marking of
// files no longer present. Grounded on the teacher's imaging.Service
// download/validate/dedup sequence (internal/imaging/service.go
// processJob), translated from R2 object keys to local filesystem paths.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"photokeep/internal/config"
	"photokeep/internal/database"
	"photokeep/internal/store"
)

// Stats summarizes one Scan call.
type Stats struct {
	FilesSeen          int
	FilesSkipped       int
	AssetsCreated      int
	AssetsReactivated  int
	AssetsPathUpdated  int
	AssetsMarkedMissing int64
	TasksEnqueued      int
}

// Scanner walks OriginalsPaths and reconciles them against the asset table.
type Scanner struct {
	cfg    *config.Config
	db     *database.DB
	assets *store.AssetRepository
	tasks  *store.TaskRepository
	logger *slog.Logger

	extensions map[string]bool
}

// New constructs a Scanner from the application config and store handles.
func New(cfg *config.Config, db *database.DB, assets *store.AssetRepository, tasks *store.TaskRepository, logger *slog.Logger) *Scanner {
	exts := make(map[string]bool, len(cfg.IngestExtensions))
	for _, e := range cfg.IngestExtensions {
		exts[strings.ToLower(e)] = true
	}
	return &Scanner{cfg: cfg, db: db, assets: assets, tasks: tasks, logger: logger, extensions: exts}
}

// Scan walks every configured root depth-first to collect eligible files,
// then hashes and reconciles them against the asset table with bounded
// concurrency (a semaphore-channel worker pool sized by WorkerConcurrency,
// grounded on the teacher pack's photo-sorter `photo faces` command), and
// finally marks any previously-active asset not encountered this pass as
// missing (spec §4.6 step 4). A scan is idempotent: re-running over an
// unchanged tree enqueues no new tasks, since every file resolves to an
// already-active asset at the same path.
func (s *Scanner) Scan(ctx context.Context) (Stats, error) {
	var stats Stats

	var paths []string
	for _, root := range s.cfg.OriginalsPaths {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				s.logger.Warn("ingest: walk error, skipping", "path", path, "error", walkErr)
				stats.FilesSkipped++
				return nil
			}
			if d.IsDir() {
				return nil
			}
			if !s.eligible(path, d) {
				return nil
			}
			paths = append(paths, path)
			return nil
		})
		if err != nil {
			return stats, fmt.Errorf("ingest: walk %s: %w", root, err)
		}
	}
	stats.FilesSeen = len(paths)

	concurrency := s.cfg.WorkerConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make([]uuid.UUID, 0, len(paths))
	var cancelled bool

	for _, path := range paths {
		select {
		case <-ctx.Done():
			cancelled = true
		default:
		}
		if cancelled {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(path string) {
			defer wg.Done()
			defer func() { <-sem }()

			id, outcome, err := s.ingestFile(ctx, path)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					s.logger.Warn("ingest: failed to ingest file, skipping", "path", path, "error", err)
				}
				stats.FilesSkipped++
				return
			}
			seen = append(seen, id)
			switch outcome {
			case outcomeCreated:
				stats.AssetsCreated++
				stats.TasksEnqueued += 4
			case outcomeReactivated:
				stats.AssetsReactivated++
			case outcomePathUpdated:
				stats.AssetsPathUpdated++
			}
		}(path)
	}
	wg.Wait()

	if cancelled || ctx.Err() != nil {
		return stats, ctx.Err()
	}

	missing, err := s.assets.MarkMissing(ctx, seen)
	if err != nil {
		return stats, fmt.Errorf("ingest: mark missing: %w", err)
	}
	stats.AssetsMarkedMissing = missing
	return stats, nil
}

func (s *Scanner) eligible(path string, d fs.DirEntry) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if !s.extensions[ext] {
		return false
	}
	info, err := d.Info()
	if err != nil {
		return false
	}
	size := info.Size()
	if size < s.cfg.IngestMinBytes || size > s.cfg.IngestMaxBytes {
		return false
	}
	return true
}

type outcome int

const (
	outcomePathUpdated outcome = iota
	outcomeReactivated
	outcomeCreated
	outcomeUnchanged
)

// ingestFile implements spec §4.6 step 2-3 for a single file: hash, then
// dispatch to the matching dedup branch.
func (s *Scanner) ingestFile(ctx context.Context, path string) (uuid.UUID, outcome, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("read file: %w", err)
	}

	sum := contentHash(data)

	existing, err := s.assets.GetAssetBySHA256(ctx, sum)
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("lookup by content hash: %w", err)
	}

	if existing != nil {
		switch existing.Status {
		case store.AssetMissing:
			if err := s.assets.ReactivateAsset(ctx, existing.ID, path); err != nil {
				return uuid.Nil, 0, fmt.Errorf("reactivate asset: %w", err)
			}
			return existing.ID, outcomeReactivated, nil
		default:
			if existing.Path != path {
				if err := s.assets.UpdateAssetPath(ctx, existing.ID, path); err != nil {
					return uuid.Nil, 0, fmt.Errorf("update asset path: %w", err)
				}
				return existing.ID, outcomePathUpdated, nil
			}
			return existing.ID, outcomeUnchanged, nil
		}
	}

	decoded, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(false))
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("decode image: %w", err)
	}

	phash := perceptualHash(decoded)
	meta := extractEXIF(data, decoded)

	asset := &store.Asset{
		ID:             uuid.New(),
		Path:           path,
		SHA256:         sum,
		PerceptualHash: phash,
		MIME:           mimeType(path),
		Width:          meta.Width,
		Height:         meta.Height,
		Orientation:    meta.Orientation,
		TakenAt:        meta.TakenAt,
		Camera:         meta.Camera,
		GPSLat:         meta.GPSLat,
		GPSLon:         meta.GPSLon,
		SizeBytes:      int64(len(data)),
	}

	var tasks []*store.Task
	pending, err := s.tasks.CountByState(ctx, store.TaskPending)
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("count pending tasks: %w", err)
	}
	if pending < s.cfg.MaxPendingBackpressure {
		tasks = s.derivationTasks(asset.ID)
	} else {
		s.logger.Warn("ingest: backpressure active, asset created without derivation tasks",
			"path", path, "pending", pending, "ceiling", s.cfg.MaxPendingBackpressure)
	}

	if err := store.CreateAssetWithTasks(ctx, s.db, asset, tasks); err != nil {
		return uuid.Nil, 0, fmt.Errorf("create asset with tasks: %w", err)
	}

	return asset.ID, outcomeCreated, nil
}

// derivationTasks builds the four fan-out tasks a freshly-created asset
// needs (spec §4.6 step 3), each with an idempotency key scoped to the
// asset id so a re-run of CreateAssetWithTasks (which cannot happen for an
// asset that already exists, but would for a crash-and-retry mid-scan) never
// double-enqueues.
func (s *Scanner) derivationTasks(assetID uuid.UUID) []*store.Task {
	types := []store.TaskType{
		store.TaskThumbnail,
		store.TaskImageEmbed,
		store.TaskCaption,
		store.TaskFaceDetect,
	}
	tasks := make([]*store.Task, 0, len(types))
	for _, t := range types {
		key := fmt.Sprintf("%s:%s:v1", t, assetID)
		tasks = append(tasks, &store.Task{Type: t, Payload: taskPayload(assetID), IdempotencyKey: &key})
	}
	return tasks
}

func taskPayload(assetID uuid.UUID) []byte {
	return []byte(fmt.Sprintf(`{"asset_id":%q}`, assetID))
}

func mimeType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if m := mime.TypeByExtension(ext); m != "" {
		return m
	}
	switch ext {
	case ".heic":
		return "image/heic"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
