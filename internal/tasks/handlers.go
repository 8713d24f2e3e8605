package tasks

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"photokeep/internal/apierrors"
	"photokeep/internal/artifacts"
	"photokeep/internal/providers"
	"photokeep/internal/store"
)

// RegisterAll binds every task type to its handler, grounded on spec §4.5's
// type table. Call before Engine.Start.
func RegisterAll(e *Engine, deps *Deps) {
	e.RegisterHandler(store.TaskThumbnail, deps.handleThumbnail)
	e.RegisterHandler(store.TaskImageEmbed, deps.handleImageEmbed)
	e.RegisterHandler(store.TaskCaption, deps.handleCaption)
	e.RegisterHandler(store.TaskFaceDetect, deps.handleFaceDetect)
	e.RegisterHandler(store.TaskFaceEmbed, deps.handleFaceEmbed)
	e.RegisterHandler(store.TaskPersonRecluster, deps.handlePersonRecluster)
	e.RegisterHandler(store.TaskIndexRebuild, deps.handleIndexRebuild)
	e.RegisterHandler(store.TaskVideoKeyframes, deps.handleVideoKeyframes)
}

type thumbnailPayload struct {
	AssetID uuid.UUID `json:"asset_id"`
	Sizes   []int     `json:"sizes"`
}

type imageEmbedPayload struct {
	AssetID uuid.UUID `json:"asset_id"`
	Model   string    `json:"model"`
}

type captionPayload struct {
	AssetID uuid.UUID `json:"asset_id"`
	Profile string    `json:"profile"`
}

type faceDetectPayload struct {
	AssetID uuid.UUID `json:"asset_id"`
}

type faceEmbedPayload struct {
	FaceID uuid.UUID `json:"face_id"`
}

// personReclusterPayload.FaceID is only set for scope=incremental; it names
// the just-embedded face that triggered this recluster. Scope=full ignores it.
type personReclusterPayload struct {
	Scope  string     `json:"scope"`
	FaceID *uuid.UUID `json:"face_id,omitempty"`
}

type indexRebuildPayload struct {
	Modality     string `json:"modality"`
	ModelName    string `json:"model_name"`
	ModelVersion string `json:"model_version"`
}

type videoKeyframesPayload struct {
	AssetID         uuid.UUID `json:"asset_id"`
	IntervalSeconds int       `json:"interval_seconds"`
}

func readOriginal(a *store.Asset) ([]byte, error) {
	data, err := os.ReadFile(a.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apierrors.Wrap(apierrors.KindTransientIO, "original file missing, may reappear on rescan", err)
		}
		return nil, apierrors.Wrap(apierrors.KindTransientIO, "read original", err)
	}
	return data, nil
}

func (d *Deps) handleThumbnail(ctx context.Context, rt *RunningTask) error {
	var p thumbnailPayload
	if err := rt.Task.DecodePayload(&p); err != nil {
		return apierrors.Wrap(apierrors.KindPermanentConfig, "decode thumbnail payload", err)
	}
	asset, err := d.Assets.GetAssetByID(ctx, p.AssetID)
	if err != nil {
		return apierrors.Wrap(apierrors.KindNotFound, "asset not found", err)
	}
	data, err := readOriginal(asset)
	if err != nil {
		return err
	}

	sizes := p.Sizes
	if len(sizes) == 0 {
		sizes = []int{256, 1024}
	}
	for _, size := range sizes {
		jpegBytes, err := d.Providers.Thumbnailer.Thumbnail(ctx, data, size)
		if err != nil {
			return err
		}
		path := d.Artifacts.ThumbnailPath(asset.ID.String(), size)
		if _, err := artifacts.Write(path, jpegBytes); err != nil {
			return apierrors.Wrap(apierrors.KindTransientIO, "write thumbnail", err)
		}
	}
	return nil
}

func (d *Deps) handleImageEmbed(ctx context.Context, rt *RunningTask) error {
	var p imageEmbedPayload
	if err := rt.Task.DecodePayload(&p); err != nil {
		return apierrors.Wrap(apierrors.KindPermanentConfig, "decode image_embed payload", err)
	}
	asset, err := d.Assets.GetAssetByID(ctx, p.AssetID)
	if err != nil {
		return apierrors.Wrap(apierrors.KindNotFound, "asset not found", err)
	}
	data, err := readOriginal(asset)
	if err != nil {
		return err
	}

	vector, modelName, modelVersion, device, err := d.Providers.ImageEmbedder.EmbedImage(ctx, data)
	if err != nil {
		return err
	}

	path := d.Artifacts.EmbeddingPath("image", modelName, asset.ID.String())
	checksum, err := artifacts.Write(path, artifacts.EncodeVector(vector))
	if err != nil {
		return apierrors.Wrap(apierrors.KindTransientIO, "write image embedding", err)
	}

	emb := &store.Embedding{
		AssetID:      asset.ID,
		Modality:     store.ModalityImage,
		ModelName:    modelName,
		ModelVersion: modelVersion,
		Dim:          len(vector),
		Device:       device,
		VectorPath:   path,
		Checksum:     checksum,
	}
	if err := d.Embeddings.Upsert(ctx, emb); err != nil {
		return fmt.Errorf("tasks: upsert image embedding: %w", err)
	}
	if d.Metrics != nil {
		d.Metrics.EmbeddingsGeneratedInc("image")
	}

	if d.Index != nil && d.Index.Identity().ModelName == modelName && d.Index.Identity().ModelVersion == modelVersion {
		if err := d.Index.Add(asset.ID, vector); err != nil {
			return fmt.Errorf("tasks: add to vector index: %w", err)
		}
	}
	if _, err := d.IndexState.Bump(ctx, modelName, modelVersion); err != nil {
		return fmt.Errorf("tasks: bump index state: %w", err)
	}
	return nil
}

func (d *Deps) handleCaption(ctx context.Context, rt *RunningTask) error {
	var p captionPayload
	if err := rt.Task.DecodePayload(&p); err != nil {
		return apierrors.Wrap(apierrors.KindPermanentConfig, "decode caption payload", err)
	}
	asset, err := d.Assets.GetAssetByID(ctx, p.AssetID)
	if err != nil {
		return apierrors.Wrap(apierrors.KindNotFound, "asset not found", err)
	}
	data, err := readOriginal(asset)
	if err != nil {
		return err
	}

	opts := providers.CaptionOptions{MaxLength: 240, Style: captionStyleFor(p.Profile)}
	text, _, modelVersion, err := d.Providers.Captioner.Caption(ctx, data, opts)
	if err != nil {
		return err
	}

	c := &store.Caption{
		AssetID:      asset.ID,
		Text:         text,
		Provider:     p.Profile,
		ModelVersion: modelVersion,
	}
	if err := d.Captions.AppendCaption(ctx, c); err != nil {
		return fmt.Errorf("tasks: append caption: %w", err)
	}
	return nil
}

func captionStyleFor(profile string) providers.CaptionStyle {
	switch profile {
	case "fast":
		return providers.CaptionStyleFast
	case "quality":
		return providers.CaptionStyleQuality
	default:
		return providers.CaptionStyleBalanced
	}
}

// clampBBox constrains a detector's raw bbox to the asset's stored
// dimensions (spec §3: Face bbox is "clamped to image") — detectors run on
// resized or padded copies of the original and can return coordinates that
// drift slightly outside [0, width]x[0, height].
func clampBBox(b store.BBox, width, height int) store.BBox {
	clampAxis := func(pos, size, limit float64) (float64, float64) {
		if pos < 0 {
			size += pos
			pos = 0
		}
		if pos > limit {
			pos = limit
		}
		if pos+size > limit {
			size = limit - pos
		}
		if size < 0 {
			size = 0
		}
		return pos, size
	}
	b.X, b.W = clampAxis(b.X, b.W, float64(width))
	b.Y, b.H = clampAxis(b.Y, b.H, float64(height))
	return b
}

func (d *Deps) handleFaceDetect(ctx context.Context, rt *RunningTask) error {
	var p faceDetectPayload
	if err := rt.Task.DecodePayload(&p); err != nil {
		return apierrors.Wrap(apierrors.KindPermanentConfig, "decode face_detect payload", err)
	}
	asset, err := d.Assets.GetAssetByID(ctx, p.AssetID)
	if err != nil {
		return apierrors.Wrap(apierrors.KindNotFound, "asset not found", err)
	}
	data, err := readOriginal(asset)
	if err != nil {
		return err
	}

	detected, err := d.Providers.FaceDetector.DetectFaces(ctx, data)
	if err != nil {
		return err
	}
	if len(detected) == 0 {
		return nil
	}

	boxes := make([]store.BBox, len(detected))
	confidences := make([]float64, len(detected))
	for i, df := range detected {
		boxes[i] = clampBBox(store.BBox{X: df.BBoxX, Y: df.BBoxY, W: df.BBoxW, H: df.BBoxH}, asset.Width, asset.Height)
		confidences[i] = df.Confidence
	}
	faces, err := d.Faces.CreateDetections(ctx, asset.ID, boxes, confidences)
	if err != nil {
		return fmt.Errorf("tasks: create face detections: %w", err)
	}

	for _, f := range faces {
		key := IdempotencyKey(store.TaskFaceEmbed, f.ID, string(d.Cfg.FaceEmbedProvider), "v1")
		payload := mustJSON(faceEmbedPayload{FaceID: f.ID})
		t := &store.Task{Type: store.TaskFaceEmbed, Payload: payload, IdempotencyKey: &key}
		if _, err := d.Tasks.EnqueueTask(ctx, t); err != nil {
			return fmt.Errorf("tasks: enqueue face_embed: %w", err)
		}
	}
	return nil
}

func (d *Deps) handleFaceEmbed(ctx context.Context, rt *RunningTask) error {
	var p faceEmbedPayload
	if err := rt.Task.DecodePayload(&p); err != nil {
		return apierrors.Wrap(apierrors.KindPermanentConfig, "decode face_embed payload", err)
	}
	face, err := d.Faces.GetByID(ctx, p.FaceID)
	if err != nil {
		return apierrors.Wrap(apierrors.KindNotFound, "face not found", err)
	}
	asset, err := d.Assets.GetAssetByID(ctx, face.AssetID)
	if err != nil {
		return apierrors.Wrap(apierrors.KindNotFound, "asset for face not found", err)
	}
	data, err := readOriginal(asset)
	if err != nil {
		return err
	}

	vector, modelVersion, err := d.Providers.FaceEmbedder.EmbedFace(ctx, data, providers.DetectedFace{
		BBoxX: face.BBoxX, BBoxY: face.BBoxY, BBoxW: face.BBoxW, BBoxH: face.BBoxH, Confidence: face.Confidence,
	})
	if err != nil {
		return err
	}

	path := d.Artifacts.EmbeddingPath("face", modelVersion, face.ID.String())
	if _, err := artifacts.Write(path, artifacts.EncodeVector(vector)); err != nil {
		return apierrors.Wrap(apierrors.KindTransientIO, "write face embedding", err)
	}
	if err := d.Faces.SetEmbedding(ctx, face.ID, path); err != nil {
		return fmt.Errorf("tasks: set face embedding ref: %w", err)
	}
	if d.Metrics != nil {
		d.Metrics.EmbeddingsGeneratedInc("face")
	}

	key := IdempotencyKey(store.TaskPersonRecluster, face.ID, "incremental", "v1")
	payload := mustJSON(personReclusterPayload{Scope: "incremental", FaceID: &face.ID})
	t := &store.Task{Type: store.TaskPersonRecluster, Payload: payload, IdempotencyKey: &key}
	if _, err := d.Tasks.EnqueueTask(ctx, t); err != nil {
		return fmt.Errorf("tasks: enqueue incremental recluster: %w", err)
	}
	return nil
}

func (d *Deps) handlePersonRecluster(ctx context.Context, rt *RunningTask) error {
	var p personReclusterPayload
	if err := rt.Task.DecodePayload(&p); err != nil {
		return apierrors.Wrap(apierrors.KindPermanentConfig, "decode person_recluster payload", err)
	}
	switch p.Scope {
	case "incremental":
		return d.assignIncremental(ctx, p.FaceID)
	case "full":
		return d.fullRecluster(ctx, rt)
	default:
		return apierrors.New(apierrors.KindPermanentConfig, fmt.Sprintf("unknown person_recluster scope %q", p.Scope))
	}
}

func (d *Deps) handleIndexRebuild(ctx context.Context, rt *RunningTask) error {
	var p indexRebuildPayload
	if err := rt.Task.DecodePayload(&p); err != nil {
		return apierrors.Wrap(apierrors.KindPermanentConfig, "decode index_rebuild payload", err)
	}

	total, err := d.Embeddings.CountImageEmbeddings(ctx, p.ModelName, p.ModelVersion)
	if err != nil {
		return fmt.Errorf("tasks: count embeddings for rebuild: %w", err)
	}

	batch := make(map[uuid.UUID][]float64)
	processed := 0
	err = d.Embeddings.StreamImageEmbeddings(ctx, p.ModelName, p.ModelVersion, 500, func(rows []store.Embedding) error {
		for _, row := range rows {
			raw, err := artifacts.Read(row.VectorPath)
			if err != nil {
				return apierrors.Wrap(apierrors.KindTransientIO, "read embedding artifact", err)
			}
			vec, err := artifacts.DecodeVector(raw)
			if err != nil {
				return apierrors.Wrap(apierrors.KindPermanentDecode, "decode embedding vector", err)
			}
			batch[row.AssetID] = vec
		}
		processed += len(rows)

		cancelled, err := rt.Checkpoint(processed, total)
		if err != nil {
			return fmt.Errorf("tasks: rebuild checkpoint: %w", err)
		}
		if cancelled {
			return apierrors.New(apierrors.KindCancelled, "index rebuild cancelled before completion")
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := d.Index.AddBatch(batch); err != nil {
		return fmt.Errorf("tasks: rebuild add batch: %w", err)
	}

	indexPath := d.Cfg.DerivedPath + "/index/" + p.Modality + "-" + p.ModelName + "-" + p.ModelVersion + ".gob"
	if err := d.Index.Persist(indexPath); err != nil {
		return apierrors.Wrap(apierrors.KindTransientIO, "persist rebuilt index", err)
	}
	if _, err := d.Embeddings.PurgeStale(ctx, p.ModelName, p.ModelVersion); err != nil {
		return fmt.Errorf("tasks: purge stale embeddings: %w", err)
	}
	return nil
}

// handleVideoKeyframes rejects outright when video support is disabled
// (spec §4.5: video_keyframes "returns KindPermanentConfig when
// VIDEO_ENABLED=false, and is otherwise a documented no-op") — video
// processing itself is out of scope for the engineering core, so an enabled
// config still completes the task without side effects.
func (d *Deps) handleVideoKeyframes(ctx context.Context, rt *RunningTask) error {
	if !d.Cfg.VideoEnabled {
		return apierrors.New(apierrors.KindPermanentConfig, "video_keyframes: VIDEO_ENABLED is false")
	}
	return nil
}
