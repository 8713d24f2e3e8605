package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"photokeep/internal/database"
)

// FaceRepository is the CRUD surface over face_detections.
type FaceRepository struct {
	db *database.DB
}

func NewFaceRepository(db *database.DB) *FaceRepository {
	return &FaceRepository{db: db}
}

// CreateDetections inserts the detections produced by a face_detect task,
// each starting embedding_pending (spec §3 invariant: every persisted
// detection either has an embedding or is marked embedding_pending).
func (r *FaceRepository) CreateDetections(ctx context.Context, assetID uuid.UUID, boxes []BBox, confidences []float64) ([]FaceDetection, error) {
	if len(boxes) != len(confidences) {
		return nil, fmt.Errorf("store: boxes/confidences length mismatch")
	}
	out := make([]FaceDetection, 0, len(boxes))
	for i, b := range boxes {
		fd := FaceDetection{
			ID:               uuid.New(),
			AssetID:          assetID,
			BBoxX:            b.X,
			BBoxY:            b.Y,
			BBoxW:            b.W,
			BBoxH:            b.H,
			Confidence:       confidences[i],
			EmbeddingPending: true,
		}
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO face_detections (id, asset_id, bbox_x, bbox_y, bbox_w, bbox_h, confidence, embedding_pending, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, true, now())`,
			fd.ID, fd.AssetID, fd.BBoxX, fd.BBoxY, fd.BBoxW, fd.BBoxH, fd.Confidence)
		if err != nil {
			return nil, fmt.Errorf("store: insert face detection: %w", err)
		}
		out = append(out, fd)
	}
	return out, nil
}

// SetEmbedding records the embedding produced by a face_embed task, clearing
// embedding_pending. Re-running with the same ref is a no-op (idempotent).
func (r *FaceRepository) SetEmbedding(ctx context.Context, faceID uuid.UUID, ref string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE face_detections SET embedding_ref = $2, embedding_pending = false WHERE id = $1`,
		faceID, ref)
	return err
}

// AssignPerson sets a face's person_id (spec §3: "never mutated after
// creation except for setting person_id").
func (r *FaceRepository) AssignPerson(ctx context.Context, faceID uuid.UUID, personID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `UPDATE face_detections SET person_id = $2 WHERE id = $1`, faceID, personID)
	return err
}

// UnassignPerson clears a face's person_id (used by POST /faces/assign when
// no person_id is given).
func (r *FaceRepository) UnassignPerson(ctx context.Context, faceID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `UPDATE face_detections SET person_id = NULL WHERE id = $1`, faceID)
	return err
}

// GetByID returns a single face detection or ErrNotFound.
func (r *FaceRepository) GetByID(ctx context.Context, id uuid.UUID) (*FaceDetection, error) {
	var fd FaceDetection
	err := r.db.GetContext(ctx, &fd, `SELECT * FROM face_detections WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get face detection: %w", err)
	}
	return &fd, nil
}

// ListByAsset returns every detection for an asset.
func (r *FaceRepository) ListByAsset(ctx context.Context, assetID uuid.UUID) ([]FaceDetection, error) {
	var faces []FaceDetection
	err := r.db.SelectContext(ctx, &faces, `SELECT * FROM face_detections WHERE asset_id = $1 ORDER BY id ASC`, assetID)
	return faces, err
}

// ListByPerson returns every detection assigned to a person.
func (r *FaceRepository) ListByPerson(ctx context.Context, personID uuid.UUID) ([]FaceDetection, error) {
	var faces []FaceDetection
	err := r.db.SelectContext(ctx, &faces, `SELECT * FROM face_detections WHERE person_id = $1 ORDER BY id ASC`, personID)
	return faces, err
}

// ListAllEmbedded streams every face detection that has a non-pending
// embedding, for the full re-cluster job.
func (r *FaceRepository) ListAllEmbedded(ctx context.Context) ([]FaceDetection, error) {
	var faces []FaceDetection
	err := r.db.SelectContext(ctx, &faces, `
		SELECT * FROM face_detections WHERE embedding_pending = false ORDER BY id ASC`)
	return faces, err
}

// ClearAllPersonAssignments clears person_id on every face detection, used
// at the start of a full re-cluster.
func (r *FaceRepository) ClearAllPersonAssignments(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `UPDATE face_detections SET person_id = NULL`)
	return err
}

// ReassignBatch moves a set of faces onto a new person in one statement,
// used by the full re-cluster job per cluster.
func (r *FaceRepository) ReassignBatch(ctx context.Context, faceIDs []uuid.UUID, personID *uuid.UUID) error {
	if len(faceIDs) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `UPDATE face_detections SET person_id = $2 WHERE id = ANY($1)`,
		uuidArray(faceIDs), personID)
	return err
}
