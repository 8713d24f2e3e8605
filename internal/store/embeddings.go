package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"photokeep/internal/database"
)

// EmbeddingRepository is the CRUD surface over the embeddings table.
type EmbeddingRepository struct {
	db *database.DB
}

func NewEmbeddingRepository(db *database.DB) *EmbeddingRepository {
	return &EmbeddingRepository{db: db}
}

// Upsert writes an embedding row, replacing any prior row for the same
// (asset_id, modality, model_name, model_version) identity (spec §3: "on
// model/version change, new rows coexist" — this is an idempotent re-run of
// the SAME model/version, which must not create a duplicate).
func (r *EmbeddingRepository) Upsert(ctx context.Context, e *Embedding) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO embeddings (id, asset_id, modality, model_name, model_version, dim, device, vector_path, checksum, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (asset_id, modality, model_name, model_version)
		DO UPDATE SET vector_path = EXCLUDED.vector_path, checksum = EXCLUDED.checksum, device = EXCLUDED.device`,
		e.ID, e.AssetID, e.Modality, e.ModelName, e.ModelVersion, e.Dim, e.Device, e.VectorPath, e.Checksum)
	if err != nil {
		return fmt.Errorf("store: upsert embedding: %w", err)
	}
	return nil
}

// GetByIdentity returns the embedding for this exact (asset, modality, model,
// version), or nil if it doesn't exist yet.
func (r *EmbeddingRepository) GetByIdentity(ctx context.Context, assetID uuid.UUID, modality Modality, modelName, modelVersion string) (*Embedding, error) {
	var e Embedding
	err := r.db.GetContext(ctx, &e, `
		SELECT * FROM embeddings WHERE asset_id = $1 AND modality = $2 AND model_name = $3 AND model_version = $4`,
		assetID, modality, modelName, modelVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get embedding by identity: %w", err)
	}
	return &e, nil
}

// CountImageEmbeddings returns the number of image embedding rows for
// (modelName, modelVersion), used by C3's rebuild task to report progress
// against a known total (spec's "progress is reported" requirement).
func (r *EmbeddingRepository) CountImageEmbeddings(ctx context.Context, modelName, modelVersion string) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n,
		`SELECT count(*) FROM embeddings WHERE modality = 'image' AND model_name = $1 AND model_version = $2`,
		modelName, modelVersion)
	if err != nil {
		return 0, fmt.Errorf("store: count image embeddings: %w", err)
	}
	return n, nil
}

// StreamImageEmbeddings fetches image embeddings for (modelName, modelVersion)
// in fixed-size batches for C3's rebuild task, calling fn per batch.
func (r *EmbeddingRepository) StreamImageEmbeddings(ctx context.Context, modelName, modelVersion string, batchSize int, fn func(batch []Embedding) error) error {
	var lastID uuid.UUID
	for {
		var batch []Embedding
		err := r.db.SelectContext(ctx, &batch, `
			SELECT * FROM embeddings
			WHERE modality = 'image' AND model_name = $1 AND model_version = $2 AND id > $3
			ORDER BY id ASC
			LIMIT $4`, modelName, modelVersion, lastID, batchSize)
		if err != nil {
			return fmt.Errorf("store: stream embeddings: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		lastID = batch[len(batch)-1].ID
		if len(batch) < batchSize {
			return nil
		}
	}
}

// PurgeStale deletes embeddings for (modelName) whose version is not
// currentVersion — run after a successful index rebuild (spec §4.2: "stale
// rows are purged after index rebuild").
func (r *EmbeddingRepository) PurgeStale(ctx context.Context, modelName, currentVersion string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM embeddings WHERE model_name = $1 AND model_version <> $2`, modelName, currentVersion)
	if err != nil {
		return 0, fmt.Errorf("store: purge stale embeddings: %w", err)
	}
	return res.RowsAffected()
}
