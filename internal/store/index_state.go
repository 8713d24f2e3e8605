package store

import (
	"context"

	"photokeep/internal/database"
)

// IndexStateRepository tracks the vector index change-counter of spec §4.1:
// "A change-counter for the vector index to detect when a rebuild-or-
// incremental-add is required." Every successful image_embed bumps it. The
// counter is only recorded: no code path compares it with the vector index's
// own snapshot counter or uses it to choose between an incremental add and a
// rebuild.
type IndexStateRepository struct {
	db *database.DB
}

func NewIndexStateRepository(db *database.DB) *IndexStateRepository {
	return &IndexStateRepository{db: db}
}

// Bump increments the change counter for (modelName, modelVersion) and
// returns the new value.
func (r *IndexStateRepository) Bump(ctx context.Context, modelName, modelVersion string) (int64, error) {
	var counter int64
	err := r.db.GetContext(ctx, &counter, `
		INSERT INTO vector_index_state (modality, model_name, model_version, change_counter, updated_at)
		VALUES ('image', $1, $2, 1, now())
		ON CONFLICT (modality, model_name, model_version)
		DO UPDATE SET change_counter = vector_index_state.change_counter + 1, updated_at = now()
		RETURNING change_counter`, modelName, modelVersion)
	return counter, err
}

// Current returns the current change counter without bumping it.
func (r *IndexStateRepository) Current(ctx context.Context, modelName, modelVersion string) (int64, error) {
	var counter int64
	err := r.db.GetContext(ctx, &counter, `
		SELECT change_counter FROM vector_index_state
		WHERE modality = 'image' AND model_name = $1 AND model_version = $2`, modelName, modelVersion)
	if err != nil {
		return 0, nil
	}
	return counter, nil
}
