package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"photokeep/internal/database"
)

// CaptionRepository is the CRUD surface over the captions table, enforcing
// the max-three-non-user-edited-variants invariant and the rule that
// user-edited captions are never overwritten by regeneration.
type CaptionRepository struct {
	db *database.DB
}

func NewCaptionRepository(db *database.DB) *CaptionRepository {
	return &CaptionRepository{db: db}
}

// AppendCaption inserts a new generated caption, evicting the oldest
// non-user-edited variant if the asset is already at the cap. If a
// non-user-edited caption with identical text from the same provider+version
// already exists, it is loaded into c and nothing is inserted (idempotent
// re-run).
func (r *CaptionRepository) AppendCaption(ctx context.Context, c *Caption) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var existing []Caption
		if err := tx.SelectContext(ctx, &existing, `
			SELECT * FROM captions WHERE asset_id = $1 AND user_edited = false
			ORDER BY created_at ASC
			FOR UPDATE`, c.AssetID); err != nil {
			return fmt.Errorf("store: list captions for cap check: %w", err)
		}
		for _, e := range existing {
			if e.Provider == c.Provider && e.ModelVersion == c.ModelVersion && e.Text == c.Text {
				*c = e
				return nil
			}
		}
		if len(existing) >= MaxNonUserCaptionVariants {
			oldest := existing[0]
			if _, err := tx.ExecContext(ctx, `DELETE FROM captions WHERE id = $1`, oldest.ID); err != nil {
				return fmt.Errorf("store: evict oldest caption: %w", err)
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO captions (id, asset_id, text, provider, model_version, user_edited, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, false, now(), now())`,
			c.ID, c.AssetID, c.Text, c.Provider, c.ModelVersion)
		if err != nil {
			return fmt.Errorf("store: insert caption: %w", err)
		}
		return nil
	})
}

// EditCaption marks a caption user_edited and updates its text; user-edited
// captions are permanently exempt from eviction and regeneration overwrite.
func (r *CaptionRepository) EditCaption(ctx context.Context, id uuid.UUID, text string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE captions SET text = $2, user_edited = true, updated_at = now() WHERE id = $1`, id, text)
	return err
}

// ListByAsset returns every caption (generated and user-edited) for an asset.
func (r *CaptionRepository) ListByAsset(ctx context.Context, assetID uuid.UUID) ([]Caption, error) {
	var captions []Caption
	err := r.db.SelectContext(ctx, &captions, `
		SELECT * FROM captions WHERE asset_id = $1 ORDER BY created_at ASC`, assetID)
	return captions, err
}

// SearchByText returns asset ids whose caption text contains substr
// (case-insensitive), used by the search service's caption filter.
func (r *CaptionRepository) SearchByText(ctx context.Context, substr string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids, `
		SELECT DISTINCT asset_id FROM captions WHERE text ILIKE '%' || $1 || '%'`, substr)
	return ids, err
}
