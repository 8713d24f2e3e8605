package store

import (
	"context"

	"github.com/google/uuid"

	"photokeep/internal/database"
)

// AssetPersonRepository reads the asset_persons derived view (face_detections
// grouped by asset/person), maintained entirely by the face_detections table
// and the view definition — no writes originate here.
type AssetPersonRepository struct {
	db *database.DB
}

func NewAssetPersonRepository(db *database.DB) *AssetPersonRepository {
	return &AssetPersonRepository{db: db}
}

// ListByAsset returns the (person_id, face_count) pairs for a single asset.
func (r *AssetPersonRepository) ListByAsset(ctx context.Context, assetID uuid.UUID) ([]AssetPerson, error) {
	var rows []AssetPerson
	err := r.db.SelectContext(ctx, &rows, `SELECT * FROM asset_persons WHERE asset_id = $1`, assetID)
	return rows, err
}

// HasPerson reports whether any face on assetID is assigned to personID.
func (r *AssetPersonRepository) HasPerson(ctx context.Context, assetID, personID uuid.UUID) (bool, error) {
	var n int
	err := r.db.GetContext(ctx, &n,
		`SELECT count(*) FROM asset_persons WHERE asset_id = $1 AND person_id = $2`, assetID, personID)
	return n > 0, err
}
