package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// GetByIDs returns the asset rows for ids, in no particular order; missing
// ids are simply absent from the result. Used by the Search Service to
// materialize metadata for a vector index candidate set (spec §4.8).
func (r *AssetRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]Asset, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	var assets []Asset
	if err := r.db.SelectContext(ctx, &assets,
		`SELECT * FROM assets WHERE id = ANY($1)`, pq.Array(strs)); err != nil {
		return nil, fmt.Errorf("store: get assets by ids: %w", err)
	}
	return assets, nil
}

// PersonIDsForAssets returns, for each asset id with at least one
// person-assigned face, the set of distinct person ids appearing in it
// (via the asset_persons view) — used by the Search Service's person-match
// ranking bonus.
func (r *AssetRepository) PersonIDsForAssets(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	type row struct {
		AssetID  uuid.UUID `db:"asset_id"`
		PersonID uuid.UUID `db:"person_id"`
	}
	var rows []row
	if err := r.db.SelectContext(ctx, &rows,
		`SELECT asset_id, person_id FROM asset_persons WHERE asset_id = ANY($1)`, pq.Array(strs)); err != nil {
		return nil, fmt.Errorf("store: person ids for assets: %w", err)
	}
	out := make(map[uuid.UUID][]uuid.UUID, len(rows))
	for _, rr := range rows {
		out[rr.AssetID] = append(out[rr.AssetID], rr.PersonID)
	}
	return out, nil
}
