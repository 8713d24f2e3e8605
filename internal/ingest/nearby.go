package ingest

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"photokeep/internal/store"
)

// FindNearDuplicates returns active assets whose perceptual hash is within
// maxHamming bits of the given asset's hash, excluding the asset itself —
// spec §4.6's "near-duplicate detection (separate from exact dedup)",
// read-only and never mutating identity.
func FindNearDuplicates(ctx context.Context, assets *store.AssetRepository, assetID uuid.UUID, maxHamming int) ([]store.Asset, error) {
	a, err := assets.GetAssetByID(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("ingest: find near duplicates: %w", err)
	}

	candidates, err := assets.ListByPerceptualHashNear(ctx, a.PerceptualHash, maxHamming)
	if err != nil {
		return nil, fmt.Errorf("ingest: find near duplicates: %w", err)
	}

	out := candidates[:0]
	for _, c := range candidates {
		if c.ID == assetID {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
