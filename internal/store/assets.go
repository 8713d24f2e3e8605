package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"photokeep/internal/database"
)

// AssetRepository is the CRUD surface over the assets table, grounded on the
// teacher's ImagingRepository query style.
type AssetRepository struct {
	db *database.DB
}

func NewAssetRepository(db *database.DB) *AssetRepository {
	return &AssetRepository{db: db}
}

// CreateAsset inserts a new Asset row, assigning an id if one is not set.
func (r *AssetRepository) CreateAsset(ctx context.Context, a *Asset) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	query := `
		INSERT INTO assets (id, path, sha256, perceptual_hash, mime, width, height,
			orientation, taken_at, camera, gps_lat, gps_lon, size_bytes, imported_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING imported_at`
	return r.db.QueryRowxContext(ctx, query,
		a.ID, a.Path, a.SHA256, a.PerceptualHash, a.MIME, a.Width, a.Height,
		a.Orientation, a.TakenAt, a.Camera, a.GPSLat, a.GPSLon, a.SizeBytes, a.ImportedAt, a.Status,
	).Scan(&a.ImportedAt)
}

// GetAssetBySHA256 returns the asset with this content hash, or nil if none exists.
func (r *AssetRepository) GetAssetBySHA256(ctx context.Context, sha256 []byte) (*Asset, error) {
	var a Asset
	err := r.db.GetContext(ctx, &a, `SELECT * FROM assets WHERE sha256 = $1`, sha256)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get asset by sha256: %w", err)
	}
	return &a, nil
}

// GetAssetByID returns the asset with this id, or ErrNotFound.
func (r *AssetRepository) GetAssetByID(ctx context.Context, id uuid.UUID) (*Asset, error) {
	var a Asset
	err := r.db.GetContext(ctx, &a, `SELECT * FROM assets WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get asset by id: %w", err)
	}
	return &a, nil
}

// UpdateAssetPath sets path and marks the asset active (used on rescan when
// an existing active asset's file moved).
func (r *AssetRepository) UpdateAssetPath(ctx context.Context, id uuid.UUID, path string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE assets SET path = $2, status = 'active' WHERE id = $1`, id, path)
	return err
}

// ReactivateAsset transitions a missing asset back to active at a (possibly
// new) path.
func (r *AssetRepository) ReactivateAsset(ctx context.Context, id uuid.UUID, path string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE assets SET path = $2, status = 'active' WHERE id = $1 AND status = 'missing'`, id, path)
	return err
}

// MarkMissing transitions every active asset not present in seenIDs to missing.
// Used once per full ingestion scan.
func (r *AssetRepository) MarkMissing(ctx context.Context, seenIDs []uuid.UUID) (int64, error) {
	strs := make([]string, len(seenIDs))
	for i, id := range seenIDs {
		strs[i] = id.String()
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE assets SET status = 'missing' WHERE status = 'active' AND NOT (id = ANY($1))`,
		pq.Array(strs))
	if err != nil {
		return 0, fmt.Errorf("store: mark missing: %w", err)
	}
	return res.RowsAffected()
}

// ListByPerceptualHashNear returns active assets whose perceptual hash is
// within maxHamming bits of h — the near-duplicate query of spec §4.6. Exact
// Hamming distance is computed in Go over every active asset, since Postgres
// has no native popcount-distance index.
func (r *AssetRepository) ListByPerceptualHashNear(ctx context.Context, h int64, maxHamming int) ([]Asset, error) {
	var candidates []Asset
	if err := r.db.SelectContext(ctx, &candidates,
		`SELECT * FROM assets WHERE status = 'active'`); err != nil {
		return nil, fmt.Errorf("store: list for near-duplicate scan: %w", err)
	}
	out := candidates[:0]
	for _, a := range candidates {
		if hammingDistance64(a.PerceptualHash, h) <= maxHamming {
			out = append(out, a)
		}
	}
	return out, nil
}

func hammingDistance64(a, b int64) int {
	x := uint64(a) ^ uint64(b)
	count := 0
	for x != 0 {
		count++
		x &= x - 1
	}
	return count
}

// ListAssets returns a page of assets ordered by taken_at desc, optionally
// filtered to a single person via the asset_persons derived view.
func (r *AssetRepository) ListAssets(ctx context.Context, personID *uuid.UUID, limit, offset int) ([]Asset, int, error) {
	var assets []Asset
	var total int

	if personID != nil {
		if err := r.db.SelectContext(ctx, &assets, `
			SELECT a.* FROM assets a
			JOIN asset_persons ap ON ap.asset_id = a.id
			WHERE ap.person_id = $1
			ORDER BY a.taken_at DESC NULLS LAST, a.id ASC
			LIMIT $2 OFFSET $3`, *personID, limit, offset); err != nil {
			return nil, 0, fmt.Errorf("store: list assets by person: %w", err)
		}
		if err := r.db.GetContext(ctx, &total, `
			SELECT count(*) FROM asset_persons WHERE person_id = $1`, *personID); err != nil {
			return nil, 0, fmt.Errorf("store: count assets by person: %w", err)
		}
		return assets, total, nil
	}

	if err := r.db.SelectContext(ctx, &assets, `
		SELECT * FROM assets
		ORDER BY taken_at DESC NULLS LAST, id ASC
		LIMIT $1 OFFSET $2`, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("store: list assets: %w", err)
	}
	if err := r.db.GetContext(ctx, &total, `SELECT count(*) FROM assets`); err != nil {
		return nil, 0, fmt.Errorf("store: count assets: %w", err)
	}
	return assets, total, nil
}
