package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"photokeep/internal/database"
)

// CreateAssetWithTasks inserts a new active Asset row and its derivation
// tasks (thumbnail, image_embed, caption, face_detect) in a single
// transaction, per spec §4.6's "create Asset and, in the SAME transaction,
// enqueue ... tasks" — grounded on database.DB.WithTx and on
// TaskRepository.EnqueueTask's insert shape, inlined here since the two
// repositories otherwise each open their own transaction.
func CreateAssetWithTasks(ctx context.Context, db *database.DB, asset *Asset, tasks []*Task) error {
	if asset.ID == uuid.Nil {
		asset.ID = uuid.New()
	}
	return db.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO assets (id, path, sha256, perceptual_hash, mime, width, height,
				orientation, taken_at, camera, gps_lat, gps_lon, size_bytes, imported_at, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			RETURNING imported_at`
		if err := tx.QueryRowxContext(ctx, query,
			asset.ID, asset.Path, asset.SHA256, asset.PerceptualHash, asset.MIME, asset.Width, asset.Height,
			asset.Orientation, asset.TakenAt, asset.Camera, asset.GPSLat, asset.GPSLon, asset.SizeBytes,
			time.Now().UTC(), AssetActive,
		).Scan(&asset.ImportedAt); err != nil {
			return fmt.Errorf("store: insert asset: %w", err)
		}
		asset.Status = AssetActive

		for _, t := range tasks {
			if t.ID == uuid.Nil {
				t.ID = uuid.New()
			}
			if t.Payload == nil {
				t.Payload = json.RawMessage(`{}`)
			}
			if t.MaxRetries == 0 {
				t.MaxRetries = 5
			}
			if t.ScheduledAt.IsZero() {
				t.ScheduledAt = time.Now().UTC()
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO tasks (id, type, payload, state, priority, retry_count, max_retries,
					scheduled_at, created_at, progress_total, cancel_requested, idempotency_key)
				VALUES ($1, $2, $3, 'pending', $4, 0, $5, $6, now(), $7, false, $8)
				ON CONFLICT (idempotency_key) DO NOTHING`,
				t.ID, t.Type, t.Payload, t.Priority, t.MaxRetries, t.ScheduledAt, t.ProgressTotal, t.IdempotencyKey)
			if err != nil {
				return fmt.Errorf("store: enqueue %s task for new asset: %w", t.Type, err)
			}
		}
		return nil
	})
}
