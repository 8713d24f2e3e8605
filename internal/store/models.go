// Package store is the Metadata Store (C1): the durable relational home for
// Asset, Task, Embedding, Caption, FaceDetection, Person, and AssetPerson,
// plus the atomic claim primitive the task engine dispatches through.
package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// AssetStatus is the closed set of Asset.status values.
type AssetStatus string

const (
	AssetActive  AssetStatus = "active"
	AssetMissing AssetStatus = "missing"
	AssetError   AssetStatus = "error"
)

// Asset is the identity row for one piece of media, keyed by content hash.
type Asset struct {
	ID              uuid.UUID   `db:"id"`
	Path            string      `db:"path"`
	SHA256          []byte      `db:"sha256"`
	PerceptualHash  int64       `db:"perceptual_hash"`
	MIME            string      `db:"mime"`
	Width           int         `db:"width"`
	Height          int         `db:"height"`
	Orientation     int         `db:"orientation"`
	TakenAt         *time.Time  `db:"taken_at"`
	Camera          *string     `db:"camera"`
	GPSLat          *float64    `db:"gps_lat"`
	GPSLon          *float64    `db:"gps_lon"`
	SizeBytes       int64       `db:"size_bytes"`
	ImportedAt      time.Time   `db:"imported_at"`
	Status          AssetStatus `db:"status"`
}

// Modality is the closed set of Embedding.modality values.
type Modality string

const (
	ModalityImage Modality = "image"
	ModalityText  Modality = "text"
	ModalityFace  Modality = "face"
)

// Embedding points at a vector materialized in the Derived Artifact Store
// (C2) by asset, modality, and model identity.
type Embedding struct {
	ID           uuid.UUID `db:"id"`
	AssetID      uuid.UUID `db:"asset_id"`
	Modality     Modality  `db:"modality"`
	ModelName    string    `db:"model_name"`
	ModelVersion string    `db:"model_version"`
	Dim          int       `db:"dim"`
	Device       string    `db:"device"`
	VectorPath   string    `db:"vector_path"`
	Checksum     []byte    `db:"checksum"`
	CreatedAt    time.Time `db:"created_at"`
}

// Caption is one generated (or user-edited) description of an asset.
type Caption struct {
	ID           uuid.UUID `db:"id"`
	AssetID      uuid.UUID `db:"asset_id"`
	Text         string    `db:"text"`
	Provider     string    `db:"provider"`
	ModelVersion string    `db:"model_version"`
	UserEdited   bool      `db:"user_edited"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// MaxNonUserCaptionVariants is the cap on non-user-edited captions per asset.
const MaxNonUserCaptionVariants = 3

// BBox is a pixel-space bounding box, clamped to the image it was detected in.
type BBox struct {
	X float64 `db:"bbox_x" json:"x"`
	Y float64 `db:"bbox_y" json:"y"`
	W float64 `db:"bbox_w" json:"w"`
	H float64 `db:"bbox_h" json:"h"`
}

// FaceDetection is one detected face within an asset.
type FaceDetection struct {
	ID               uuid.UUID  `db:"id"`
	AssetID          uuid.UUID  `db:"asset_id"`
	BBoxX            float64    `db:"bbox_x"`
	BBoxY            float64    `db:"bbox_y"`
	BBoxW            float64    `db:"bbox_w"`
	BBoxH            float64    `db:"bbox_h"`
	Confidence       float64    `db:"confidence"`
	EmbeddingRef     *string    `db:"embedding_ref"`
	EmbeddingPending bool       `db:"embedding_pending"`
	PersonID         *uuid.UUID `db:"person_id"`
	CreatedAt        time.Time  `db:"created_at"`
}

func (f FaceDetection) BBox() BBox {
	return BBox{X: f.BBoxX, Y: f.BBoxY, W: f.BBoxW, H: f.BBoxH}
}

// Vector is a float64 slice stored as a Postgres array, used for Person.centroid.
type Vector []float64

func (v Vector) Value() (driver.Value, error) {
	return pq.Array([]float64(v)).Value()
}

func (v *Vector) Scan(src any) error {
	var raw []float64
	if err := pq.Array(&raw).Scan(src); err != nil {
		return err
	}
	*v = raw
	return nil
}

// Person is a clustering identity over face embeddings.
type Person struct {
	ID          uuid.UUID `db:"id"`
	DisplayName *string   `db:"display_name"`
	Centroid    Vector    `db:"centroid"`
	MemberCount int       `db:"member_count"`
	Active      bool      `db:"active"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// PersonAudit is an immutable record of an admin operation on the person graph.
type PersonAudit struct {
	ID        uuid.UUID       `db:"id"`
	PersonID  *uuid.UUID      `db:"person_id"`
	Op        string          `db:"op"`
	Detail    json.RawMessage `db:"detail"`
	CreatedAt time.Time       `db:"created_at"`
}

// AssetPerson is the derived (asset_id, person_id, face_count) view.
type AssetPerson struct {
	AssetID   uuid.UUID `db:"asset_id"`
	PersonID  uuid.UUID `db:"person_id"`
	FaceCount int       `db:"face_count"`
}

// TaskState is the closed set of Task.state values and its legal transitions.
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskRunning   TaskState = "running"
	TaskDone      TaskState = "done"
	TaskFailed    TaskState = "failed"
	TaskDead      TaskState = "dead"
	TaskCancelled TaskState = "cancelled"
)

// TaskType is the closed set of task handler dispatch keys.
type TaskType string

const (
	TaskThumbnail        TaskType = "thumbnail"
	TaskImageEmbed       TaskType = "image_embed"
	TaskCaption          TaskType = "caption"
	TaskFaceDetect       TaskType = "face_detect"
	TaskFaceEmbed        TaskType = "face_embed"
	TaskPersonRecluster  TaskType = "person_recluster"
	TaskIndexRebuild     TaskType = "index_rebuild"
	TaskVideoKeyframes   TaskType = "video_keyframes"
)

// Task is one unit of dispatchable work.
type Task struct {
	ID              uuid.UUID       `db:"id"`
	Type            TaskType        `db:"type"`
	Payload         json.RawMessage `db:"payload"`
	State           TaskState       `db:"state"`
	Priority        int             `db:"priority"`
	RetryCount      int             `db:"retry_count"`
	MaxRetries      int             `db:"max_retries"`
	LastError       *string         `db:"last_error"`
	ScheduledAt     time.Time       `db:"scheduled_at"`
	CreatedAt       time.Time       `db:"created_at"`
	StartedAt       *time.Time      `db:"started_at"`
	FinishedAt      *time.Time      `db:"finished_at"`
	ProgressCurrent int             `db:"progress_current"`
	ProgressTotal   int             `db:"progress_total"`
	CancelRequested bool            `db:"cancel_requested"`
	IdempotencyKey  *string         `db:"idempotency_key"`
}

// DecodePayload unmarshals the task payload into v.
func (t Task) DecodePayload(v any) error {
	if len(t.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return fmt.Errorf("store: decode payload for task %s (%s): %w", t.ID, t.Type, err)
	}
	return nil
}

// ErrNotFound is returned by single-row lookups that find nothing.
var ErrNotFound = fmt.Errorf("store: not found")
