package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"photokeep/internal/database"
)

// PersonRepository is the CRUD and admin-operation surface over persons,
// grounded on the teacher's PhotoRepository.VoteWithToggle: every mutation
// that touches an aggregate (here, centroid/member_count) is a single
// transactional read-modify-write, and every admin op emits an audit row.
type PersonRepository struct {
	db *database.DB
}

func NewPersonRepository(db *database.DB) *PersonRepository {
	return &PersonRepository{db: db}
}

// CreateSeeded creates a new active person whose centroid is exactly v
// (already L2-normalized by the caller), member_count 1.
func (r *PersonRepository) CreateSeeded(ctx context.Context, faceID uuid.UUID, v []float64) (*Person, error) {
	p := &Person{ID: uuid.New(), Centroid: Vector(v), MemberCount: 1, Active: true}
	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO persons (id, centroid, member_count, active, created_at, updated_at)
			VALUES ($1, $2, 1, true, now(), now())`, p.ID, p.Centroid); err != nil {
			return fmt.Errorf("store: seed person: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE face_detections SET person_id = $2 WHERE id = $1`, faceID, p.ID); err != nil {
			return fmt.Errorf("store: assign seeding face: %w", err)
		}
		return nil
	})
	return p, err
}

// AssignIncremental is the incremental-clustering transactional core (spec
// §4.7): assigns faceID to personID, recomputes centroid as
// (centroid*n + v)/(n+1) then L2-normalizes, increments member_count.
func (r *PersonRepository) AssignIncremental(ctx context.Context, personID, faceID uuid.UUID, v []float64) error {
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var p Person
		if err := tx.GetContext(ctx, &p, `SELECT * FROM persons WHERE id = $1 FOR UPDATE`, personID); err != nil {
			return fmt.Errorf("store: lock person for incremental assign: %w", err)
		}
		newCentroid := weightedMeanNormalize(p.Centroid, p.MemberCount, v)
		if _, err := tx.ExecContext(ctx, `
			UPDATE persons SET centroid = $2, member_count = member_count + 1, updated_at = now() WHERE id = $1`,
			personID, Vector(newCentroid)); err != nil {
			return fmt.Errorf("store: update person centroid: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE face_detections SET person_id = $2 WHERE id = $1`, faceID, personID); err != nil {
			return fmt.Errorf("store: assign face to person: %w", err)
		}
		return nil
	})
}

func weightedMeanNormalize(centroid Vector, n int, v []float64) []float64 {
	out := make([]float64, len(v))
	for i := range v {
		var c float64
		if i < len(centroid) {
			c = centroid[i]
		}
		out[i] = (c*float64(n) + v[i]) / float64(n+1)
	}
	return l2Normalize(out)
}

func l2Normalize(v []float64) []float64 {
	var sumSq float64
	for _, x := range v {
		sumSq += x * x
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return v
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

// ListActive returns every active person, for the incremental assigner's
// centroid comparison and for /persons listing.
func (r *PersonRepository) ListActive(ctx context.Context) ([]Person, error) {
	var persons []Person
	err := r.db.SelectContext(ctx, &persons, `SELECT * FROM persons WHERE active = true ORDER BY id ASC`)
	return persons, err
}

// GetByID returns a person or ErrNotFound.
func (r *PersonRepository) GetByID(ctx context.Context, id uuid.UUID) (*Person, error) {
	var p Person
	err := r.db.GetContext(ctx, &p, `SELECT * FROM persons WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get person: %w", err)
	}
	return &p, nil
}

// SearchByNameSubstring is a case-insensitive substring match on display_name.
func (r *PersonRepository) SearchByNameSubstring(ctx context.Context, substr string) ([]Person, error) {
	var persons []Person
	err := r.db.SelectContext(ctx, &persons, `
		SELECT * FROM persons WHERE active = true AND display_name ILIKE '%' || $1 || '%'
		ORDER BY display_name ASC`, substr)
	return persons, err
}

// Rename sets display_name and records an audit row.
func (r *PersonRepository) Rename(ctx context.Context, id uuid.UUID, name string) error {
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE persons SET display_name = $2, updated_at = now() WHERE id = $1 AND active = true`, id, name)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return auditTx(ctx, tx, &id, "rename", map[string]any{"name": name})
	})
}

// Merge moves every member of each source person into target, recomputes
// target's centroid as the member-weighted mean of the union, and
// deactivates the sources (spec §4.7). Re-running with the same arguments
// after the sources are already inactive is a no-op — conflict resolved by
// returning the current state, per spec §8 scenario 5.
func (r *PersonRepository) Merge(ctx context.Context, targetID uuid.UUID, sourceIDs []uuid.UUID) (*Person, error) {
	var result *Person
	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var target Person
		if err := tx.GetContext(ctx, &target, `SELECT * FROM persons WHERE id = $1 FOR UPDATE`, targetID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("store: lock merge target: %w", err)
		}

		var liveSources []Person
		if err := tx.SelectContext(ctx, &liveSources,
			`SELECT * FROM persons WHERE id = ANY($1) AND active = true FOR UPDATE`, uuidArray(sourceIDs)); err != nil {
			return fmt.Errorf("store: lock merge sources: %w", err)
		}
		if len(liveSources) == 0 {
			// already merged (or never existed with members): no-op, return
			// current target state.
			result = &target
			return nil
		}

		weightedSum := make([]float64, len(target.Centroid))
		for i, c := range target.Centroid {
			weightedSum[i] = c * float64(target.MemberCount)
		}
		totalMembers := target.MemberCount
		var sourceIDList []uuid.UUID
		for _, s := range liveSources {
			sourceIDList = append(sourceIDList, s.ID)
			for i, c := range s.Centroid {
				if i >= len(weightedSum) {
					weightedSum = append(weightedSum, 0)
				}
				weightedSum[i] += c * float64(s.MemberCount)
			}
			totalMembers += s.MemberCount
		}
		newCentroid := l2Normalize(scaleDown(weightedSum, totalMembers))

		if _, err := tx.ExecContext(ctx, `
			UPDATE persons SET centroid = $2, member_count = $3, updated_at = now() WHERE id = $1`,
			targetID, Vector(newCentroid), totalMembers); err != nil {
			return fmt.Errorf("store: update merge target: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE face_detections SET person_id = $2 WHERE person_id = ANY($1)`,
			uuidArray(sourceIDList), targetID); err != nil {
			return fmt.Errorf("store: reassign merged faces: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE persons SET active = false, member_count = 0, updated_at = now() WHERE id = ANY($1)`,
			uuidArray(sourceIDList)); err != nil {
			return fmt.Errorf("store: deactivate merge sources: %w", err)
		}

		detail, _ := json.Marshal(map[string]any{"target": targetID, "sources": sourceIDList})
		if err := auditTx(ctx, tx, &targetID, "merge", json.RawMessage(detail)); err != nil {
			return err
		}

		target.Centroid = Vector(newCentroid)
		target.MemberCount = totalMembers
		result = &target
		return nil
	})
	return result, err
}

func scaleDown(v []float64, n int) []float64 {
	if n == 0 {
		return v
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / float64(n)
	}
	return out
}

// Split creates one new person per non-empty partition of faceIDs, moving
// each partition's faces onto its new person and recomputing centroids from
// the faces' stored embeddings (caller supplies the embedding vectors keyed
// by face id, since the store itself does not read C2). Faces not named in
// any partition remain on the original person.
func (r *PersonRepository) Split(ctx context.Context, personID uuid.UUID, partitions [][]uuid.UUID, vectorsByFace map[uuid.UUID][]float64) ([]Person, error) {
	var created []Person
	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var original Person
		if err := tx.GetContext(ctx, &original, `SELECT * FROM persons WHERE id = $1 FOR UPDATE`, personID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		for _, partition := range partitions {
			if len(partition) == 0 {
				continue
			}
			var sum []float64
			for _, fid := range partition {
				v := vectorsByFace[fid]
				if len(sum) == 0 {
					sum = make([]float64, len(v))
				}
				for i, x := range v {
					sum[i] += x
				}
			}
			centroid := l2Normalize(scaleDown(sum, len(partition)))
			np := Person{ID: uuid.New(), Centroid: Vector(centroid), MemberCount: len(partition), Active: true}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO persons (id, centroid, member_count, active, created_at, updated_at)
				VALUES ($1, $2, $3, true, now(), now())`, np.ID, np.Centroid, np.MemberCount); err != nil {
				return fmt.Errorf("store: insert split person: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE face_detections SET person_id = $2 WHERE id = ANY($1)`, uuidArray(partition), np.ID); err != nil {
				return fmt.Errorf("store: reassign split faces: %w", err)
			}
			created = append(created, np)
		}

		var remaining int
		if err := tx.GetContext(ctx, &remaining,
			`SELECT count(*) FROM face_detections WHERE person_id = $1`, personID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE persons SET member_count = $2, updated_at = now() WHERE id = $1`, personID, remaining); err != nil {
			return err
		}

		detail, _ := json.Marshal(map[string]any{"partitions": len(partitions)})
		return auditTx(ctx, tx, &personID, "split", json.RawMessage(detail))
	})
	return created, err
}

// Delete reassigns every member to unassigned (person_id NULL) and
// deactivates the person.
func (r *PersonRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE face_detections SET person_id = NULL WHERE person_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE persons SET active = false, member_count = 0, updated_at = now() WHERE id = $1`, id); err != nil {
			return err
		}
		return auditTx(ctx, tx, &id, "delete", map[string]any{})
	})
}

// ClearAllForFullRecluster deactivates every person and their member_count,
// used at the start of a full re-cluster (face_detections.person_id is
// cleared separately by FaceRepository.ClearAllPersonAssignments).
func (r *PersonRepository) ClearAllForFullRecluster(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `UPDATE persons SET active = false, member_count = 0, updated_at = now()`)
	return err
}

// CreateCluster creates one new active person for a full-recluster cluster
// with the given centroid (already L2-normalized) and member count.
func (r *PersonRepository) CreateCluster(ctx context.Context, centroid []float64, memberCount int) (*Person, error) {
	p := &Person{ID: uuid.New(), Centroid: Vector(centroid), MemberCount: memberCount, Active: true}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO persons (id, centroid, member_count, active, created_at, updated_at)
		VALUES ($1, $2, $3, true, now(), now())`, p.ID, p.Centroid, p.MemberCount)
	return p, err
}

func auditTx(ctx context.Context, tx *sqlx.Tx, personID *uuid.UUID, op string, detail any) error {
	raw, ok := detail.(json.RawMessage)
	if !ok {
		var err error
		raw, err = json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("store: marshal audit detail: %w", err)
		}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO person_audit (id, person_id, op, detail, created_at) VALUES ($1, $2, $3, $4, now())`,
		uuid.New(), personID, op, raw)
	if err != nil {
		return fmt.Errorf("store: insert person audit: %w", err)
	}
	return nil
}
