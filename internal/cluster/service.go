// Package cluster is the Person Clusterer's (C7) admin-facing service layer:
// a thin facade in front of internal/store's PersonRepository and
// internal/tasks' person_recluster dispatch, grounded on the teacher's
// internal/services package shape (a narrow interface plus one concrete
// implementation, see geocoding.go). The clustering algorithms themselves
// (incremental assignment, single-linkage full re-cluster) live in
// internal/tasks since they run as task handlers, not as direct calls; this
// package is what internal/httpapi calls for admin operations and to kick
// off a full re-cluster.
package cluster

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"photokeep/internal/apierrors"
	"photokeep/internal/store"
)

// Service is the admin-operation surface over persons: rename, merge, split,
// delete, and requesting a full re-cluster (spec §4.7).
type Service interface {
	Rename(ctx context.Context, personID uuid.UUID, name string) error
	Merge(ctx context.Context, targetID uuid.UUID, sourceIDs []uuid.UUID) (*store.Person, error)
	Split(ctx context.Context, personID uuid.UUID, partitions [][]uuid.UUID) ([]store.Person, error)
	Delete(ctx context.Context, personID uuid.UUID) error
	RequestFullRecluster(ctx context.Context) (created bool, taskID uuid.UUID, err error)
	List(ctx context.Context) ([]store.Person, error)
	SearchByName(ctx context.Context, substr string) ([]store.Person, error)
	Get(ctx context.Context, personID uuid.UUID) (*store.Person, error)
}

type service struct {
	persons *store.PersonRepository
	faces   *store.FaceRepository
	tasks   *store.TaskRepository
}

// New constructs the Person Clusterer admin service.
func New(persons *store.PersonRepository, faces *store.FaceRepository, tasks *store.TaskRepository) Service {
	return &service{persons: persons, faces: faces, tasks: tasks}
}

func (s *service) Rename(ctx context.Context, personID uuid.UUID, name string) error {
	if name == "" {
		return apierrors.New(apierrors.KindValidation, "name must not be empty")
	}
	if err := s.persons.Rename(ctx, personID, name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apierrors.Wrap(apierrors.KindNotFound, "person not found", err)
		}
		return fmt.Errorf("cluster: rename: %w", err)
	}
	return nil
}

func (s *service) Merge(ctx context.Context, targetID uuid.UUID, sourceIDs []uuid.UUID) (*store.Person, error) {
	if len(sourceIDs) == 0 {
		return nil, apierrors.New(apierrors.KindValidation, "merge requires at least one source person")
	}
	for _, id := range sourceIDs {
		if id == targetID {
			return nil, apierrors.New(apierrors.KindValidation, "a person cannot be merged into itself")
		}
	}
	p, err := s.persons.Merge(ctx, targetID, sourceIDs)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apierrors.Wrap(apierrors.KindNotFound, "merge target not found", err)
		}
		return nil, fmt.Errorf("cluster: merge: %w", err)
	}
	return p, nil
}

// Split delegates to PersonRepository.Split, reading each partition's face
// embeddings from face_detections/artifacts to recompute centroids, since
// spec §4.7's split needs face vectors that the store layer does not itself
// read from the Derived Artifact Store.
func (s *service) Split(ctx context.Context, personID uuid.UUID, partitions [][]uuid.UUID) ([]store.Person, error) {
	if len(partitions) == 0 {
		return nil, apierrors.New(apierrors.KindValidation, "split requires at least one partition")
	}
	vectorsByFace, err := s.loadFaceVectors(ctx, partitions)
	if err != nil {
		return nil, err
	}
	created, err := s.persons.Split(ctx, personID, partitions, vectorsByFace)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apierrors.Wrap(apierrors.KindNotFound, "person not found", err)
		}
		return nil, fmt.Errorf("cluster: split: %w", err)
	}
	return created, nil
}

func (s *service) loadFaceVectors(ctx context.Context, partitions [][]uuid.UUID) (map[uuid.UUID][]float64, error) {
	out := make(map[uuid.UUID][]float64)
	for _, partition := range partitions {
		for _, faceID := range partition {
			face, err := s.faces.GetByID(ctx, faceID)
			if err != nil {
				return nil, apierrors.Wrap(apierrors.KindNotFound, fmt.Sprintf("face %s not found", faceID), err)
			}
			if face.EmbeddingRef == nil {
				return nil, apierrors.New(apierrors.KindConflict, fmt.Sprintf("face %s has no embedding", faceID))
			}
			v, err := readFaceVector(*face.EmbeddingRef)
			if err != nil {
				return nil, err
			}
			out[faceID] = v
		}
	}
	return out, nil
}

func (s *service) Delete(ctx context.Context, personID uuid.UUID) error {
	if err := s.persons.Delete(ctx, personID); err != nil {
		return fmt.Errorf("cluster: delete: %w", err)
	}
	return nil
}

// RequestFullRecluster enqueues a person_recluster{scope:full} task, using a
// fixed idempotency key so a second request while one is already pending or
// running returns the existing task instead of racing it (spec §4.7's
// "only one re-cluster may run at a time").
func (s *service) RequestFullRecluster(ctx context.Context) (bool, uuid.UUID, error) {
	key := "person_recluster:full:v1"
	payload := []byte(`{"scope":"full"}`)
	t := &store.Task{Type: store.TaskPersonRecluster, Payload: payload, IdempotencyKey: &key}
	created, err := s.tasks.EnqueueTask(ctx, t)
	if err != nil {
		return false, uuid.Nil, fmt.Errorf("cluster: enqueue full recluster: %w", err)
	}
	return created, t.ID, nil
}

func (s *service) List(ctx context.Context) ([]store.Person, error) {
	persons, err := s.persons.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("cluster: list persons: %w", err)
	}
	return persons, nil
}

func (s *service) SearchByName(ctx context.Context, substr string) ([]store.Person, error) {
	persons, err := s.persons.SearchByNameSubstring(ctx, substr)
	if err != nil {
		return nil, fmt.Errorf("cluster: search persons by name: %w", err)
	}
	return persons, nil
}

func (s *service) Get(ctx context.Context, personID uuid.UUID) (*store.Person, error) {
	p, err := s.persons.GetByID(ctx, personID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apierrors.Wrap(apierrors.KindNotFound, "person not found", err)
		}
		return nil, fmt.Errorf("cluster: get person: %w", err)
	}
	return p, nil
}
