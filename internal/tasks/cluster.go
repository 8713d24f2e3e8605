package tasks

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"photokeep/internal/apierrors"
	"photokeep/internal/artifacts"
	"photokeep/internal/store"
)

// progressStep is the cadence (in faces processed) at which the full
// re-cluster job reports progress and observes cancel_requested (spec §4.7:
// "emits progress_current/progress_total at least every P_STEP faces").
const progressStep = 200

func innerProduct(a, b []float64) float64 {
	var sum float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// assignIncremental is the per-face_embed-completion clustering step (spec
// §4.7): compare v against every active person's centroid by inner product,
// assign to the best match if it clears T_assign with margin T_margin over
// the runner-up, else seed a new person.
func (d *Deps) assignIncremental(ctx context.Context, faceID *uuid.UUID) error {
	if faceID == nil {
		return apierrors.New(apierrors.KindPermanentConfig, "incremental recluster requires face_id")
	}
	face, err := d.Faces.GetByID(ctx, *faceID)
	if err != nil {
		return apierrors.Wrap(apierrors.KindNotFound, "face not found", err)
	}
	if face.EmbeddingRef == nil {
		return apierrors.New(apierrors.KindConflict, "face has no embedding yet")
	}
	raw, err := artifacts.Read(*face.EmbeddingRef)
	if err != nil {
		return apierrors.Wrap(apierrors.KindTransientIO, "read face embedding", err)
	}
	v, err := artifacts.DecodeVector(raw)
	if err != nil {
		return apierrors.Wrap(apierrors.KindPermanentDecode, "decode face embedding", err)
	}

	persons, err := d.Persons.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("tasks: list active persons: %w", err)
	}

	var bestID uuid.UUID
	var s1, s2 float64
	s1, s2 = -1, -1
	for _, p := range persons {
		sim := innerProduct(v, p.Centroid)
		if sim > s1 {
			s2 = s1
			s1 = sim
			bestID = p.ID
		} else if sim > s2 {
			s2 = sim
		}
	}

	if s1 >= d.Cfg.TAssign && (s1-s2) >= d.Cfg.TMargin {
		return d.Persons.AssignIncremental(ctx, bestID, *faceID, v)
	}
	_, err = d.Persons.CreateSeeded(ctx, *faceID, v)
	return err
}

// fullRecluster performs single-linkage agglomerative clustering over every
// embedded face at threshold T_cluster. Cutting a single-linkage dendrogram
// at a fixed threshold is exactly the connected components of the graph
// where an edge (i, j) exists iff similarity(i, j) >= T_cluster, so the
// clustering itself is computed in memory via union-find before anything is
// persisted — no DB mutation happens until the whole run completes without
// cancellation, which is what gives cancellation its "pre-run state
// preserved" guarantee (spec §4.7) for free.
func (d *Deps) fullRecluster(ctx context.Context, rt *RunningTask) error {
	_, total, err := d.Tasks.ListTasks(ctx, statePtr(store.TaskRunning), typePtr(store.TaskPersonRecluster), 10, 0)
	if err != nil {
		return fmt.Errorf("tasks: check exclusive recluster: %w", err)
	}
	if total > 1 {
		return apierrors.New(apierrors.KindConflict, "a full re-cluster is already running")
	}

	faces, err := d.Faces.ListAllEmbedded(ctx)
	if err != nil {
		return fmt.Errorf("tasks: list embedded faces: %w", err)
	}
	if len(faces) == 0 {
		return nil
	}

	vectors := make([][]float64, len(faces))
	for i, f := range faces {
		if f.EmbeddingRef == nil {
			continue
		}
		raw, err := artifacts.Read(*f.EmbeddingRef)
		if err != nil {
			return apierrors.Wrap(apierrors.KindTransientIO, "read face embedding", err)
		}
		v, err := artifacts.DecodeVector(raw)
		if err != nil {
			return apierrors.Wrap(apierrors.KindPermanentDecode, "decode face embedding", err)
		}
		vectors[i] = v
	}

	uf := newUnionFind(len(faces))
	processed := 0
	for i := range faces {
		for j := i + 1; j < len(faces); j++ {
			if innerProduct(vectors[i], vectors[j]) >= d.Cfg.TCluster {
				uf.union(i, j)
			}
		}
		processed++
		if processed%progressStep == 0 {
			cancelled, err := rt.Checkpoint(processed, len(faces))
			if err != nil {
				return fmt.Errorf("tasks: recluster checkpoint: %w", err)
			}
			if cancelled {
				return apierrors.New(apierrors.KindCancelled, "full re-cluster cancelled before applying results")
			}
		}
	}

	clusters := make(map[int][]int)
	for i := range faces {
		root := uf.find(i)
		clusters[root] = append(clusters[root], i)
	}

	if err := d.Faces.ClearAllPersonAssignments(ctx); err != nil {
		return fmt.Errorf("tasks: clear face assignments: %w", err)
	}
	if err := d.Persons.ClearAllForFullRecluster(ctx); err != nil {
		return fmt.Errorf("tasks: clear persons: %w", err)
	}

	for _, members := range clusters {
		sum := make([]float64, 0)
		faceIDs := make([]uuid.UUID, 0, len(members))
		for _, idx := range members {
			v := vectors[idx]
			if len(sum) == 0 {
				sum = make([]float64, len(v))
			}
			for k, x := range v {
				sum[k] += x
			}
			faceIDs = append(faceIDs, faces[idx].ID)
		}
		centroid := l2Normalize(scaleDown(sum, len(members)))
		person, err := d.Persons.CreateCluster(ctx, centroid, len(members))
		if err != nil {
			return fmt.Errorf("tasks: create cluster person: %w", err)
		}
		if err := d.Faces.ReassignBatch(ctx, faceIDs, &person.ID); err != nil {
			return fmt.Errorf("tasks: reassign cluster faces: %w", err)
		}
	}

	if _, err := rt.Checkpoint(len(faces), len(faces)); err != nil {
		return fmt.Errorf("tasks: recluster final checkpoint: %w", err)
	}
	return nil
}

func statePtr(s store.TaskState) *store.TaskState { return &s }
func typePtr(t store.TaskType) *store.TaskType     { return &t }

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

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[ra] = rb
	}
}
