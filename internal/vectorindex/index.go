// Package vectorindex is the Vector Index (C3): a flat, inner-product index
// over L2-normalized image embedding vectors of fixed dimension for a given
// model, with gob-persisted snapshots and a single-writer/many-reader
// concurrency model. Grounded on the teacher's worker-pool + sync.WaitGroup
// state-management style (internal/imaging/service.go), adapted here into an
// atomic.Pointer snapshot swap instead of a job channel.
package vectorindex

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Identity pins a snapshot to the exact model it was built for (spec §4.3:
// "on load, verify it matches the current (model_name, model_version, D)
// registered in config; on mismatch, discard and schedule a rebuild").
type Identity struct {
	ModelName    string
	ModelVersion string
	Dim          int
}

// Match reports whether snapshot identity id was built for config identity want.
func (id Identity) Match(want Identity) bool {
	return id.ModelName == want.ModelName && id.ModelVersion == want.ModelVersion && id.Dim == want.Dim
}

// Result is one hit from Query: an asset id and its inner-product score.
type Result struct {
	AssetID uuid.UUID
	Score   float64
}

type snapshot struct {
	Identity Identity
	Counter  int64
	Vectors  map[uuid.UUID][]float64
}

func cloneSnapshot(s *snapshot) *snapshot {
	cp := &snapshot{Identity: s.Identity, Counter: s.Counter, Vectors: make(map[uuid.UUID][]float64, len(s.Vectors))}
	for k, v := range s.Vectors {
		cp.Vectors[k] = v
	}
	return cp
}

// Index is the flat in-memory inner-product index. Reads take a lock-free
// atomic snapshot pointer; writes serialize through writeMu and build a new
// snapshot copy-on-write, then swap it in — matching spec §4.3's
// "queries use a stable snapshot pointer swapped atomically after each batch."
type Index struct {
	current  atomic.Pointer[snapshot]
	writeMu  sync.Mutex
	identity Identity
}

// New creates an empty index for the given model identity.
func New(identity Identity) *Index {
	idx := &Index{identity: identity}
	idx.current.Store(&snapshot{Identity: identity, Vectors: make(map[uuid.UUID][]float64)})
	return idx
}

// Identity returns the model identity this index is configured for.
func (idx *Index) Identity() Identity { return idx.identity }

// Add inserts or replaces the vector for assetID. v must already be
// L2-normalized and of length idx.identity.Dim.
func (idx *Index) Add(assetID uuid.UUID, v []float64) error {
	if len(v) != idx.identity.Dim {
		return fmt.Errorf("vectorindex: vector dim %d does not match index dim %d", len(v), idx.identity.Dim)
	}
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()
	cur := idx.current.Load()
	next := cloneSnapshot(cur)
	cp := make([]float64, len(v))
	copy(cp, v)
	next.Vectors[assetID] = cp
	next.Counter++
	idx.current.Store(next)
	return nil
}

// AddBatch is the bulk form of Add, building one new snapshot for the whole
// batch rather than one per vector — used by the rebuild task.
func (idx *Index) AddBatch(entries map[uuid.UUID][]float64) error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()
	cur := idx.current.Load()
	next := cloneSnapshot(cur)
	for assetID, v := range entries {
		if len(v) != idx.identity.Dim {
			return fmt.Errorf("vectorindex: vector dim %d does not match index dim %d", len(v), idx.identity.Dim)
		}
		cp := make([]float64, len(v))
		copy(cp, v)
		next.Vectors[assetID] = cp
	}
	next.Counter += int64(len(entries))
	idx.current.Store(next)
	return nil
}

// Remove deletes assetID's vector, if present.
func (idx *Index) Remove(assetID uuid.UUID) {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()
	cur := idx.current.Load()
	if _, ok := cur.Vectors[assetID]; !ok {
		return
	}
	next := cloneSnapshot(cur)
	delete(next.Vectors, assetID)
	next.Counter++
	idx.current.Store(next)
}

// Size returns the number of vectors currently indexed.
func (idx *Index) Size() int {
	return len(idx.current.Load().Vectors)
}

// Counter returns the index's internal change counter (one per Add or Remove,
// the batch size per AddBatch), persisted with the snapshot. Nothing compares
// it with store.IndexStateRepository's counter.
func (idx *Index) Counter() int64 {
	return idx.current.Load().Counter
}

// Query returns the k nearest vectors to v by inner product, descending,
// ties broken by asset_id ascending (spec §8 determinism requirement).
func (idx *Index) Query(v []float64, k int) ([]Result, error) {
	if len(v) != idx.identity.Dim {
		return nil, fmt.Errorf("vectorindex: query vector dim %d does not match index dim %d", len(v), idx.identity.Dim)
	}
	snap := idx.current.Load()
	results := make([]Result, 0, len(snap.Vectors))
	for assetID, vec := range snap.Vectors {
		results = append(results, Result{AssetID: assetID, Score: innerProduct(v, vec)})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].AssetID.String() < results[j].AssetID.String()
	})
	if k > 0 && k < len(results) {
		results = results[:k]
	}
	return results, nil
}

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

// persistedSnapshot is the gob-encoded snapshot format written by Persist.
type persistedSnapshot struct {
	Identity Identity
	Counter  int64
	Vectors  map[uuid.UUID][]float64
}

// Persist serializes the current snapshot to path via gob, atomically
// (write-to-temp-then-rename, matching internal/artifacts's discipline).
func (idx *Index) Persist(path string) error {
	snap := idx.current.Load()
	ps := persistedSnapshot{Identity: snap.Identity, Counter: snap.Counter, Vectors: snap.Vectors}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(ps); err != nil {
		return fmt.Errorf("vectorindex: encode snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-index-*")
	if err != nil {
		return fmt.Errorf("vectorindex: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("vectorindex: write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("vectorindex: close snapshot temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("vectorindex: rename snapshot into place: %w", err)
	}
	return nil
}

// Load reads a gob snapshot from path. If its identity doesn't match want,
// Load returns (nil, false, nil) so the caller schedules an index_rebuild
// instead of treating this as an error (spec §4.3).
func Load(path string, want Identity) (*Index, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("vectorindex: read snapshot: %w", err)
	}

	var ps persistedSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&ps); err != nil {
		return nil, false, fmt.Errorf("vectorindex: decode snapshot: %w", err)
	}
	if !ps.Identity.Match(want) {
		return nil, false, nil
	}

	idx := &Index{identity: ps.Identity}
	idx.current.Store(&snapshot{Identity: ps.Identity, Counter: ps.Counter, Vectors: ps.Vectors})
	return idx, true, nil
}

func init() {
	gob.Register(uuid.UUID{})
}
