// Package artifacts is the Derived Artifact Store (C2): a content-partitioned
// filesystem tree for thumbnails, raw embedding vectors, and face crops,
// written atomically with a checksum sidecar per file. Grounded on the
// teacher's imaging.Service upload-then-finalize discipline
// (download/process/upload-to-permanent-key/move-original), translated from
// object-storage keys to local paths and from R2Client.MoveObject's
// copy-then-delete to os.Rename.
package artifacts

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Store is the root of the derived artifact filesystem tree.
type Store struct {
	root string
}

// New returns a Store rooted at root, creating it if necessary.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("artifacts: create root: %w", err)
	}
	return &Store{root: root}, nil
}

// ThumbnailPath returns thumbnails/{size}/{id_prefix}/{asset_id}.jpg (spec §4.2).
func (s *Store) ThumbnailPath(assetID string, size int) string {
	return filepath.Join(s.root, "thumbnails", fmt.Sprintf("%d", size), idPrefix(assetID), assetID+".jpg")
}

// EmbeddingPath returns embeddings/{modality}/{model_name}/{asset_id}.f32.
func (s *Store) EmbeddingPath(modality, modelName, assetID string) string {
	return filepath.Join(s.root, "embeddings", modality, modelName, assetID+".f32")
}

// FaceJSONPath returns faces/{asset_id}/{face_idx}.json.
func (s *Store) FaceJSONPath(assetID string, faceIdx int) string {
	return filepath.Join(s.root, "faces", assetID, fmt.Sprintf("%d.json", faceIdx))
}

// FaceCropPath returns faces/{asset_id}/{face_idx}.crop.jpg.
func (s *Store) FaceCropPath(assetID string, faceIdx int) string {
	return filepath.Join(s.root, "faces", assetID, fmt.Sprintf("%d.crop.jpg", faceIdx))
}

func idPrefix(assetID string) string {
	if len(assetID) < 2 {
		return "00"
	}
	return assetID[:2]
}

// Write atomically writes data to path, via a temp file in the same
// directory then os.Rename, and writes a ".sha256" sidecar carrying the
// checksum — the teacher's write-to-temp-then-finalize pattern generalized
// from object storage to local disk.
func Write(path string, data []byte) (checksum []byte, err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifacts: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("artifacts: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	h := sha256.New()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("artifacts: write temp file: %w", err)
	}
	if _, err := h.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("artifacts: hash: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("artifacts: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("artifacts: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return nil, fmt.Errorf("artifacts: rename into place: %w", err)
	}

	sum := h.Sum(nil)
	if err := os.WriteFile(path+".sha256", []byte(fmt.Sprintf("%x", sum)), 0o644); err != nil {
		return nil, fmt.Errorf("artifacts: write checksum sidecar: %w", err)
	}
	return sum, nil
}

// Read loads path and verifies it against its ".sha256" sidecar, returning
// an error if the sidecar is missing, malformed, or mismatched — artifacts
// are reproducible, so a verification failure should be treated by the
// caller as "re-derive", not fatal.
func Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	wantHex, err := os.ReadFile(path + ".sha256")
	if err != nil {
		return nil, fmt.Errorf("artifacts: read checksum sidecar: %w", err)
	}
	sum := sha256.Sum256(data)
	gotHex := fmt.Sprintf("%x", sum)
	if gotHex != string(wantHex) {
		return nil, fmt.Errorf("artifacts: checksum mismatch for %s", path)
	}
	return data, nil
}

// Exists reports whether path (and its sidecar) are both present.
func Exists(path string) bool {
	if _, err := os.Stat(path); err != nil {
		return false
	}
	if _, err := os.Stat(path + ".sha256"); err != nil {
		return false
	}
	return true
}

// Delete removes path and its sidecar, tolerating either being already gone.
func Delete(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(path + ".sha256"); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// CopyInto streams src into the store at path atomically, used when the
// source is itself a file (e.g. a face crop produced in a temp location).
func CopyInto(path string, src io.Reader) (checksum []byte, err error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("artifacts: read source: %w", err)
	}
	return Write(path, data)
}
