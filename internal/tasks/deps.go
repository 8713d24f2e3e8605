package tasks

import (
	"photokeep/internal/artifacts"
	"photokeep/internal/config"
	"photokeep/internal/providers"
	"photokeep/internal/store"
	"photokeep/internal/vectorindex"
)

// Deps bundles every collaborator a handler needs, wired once at startup in
// cmd/server and passed to RegisterAll.
type Deps struct {
	Assets     *store.AssetRepository
	Embeddings *store.EmbeddingRepository
	Captions   *store.CaptionRepository
	Faces      *store.FaceRepository
	Persons    *store.PersonRepository
	Tasks      *store.TaskRepository
	IndexState *store.IndexStateRepository

	Artifacts *artifacts.Store
	Index     *vectorindex.Index
	Providers providers.Set
	Cfg       *config.Config
	Metrics   Metrics
}
