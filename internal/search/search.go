// Package search is the Search Service (C8): the four query forms of spec
// §4.8 over the Vector Index, the Metadata Store, and the Person Clusterer's
// name lookup, with a hybrid cosine/person/recency ranking formula for text
// and similar-to-asset queries. Grounded on the teacher's
// POIRepository.Search dynamic-filter query-building style
// (poi_repository_search.go), adapted from a single SQL WHERE clause to a
// vector-index candidate fetch followed by an in-process filter-and-rank
// pass, since ranking here mixes a cosine score the store does not hold.
package search

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"photokeep/internal/apierrors"
	"photokeep/internal/config"
	"photokeep/internal/providers"
	"photokeep/internal/store"
	"photokeep/internal/vectorindex"
)

// Filters narrows a text or similar-to-asset query (spec §4.8: "date range,
// has_person_id, tags, mime type"). Tags is accepted but not applied: no
// module in this system models a tag as a first-class entity, so there is
// nothing to filter against.
type Filters struct {
	TakenAfter  *time.Time
	TakenBefore *time.Time
	HasPersonID *uuid.UUID
	Tags        []string
	MIME        string
}

// Page is a pagination request: 1-indexed page number and page size.
type Page struct {
	Number int
	Size   int
}

func (p Page) normalized() (limit, offset int) {
	limit = p.Size
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}
	page := p.Number
	if page < 1 {
		page = 1
	}
	return limit, (page - 1) * limit
}

// Hit is one ranked result: the asset plus the score it was ranked by (zero
// for query forms that do not rank, e.g. person-scoped listing).
type Hit struct {
	Asset store.Asset
	Score float64
}

// Results is a single page of a search, with the total candidate count
// before pagination for spec §4.8's "results paginate ... with total
// returned".
type Results struct {
	Hits  []Hit
	Total int
}

// Service is the Search Service's external surface.
type Service interface {
	TextQuery(ctx context.Context, text string, filters Filters, page Page) (Results, error)
	SimilarToAsset(ctx context.Context, assetID uuid.UUID, filters Filters, page Page) (Results, error)
	PersonListing(ctx context.Context, personID uuid.UUID, page Page) (Results, error)
	NameSearch(ctx context.Context, nameSubstr string, page Page) (Results, error)
}

type service struct {
	cfg        *config.Config
	assets     *store.AssetRepository
	embeddings *store.EmbeddingRepository
	persons    *store.PersonRepository
	index      *vectorindex.Index
	textEmbed  providers.TextEmbedder
}

// New constructs the Search Service.
func New(cfg *config.Config, assets *store.AssetRepository, embeddings *store.EmbeddingRepository,
	persons *store.PersonRepository, index *vectorindex.Index, textEmbed providers.TextEmbedder) Service {
	return &service{cfg: cfg, assets: assets, embeddings: embeddings, persons: persons, index: index, textEmbed: textEmbed}
}

// kFetchMultiplier is how much larger a candidate fetch is than the
// requested page, so metadata filters have room to remove hits without
// starving the page (spec §4.8: "k_fetch > k_return to allow filtering").
const kFetchMultiplier = 5

// TextQuery embeds text and ranks the Vector Index's nearest image
// embeddings by the hybrid score.
func (s *service) TextQuery(ctx context.Context, text string, filters Filters, page Page) (Results, error) {
	if text == "" {
		return Results{}, apierrors.New(apierrors.KindValidation, "query text must not be empty")
	}
	if s.textEmbed == nil {
		return Results{}, apierrors.New(apierrors.KindPermanentConfig, "no text embedder configured")
	}

	v, _, _, err := s.textEmbed.EmbedText(ctx, text)
	if err != nil {
		return Results{}, apierrors.Wrap(apierrors.KindTransientProvider, "embed query text", err)
	}
	return s.rankedQuery(ctx, v, filters, page)
}

// SimilarToAsset uses assetID's own stored image embedding as the query
// vector.
func (s *service) SimilarToAsset(ctx context.Context, assetID uuid.UUID, filters Filters, page Page) (Results, error) {
	identity := s.index.Identity()
	e, err := s.embeddings.GetByIdentity(ctx, assetID, store.ModalityImage, identity.ModelName, identity.ModelVersion)
	if err != nil {
		return Results{}, fmt.Errorf("search: similar to asset: %w", err)
	}
	if e == nil {
		return Results{}, apierrors.New(apierrors.KindNotFound, "asset has no image embedding yet")
	}
	v, err := readVectorArtifact(e.VectorPath)
	if err != nil {
		return Results{}, err
	}
	return s.rankedQuery(ctx, v, filters, page)
}

// PersonListing returns a person's assets ordered by taken_at desc,
// paginated — spec §4.8's unranked listing form.
func (s *service) PersonListing(ctx context.Context, personID uuid.UUID, page Page) (Results, error) {
	limit, offset := page.normalized()
	assets, total, err := s.assets.ListAssets(ctx, &personID, limit, offset)
	if err != nil {
		return Results{}, fmt.Errorf("search: person listing: %w", err)
	}
	hits := make([]Hit, len(assets))
	for i, a := range assets {
		hits[i] = Hit{Asset: a}
	}
	return Results{Hits: hits, Total: total}, nil
}

// NameSearch matches Person.display_name by case-insensitive substring, then
// unions the assets of every matched person.
func (s *service) NameSearch(ctx context.Context, nameSubstr string, page Page) (Results, error) {
	persons, err := s.persons.SearchByNameSubstring(ctx, nameSubstr)
	if err != nil {
		return Results{}, fmt.Errorf("search: name search: %w", err)
	}

	seen := make(map[uuid.UUID]store.Asset)
	for _, p := range persons {
		personID := p.ID
		assets, _, err := s.assets.ListAssets(ctx, &personID, 1000, 0)
		if err != nil {
			return Results{}, fmt.Errorf("search: name search: list assets for person %s: %w", personID, err)
		}
		for _, a := range assets {
			seen[a.ID] = a
		}
	}

	all := make([]store.Asset, 0, len(seen))
	for _, a := range seen {
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool {
		ti, tj := all[i].TakenAt, all[j].TakenAt
		switch {
		case ti == nil && tj == nil:
			return all[i].ID.String() < all[j].ID.String()
		case ti == nil:
			return false
		case tj == nil:
			return true
		case !ti.Equal(*tj):
			return ti.After(*tj)
		default:
			return all[i].ID.String() < all[j].ID.String()
		}
	})

	limit, offset := page.normalized()
	total := len(all)
	if offset >= total {
		return Results{Total: total}, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	pageSlice := all[offset:end]
	hits := make([]Hit, len(pageSlice))
	for i, a := range pageSlice {
		hits[i] = Hit{Asset: a}
	}
	return Results{Hits: hits, Total: total}, nil
}
