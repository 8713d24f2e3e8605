package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"photokeep/internal/apierrors"
	"photokeep/internal/artifacts"
	"photokeep/internal/store"
)

// rankedQuery runs the shared candidate-fetch-then-rank path used by both
// TextQuery and SimilarToAsset: fetch k_fetch nearest neighbors from the
// Vector Index, load their metadata, drop anything a filter excludes, score
// the rest with the hybrid formula, and paginate.
func (s *service) rankedQuery(ctx context.Context, v []float64, filters Filters, page Page) (Results, error) {
	limit, offset := page.normalized()
	kFetch := (offset + limit) * kFetchMultiplier
	if kFetch < limit {
		kFetch = limit
	}

	raw, err := s.index.Query(v, kFetch)
	if err != nil {
		return Results{}, fmt.Errorf("search: vector query: %w", err)
	}
	if len(raw) == 0 {
		return Results{}, nil
	}

	ids := make([]uuid.UUID, len(raw))
	scoreByID := make(map[uuid.UUID]float64, len(raw))
	for i, r := range raw {
		ids[i] = r.AssetID
		scoreByID[r.AssetID] = r.Score
	}

	assetRows, err := s.assets.GetByIDs(ctx, ids)
	if err != nil {
		return Results{}, fmt.Errorf("search: load candidate assets: %w", err)
	}
	byID := make(map[uuid.UUID]store.Asset, len(assetRows))
	for _, a := range assetRows {
		byID[a.ID] = a
	}

	var personByAsset map[uuid.UUID][]uuid.UUID
	if filters.HasPersonID != nil {
		personByAsset, err = s.assets.PersonIDsForAssets(ctx, ids)
		if err != nil {
			return Results{}, fmt.Errorf("search: load person assignments: %w", err)
		}
	}

	now := time.Now()
	hits := make([]Hit, 0, len(raw))
	for _, id := range ids {
		asset, ok := byID[id]
		if !ok || !s.passesFilters(asset, id, filters, personByAsset) {
			continue
		}
		score := s.hybridScore(scoreByID[id], asset, id, filters, personByAsset, now)
		hits = append(hits, Hit{Asset: asset, Score: score})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Asset.ID.String() < hits[j].Asset.ID.String()
	})

	total := len(hits)
	if offset >= total {
		return Results{Total: total}, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return Results{Hits: hits[offset:end], Total: total}, nil
}

func (s *service) passesFilters(asset store.Asset, id uuid.UUID, filters Filters, personByAsset map[uuid.UUID][]uuid.UUID) bool {
	if filters.TakenAfter != nil && (asset.TakenAt == nil || asset.TakenAt.Before(*filters.TakenAfter)) {
		return false
	}
	if filters.TakenBefore != nil && (asset.TakenAt == nil || asset.TakenAt.After(*filters.TakenBefore)) {
		return false
	}
	if filters.MIME != "" && asset.MIME != filters.MIME {
		return false
	}
	if filters.HasPersonID != nil {
		if !personMatches(personByAsset[id], *filters.HasPersonID) {
			return false
		}
	}
	return true
}

func personMatches(personIDs []uuid.UUID, want uuid.UUID) bool {
	for _, p := range personIDs {
		if p == want {
			return true
		}
	}
	return false
}

// hybridScore implements spec §4.8's
// score = α*cosine_similarity + β*person_match_bonus + γ*recency_decay(taken_at).
// The Vector Index's inner product over L2-normalized vectors IS cosine
// similarity, so cosineSimilarity is the raw index score passed through
// unchanged. person_match_bonus is 1 when the query's has_person_id filter
// names a person present on the asset, 0 otherwise (a filtered-out asset
// never reaches scoring at all).
func (s *service) hybridScore(cosineSimilarity float64, asset store.Asset, id uuid.UUID, filters Filters, personByAsset map[uuid.UUID][]uuid.UUID, now time.Time) float64 {
	var personBonus float64
	if filters.HasPersonID != nil && personMatches(personByAsset[id], *filters.HasPersonID) {
		personBonus = 1
	}
	return s.cfg.Alpha*cosineSimilarity + s.cfg.Beta*personBonus + s.cfg.Gamma*recencyDecay(asset.TakenAt, now, s.cfg.Tau)
}

// recencyDecay is exp(-Δt/τ) where Δt is the age of taken_at in hours and τ
// (config Tau) is the decay time constant in hours (the age at which the
// term falls to 1/e). An asset with no
// taken_at (EXIF missing) decays to 0: it gets no recency credit, only
// whatever the cosine term and person bonus contribute.
func recencyDecay(takenAt *time.Time, now time.Time, tau float64) float64 {
	if takenAt == nil || tau <= 0 {
		return 0
	}
	deltaHours := now.Sub(*takenAt).Hours()
	if deltaHours < 0 {
		deltaHours = 0
	}
	return math.Exp(-deltaHours / tau)
}

func readVectorArtifact(path string) ([]float64, error) {
	raw, err := artifacts.Read(path)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindTransientIO, "read query embedding artifact", err)
	}
	v, err := artifacts.DecodeVector(raw)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.KindPermanentDecode, fmt.Sprintf("decode embedding at %s", path), err)
	}
	return v, nil
}
