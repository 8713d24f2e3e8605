package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"photokeep/internal/apierrors"
	"photokeep/internal/search"
	"photokeep/internal/utils"
)

// searchRequest is the body of POST /search and POST /search/person/vector:
// the text and similar-to-asset forms of spec §4.8, sharing one request
// shape since they share every field but the query itself.
type searchRequest struct {
	Text        string     `json:"text"`
	AssetID     *uuid.UUID `json:"asset_id"`
	TakenAfter  *time.Time `json:"taken_after"`
	TakenBefore *time.Time `json:"taken_before"`
	HasPersonID *uuid.UUID `json:"has_person_id"`
	Tags        []string   `json:"tags"`
	MIME        string     `json:"mime"`
	Page        int        `json:"page"`
	PageSize    int        `json:"page_size"`
}

func (r searchRequest) filters() search.Filters {
	return search.Filters{
		TakenAfter:  r.TakenAfter,
		TakenBefore: r.TakenBefore,
		HasPersonID: r.HasPersonID,
		Tags:        r.Tags,
		MIME:        r.MIME,
	}
}

func (r searchRequest) page() search.Page {
	return search.Page{Number: r.Page, Size: r.PageSize}
}

func (h *handlers) searchText(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, apierrors.Wrap(apierrors.KindValidation, "invalid search request body", err))
		return
	}
	results, err := h.d.Search.TextQuery(c.Request.Context(), req.Text, req.filters(), req.page())
	if err != nil {
		utils.SendError(c, err)
		return
	}
	sendSearchResults(c, results, req.Page, req.PageSize)
}

func (h *handlers) searchSimilar(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, apierrors.Wrap(apierrors.KindValidation, "invalid search request body", err))
		return
	}
	if req.AssetID == nil {
		utils.SendError(c, apierrors.New(apierrors.KindValidation, "asset_id is required"))
		return
	}
	results, err := h.d.Search.SimilarToAsset(c.Request.Context(), *req.AssetID, req.filters(), req.page())
	if err != nil {
		utils.SendError(c, err)
		return
	}
	sendSearchResults(c, results, req.Page, req.PageSize)
}

func (h *handlers) searchPersonListing(c *gin.Context) {
	personID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.SendError(c, apierrors.New(apierrors.KindValidation, "invalid person id"))
		return
	}
	page, pageSize := utils.GetPagination(c)
	results, err := h.d.Search.PersonListing(c.Request.Context(), personID, search.Page{Number: page, Size: pageSize})
	if err != nil {
		utils.SendError(c, err)
		return
	}
	sendSearchResults(c, results, page, pageSize)
}

func (h *handlers) searchPersonByName(c *gin.Context) {
	name := c.Param("name")
	page, pageSize := utils.GetPagination(c)
	results, err := h.d.Search.NameSearch(c.Request.Context(), name, search.Page{Number: page, Size: pageSize})
	if err != nil {
		utils.SendError(c, err)
		return
	}
	sendSearchResults(c, results, page, pageSize)
}

func sendSearchResults(c *gin.Context, results search.Results, page, pageSize int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	utils.SendPaginated(c, results.Hits, page, pageSize, results.Total)
}

