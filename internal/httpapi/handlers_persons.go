package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"photokeep/internal/apierrors"
	"photokeep/internal/utils"
)

func (h *handlers) listPersons(c *gin.Context) {
	persons, err := h.d.Cluster.List(c.Request.Context())
	if err != nil {
		utils.SendError(c, err)
		return
	}
	utils.SendOK(c, persons)
}

type renamePersonRequest struct {
	Name string `json:"name"`
}

func (h *handlers) renamePerson(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.SendError(c, apierrors.New(apierrors.KindValidation, "invalid person id"))
		return
	}
	var req renamePersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, apierrors.Wrap(apierrors.KindValidation, "invalid rename request body", err))
		return
	}
	if err := h.d.Cluster.Rename(c.Request.Context(), id, req.Name); err != nil {
		utils.SendError(c, err)
		return
	}
	utils.SendOK(c, gin.H{"id": id, "display_name": req.Name})
}

type mergePersonsRequest struct {
	TargetID  uuid.UUID   `json:"target_id"`
	SourceIDs []uuid.UUID `json:"source_ids"`
}

func (h *handlers) mergePersons(c *gin.Context) {
	var req mergePersonsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, apierrors.Wrap(apierrors.KindValidation, "invalid merge request body", err))
		return
	}
	person, err := h.d.Cluster.Merge(c.Request.Context(), req.TargetID, req.SourceIDs)
	if err != nil {
		utils.SendError(c, err)
		return
	}
	utils.SendOK(c, person)
}

type splitPersonRequest struct {
	Partitions [][]uuid.UUID `json:"partitions"`
}

func (h *handlers) splitPerson(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.SendError(c, apierrors.New(apierrors.KindValidation, "invalid person id"))
		return
	}
	var req splitPersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, apierrors.Wrap(apierrors.KindValidation, "invalid split request body", err))
		return
	}
	created, err := h.d.Cluster.Split(c.Request.Context(), id, req.Partitions)
	if err != nil {
		utils.SendError(c, err)
		return
	}
	utils.SendOK(c, created)
}
