package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"photokeep/internal/apierrors"
	"photokeep/internal/utils"
)

type assignFaceRequest struct {
	FaceID   uuid.UUID  `json:"face_id"`
	PersonID *uuid.UUID `json:"person_id"`
}

// assignFace sets or clears a face's person assignment (spec §4.7's manual
// correction path). A nil person_id unassigns the face.
func (h *handlers) assignFace(c *gin.Context) {
	var req assignFaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendError(c, apierrors.Wrap(apierrors.KindValidation, "invalid face assignment body", err))
		return
	}
	ctx := c.Request.Context()
	var err error
	if req.PersonID == nil {
		err = h.d.Faces.UnassignPerson(ctx, req.FaceID)
	} else {
		err = h.d.Faces.AssignPerson(ctx, req.FaceID, *req.PersonID)
	}
	if err != nil {
		utils.SendError(c, classifyStoreErr(err, "face not found"))
		return
	}
	utils.SendOK(c, req)
}
