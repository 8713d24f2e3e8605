package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"photokeep/internal/apierrors"
	"photokeep/internal/artifacts"
	"photokeep/internal/utils"
)

func (h *handlers) getAsset(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.SendError(c, apierrors.New(apierrors.KindValidation, "invalid asset id"))
		return
	}
	asset, err := h.d.Assets.GetAssetByID(c.Request.Context(), id)
	if err != nil {
		utils.SendError(c, classifyStoreErr(err, "asset not found"))
		return
	}
	utils.SendOK(c, asset)
}

// getThumbnail serves the derived thumbnail artifact of exactly the requested
// size, or the original file's bytes if no thumbnail of that size can be
// read (spec §6 GET /assets/{id}/thumbnail?size=N).
func (h *handlers) getThumbnail(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.SendError(c, apierrors.New(apierrors.KindValidation, "invalid asset id"))
		return
	}
	size := 1024
	if raw := c.Query("size"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			size = n
		}
	}
	asset, err := h.d.Assets.GetAssetByID(c.Request.Context(), id)
	if err != nil {
		utils.SendError(c, classifyStoreErr(err, "asset not found"))
		return
	}

	thumbPath := h.d.Artifacts.ThumbnailPath(id.String(), size)
	data, err := artifacts.Read(thumbPath)
	if err != nil {
		c.File(asset.Path)
		return
	}
	c.Data(http.StatusOK, "image/jpeg", data)
}
