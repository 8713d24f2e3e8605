package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"photokeep/internal/apierrors"
)

// SendOK sends a 200 envelope wrapping data.
func SendOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, apierrors.Ok(data))
}

// SendCreated sends a 201 envelope wrapping data.
func SendCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, apierrors.Ok(data))
}

// SendPaginated sends a 200 envelope with pagination meta.
func SendPaginated(c *gin.Context, data any, page, pageSize, total int) {
	c.JSON(http.StatusOK, apierrors.OkPaginated(data, page, pageSize, total))
}

// SendError classifies err (falling back to apierrors.KindInternal for an
// unclassified error) and aborts the request with the matching status and
// error envelope, recording err on the gin context for Observability's
// centralized error log.
func SendError(c *gin.Context, err error) {
	c.Error(err)
	c.AbortWithStatusJSON(apierrors.Classify(err).HTTPStatus(), apierrors.Fail(err))
}
