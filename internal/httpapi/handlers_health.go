package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *handlers) health(c *gin.Context) {
	result := h.d.Health.Check(c.Request.Context())
	status := http.StatusOK
	if !result.Ready {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, result)
}
