package httpapi

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"photokeep/internal/utils"
)

// ingestScan triggers a synchronous full scan of every configured
// originals root (spec §6 POST /ingest/scan). A full scan of a large
// library can run long, so it gets a generous timeout of its own rather
// than inheriting the request's.
func (h *handlers) ingestScan(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	stats, err := h.d.Scanner.Scan(ctx)
	if err != nil {
		utils.SendError(c, err)
		return
	}
	utils.SendOK(c, stats)
}
