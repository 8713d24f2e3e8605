// Package httpapi is the HTTP surface over the Search Service, Task Engine,
// and Person Clusterer (spec §6): a thin gin router that never touches a
// repository directly, deferring to internal/search, internal/cluster, and
// internal/store. Grounded on the teacher's internal/router/router.go
// (setupBaseRouter, otelgin/cors wiring) and internal/handlers' one-handler-
// struct-per-resource shape, generalized from auth-gated travel/POI routes
// to the unauthenticated single-user routes of spec §6 (no auth subsystem:
// spec.md's Non-goals exclude multi-user and remote access entirely).
package httpapi

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"photokeep/internal/artifacts"
	"photokeep/internal/cluster"
	"photokeep/internal/config"
	"photokeep/internal/ingest"
	"photokeep/internal/metrics"
	"photokeep/internal/middleware"
	"photokeep/internal/search"
	"photokeep/internal/store"
)

// Deps bundles every collaborator the router binds to a route.
type Deps struct {
	Cfg       *config.Config
	Assets    *store.AssetRepository
	Faces     *store.FaceRepository
	TasksDB   *store.TaskRepository
	Artifacts *artifacts.Store
	Search    search.Service
	Cluster   cluster.Service
	Scanner   *ingest.Scanner
	Metrics   *metrics.Metrics
	Health    *metrics.HealthChecker
}

// New builds the configured gin.Engine. cfg.Env == "production" switches
// gin into release mode, mirroring the teacher's setupBaseRouter.
func New(d Deps) *gin.Engine {
	if d.Cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(otelgin.Middleware("photokeep"))
	router.Use(middleware.Observability())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RateLimit())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = d.Cfg.AllowedOrigins
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	h := &handlers{d: d}

	router.GET("/health", h.health)
	router.GET("/metrics", gin.WrapH(d.Metrics.Handler()))

	router.POST("/ingest/scan", h.ingestScan)

	router.GET("/assets/:id", h.getAsset)
	router.GET("/assets/:id/thumbnail", h.getThumbnail)

	router.POST("/search", h.searchText)
	router.POST("/search/person/vector", h.searchSimilar)
	router.GET("/search/person/:id", h.searchPersonListing)
	router.GET("/search/person/name/:name", h.searchPersonByName)

	router.GET("/persons", h.listPersons)
	router.POST("/persons/:id/name", h.renamePerson)
	router.POST("/persons/merge", h.mergePersons)
	router.POST("/persons/:id/split", h.splitPerson)

	router.POST("/faces/assign", h.assignFace)

	router.GET("/tasks", h.listTasks)
	router.POST("/tasks/:id/cancel", h.cancelTask)
	router.POST("/tasks/:id/requeue", h.requeueTask)

	return router
}

type handlers struct{ d Deps }
