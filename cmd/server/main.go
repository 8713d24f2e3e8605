package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"photokeep/internal/artifacts"
	"photokeep/internal/cluster"
	"photokeep/internal/config"
	"photokeep/internal/database"
	"photokeep/internal/httpapi"
	"photokeep/internal/ingest"
	"photokeep/internal/logger"
	"photokeep/internal/metrics"
	"photokeep/internal/observability"
	"photokeep/internal/providers"
	"photokeep/internal/search"
	"photokeep/internal/store"
	"photokeep/internal/tasks"
	"photokeep/internal/vectorindex"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	lg := logger.Init(cfg.Service, cfg.Env, logger.ParseLevelFromEnv())

	shutdownOTel, err := observability.InitOTel(context.Background(), cfg.Service)
	if err != nil {
		lg.Warn("opentelemetry init failed, continuing without tracing", "error", err)
	} else {
		defer func() {
			if err := shutdownOTel(context.Background()); err != nil {
				lg.Error("opentelemetry shutdown", "error", err)
			}
		}()
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		lg.Error("database connect", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	lg.Info("connected to postgres")

	assets := store.NewAssetRepository(db)
	embeddings := store.NewEmbeddingRepository(db)
	captions := store.NewCaptionRepository(db)
	faces := store.NewFaceRepository(db)
	persons := store.NewPersonRepository(db)
	taskRepo := store.NewTaskRepository(db)
	indexState := store.NewIndexStateRepository(db)

	artifactStore, err := artifacts.New(cfg.DerivedPath)
	if err != nil {
		lg.Error("artifact store init", "error", err)
		os.Exit(1)
	}

	providerSet, err := providers.BuildSet(cfg, lg)
	if err != nil {
		lg.Error("provider set", "error", err)
		os.Exit(1)
	}

	// The only currently wired IMAGE_EMBED_PROVIDER is "stub" (see
	// providers.BuildSet), whose EmbedImage always reports model name
	// "stub", version "v1" — matching the config selection itself. Pinning
	// the snapshot identity from config avoids an embed call at startup
	// just to discover what the provider would have said.
	imageIdentity := vectorindex.Identity{
		ModelName:    string(cfg.ImageEmbedProvider),
		ModelVersion: "v1",
		Dim:          providerSet.ImageEmbedder.Dim(),
	}
	indexPath := cfg.DerivedPath + "/index/image-" + imageIdentity.ModelName + "-" + imageIdentity.ModelVersion + ".gob"

	var index *vectorindex.Index
	needsRebuild := false
	if cfg.VectorIndexAutoload {
		loaded, matched, err := vectorindex.Load(indexPath, imageIdentity)
		switch {
		case err != nil:
			lg.Warn("vector index snapshot unreadable, starting empty", "error", err)
			index = vectorindex.New(imageIdentity)
			needsRebuild = true
		case !matched:
			lg.Warn("vector index snapshot identity mismatch, discarding and rebuilding")
			index = vectorindex.New(imageIdentity)
			needsRebuild = true
		default:
			index = loaded
			lg.Info("loaded vector index snapshot", "entries", index.Size())
		}
	} else {
		index = vectorindex.New(imageIdentity)
		needsRebuild = true
	}

	mtx := metrics.New()
	healthChecker := metrics.NewHealthChecker(db, index, providerSet)
	sampler := metrics.NewSampler(mtx, taskRepo, persons, index, 15*time.Second)

	engine := tasks.New(taskRepo, tasks.Config{
		WorkerConcurrency: cfg.WorkerConcurrency,
		PollInterval:      time.Duration(cfg.PollIntervalMS) * time.Millisecond,
		BackoffBaseMS:     cfg.BackoffBaseMS,
		BackoffCapMS:      cfg.BackoffCapMS,
		ShutdownTimeout:   30 * time.Second,
	}, mtx, lg)

	deps := &tasks.Deps{
		Assets:     assets,
		Embeddings: embeddings,
		Captions:   captions,
		Faces:      faces,
		Persons:    persons,
		Tasks:      taskRepo,
		IndexState: indexState,
		Artifacts:  artifactStore,
		Index:      index,
		Providers:  providerSet,
		Cfg:        cfg,
		Metrics:    mtx,
	}
	tasks.RegisterAll(engine, deps)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := engine.ResumePending(ctx); err != nil {
		lg.Error("resume pending tasks", "error", err)
		os.Exit(1)
	}
	engine.Start(ctx)
	go sampler.Run(ctx)
	go reapLoop(ctx, engine, lg)

	if needsRebuild {
		payload, _ := json.Marshal(map[string]string{
			"modality":      "image",
			"model_name":    imageIdentity.ModelName,
			"model_version": imageIdentity.ModelVersion,
		})
		if _, err := taskRepo.EnqueueTask(ctx, &store.Task{
			Type:    store.TaskIndexRebuild,
			Payload: payload,
		}); err != nil {
			lg.Error("enqueue startup index_rebuild", "error", err)
		}
	}

	scanner := ingest.New(cfg, db, assets, taskRepo, lg)
	searchSvc := search.New(cfg, assets, embeddings, persons, index, providerSet.TextEmbedder)
	clusterSvc := cluster.New(persons, faces, taskRepo)

	router := httpapi.New(httpapi.Deps{
		Cfg:       cfg,
		Assets:    assets,
		Faces:     faces,
		TasksDB:   taskRepo,
		Artifacts: artifactStore,
		Search:    searchSvc,
		Cluster:   clusterSvc,
		Scanner:   scanner,
		Metrics:   mtx,
		Health:    healthChecker,
	})

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		lg.Info("server starting", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lg.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Error("server forced shutdown", "error", err)
	}
	engine.Stop()
	lg.Info("shutdown complete")
}

// reapLoop periodically reclaims tasks stuck in "running" past a crash,
// mirroring the teacher's ticker-driven background maintenance style.
func reapLoop(ctx context.Context, engine *tasks.Engine, lg *slog.Logger) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := engine.ReapStaleRunning(ctx, 10*time.Minute)
			if err != nil {
				lg.Error("reap stale running tasks", "error", err)
				continue
			}
			if n > 0 {
				lg.Info("reaped stale running tasks", "count", n)
			}
		}
	}
}
