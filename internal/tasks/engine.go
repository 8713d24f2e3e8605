// Package tasks is the Task Engine (C5): a durable queue dispatched to a
// configurable worker pool, with optimistic claiming, retry/backoff,
// dead-lettering, cooperative cancellation, progress reporting, and metrics.
// Grounded on the teacher's internal/imaging/service.go (job queue +
// worker-pool + resumePendingJobs + handleJobFailure), generalized from one
// hardcoded image-processing job type into a typed multi-kind task registry.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"photokeep/internal/apierrors"
	"photokeep/internal/store"
)

var tracer = otel.Tracer("photokeep/tasks")

// RunningTask is the handle a handler uses to report progress and observe
// cancellation at cooperative checkpoints (spec §5).
type RunningTask struct {
	Task   *store.Task
	engine *Engine
	ctx    context.Context
}

// Checkpoint reports progress and returns true if the caller should abort
// because cancellation was requested — call at least every P_STEP units of
// work inside long-running handlers (full re-cluster, index rebuild).
func (rt *RunningTask) Checkpoint(current, total int) (cancelled bool, err error) {
	if err := rt.engine.repo.SetProgress(rt.ctx, rt.Task.ID, current, total); err != nil {
		return false, fmt.Errorf("tasks: set progress: %w", err)
	}
	requested, err := rt.engine.repo.ObserveCancelRequested(rt.ctx, rt.Task.ID)
	if err != nil {
		return false, fmt.Errorf("tasks: observe cancel: %w", err)
	}
	return requested, nil
}

// HandlerFunc processes one claimed task. Handlers must be re-entrant-safe:
// running the same payload twice must not corrupt state (spec §4.5 item 2).
// A returned error is classified via apierrors.Classify to decide
// retry/dead-letter/cancelled.
type HandlerFunc func(ctx context.Context, rt *RunningTask) error

// Metrics is the subset of internal/metrics the engine emits into —
// declared here as a narrow interface so internal/tasks does not import
// internal/metrics directly (avoids an import cycle since metrics reports
// engine gauges too).
type Metrics interface {
	TasksProcessedInc(taskType string, result string)
	TasksRetriedInc(taskType string)
	TasksDeadInc(taskType string)
	TaskDurationObserve(taskType string, seconds float64)
	EmbeddingsGeneratedInc(modality string)
}

type noopMetrics struct{}

func (noopMetrics) TasksProcessedInc(string, string)    {}
func (noopMetrics) TasksRetriedInc(string)              {}
func (noopMetrics) TasksDeadInc(string)                 {}
func (noopMetrics) TaskDurationObserve(string, float64) {}
func (noopMetrics) EmbeddingsGeneratedInc(string)       {}

// Config parametrizes the engine, mirroring the relevant internal/config fields.
type Config struct {
	WorkerConcurrency int
	PollInterval      time.Duration
	BackoffBaseMS     int
	BackoffCapMS      int
	ShutdownTimeout   time.Duration
}

// Engine is the worker pool: N identical goroutines running
// claim -> dispatch -> record, sleeping with jitter when idle.
type Engine struct {
	repo     *store.TaskRepository
	handlers map[store.TaskType]HandlerFunc
	cfg      Config
	metrics  Metrics
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs an Engine. Register handlers with RegisterHandler before Start.
func New(repo *store.TaskRepository, cfg Config, metrics Metrics, logger *slog.Logger) *Engine {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if cfg.WorkerConcurrency < 1 {
		cfg.WorkerConcurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	return &Engine{
		repo:     repo,
		handlers: make(map[store.TaskType]HandlerFunc),
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger,
	}
}

// RegisterHandler binds a handler to a task type. Call before Start.
func (e *Engine) RegisterHandler(t store.TaskType, h HandlerFunc) {
	e.handlers[t] = h
}

// Start launches the worker pool. Workers share nothing beyond the store and
// providers; the dispatcher is the store itself (spec §5).
func (e *Engine) Start(ctx context.Context) {
	e.ctx, e.cancel = context.WithCancel(ctx)
	for i := 0; i < e.cfg.WorkerConcurrency; i++ {
		e.wg.Add(1)
		go e.worker(i)
	}
}

// Stop signals every worker to finish its current task then exit, waiting up
// to ShutdownTimeout. Tasks still running after the timeout are left for a
// future ReapStaleRunning pass to reclaim (spec §5 graceful shutdown).
func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(e.cfg.ShutdownTimeout):
		if e.logger != nil {
			e.logger.Warn("tasks: shutdown timeout exceeded, workers may still be running")
		}
	}
}

// ReapStaleRunning reclaims tasks stuck running past olderThan — for crash
// recovery, call periodically from cmd/server (spec §5: "still-running tasks
// past the timeout are marked pending again").
func (e *Engine) ReapStaleRunning(ctx context.Context, olderThan time.Duration) (int64, error) {
	return e.repo.RequeueRunningPastDeadline(ctx, time.Now().Add(-olderThan))
}

func (e *Engine) worker(id int) {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		default:
		}

		task, err := e.repo.ClaimNext(e.ctx, nil)
		if err != nil {
			if e.logger != nil {
				e.logger.Error("tasks: claim failed, backing off", "worker", id, "error", err)
			}
			e.sleepIdle()
			continue
		}
		if task == nil {
			e.sleepIdle()
			continue
		}

		e.dispatch(task)
	}
}

func (e *Engine) sleepIdle() {
	jitter := time.Duration(rand.Int63n(int64(e.cfg.PollInterval)))
	select {
	case <-e.ctx.Done():
	case <-time.After(e.cfg.PollInterval + jitter):
	}
}

func (e *Engine) dispatch(task *store.Task) {
	ctx, span := tracer.Start(e.ctx, "tasks.dispatch",
		trace.WithAttributes(attribute.String("task.type", string(task.Type)), attribute.String("task.id", task.ID.String())))
	defer span.End()

	start := time.Now()
	handler, ok := e.handlers[task.Type]
	if !ok {
		e.failOrDead(ctx, task, apierrors.New(apierrors.KindPermanentConfig, fmt.Sprintf("no handler registered for task type %q", task.Type)))
		return
	}

	rt := &RunningTask{Task: task, engine: e, ctx: ctx}
	err := handler(ctx, rt)
	duration := time.Since(start).Seconds()
	e.metrics.TaskDurationObserve(string(task.Type), duration)

	if err == nil {
		if cerr := e.repo.CompleteTask(ctx, task.ID); cerr != nil {
			span.RecordError(cerr)
			if e.logger != nil {
				e.logger.Error("tasks: complete failed", "task_id", task.ID, "error", cerr)
			}
			return
		}
		e.metrics.TasksProcessedInc(string(task.Type), "done")
		return
	}

	if apierrors.Classify(err) == apierrors.KindCancelled {
		if cerr := e.repo.FinishCancelled(ctx, task.ID); cerr != nil && e.logger != nil {
			e.logger.Error("tasks: finish cancelled failed", "task_id", task.ID, "error", cerr)
		}
		e.metrics.TasksProcessedInc(string(task.Type), "cancelled")
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	e.failOrDead(ctx, task, err)
}

func (e *Engine) failOrDead(ctx context.Context, task *store.Task, err error) {
	kind := apierrors.Classify(err)
	deadLetter := kind.DeadLetters() || !kind.Retryable() || task.RetryCount >= task.MaxRetries

	if deadLetter {
		if ferr := e.repo.FailTask(ctx, task.ID, err.Error(), true, time.Time{}); ferr != nil && e.logger != nil {
			e.logger.Error("tasks: dead-letter failed", "task_id", task.ID, "error", ferr)
		}
		e.metrics.TasksDeadInc(string(task.Type))
		e.metrics.TasksProcessedInc(string(task.Type), "dead")
		return
	}

	delay := computeBackoff(e.cfg.BackoffBaseMS, e.cfg.BackoffCapMS, task.RetryCount+1)
	next := time.Now().Add(delay)
	if ferr := e.repo.FailTask(ctx, task.ID, err.Error(), false, next); ferr != nil && e.logger != nil {
		e.logger.Error("tasks: retry scheduling failed", "task_id", task.ID, "error", ferr)
	}
	e.metrics.TasksRetriedInc(string(task.Type))
	e.metrics.TasksProcessedInc(string(task.Type), "failed")
}

// ResumePending is a startup hook mirroring the teacher's
// resumePendingJobs: it is actually a no-op here since ClaimNext already
// reads pending rows directly from the store rather than re-hydrating an
// in-memory channel — pending tasks created before a restart are visible to
// every worker immediately. Kept as an explicit call site for parity with
// the teacher's bootstrap sequence and as a place to log backlog size.
func (e *Engine) ResumePending(ctx context.Context) error {
	pending, err := e.repo.CountByState(ctx, store.TaskPending)
	if err != nil {
		return fmt.Errorf("tasks: count pending on resume: %w", err)
	}
	if e.logger != nil {
		e.logger.Info("tasks: resuming", "pending", pending)
	}
	return nil
}

// IdempotencyKey computes hash(type, asset_id or face_id, model_name, model_version)
// per spec §4.5.
func IdempotencyKey(taskType store.TaskType, entityID uuid.UUID, modelName, modelVersion string) string {
	return fmt.Sprintf("%s:%s:%s:%s", taskType, entityID, modelName, modelVersion)
}
