package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"photokeep/internal/database"
)

// TaskRepository is the CRUD and dispatch-protocol surface over the tasks
// table, grounded on the teacher's ImagingRepository for plain CRUD and on
// PhotoRepository.VoteWithToggle for the claim transaction's
// read-then-conditionally-mutate shape.
type TaskRepository struct {
	db *database.DB
}

func NewTaskRepository(db *database.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// EnqueueTask inserts a new pending task. If idempotencyKey is set and a
// task in any state other than done or cancelled already owns it (dead and
// failed included), the existing task is returned
// instead (spec §3: "inserting a task with an existing key not in terminal
// {done, cancelled} returns the existing id").
func (r *TaskRepository) EnqueueTask(ctx context.Context, t *Task) (created bool, err error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.Payload == nil {
		t.Payload = json.RawMessage(`{}`)
	}
	if t.MaxRetries == 0 {
		t.MaxRetries = 5
	}
	if t.ScheduledAt.IsZero() {
		t.ScheduledAt = time.Now().UTC()
	}

	err = r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if t.IdempotencyKey != nil {
			var existing Task
			getErr := tx.GetContext(ctx, &existing,
				`SELECT * FROM tasks WHERE idempotency_key = $1`, *t.IdempotencyKey)
			if getErr == nil {
				if existing.State != TaskDone && existing.State != TaskCancelled {
					*t = existing
					created = false
					return nil
				}
				// terminal done/cancelled: idempotency key is free to reuse by
				// giving this new enqueue a fresh id, detaching the old key.
				if _, renameErr := tx.ExecContext(ctx,
					`UPDATE tasks SET idempotency_key = NULL WHERE id = $1`, existing.ID); renameErr != nil {
					return fmt.Errorf("store: detach stale idempotency key: %w", renameErr)
				}
			} else if !errors.Is(getErr, sql.ErrNoRows) {
				return fmt.Errorf("store: check idempotency key: %w", getErr)
			}
		}

		_, insertErr := tx.ExecContext(ctx, `
			INSERT INTO tasks (id, type, payload, state, priority, retry_count, max_retries,
				scheduled_at, created_at, progress_total, cancel_requested, idempotency_key)
			VALUES ($1, $2, $3, 'pending', $4, 0, $5, $6, now(), $7, false, $8)`,
			t.ID, t.Type, t.Payload, t.Priority, t.MaxRetries, t.ScheduledAt, t.ProgressTotal, t.IdempotencyKey)
		if insertErr != nil {
			return fmt.Errorf("store: enqueue task: %w", insertErr)
		}
		created = true
		return nil
	})
	return created, err
}

// ClaimNext is the single atomic claim primitive (spec §4.5 item 1):
// predicate state=pending AND scheduled_at<=now() AND cancel_requested=false,
// ordering (priority ASC, scheduled_at ASC, id ASC), action set
// state=running, started_at=now(). Races between workers resolve via
// FOR UPDATE SKIP LOCKED: exactly one worker observes the row.
func (r *TaskRepository) ClaimNext(ctx context.Context, types []TaskType) (*Task, error) {
	var claimed *Task
	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var typeFilter any
		typeClause := ""
		if len(types) > 0 {
			strs := make([]string, len(types))
			for i, t := range types {
				strs[i] = string(t)
			}
			typeFilter = pq.Array(strs)
			typeClause = "AND type = ANY($1)"
		}

		query := fmt.Sprintf(`
			SELECT * FROM tasks
			WHERE state = 'pending' AND scheduled_at <= now() AND cancel_requested = false %s
			ORDER BY priority ASC, scheduled_at ASC, id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED`, typeClause)

		var row Task
		var getErr error
		if typeClause != "" {
			getErr = tx.GetContext(ctx, &row, query, typeFilter)
		} else {
			getErr = tx.GetContext(ctx, &row, query)
		}
		if errors.Is(getErr, sql.ErrNoRows) {
			return nil
		}
		if getErr != nil {
			return fmt.Errorf("store: claim select: %w", getErr)
		}

		if _, execErr := tx.ExecContext(ctx,
			`UPDATE tasks SET state = 'running', started_at = now() WHERE id = $1`, row.ID); execErr != nil {
			return fmt.Errorf("store: claim update: %w", execErr)
		}
		row.State = TaskRunning
		claimed = &row
		return nil
	})
	return claimed, err
}

// CompleteTask transitions running -> done.
func (r *TaskRepository) CompleteTask(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET state = 'done', finished_at = now() WHERE id = $1 AND state = 'running'`, id)
	return err
}

// FailTask applies the retry/dead-letter decision of spec §4.5 item 4. The
// caller supplies the already-computed next scheduled_at when retrying.
func (r *TaskRepository) FailTask(ctx context.Context, id uuid.UUID, errMsg string, deadLetter bool, nextScheduledAt time.Time) error {
	if deadLetter {
		_, err := r.db.ExecContext(ctx, `
			UPDATE tasks SET state = 'dead', last_error = $2, finished_at = now()
			WHERE id = $1 AND state = 'running'`, id, errMsg)
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE tasks SET state = 'pending', retry_count = retry_count + 1,
			last_error = $2, scheduled_at = $3, started_at = NULL
		WHERE id = $1 AND state = 'running'`, id, errMsg, nextScheduledAt)
	return err
}

// CancelTask sets cancel_requested; a pending task transitions immediately,
// a running task observes it at its next cooperative checkpoint.
func (r *TaskRepository) CancelTask(ctx context.Context, id uuid.UUID) error {
	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var state TaskState
		if err := tx.GetContext(ctx, &state, `SELECT state FROM tasks WHERE id = $1 FOR UPDATE`, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if state == TaskPending {
			_, err := tx.ExecContext(ctx,
				`UPDATE tasks SET state = 'cancelled', cancel_requested = true, finished_at = now() WHERE id = $1`, id)
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE tasks SET cancel_requested = true WHERE id = $1`, id)
		return err
	})
}

// ObserveCancelRequested is called by a running task's cooperative checkpoint.
func (r *TaskRepository) ObserveCancelRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	var requested bool
	err := r.db.GetContext(ctx, &requested, `SELECT cancel_requested FROM tasks WHERE id = $1`, id)
	return requested, err
}

// FinishCancelled transitions a running task that observed cancel_requested
// into the terminal cancelled state.
func (r *TaskRepository) FinishCancelled(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET state = 'cancelled', finished_at = now() WHERE id = $1 AND state = 'running'`, id)
	return err
}

// SetProgress updates progress_current/progress_total on a running task.
func (r *TaskRepository) SetProgress(ctx context.Context, id uuid.UUID, current, total int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET progress_current = $2, progress_total = $3 WHERE id = $1`, id, current, total)
	return err
}

// Requeue is the admin operation moving a task from dead back to pending,
// clearing retry_count and last_error (spec §4.5).
func (r *TaskRepository) Requeue(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tasks SET state = 'pending', retry_count = 0, last_error = NULL,
			scheduled_at = now(), cancel_requested = false
		WHERE id = $1 AND state = 'dead'`, id)
	if err != nil {
		return fmt.Errorf("store: requeue task: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RequeueRunningPastDeadline reclaims tasks stuck in running past a
// graceful-shutdown timeout, clearing started_at so another worker can claim
// them again (spec §5 graceful shutdown).
func (r *TaskRepository) RequeueRunningPastDeadline(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tasks SET state = 'pending', started_at = NULL
		WHERE state = 'running' AND started_at < $1`, olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetTaskByID returns a single task or ErrNotFound.
func (r *TaskRepository) GetTaskByID(ctx context.Context, id uuid.UUID) (*Task, error) {
	var t Task
	err := r.db.GetContext(ctx, &t, `SELECT * FROM tasks WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get task: %w", err)
	}
	return &t, nil
}

// ListTasks returns a page of tasks optionally filtered by state and type.
func (r *TaskRepository) ListTasks(ctx context.Context, state *TaskState, taskType *TaskType, limit, offset int) ([]Task, int, error) {
	where := "WHERE 1=1"
	args := []any{}
	argN := 1
	if state != nil {
		where += fmt.Sprintf(" AND state = $%d", argN)
		args = append(args, *state)
		argN++
	}
	if taskType != nil {
		where += fmt.Sprintf(" AND type = $%d", argN)
		args = append(args, *taskType)
		argN++
	}

	var tasks []Task
	listArgs := append(append([]any{}, args...), limit, offset)
	listQuery := fmt.Sprintf(`SELECT * FROM tasks %s ORDER BY priority ASC, scheduled_at ASC, id ASC
		LIMIT $%d OFFSET $%d`, where, argN, argN+1)
	if err := r.db.SelectContext(ctx, &tasks, listQuery, listArgs...); err != nil {
		return nil, 0, fmt.Errorf("store: list tasks: %w", err)
	}

	var total int
	countQuery := fmt.Sprintf(`SELECT count(*) FROM tasks %s`, where)
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("store: count tasks: %w", err)
	}
	return tasks, total, nil
}

// CountByState returns tasks_pending/tasks_running style gauges.
func (r *TaskRepository) CountByState(ctx context.Context, state TaskState) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT count(*) FROM tasks WHERE state = $1`, state)
	return n, err
}

// ExclusiveRunningExists checks the "only one re-cluster may run at a time"
// invariant (spec §4.7) via a uniqueness predicate on (type, state=running).
func (r *TaskRepository) ExclusiveRunningExists(ctx context.Context, taskType TaskType) (bool, error) {
	var n int
	err := r.db.GetContext(ctx, &n,
		`SELECT count(*) FROM tasks WHERE type = $1 AND state = 'running'`, taskType)
	return n > 0, err
}
