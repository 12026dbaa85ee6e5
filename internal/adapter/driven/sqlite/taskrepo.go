package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/crewbot-dev/crewbot/internal/domain/model"
	"github.com/crewbot-dev/crewbot/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.TaskStore = (*TaskRepo)(nil)

// TaskRepo is the SQLite implementation of the TaskStore port interface.
type TaskRepo struct {
	db *DB
}

// NewTaskRepo creates a new TaskRepo backed by the given DB.
func NewTaskRepo(db *DB) *TaskRepo {
	return &TaskRepo{db: db}
}

const taskColumns = `repo_id, id, title, status, priority, ord, depends_on, owner, estimate, acceptance, auto_policy, path, body, updated_at`

// Upsert inserts or replaces a task. DependsOn and Acceptance are serialized
// as JSON arrays in their TEXT columns.
func (r *TaskRepo) Upsert(ctx context.Context, task model.Task) error {
	const query = `
		INSERT INTO tasks (repo_id, id, title, status, priority, ord, depends_on, owner, estimate, acceptance, auto_policy, path, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(repo_id, id) DO UPDATE SET
			title = excluded.title,
			status = excluded.status,
			priority = excluded.priority,
			ord = excluded.ord,
			depends_on = excluded.depends_on,
			owner = excluded.owner,
			estimate = excluded.estimate,
			acceptance = excluded.acceptance,
			auto_policy = excluded.auto_policy,
			path = excluded.path,
			body = excluded.body,
			updated_at = excluded.updated_at
	`

	args, err := taskArgs(task)
	if err != nil {
		return err
	}

	if _, err := r.db.Writer.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert task %s/%s: %w", task.RepoID, task.ID, err)
	}

	return nil
}

// ReplaceAll re-syncs the task snapshot for a repository from a scan of the
// remote task files. It runs in a single transaction so readers never see a
// half-replaced snapshot.
func (r *TaskRepo) ReplaceAll(ctx context.Context, repoID string, tasks []model.Task) error {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace tasks: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE repo_id = ?`, repoID); err != nil {
		return fmt.Errorf("clear tasks for %s: %w", repoID, err)
	}

	const insert = `
		INSERT INTO tasks (repo_id, id, title, status, priority, ord, depends_on, owner, estimate, acceptance, auto_policy, path, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, task := range tasks {
		task.RepoID = repoID
		args, err := taskArgs(task)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
			return fmt.Errorf("insert task %s/%s: %w", repoID, task.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace tasks: %w", err)
	}
	return nil
}

// Get retrieves a single task. Returns ErrTaskNotFound when absent.
func (r *TaskRepo) Get(ctx context.Context, repoID, taskID string) (*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE repo_id = ? AND id = ?`

	task, err := scanTask(r.db.Reader.QueryRowContext(ctx, query, repoID, taskID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get task %s/%s: %w", repoID, taskID, driven.ErrTaskNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s/%s: %w", repoID, taskID, err)
	}

	return task, nil
}

// ListByRepo returns all tasks for a repository ordered by id.
func (r *TaskRepo) ListByRepo(ctx context.Context, repoID string) ([]model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE repo_id = ? ORDER BY id`

	rows, err := r.db.Reader.QueryContext(ctx, query, repoID)
	if err != nil {
		return nil, fmt.Errorf("list tasks for %s: %w", repoID, err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}

	return tasks, nil
}

// SetStatus moves a task to a new lifecycle state, enforcing the transition
// table. Returns ErrTaskNotFound for unknown tasks and ErrInvalidTransition
// for moves off the documented path.
func (r *TaskRepo) SetStatus(ctx context.Context, repoID, taskID string, to model.TaskStatus) error {
	task, err := r.Get(ctx, repoID, taskID)
	if err != nil {
		return err
	}

	if task.Status == to {
		return nil
	}
	if !model.CanTransition(task.Status, to) {
		return fmt.Errorf("task %s/%s %s -> %s: %w", repoID, taskID, task.Status, to, driven.ErrInvalidTransition)
	}

	const query = `UPDATE tasks SET status = ?, updated_at = ? WHERE repo_id = ? AND id = ? AND status = ?`
	result, err := r.db.Writer.ExecContext(ctx, query, string(to), time.Now().UTC(), repoID, taskID, string(task.Status))
	if err != nil {
		return fmt.Errorf("set task status %s/%s: %w", repoID, taskID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	// The status predicate lost a race with a concurrent transition.
	if rows == 0 {
		return fmt.Errorf("set task status %s/%s: %w", repoID, taskID, driven.ErrInvalidTransition)
	}

	return nil
}

// NextID returns the next unused monotonic task id (T-####) for a
// repository.
func (r *TaskRepo) NextID(ctx context.Context, repoID string) (string, error) {
	const query = `SELECT COALESCE(MAX(CAST(SUBSTR(id, 3) AS INTEGER)), 0) FROM tasks WHERE repo_id = ?`

	var max int
	if err := r.db.Reader.QueryRowContext(ctx, query, repoID).Scan(&max); err != nil {
		return "", fmt.Errorf("next task id for %s: %w", repoID, err)
	}

	return model.FormatTaskID(max + 1), nil
}

func taskArgs(task model.Task) ([]any, error) {
	dependsOn := task.DependsOn
	if dependsOn == nil {
		dependsOn = []string{}
	}
	dependsJSON, err := json.Marshal(dependsOn)
	if err != nil {
		return nil, fmt.Errorf("marshal depends_on: %w", err)
	}

	acceptance := task.Acceptance
	if acceptance == nil {
		acceptance = []string{}
	}
	acceptanceJSON, err := json.Marshal(acceptance)
	if err != nil {
		return nil, fmt.Errorf("marshal acceptance: %w", err)
	}

	var ord any
	if task.Order != nil {
		ord = *task.Order
	}

	updatedAt := task.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	return []any{
		task.RepoID, task.ID, task.Title, string(task.Status), task.Priority, ord,
		string(dependsJSON), task.Owner, task.Estimate, string(acceptanceJSON),
		task.AutoPolicy, task.Path, task.Body, updatedAt.UTC(),
	}, nil
}

func scanTask(s scanner) (*model.Task, error) {
	var task model.Task
	var status, dependsJSON, acceptanceJSON, updatedAt string
	var ord sql.NullInt64

	err := s.Scan(&task.RepoID, &task.ID, &task.Title, &status, &task.Priority, &ord,
		&dependsJSON, &task.Owner, &task.Estimate, &acceptanceJSON,
		&task.AutoPolicy, &task.Path, &task.Body, &updatedAt)
	if err != nil {
		return nil, err
	}

	task.Status = model.TaskStatus(status)
	if ord.Valid {
		v := int(ord.Int64)
		task.Order = &v
	}
	if err := json.Unmarshal([]byte(dependsJSON), &task.DependsOn); err != nil {
		return nil, fmt.Errorf("unmarshal depends_on: %w", err)
	}
	if err := json.Unmarshal([]byte(acceptanceJSON), &task.Acceptance); err != nil {
		return nil, fmt.Errorf("unmarshal acceptance: %w", err)
	}
	if task.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &task, nil
}
