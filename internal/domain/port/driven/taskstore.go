package driven

import (
	"context"
	"errors"

	"github.com/crewbot-dev/crewbot/internal/domain/model"
)

// Sentinel errors returned by TaskStore implementations.
var (
	// ErrTaskNotFound indicates the task id does not resolve to a known task.
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidTransition indicates a status change that is not on the
	// documented lifecycle path.
	ErrInvalidTransition = errors.New("invalid task status transition")
)

// TaskStore is the durable per-repository catalog of work items. Tasks are
// never deleted, only superseded; ReplaceAll re-syncs the snapshot from the
// remote task files on a scan. SetStatus enforces the lifecycle transition
// table and returns ErrInvalidTransition for moves off the documented path.
type TaskStore interface {
	Upsert(ctx context.Context, task model.Task) error
	ReplaceAll(ctx context.Context, repoID string, tasks []model.Task) error
	Get(ctx context.Context, repoID, taskID string) (*model.Task, error)
	ListByRepo(ctx context.Context, repoID string) ([]model.Task, error)
	SetStatus(ctx context.Context, repoID, taskID string, to model.TaskStatus) error
	NextID(ctx context.Context, repoID string) (string, error)
}
