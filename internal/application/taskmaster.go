package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/crewbot-dev/crewbot/internal/domain/model"
	"github.com/crewbot-dev/crewbot/internal/domain/port/driven"
)

var _ Agent = (*Taskmaster)(nil)

// Seed task definition used when a repository's backlog is empty.
const (
	seedTaskTitle = "Initialize basic CI"
	seedTaskBody  = `## Description
Set up a minimal CI workflow that runs the test suite on every pull
request, plus a smoke test so the first run passes.

## Deliverables
- .github/workflows/ci.yml
- a minimal smoke test
`
)

// Taskmaster seeds the backlog: when no queued task exists it synthesizes
// the next task definition. It never duplicates an existing queued task and
// has no collaborator side effect.
type Taskmaster struct {
	tasks driven.TaskStore
}

func NewTaskmaster(tasks driven.TaskStore) *Taskmaster {
	return &Taskmaster{tasks: tasks}
}

func (a *Taskmaster) Kind() model.TriggerKind { return model.TriggerTaskmaster }

func (a *Taskmaster) Run(ctx context.Context, repo model.RepoConfig, _ model.Trigger) (Outcome, error) {
	existing, err := a.tasks.ListByRepo(ctx, repo.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("listing tasks for %s: %w", repo.ID, err)
	}

	for _, t := range existing {
		if t.Status == model.StatusQueued {
			return Outcome{
				OK:      true,
				Action:  string(model.TriggerTaskmaster),
				Message: "queued task already present",
				TaskID:  t.ID,
			}, nil
		}
	}

	id, err := a.tasks.NextID(ctx, repo.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("assigning task id for %s: %w", repo.ID, err)
	}

	acceptance := []string{
		"On pull_request, CI runs the test suite and reports status",
		"A minimal smoke test exists and passes",
	}
	task := model.Task{
		RepoID:     repo.ID,
		ID:         id,
		Title:      seedTaskTitle,
		Status:     model.StatusQueued,
		Priority:   "P2",
		Owner:      "unassigned",
		Estimate:   "2h",
		Acceptance: acceptance,
		AutoPolicy: "review_required",
		Path:       fmt.Sprintf("tasks/%s-%s.md", id, model.Slugify(seedTaskTitle)),
		Body:       seedTaskBody,
		UpdatedAt:  time.Now().UTC(),
	}

	if err := a.tasks.Upsert(ctx, task); err != nil {
		return Outcome{}, fmt.Errorf("seeding %s for %s: %w", id, repo.ID, err)
	}

	slog.Info("backlog seeded", "repo", repo.ID, "task", id)

	return Outcome{
		OK:      true,
		Action:  string(model.TriggerTaskmaster),
		Message: "seeded " + id,
		TaskID:  id,
	}, nil
}
