package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/crewbot-dev/crewbot/internal/domain/model"
	"github.com/crewbot-dev/crewbot/internal/domain/port/driven"
)

var _ Agent = (*Integrator)(nil)

// Integrator reacts to a merged pull request: it resolves the task id
// embedded in the PR title, pushes the status flip to done on an
// integration branch with its own small PR, and then records the
// transition in the task store.
type Integrator struct {
	tasks driven.TaskStore
	vcs   driven.VCSClient
}

func NewIntegrator(tasks driven.TaskStore, vcs driven.VCSClient) *Integrator {
	return &Integrator{tasks: tasks, vcs: vcs}
}

func (a *Integrator) Kind() model.TriggerKind { return model.TriggerIntegrate }

func (a *Integrator) Run(ctx context.Context, repo model.RepoConfig, trig model.Trigger) (Outcome, error) {
	if trig.PR == nil {
		return Outcome{}, errors.New("integrate trigger carries no pull request")
	}
	pr := trig.PR

	taskID := model.ExtractTaskID(pr.Title)
	if taskID == "" {
		return Outcome{}, fmt.Errorf("PR #%d title %q carries no task id: %w", pr.Number, pr.Title, driven.ErrTaskNotFound)
	}

	task, err := a.tasks.Get(ctx, repo.ID, taskID)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolving %s from PR #%d: %w", taskID, pr.Number, err)
	}

	if task.Status == model.StatusDone {
		return Outcome{
			OK:      true,
			Action:  string(model.TriggerIntegrate),
			Message: taskID + " already done",
			TaskID:  taskID,
		}, nil
	}

	doc, path, sha, err := a.statusFlipDocument(ctx, repo, *task)
	if err != nil {
		return Outcome{}, err
	}

	branch := fmt.Sprintf("integration/%s-mark-done", taskID)
	if err := a.vcs.CreateBranch(ctx, repo, branch); err != nil {
		return Outcome{}, fmt.Errorf("creating branch %s: %w", branch, err)
	}

	message := taskID + ": mark task done"
	if err := a.vcs.PutFile(ctx, repo, branch, path, doc, message, sha); err != nil {
		return Outcome{}, fmt.Errorf("committing %s on %s: %w", path, branch, err)
	}

	prURL, err := a.vcs.OpenPullRequest(ctx, repo, branch, repo.DefaultBranch, message, prBodyForTask(taskID, "mark task done"))
	if err != nil {
		return Outcome{}, fmt.Errorf("opening integration PR for %s: %w", taskID, err)
	}

	// Side effects confirmed; record the transition.
	if err := a.tasks.SetStatus(ctx, repo.ID, taskID, model.StatusDone); err != nil {
		return Outcome{}, fmt.Errorf("completing %s: %w", taskID, err)
	}

	slog.Info("task integrated", "repo", repo.ID, "task", taskID, "merged_pr", pr.Number, "pr_url", prURL)

	return Outcome{
		OK:     true,
		Action: string(model.TriggerIntegrate),
		TaskID: taskID,
		Branch: branch,
		PRURL:  prURL,
	}, nil
}

// statusFlipDocument builds the done-status revision of the task's remote
// file. When the file exists, only its status line is rewritten so the rest
// of the document stays byte-identical; a missing file is rendered fresh.
func (a *Integrator) statusFlipDocument(ctx context.Context, repo model.RepoConfig, task model.Task) (doc []byte, path, sha string, err error) {
	files, err := a.vcs.ListTaskFiles(ctx, repo)
	if err != nil {
		return nil, "", "", fmt.Errorf("listing task files for %s: %w", repo.ID, err)
	}

	idMarker := []byte("id: " + task.ID)
	for _, f := range files {
		if f.Path == task.Path || bytes.Contains(f.Content, idMarker) {
			return model.ReplaceStatus(f.Content, model.StatusDone), f.Path, f.SHA, nil
		}
	}

	done := task
	done.Status = model.StatusDone
	doc, err = done.Document()
	if err != nil {
		return nil, "", "", err
	}
	path = task.Path
	if path == "" {
		path = fmt.Sprintf("tasks/%s-%s.md", task.ID, model.Slugify(task.Title))
	}
	return doc, path, "", nil
}
