package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/crewbot-dev/crewbot/internal/domain/model"
	"github.com/crewbot-dev/crewbot/internal/domain/port/driven"
)

var _ Agent = (*Developer)(nil)

// Developer claims the next claimable task: it creates the feature branch,
// commits the task file with its status flipped to in_review, opens the
// pull request, and only then records the queued -> in_review transition.
type Developer struct {
	tasks driven.TaskStore
	vcs   driven.VCSClient
}

func NewDeveloper(tasks driven.TaskStore, vcs driven.VCSClient) *Developer {
	return &Developer{tasks: tasks, vcs: vcs}
}

func (a *Developer) Kind() model.TriggerKind { return model.TriggerWorkNext }

func (a *Developer) Run(ctx context.Context, repo model.RepoConfig, _ model.Trigger) (Outcome, error) {
	tasks, err := a.tasks.ListByRepo(ctx, repo.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("listing tasks for %s: %w", repo.ID, err)
	}

	open, err := a.vcs.ListOpenPullRequests(ctx, repo, "")
	if err != nil {
		return Outcome{}, fmt.Errorf("listing open PRs for %s: %w", repo.ID, err)
	}
	titles := make([]string, 0, len(open.PRs))
	for _, pr := range open.PRs {
		titles = append(titles, pr.Title)
	}

	branches, err := a.vcs.ListBranches(ctx, repo)
	if err != nil {
		return Outcome{}, fmt.Errorf("listing branches for %s: %w", repo.ID, err)
	}

	next := model.NextClaimable(tasks, titles, branches)
	if next == nil {
		return Outcome{}, fmt.Errorf("%s: %w", repo.ID, ErrNoClaimableTask)
	}

	branch := next.BranchName()
	if err := a.vcs.CreateBranch(ctx, repo, branch); err != nil {
		return Outcome{}, fmt.Errorf("creating branch %s: %w", branch, err)
	}

	claimed := *next
	claimed.Status = model.StatusInReview
	doc, err := claimed.Document()
	if err != nil {
		return Outcome{}, err
	}

	path, sha, err := taskFileLocation(ctx, a.vcs, repo, claimed)
	if err != nil {
		return Outcome{}, err
	}

	message := fmt.Sprintf("%s: %s", claimed.ID, claimed.Title)
	if err := a.vcs.PutFile(ctx, repo, branch, path, doc, message, sha); err != nil {
		return Outcome{}, fmt.Errorf("committing %s on %s: %w", path, branch, err)
	}

	prURL, err := a.vcs.OpenPullRequest(ctx, repo, branch, repo.DefaultBranch, message, prBodyForTask(claimed.ID, claimed.Title))
	if err != nil {
		return Outcome{}, fmt.Errorf("opening PR for %s: %w", claimed.ID, err)
	}

	// Side effects confirmed; record the claim.
	if err := a.tasks.SetStatus(ctx, repo.ID, claimed.ID, model.StatusInReview); err != nil {
		return Outcome{}, fmt.Errorf("claiming %s: %w", claimed.ID, err)
	}

	slog.Info("task claimed", "repo", repo.ID, "task", claimed.ID, "branch", branch, "pr_url", prURL)

	return Outcome{
		OK:     true,
		Action: string(model.TriggerWorkNext),
		TaskID: claimed.ID,
		Branch: branch,
		PRURL:  prURL,
	}, nil
}

// taskFileLocation resolves the remote path and blob SHA for a task's file.
// A task that has never been synced to a file (e.g. a freshly seeded
// backlog entry) gets a derived path and an empty SHA, which creates the
// file on commit.
func taskFileLocation(ctx context.Context, vcs driven.VCSClient, repo model.RepoConfig, task model.Task) (path, sha string, err error) {
	files, err := vcs.ListTaskFiles(ctx, repo)
	if err != nil {
		return "", "", fmt.Errorf("listing task files for %s: %w", repo.ID, err)
	}

	for _, f := range files {
		if f.Path == task.Path {
			return f.Path, f.SHA, nil
		}
	}

	path = task.Path
	if path == "" {
		path = fmt.Sprintf("tasks/%s-%s.md", task.ID, model.Slugify(task.Title))
	}
	return path, "", nil
}
