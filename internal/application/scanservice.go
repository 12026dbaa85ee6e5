package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/crewbot-dev/crewbot/internal/domain/model"
	"github.com/crewbot-dev/crewbot/internal/domain/port/driven"
)

// PresentSignals reports which scaffolding pieces exist in the remote
// repository.
type PresentSignals struct {
	HasTasks      bool `json:"has_tasks"`
	HasCI         bool `json:"has_ci"`
	HasPRTemplate bool `json:"has_pr_template"`
	HasCodeowners bool `json:"has_codeowners"`
}

// ScanReport summarizes one repository scan.
type ScanReport struct {
	RepoID    string         `json:"repo_id"`
	TaskCount int            `json:"task_count"`
	Present   PresentSignals `json:"present"`
	NextTask  *model.Task    `json:"next_task"`
}

// FileOp is one proposed scaffolding file operation.
type FileOp struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// BootstrapPlan lists the scaffolding a repository is missing. Applied is
// true when the plan was pushed as a pull request (pr mode only).
type BootstrapPlan struct {
	Proposals []FileOp `json:"proposals"`
	Applied   bool     `json:"applied"`
	PRURL     string   `json:"pr_url,omitempty"`
}

// Scaffolding file contents proposed by bootstrap.
const (
	bootstrapBranch = "chore/bootstrap-scaffolding"

	ciWorkflow = `name: CI
on: [pull_request]
jobs:
  test:
    runs-on: ubuntu-latest
    steps:
      - uses: actions/checkout@v4
      - run: make test
`

	prTemplate = `## Linked Tasks
-

## What changed
-

## Validation
-

## Risk
-
`
)

// ScanService refreshes the task store view from the remote's task files
// and answers status, next-task, and bootstrap queries.
type ScanService struct {
	repos  driven.RepoStore
	tasks  driven.TaskStore
	leases driven.LeaseStore
	vcs    driven.VCSClient

	leaseTTL time.Duration
}

func NewScanService(
	repos driven.RepoStore,
	tasks driven.TaskStore,
	leases driven.LeaseStore,
	vcs driven.VCSClient,
	leaseTTL time.Duration,
) *ScanService {
	return &ScanService{
		repos:    repos,
		tasks:    tasks,
		leases:   leases,
		vcs:      vcs,
		leaseTTL: leaseTTL,
	}
}

// Scan re-syncs the task store from the remote tasks/ directory and returns
// a fresh report. Malformed task files are skipped, not fatal.
func (s *ScanService) Scan(ctx context.Context, repoID string) (ScanReport, error) {
	repo, err := s.resolve(ctx, repoID)
	if err != nil {
		return ScanReport{}, err
	}

	files, err := s.vcs.ListTaskFiles(ctx, *repo)
	if err != nil {
		return ScanReport{}, fmt.Errorf("listing task files for %s: %w", repoID, err)
	}

	tasks := make([]model.Task, 0, len(files))
	for _, f := range files {
		task, err := model.ParseTaskFile(f.Path, f.Content)
		if err != nil {
			slog.Warn("skipping malformed task file", "repo", repoID, "path", f.Path, "error", err)
			continue
		}
		task.RepoID = repoID
		tasks = append(tasks, task)
	}

	if err := s.tasks.ReplaceAll(ctx, repoID, tasks); err != nil {
		return ScanReport{}, fmt.Errorf("syncing tasks for %s: %w", repoID, err)
	}

	slog.Info("repo scanned", "repo", repoID, "task_files", len(files), "tasks", len(tasks))

	return s.report(ctx, *repo, tasks)
}

// Status reports the current scaffolding signals and next claimable task
// from the stored snapshot, without re-syncing.
func (s *ScanService) Status(ctx context.Context, repoID string) (ScanReport, error) {
	repo, err := s.repos.Get(ctx, repoID)
	if err != nil {
		return ScanReport{}, fmt.Errorf("resolving repo %s: %w", repoID, err)
	}

	tasks, err := s.tasks.ListByRepo(ctx, repoID)
	if err != nil {
		return ScanReport{}, fmt.Errorf("listing tasks for %s: %w", repoID, err)
	}

	return s.report(ctx, *repo, tasks)
}

// NextTask returns the next claimable task from the stored snapshot, or nil
// when no queued task has all dependencies done.
func (s *ScanService) NextTask(ctx context.Context, repoID string) (*model.Task, error) {
	repo, err := s.repos.Get(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("resolving repo %s: %w", repoID, err)
	}

	tasks, err := s.tasks.ListByRepo(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("listing tasks for %s: %w", repoID, err)
	}

	titles, branches, err := s.claimGuards(ctx, *repo)
	if err != nil {
		return nil, err
	}

	return model.NextClaimable(tasks, titles, branches), nil
}

// Bootstrap proposes the scaffolding files the repository is missing. In pr
// mode the proposals are pushed on a branch and opened as a pull request,
// guarded by the repository lease; in observe mode they are only reported.
func (s *ScanService) Bootstrap(ctx context.Context, repoID string) (BootstrapPlan, error) {
	repo, err := s.resolve(ctx, repoID)
	if err != nil {
		return BootstrapPlan{}, err
	}

	present, err := s.presentSignals(ctx, *repo)
	if err != nil {
		return BootstrapPlan{}, err
	}

	var plan BootstrapPlan
	if !present.HasTasks {
		plan.Proposals = append(plan.Proposals, FileOp{Path: "tasks/", Reason: "no task backlog"})
	}
	if !present.HasCI {
		plan.Proposals = append(plan.Proposals, FileOp{Path: ".github/workflows/ci.yml", Reason: "no CI workflow"})
	}
	if !present.HasPRTemplate {
		plan.Proposals = append(plan.Proposals, FileOp{Path: ".github/PULL_REQUEST_TEMPLATE.md", Reason: "no PR template"})
	}

	if len(plan.Proposals) == 0 || repo.Mode != model.ModePR {
		return plan, nil
	}

	token, err := s.leases.Acquire(ctx, repo.ID, s.leaseTTL)
	if err != nil {
		return BootstrapPlan{}, fmt.Errorf("acquiring lease for %s: %w", repo.ID, err)
	}
	defer func() {
		if err := s.leases.Release(context.WithoutCancel(ctx), repo.ID, token); err != nil {
			slog.Error("lease release failed", "repo", repo.ID, "error", err)
		}
	}()

	if err := s.vcs.CreateBranch(ctx, *repo, bootstrapBranch); err != nil {
		return BootstrapPlan{}, fmt.Errorf("creating branch %s: %w", bootstrapBranch, err)
	}

	for _, op := range plan.Proposals {
		content, path, err := s.scaffoldContent(op.Path)
		if err != nil {
			return BootstrapPlan{}, err
		}
		if err := s.vcs.PutFile(ctx, *repo, bootstrapBranch, path, content, "chore: bootstrap scaffolding", ""); err != nil {
			return BootstrapPlan{}, fmt.Errorf("committing %s: %w", path, err)
		}
	}

	prURL, err := s.vcs.OpenPullRequest(ctx, *repo, bootstrapBranch, repo.DefaultBranch,
		"chore: bootstrap scaffolding", "Adds the scaffolding files this repository is missing.")
	if err != nil {
		return BootstrapPlan{}, fmt.Errorf("opening bootstrap PR for %s: %w", repo.ID, err)
	}

	plan.Applied = true
	plan.PRURL = prURL

	slog.Info("bootstrap applied", "repo", repo.ID, "files", len(plan.Proposals), "pr_url", prURL)

	return plan, nil
}

// resolve fetches the repo and rejects disabled ones.
func (s *ScanService) resolve(ctx context.Context, repoID string) (*model.RepoConfig, error) {
	repo, err := s.repos.Get(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("resolving repo %s: %w", repoID, err)
	}
	if repo.Mode == model.ModeDisabled {
		return nil, fmt.Errorf("%s: %w", repoID, ErrRepoDisabled)
	}
	return repo, nil
}

// report assembles present signals and the next claimable task for a repo.
func (s *ScanService) report(ctx context.Context, repo model.RepoConfig, tasks []model.Task) (ScanReport, error) {
	present, err := s.presentSignals(ctx, repo)
	if err != nil {
		return ScanReport{}, err
	}
	present.HasTasks = len(tasks) > 0

	titles, branches, err := s.claimGuards(ctx, repo)
	if err != nil {
		return ScanReport{}, err
	}

	return ScanReport{
		RepoID:    repo.ID,
		TaskCount: len(tasks),
		Present:   present,
		NextTask:  model.NextClaimable(tasks, titles, branches),
	}, nil
}

// presentSignals detects scaffolding files from remote directory listings.
func (s *ScanService) presentSignals(ctx context.Context, repo model.RepoConfig) (PresentSignals, error) {
	var present PresentSignals

	taskFiles, err := s.vcs.ListDir(ctx, repo, "tasks")
	if err != nil {
		return present, fmt.Errorf("listing tasks/ for %s: %w", repo.ID, err)
	}
	for _, p := range taskFiles {
		if strings.HasSuffix(p, ".md") {
			present.HasTasks = true
			break
		}
	}

	workflows, err := s.vcs.ListDir(ctx, repo, ".github/workflows")
	if err != nil {
		return present, fmt.Errorf("listing workflows for %s: %w", repo.ID, err)
	}
	for _, p := range workflows {
		if strings.HasSuffix(p, ".yml") || strings.HasSuffix(p, ".yaml") {
			present.HasCI = true
			break
		}
	}

	githubFiles, err := s.vcs.ListDir(ctx, repo, ".github")
	if err != nil {
		return present, fmt.Errorf("listing .github/ for %s: %w", repo.ID, err)
	}
	rootFiles, err := s.vcs.ListDir(ctx, repo, "")
	if err != nil {
		return present, fmt.Errorf("listing root for %s: %w", repo.ID, err)
	}

	for _, p := range append(githubFiles, rootFiles...) {
		switch {
		case strings.EqualFold(p, ".github/PULL_REQUEST_TEMPLATE.md"), strings.EqualFold(p, "PULL_REQUEST_TEMPLATE.md"):
			present.HasPRTemplate = true
		case p == ".github/CODEOWNERS", p == "CODEOWNERS":
			present.HasCodeowners = true
		}
	}

	return present, nil
}

// claimGuards collects the open PR titles and branch names that fence tasks
// from being claimed twice.
func (s *ScanService) claimGuards(ctx context.Context, repo model.RepoConfig) (titles, branches []string, err error) {
	open, err := s.vcs.ListOpenPullRequests(ctx, repo, "")
	if err != nil {
		return nil, nil, fmt.Errorf("listing open PRs for %s: %w", repo.ID, err)
	}
	for _, pr := range open.PRs {
		titles = append(titles, pr.Title)
	}

	branches, err = s.vcs.ListBranches(ctx, repo)
	if err != nil {
		return nil, nil, fmt.Errorf("listing branches for %s: %w", repo.ID, err)
	}

	return titles, branches, nil
}

// scaffoldContent returns the file body for a bootstrap proposal. The
// tasks/ proposal materializes as a seed task document.
func (s *ScanService) scaffoldContent(path string) ([]byte, string, error) {
	switch path {
	case "tasks/":
		task := model.Task{
			ID:         model.FormatTaskID(1),
			Title:      seedTaskTitle,
			Status:     model.StatusQueued,
			Priority:   "P2",
			Owner:      "unassigned",
			Estimate:   "2h",
			AutoPolicy: "review_required",
			Body:       seedTaskBody,
		}
		doc, err := task.Document()
		if err != nil {
			return nil, "", err
		}
		filePath := fmt.Sprintf("tasks/%s-%s.md", task.ID, model.Slugify(task.Title))
		return doc, filePath, nil
	case ".github/workflows/ci.yml":
		return []byte(ciWorkflow), path, nil
	case ".github/PULL_REQUEST_TEMPLATE.md":
		return []byte(prTemplate), path, nil
	default:
		return nil, "", fmt.Errorf("unknown scaffolding proposal %q", path)
	}
}
