// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/crewbot-dev/crewbot/internal/domain/model"
)

// ErrNoClaimableTask indicates no queued task with satisfied dependencies
// exists. It is an expected terminal state, not a failure.
var ErrNoClaimableTask = errors.New("no claimable task")

// ErrRepoDisabled indicates the repository's mode rejects all triggers.
var ErrRepoDisabled = errors.New("repository disabled")

// Outcome is the result of one engine dispatch. It is recorded in the dedup
// ledger as JSON and replayed verbatim for duplicate deliveries.
type Outcome struct {
	OK         bool   `json:"ok"`
	Action     string `json:"action"`
	Message    string `json:"message,omitempty"`
	TaskID     string `json:"task,omitempty"`
	Branch     string `json:"branch,omitempty"`
	PRURL      string `json:"pr_url,omitempty"`
	CommentURL string `json:"comment_url,omitempty"`

	// Replayed is true when the outcome was served from the ledger rather
	// than a fresh dispatch. Not persisted.
	Replayed bool `json:"-"`
}

// Agent is one pluggable lifecycle action. Implementations are stateless per
// invocation: they read the task store snapshot, perform collaborator side
// effects, and apply the task mutation only after the side effect succeeded.
type Agent interface {
	Kind() model.TriggerKind
	Run(ctx context.Context, repo model.RepoConfig, trig model.Trigger) (Outcome, error)
}

// prBodyForTask renders the pull request body template linking a task.
func prBodyForTask(taskID, title string) string {
	return fmt.Sprintf(`## Linked Tasks
- %s

## What changed
- %s

## Validation
- CI runs on pull_request
- Acceptance criteria reviewed

## Risk
- No protected paths changed
`, taskID, title)
}
