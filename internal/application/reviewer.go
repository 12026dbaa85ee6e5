package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/crewbot-dev/crewbot/internal/domain/model"
	"github.com/crewbot-dev/crewbot/internal/domain/port/driven"
)

var _ Agent = (*Reviewer)(nil)

// Reviewer posts an automated review summary comment on a pull request. It
// never mutates the task store.
type Reviewer struct {
	vcs driven.VCSClient
}

func NewReviewer(vcs driven.VCSClient) *Reviewer {
	return &Reviewer{vcs: vcs}
}

func (a *Reviewer) Kind() model.TriggerKind { return model.TriggerReview }

func (a *Reviewer) Run(ctx context.Context, repo model.RepoConfig, trig model.Trigger) (Outcome, error) {
	if trig.PR == nil {
		return Outcome{}, errors.New("review trigger carries no pull request")
	}
	pr := trig.PR

	body := fmt.Sprintf("Automated review summary for `%s`:\n\n", pr.HeadRef)
	if taskID := model.ExtractTaskID(pr.Title); taskID != "" {
		body += fmt.Sprintf("- Linked task: %s\n", taskID)
	}
	body += fmt.Sprintf("- Head commit: %s\n\n", pr.HeadSHA)
	body += "If checks are green and acceptance criteria are met, mark task status to `ready_for_integration`."

	commentURL, err := a.vcs.CreateComment(ctx, repo, pr.Number, body)
	if err != nil {
		return Outcome{}, fmt.Errorf("commenting on %s#%d: %w", repo.ID, pr.Number, err)
	}

	slog.Info("review posted", "repo", repo.ID, "pr", pr.Number, "head_sha", pr.HeadSHA)

	return Outcome{
		OK:         true,
		Action:     string(model.TriggerReview),
		TaskID:     model.ExtractTaskID(pr.Title),
		CommentURL: commentURL,
	}, nil
}
