package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/crewbot-dev/crewbot/internal/domain/model"
	"github.com/crewbot-dev/crewbot/internal/domain/port/driven"
)

// PollSummary reports one repository's poll pass.
type PollSummary struct {
	RepoID        string `json:"repo_id"`
	Skipped       bool   `json:"skipped,omitempty"`
	NotModified   bool   `json:"not_modified"`
	Reviews       int    `json:"reviews_dispatched"`
	Integrations  int    `json:"integrations_dispatched"`
	RateRemaining int    `json:"rate_remaining"`
	NextInterval  string `json:"next_interval"`
	Error         string `json:"error,omitempty"`

	// nextWait carries NextInterval in parsed form for the poll loop.
	nextWait time.Duration
}

// PollService periodically polls registered repositories for pull request
// activity and turns observations into engine triggers: a Reviewer dispatch
// per unseen PR head commit and an Integrator dispatch per newly merged PR.
// Conditional requests ride the per-repo cursor's ETags; the backoff policy
// stretches the loop interval when the rate budget runs low.
type PollService struct {
	repos   driven.RepoStore
	cursors driven.CursorStore
	vcs     driven.VCSClient
	engine  *Engine
	backoff BackoffPolicy

	now func() time.Time
}

func NewPollService(
	repos driven.RepoStore,
	cursors driven.CursorStore,
	vcs driven.VCSClient,
	engine *Engine,
	backoff BackoffPolicy,
) *PollService {
	return &PollService{
		repos:   repos,
		cursors: cursors,
		vcs:     vcs,
		engine:  engine,
		backoff: backoff,
		now:     time.Now,
	}
}

// Start begins the polling loop. It runs an immediate pass, then waits the
// longest interval any repo's cursor suggests before the next one. Start
// blocks until the context is canceled.
func (s *PollService) Start(ctx context.Context) {
	wait := s.backoff.Active

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("poll service stopped")
			return
		case <-timer.C:
			summaries, err := s.PollAll(ctx)
			if err != nil {
				slog.Error("poll cycle failed", "error", err)
				wait = s.backoff.Active
			} else {
				wait = s.cycleInterval(summaries)
			}
			timer.Reset(wait)
		}
	}
}

// PollAll runs one poll pass over every registered repository that is not
// disabled.
func (s *PollService) PollAll(ctx context.Context) ([]PollSummary, error) {
	start := s.now()

	repos, err := s.repos.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing repos: %w", err)
	}

	summaries := make([]PollSummary, 0, len(repos))
	var pollErrors int
	for _, repo := range repos {
		if ctx.Err() != nil {
			return summaries, ctx.Err()
		}

		if repo.Mode == model.ModeDisabled {
			summaries = append(summaries, PollSummary{RepoID: repo.ID, Skipped: true})
			continue
		}

		summary, err := s.PollOnce(ctx, repo)
		if err != nil {
			slog.Error("repo poll failed", "repo", repo.ID, "error", err)
			summary.RepoID = repo.ID
			summary.Error = err.Error()
			pollErrors++
		}
		summaries = append(summaries, summary)
	}

	slog.Info("poll cycle complete",
		"repos", len(repos),
		"errors", pollErrors,
		"duration", time.Since(start).Round(time.Millisecond),
	)

	return summaries, nil
}

// PollOnce polls a single repository: one conditional open-PR pass, one
// conditional closed-PR pass, dispatches for novel observations, and a
// cursor update. A pass where both listings answer 304 advances only
// last_poll_at.
func (s *PollService) PollOnce(ctx context.Context, repo model.RepoConfig) (PollSummary, error) {
	cursor, err := s.cursors.Get(ctx, repo.ID)
	if err != nil {
		return PollSummary{}, fmt.Errorf("loading cursor for %s: %w", repo.ID, err)
	}

	open, err := s.vcs.ListOpenPullRequests(ctx, repo, cursor.OpenETag)
	if err != nil {
		return PollSummary{}, fmt.Errorf("open PR pass for %s: %w", repo.ID, err)
	}
	closed, err := s.vcs.ListClosedPullRequests(ctx, repo, cursor.ClosedETag)
	if err != nil {
		return PollSummary{}, fmt.Errorf("closed PR pass for %s: %w", repo.ID, err)
	}

	now := s.now().UTC()
	cursor.LastPollAt = now

	// Rate metadata comes only from fresh responses; the last one wins.
	for _, list := range []driven.PullRequestList{open, closed} {
		if !list.NotModified {
			cursor.RateRemaining = list.RateRemaining
			cursor.RateResetAt = list.RateResetAt
		}
	}

	summary := PollSummary{
		RepoID:      repo.ID,
		NotModified: open.NotModified && closed.NotModified,
	}

	// Observe mode advances the cursor but dispatches nothing, so the
	// counters report only work that actually happened.
	if !open.NotModified {
		cursor.OpenETag = open.ETag
		if repo.Mode == model.ModePR {
			summary.Reviews = s.dispatchReviews(ctx, repo, open.PRs)
		}
	}

	if !closed.NotModified {
		cursor.ClosedETag = closed.ETag
		dispatched, watermark := s.dispatchIntegrations(ctx, repo, closed.PRs, cursor.LastMergedAt)
		summary.Integrations = dispatched
		if watermark.After(cursor.LastMergedAt) {
			cursor.LastMergedAt = watermark
		}
	}

	if err := s.cursors.Put(ctx, cursor); err != nil {
		return summary, fmt.Errorf("saving cursor for %s: %w", repo.ID, err)
	}

	summary.RateRemaining = cursor.RateRemaining
	summary.nextWait = s.backoff.NextInterval(cursor, now)
	summary.NextInterval = summary.nextWait.String()

	slog.Info("repo polled",
		"repo", repo.ID,
		"not_modified", summary.NotModified,
		"reviews", summary.Reviews,
		"integrations", summary.Integrations,
		"rate_remaining", summary.RateRemaining,
	)

	return summary, nil
}

// dispatchReviews triggers the Reviewer for each open PR head commit the
// ledger has not seen. Busy repos are skipped and retried on the next pass.
func (s *PollService) dispatchReviews(ctx context.Context, repo model.RepoConfig, prs []model.PullRequest) int {
	var dispatched int
	for i := range prs {
		pr := prs[i]
		key := model.ReviewDedupKey(pr.Number, pr.HeadSHA)

		seen, err := s.engine.Seen(ctx, repo.ID, key)
		if err != nil {
			slog.Error("dedup lookup failed", "repo", repo.ID, "pr", pr.Number, "error", err)
			continue
		}
		if seen {
			continue
		}

		out, err := s.engine.Handle(ctx, model.Trigger{
			Source:      model.SourcePoll,
			Kind:        model.TriggerReview,
			RepoID:      repo.ID,
			DeliveryID:  key,
			Fingerprint: model.Fingerprint("pull_request", "synchronize", pr.Number, pr.HeadSHA),
			PR:          &pr,
		})
		switch {
		case errors.Is(err, driven.ErrLeaseBusy):
			slog.Info("repo busy, review deferred", "repo", repo.ID, "pr", pr.Number)
		case err != nil:
			slog.Error("reviewer dispatch failed", "repo", repo.ID, "pr", pr.Number, "error", err)
		case !out.Replayed:
			dispatched++
		}
	}
	return dispatched
}

// dispatchIntegrations triggers the Integrator for merged PRs newer than
// the cursor watermark. On a cursor that has never seen a merge, only the
// most recently merged PR is integrated so a first poll of an old
// repository does not flood the engine. Returns the dispatch count and the
// newest merged-at observed.
func (s *PollService) dispatchIntegrations(ctx context.Context, repo model.RepoConfig, prs []model.PullRequest, watermark time.Time) (int, time.Time) {
	var candidates []model.PullRequest
	if watermark.IsZero() {
		var latest *model.PullRequest
		for i := range prs {
			if !prs[i].Merged {
				continue
			}
			if latest == nil || prs[i].MergedAt.After(latest.MergedAt) {
				latest = &prs[i]
			}
		}
		if latest != nil {
			candidates = []model.PullRequest{*latest}
		}
	} else {
		for _, pr := range prs {
			if pr.Merged && pr.MergedAt.After(watermark) {
				candidates = append(candidates, pr)
			}
		}
	}

	newest := watermark
	var dispatched int
	for i := range candidates {
		pr := candidates[i]
		if pr.MergedAt.After(newest) {
			newest = pr.MergedAt
		}

		// Outside pr mode the merge is recorded in the watermark only.
		if repo.Mode != model.ModePR {
			continue
		}

		key := model.MergeDedupKey(pr.Number)
		seen, err := s.engine.Seen(ctx, repo.ID, key)
		if err != nil {
			slog.Error("dedup lookup failed", "repo", repo.ID, "pr", pr.Number, "error", err)
			continue
		}
		if seen {
			continue
		}

		out, err := s.engine.Handle(ctx, model.Trigger{
			Source:      model.SourcePoll,
			Kind:        model.TriggerIntegrate,
			RepoID:      repo.ID,
			DeliveryID:  key,
			Fingerprint: model.Fingerprint("pull_request", "closed", pr.Number, pr.HeadSHA),
			PR:          &pr,
		})
		switch {
		case errors.Is(err, driven.ErrLeaseBusy):
			slog.Info("repo busy, integration deferred", "repo", repo.ID, "pr", pr.Number)
		case err != nil:
			slog.Error("integrator dispatch failed", "repo", repo.ID, "pr", pr.Number, "error", err)
		case !out.Replayed:
			dispatched++
		}
	}

	return dispatched, newest
}

// cycleInterval picks the loop's next wait: the most conservative of the
// per-repo suggestions, since all repos draw on one shared rate budget.
func (s *PollService) cycleInterval(summaries []PollSummary) time.Duration {
	wait := s.backoff.Active
	for _, sum := range summaries {
		if sum.nextWait > wait {
			wait = sum.nextWait
		}
	}
	return wait
}
