package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/crewbot-dev/crewbot/internal/domain/model"
	"github.com/crewbot-dev/crewbot/internal/domain/port/driven"
)

// Engine is the single decision point for every trigger. It resolves the
// repository and its mode, takes the repository lease, consults the dedup
// ledger, dispatches the matching agent, and records the outcome. All
// trigger sources (manual calls, webhooks, poll ticks) converge here so the
// lifecycle logic exists exactly once.
type Engine struct {
	repos      driven.RepoStore
	leases     driven.LeaseStore
	deliveries driven.DeliveryStore
	agents     map[model.TriggerKind]Agent

	leaseTTL      time.Duration
	actionTimeout time.Duration
	now           func() time.Time
}

// NewEngine wires the engine with its coordination stores and agents.
// leaseTTL must exceed the worst-case action duration (actionTimeout) with
// margin so a crashed holder's lease expires rather than deadlocking the
// repository.
func NewEngine(
	repos driven.RepoStore,
	leases driven.LeaseStore,
	deliveries driven.DeliveryStore,
	agents []Agent,
	leaseTTL time.Duration,
	actionTimeout time.Duration,
) *Engine {
	byKind := make(map[model.TriggerKind]Agent, len(agents))
	for _, a := range agents {
		byKind[a.Kind()] = a
	}
	return &Engine{
		repos:         repos,
		leases:        leases,
		deliveries:    deliveries,
		agents:        byKind,
		leaseTTL:      leaseTTL,
		actionTimeout: actionTimeout,
		now:           time.Now,
	}
}

// Handle processes one trigger end to end. Expected non-failure outcomes
// surface as sentinel errors the transport layer maps to responses:
// driven.ErrLeaseBusy (repo busy), ErrNoClaimableTask (no work),
// ErrRepoDisabled (triggers rejected), driven.ErrRepoNotFound.
func (e *Engine) Handle(ctx context.Context, trig model.Trigger) (Outcome, error) {
	repo, err := e.repos.Get(ctx, trig.RepoID)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolving repo %s: %w", trig.RepoID, err)
	}

	switch repo.Mode {
	case model.ModeDisabled:
		return Outcome{}, fmt.Errorf("%s: %w", repo.ID, ErrRepoDisabled)
	case model.ModeObserve:
		slog.Info("trigger observed, no changes performed",
			"repo", repo.ID, "kind", trig.Kind, "source", trig.Source)
		return Outcome{
			OK:      true,
			Action:  string(trig.Kind),
			Message: "observe mode: no changes performed",
		}, nil
	}

	agent, ok := e.agents[trig.Kind]
	if !ok {
		return Outcome{}, fmt.Errorf("no agent for trigger kind %q", trig.Kind)
	}

	token, err := e.leases.Acquire(ctx, repo.ID, e.leaseTTL)
	if err != nil {
		return Outcome{}, fmt.Errorf("acquiring lease for %s: %w", repo.ID, err)
	}
	defer func() {
		if err := e.leases.Release(context.WithoutCancel(ctx), repo.ID, token); err != nil {
			slog.Error("lease release failed", "repo", repo.ID, "error", err)
		}
	}()

	if trig.DeliveryID != "" {
		rec, err := e.deliveries.Get(ctx, repo.ID, trig.DeliveryID)
		if err != nil {
			return Outcome{}, fmt.Errorf("dedup lookup for %s/%s: %w", repo.ID, trig.DeliveryID, err)
		}
		if rec != nil {
			slog.Info("duplicate delivery replayed",
				"repo", repo.ID, "delivery_id", trig.DeliveryID, "source", trig.Source)
			return replayOutcome(*rec)
		}
	}

	actionCtx, cancel := context.WithTimeout(ctx, e.actionTimeout)
	defer cancel()

	out, err := agent.Run(actionCtx, *repo, trig)
	if err != nil {
		// The lease is released by the deferred call; no task mutation
		// happened, so a retry from the top is safe.
		return Outcome{}, err
	}

	if trig.DeliveryID != "" {
		payload, err := json.Marshal(out)
		if err != nil {
			return Outcome{}, fmt.Errorf("encoding outcome for %s/%s: %w", repo.ID, trig.DeliveryID, err)
		}
		existing, inserted, err := e.deliveries.Record(ctx, model.DeliveryRecord{
			RepoID:      repo.ID,
			DeliveryID:  trig.DeliveryID,
			Fingerprint: trig.Fingerprint,
			Outcome:     string(payload),
			ProcessedAt: e.now().UTC(),
		})
		if err != nil {
			return Outcome{}, fmt.Errorf("recording delivery %s/%s: %w", repo.ID, trig.DeliveryID, err)
		}
		if !inserted {
			return replayOutcome(*existing)
		}
	}

	return out, nil
}

// Seen reports whether a delivery id has already been processed for the
// repo. Poll passes use it to skip dispatches without taking the lease.
func (e *Engine) Seen(ctx context.Context, repoID, deliveryID string) (bool, error) {
	rec, err := e.deliveries.Get(ctx, repoID, deliveryID)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// replayOutcome decodes a ledger record back into the outcome returned for
// the original delivery.
func replayOutcome(rec model.DeliveryRecord) (Outcome, error) {
	var out Outcome
	if err := json.Unmarshal([]byte(rec.Outcome), &out); err != nil {
		return Outcome{}, fmt.Errorf("decoding recorded outcome for %s/%s: %w", rec.RepoID, rec.DeliveryID, err)
	}
	out.Replayed = true
	return out, nil
}
