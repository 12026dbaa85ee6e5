// Package httphandler is the HTTP driving adapter exposing the
// orchestration API.
package httphandler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/crewbot-dev/crewbot/internal/application"
	"github.com/crewbot-dev/crewbot/internal/domain/model"
	"github.com/crewbot-dev/crewbot/internal/domain/port/driven"
)

// maxWebhookBody bounds webhook payload reads.
const maxWebhookBody = 1 << 20

// Handler serves the orchestration REST API.
type Handler struct {
	repoStore driven.RepoStore
	engine    *application.Engine
	scanSvc   *application.ScanService
	pollSvc   *application.PollService
	logger    *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	repoStore driven.RepoStore,
	engine *application.Engine,
	scanSvc *application.ScanService,
	pollSvc *application.PollService,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		repoStore: repoStore,
		engine:    engine,
		scanSvc:   scanSvc,
		pollSvc:   pollSvc,
		logger:    logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /repos", h.RegisterRepo)
	mux.HandleFunc("GET /repos", h.ListRepos)
	mux.HandleFunc("PATCH /repos/{id}", h.PatchRepo)
	mux.HandleFunc("POST /repos/{id}/scan", h.ScanRepo)
	mux.HandleFunc("GET /repos/{id}/status", h.RepoStatus)
	mux.HandleFunc("GET /repos/{id}/next-task", h.NextTask)
	mux.HandleFunc("POST /repos/{id}/work-next", h.WorkNext)
	mux.HandleFunc("POST /repos/{id}/taskmaster", h.RunTaskmaster)
	mux.HandleFunc("POST /repos/{id}/bootstrap", h.Bootstrap)
	mux.HandleFunc("POST /webhook", h.Webhook)
	mux.HandleFunc("POST /poll/once", h.PollOnce)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// Health returns a simple liveness response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{OK: true})
}

// RegisterRepo registers a repository for orchestration.
func (h *Handler) RegisterRepo(w http.ResponseWriter, r *http.Request) {
	var req RegisterRepoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Owner == "" || req.Repo == "" {
		writeError(w, http.StatusBadRequest, "owner and repo are required")
		return
	}
	if req.Mode != "" && !model.ValidMode(req.Mode) {
		writeError(w, http.StatusBadRequest, "invalid mode")
		return
	}

	cfg := model.RepoConfig{
		Owner:         req.Owner,
		Name:          req.Repo,
		DefaultBranch: req.DefaultBranch,
		Mode:          model.RepoMode(req.Mode),
		WebhookSecret: req.WebhookSecret,
	}

	created, err := h.repoStore.Register(r.Context(), cfg)
	if err != nil {
		if errors.Is(err, driven.ErrDuplicateRepo) {
			writeError(w, http.StatusConflict, "repository already registered")
			return
		}
		h.logger.Error("repo registration failed", "owner", req.Owner, "repo", req.Repo, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, toRepoResponse(created))
}

// ListRepos returns all registered repositories.
func (h *Handler) ListRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := h.repoStore.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list repos", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]RepoResponse, 0, len(repos))
	for _, repo := range repos {
		resp = append(resp, toRepoResponse(repo))
	}

	writeJSON(w, http.StatusOK, resp)
}

// PatchRepo updates a repository's mode and/or webhook secret.
func (h *Handler) PatchRepo(w http.ResponseWriter, r *http.Request) {
	var req PatchRepoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var mode *model.RepoMode
	if req.Mode != nil {
		if !model.ValidMode(*req.Mode) {
			writeError(w, http.StatusBadRequest, "invalid mode")
			return
		}
		m := model.RepoMode(*req.Mode)
		mode = &m
	}

	repo, err := h.repoStore.Patch(r.Context(), r.PathValue("id"), mode, req.WebhookSecret)
	if err != nil {
		if errors.Is(err, driven.ErrRepoNotFound) {
			writeError(w, http.StatusNotFound, "repository not found")
			return
		}
		h.logger.Error("repo patch failed", "repo", r.PathValue("id"), "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toRepoResponse(*repo))
}

// ScanRepo refreshes the task store from the remote's task files.
func (h *Handler) ScanRepo(w http.ResponseWriter, r *http.Request) {
	report, err := h.scanSvc.Scan(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r.PathValue("id"), err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// RepoStatus reports the scaffolding signals and next claimable task.
func (h *Handler) RepoStatus(w http.ResponseWriter, r *http.Request) {
	report, err := h.scanSvc.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r.PathValue("id"), err)
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Present:  report.Present,
		NextTask: toTaskResponsePtr(report.NextTask),
	})
}

// NextTask returns the next claimable task, or JSON null when none exists.
func (h *Handler) NextTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.scanSvc.NextTask(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r.PathValue("id"), err)
		return
	}

	writeJSON(w, http.StatusOK, toTaskResponsePtr(task))
}

// WorkNext dispatches the Developer action for the repository.
func (h *Handler) WorkNext(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, model.TriggerWorkNext)
}

// RunTaskmaster dispatches the Taskmaster action for the repository.
func (h *Handler) RunTaskmaster(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, model.TriggerTaskmaster)
}

// dispatch runs a manual trigger through the engine and maps the expected
// outcomes onto the response surface.
func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request, kind model.TriggerKind) {
	repoID := r.PathValue("id")

	out, err := h.engine.Handle(r.Context(), model.Trigger{
		Source: model.SourceManual,
		Kind:   kind,
		RepoID: repoID,
	})
	if err != nil {
		switch {
		case errors.Is(err, application.ErrNoClaimableTask):
			w.WriteHeader(http.StatusNoContent)
		case errors.Is(err, driven.ErrLeaseBusy):
			writeError(w, http.StatusLocked, "repo busy")
		default:
			h.writeServiceError(w, repoID, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, out)
}

// Bootstrap proposes (and in pr mode applies) missing scaffolding.
func (h *Handler) Bootstrap(w http.ResponseWriter, r *http.Request) {
	repoID := r.PathValue("id")

	plan, err := h.scanSvc.Bootstrap(r.Context(), repoID)
	if err != nil {
		if errors.Is(err, driven.ErrLeaseBusy) {
			writeError(w, http.StatusLocked, "repo busy")
			return
		}
		h.writeServiceError(w, repoID, err)
		return
	}

	if len(plan.Proposals) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, plan)
}

// webhookEvent is the subset of a GitHub pull_request event payload the
// engine consumes.
type webhookEvent struct {
	Action      string `json:"action"`
	PullRequest struct {
		Number         int    `json:"number"`
		Title          string `json:"title"`
		Merged         bool   `json:"merged"`
		MergeCommitSHA string `json:"merge_commit_sha"`
		HTMLURL        string `json:"html_url"`
		Head           struct {
			Ref string `json:"ref"`
			SHA string `json:"sha"`
		} `json:"head"`
		Base struct {
			Ref string `json:"ref"`
		} `json:"base"`
	} `json:"pull_request"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// Webhook ingests a GitHub pull_request event. opened/synchronize dispatch
// the Reviewer; closed-with-merge dispatches the Integrator on the same
// ledger key poll-detected merges use, so the two paths never
// double-integrate.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	owner, name, ok := strings.Cut(event.Repository.FullName, "/")
	if !ok {
		writeError(w, http.StatusBadRequest, "missing repository.full_name")
		return
	}

	repoID := model.DeriveRepoID(owner, name)
	repo, err := h.repoStore.Get(r.Context(), repoID)
	if err != nil {
		if errors.Is(err, driven.ErrRepoNotFound) {
			// Unknown repos are acked so the sender stops retrying.
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "ignored"})
			return
		}
		h.writeServiceError(w, repoID, err)
		return
	}

	if err := verifySignature(r.Header.Get("X-Hub-Signature-256"), repo.WebhookSecret, body); err != nil {
		h.logger.Warn("webhook signature rejected", "repo", repoID)
		writeError(w, http.StatusUnauthorized, "signature mismatch")
		return
	}

	pr := &model.PullRequest{
		Number:   event.PullRequest.Number,
		Title:    event.PullRequest.Title,
		HeadRef:  event.PullRequest.Head.Ref,
		HeadSHA:  event.PullRequest.Head.SHA,
		BaseRef:  event.PullRequest.Base.Ref,
		URL:      event.PullRequest.HTMLURL,
		Merged:   event.PullRequest.Merged,
		MergeSHA: event.PullRequest.MergeCommitSHA,
	}

	var kind model.TriggerKind
	var deliveryID string
	switch {
	case event.Action == "opened" || event.Action == "synchronize":
		kind = model.TriggerReview
		deliveryID = model.ReviewDedupKey(pr.Number, pr.HeadSHA)
	case event.Action == "closed" && pr.Merged:
		kind = model.TriggerIntegrate
		deliveryID = model.MergeDedupKey(pr.Number)
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "ignored"})
		return
	}

	fingerprint := r.Header.Get("X-GitHub-Delivery")
	if fingerprint == "" {
		fingerprint = model.Fingerprint("pull_request", event.Action, pr.Number, pr.HeadSHA)
	}

	out, err := h.engine.Handle(r.Context(), model.Trigger{
		Source:      model.SourceWebhook,
		Kind:        kind,
		RepoID:      repoID,
		DeliveryID:  deliveryID,
		Fingerprint: fingerprint,
		PR:          pr,
	})
	if err != nil {
		switch {
		case errors.Is(err, driven.ErrLeaseBusy):
			writeError(w, http.StatusLocked, "repo busy")
		case errors.Is(err, driven.ErrTaskNotFound):
			writeError(w, http.StatusUnprocessableEntity, "task not found for merged PR")
		default:
			h.writeServiceError(w, repoID, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, out)
}

// PollOnce runs one poll pass across all registered repos.
func (h *Handler) PollOnce(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.pollSvc.PollAll(r.Context())
	if err != nil {
		h.logger.Error("poll pass failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, PollResponse{Repos: summaries})
}

// writeServiceError maps cross-cutting sentinel errors onto responses.
func (h *Handler) writeServiceError(w http.ResponseWriter, repoID string, err error) {
	switch {
	case errors.Is(err, driven.ErrRepoNotFound):
		writeError(w, http.StatusNotFound, "repository not found")
	case errors.Is(err, application.ErrRepoDisabled):
		writeError(w, http.StatusForbidden, "repository disabled")
	default:
		h.logger.Error("request failed", "repo", repoID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
