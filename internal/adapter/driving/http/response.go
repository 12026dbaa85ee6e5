package httphandler

import (
	"encoding/json"
	"net/http"

	"github.com/crewbot-dev/crewbot/internal/application"
	"github.com/crewbot-dev/crewbot/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// RegisterRepoRequest is the JSON body for repository registration.
type RegisterRepoRequest struct {
	Owner         string `json:"owner"`
	Repo          string `json:"repo"`
	DefaultBranch string `json:"default_branch"`
	Mode          string `json:"mode"`
	WebhookSecret string `json:"webhook_secret"`
}

// PatchRepoRequest is the JSON body for repository patching. Only mode and
// webhook secret are mutable; absent fields are left unchanged.
type PatchRepoRequest struct {
	Mode          *string `json:"mode"`
	WebhookSecret *string `json:"webhook_secret"`
}

// RepoResponse is the JSON representation of a registered repository. The
// webhook secret is never echoed back.
type RepoResponse struct {
	ID            string `json:"id"`
	Owner         string `json:"owner"`
	Repo          string `json:"repo"`
	DefaultBranch string `json:"default_branch"`
	Mode          string `json:"mode"`
}

// TaskResponse is the JSON representation of a work item.
type TaskResponse struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Status     string   `json:"status"`
	Priority   string   `json:"priority"`
	Order      *int     `json:"order"`
	DependsOn  []string `json:"depends_on"`
	Owner      string   `json:"owner"`
	Estimate   string   `json:"estimate"`
	Acceptance []string `json:"acceptance"`
	AutoPolicy string   `json:"auto_policy"`
	Path       string   `json:"path"`
}

// StatusResponse is the JSON body of the repository status endpoint.
type StatusResponse struct {
	Present  application.PresentSignals `json:"present"`
	NextTask *TaskResponse              `json:"next_task"`
}

// PollResponse is the JSON body of the poll endpoint.
type PollResponse struct {
	Repos []application.PollSummary `json:"repos"`
}

// HealthResponse is the JSON body of the health endpoint.
type HealthResponse struct {
	OK bool `json:"ok"`
}

// toRepoResponse converts a domain RepoConfig to its JSON representation.
func toRepoResponse(repo model.RepoConfig) RepoResponse {
	return RepoResponse{
		ID:            repo.ID,
		Owner:         repo.Owner,
		Repo:          repo.Name,
		DefaultBranch: repo.DefaultBranch,
		Mode:          string(repo.Mode),
	}
}

// toTaskResponse converts a domain Task to its JSON representation.
func toTaskResponse(t model.Task) TaskResponse {
	deps := t.DependsOn
	if deps == nil {
		deps = []string{}
	}
	acceptance := t.Acceptance
	if acceptance == nil {
		acceptance = []string{}
	}

	return TaskResponse{
		ID:         t.ID,
		Title:      t.Title,
		Status:     string(t.Status),
		Priority:   t.Priority,
		Order:      t.Order,
		DependsOn:  deps,
		Owner:      t.Owner,
		Estimate:   t.Estimate,
		Acceptance: acceptance,
		AutoPolicy: t.AutoPolicy,
		Path:       t.Path,
	}
}

// toTaskResponsePtr maps a nullable task, preserving JSON null.
func toTaskResponsePtr(t *model.Task) *TaskResponse {
	if t == nil {
		return nil
	}
	resp := toTaskResponse(*t)
	return &resp
}
