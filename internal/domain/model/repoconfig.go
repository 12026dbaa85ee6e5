package model

import "time"

// RepoMode is the per-repository policy gate controlling whether the engine
// may perform side effects against the remote.
type RepoMode string

const (
	// ModeObserve permits read-only scans and status queries; every mutating
	// action short-circuits with a no-op outcome.
	ModeObserve RepoMode = "observe"
	// ModePR is the only mode in which side-effecting collaborator calls
	// (branch creation, PRs, comments) are made.
	ModePR RepoMode = "pr"
	// ModeDisabled rejects all triggers for the repository, webhooks included.
	ModeDisabled RepoMode = "disabled"
)

// ValidMode reports whether s is a recognized repository mode.
func ValidMode(s string) bool {
	switch RepoMode(s) {
	case ModeObserve, ModePR, ModeDisabled:
		return true
	}
	return false
}

// RepoConfig describes a tracked repository. Owner and Name are immutable
// after registration; Mode and WebhookSecret are mutable via patch.
type RepoConfig struct {
	ID            string
	Owner         string
	Name          string
	DefaultBranch string
	Mode          RepoMode
	WebhookSecret string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DeriveRepoID returns the stable registry key for owner/repo.
func DeriveRepoID(owner, name string) string {
	return owner + "_" + name
}

// FullName returns the owner/name form used by the GitHub API and webhook
// payloads.
func (r RepoConfig) FullName() string {
	return r.Owner + "/" + r.Name
}
