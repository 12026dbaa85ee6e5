package model

import "time"

// PullRequest is the collaborator-side view of a pull request, carrying only
// the fields the engine dispatches on.
type PullRequest struct {
	Number    int
	Title     string
	HeadRef   string
	HeadSHA   string
	BaseRef   string
	URL       string
	Merged    bool
	MergedAt  time.Time
	MergeSHA  string
	UpdatedAt time.Time
}
