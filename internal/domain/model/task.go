package model

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// TaskStatus is the lifecycle state of a work item.
type TaskStatus string

const (
	StatusQueued              TaskStatus = "queued"
	StatusInReview            TaskStatus = "in_review"
	StatusReadyForIntegration TaskStatus = "ready_for_integration"
	StatusDone                TaskStatus = "done"
	StatusBlocked             TaskStatus = "blocked"
)

// ValidStatus reports whether s is a recognized task status.
func ValidStatus(s string) bool {
	switch TaskStatus(s) {
	case StatusQueued, StatusInReview, StatusReadyForIntegration, StatusDone, StatusBlocked:
		return true
	}
	return false
}

// taskIDPattern matches the T-#### work-item id format.
var taskIDPattern = regexp.MustCompile(`T-\d{4}`)

// FormatTaskID renders the nth task id in the monotonic T-#### format.
func FormatTaskID(n int) string {
	return fmt.Sprintf("T-%04d", n)
}

// ExtractTaskID returns the first T-#### id embedded in s (typically a PR
// title), or "" when none is present.
func ExtractTaskID(s string) string {
	return taskIDPattern.FindString(s)
}

// Task is a single work item tracked for a repository. Tasks mirror remote
// task files; the file header's status field is the lifecycle source of
// truth and the store row is a synced snapshot of it.
type Task struct {
	RepoID     string
	ID         string // T-####, unique within a repo
	Title      string
	Status     TaskStatus
	Priority   string // P0..P3
	Order      *int   // explicit ordering hint; nil sorts last
	DependsOn  []string
	Owner      string
	Estimate   string
	Acceptance []string
	AutoPolicy string
	Path       string // tasks/T-####-slug.md within the remote repo
	Body       string // free-form description below the header
	UpdatedAt  time.Time
}

// CanTransition reports whether a task may move from its current status to
// the target. Transitions are monotonic along
// queued -> in_review -> ready_for_integration -> done, with blocked
// reachable from any non-terminal state and returning only to queued.
// Both in_review and ready_for_integration are valid predecessors of done.
func CanTransition(from, to TaskStatus) bool {
	switch from {
	case StatusQueued:
		return to == StatusInReview || to == StatusBlocked
	case StatusInReview:
		return to == StatusReadyForIntegration || to == StatusDone || to == StatusBlocked
	case StatusReadyForIntegration:
		return to == StatusDone || to == StatusBlocked
	case StatusBlocked:
		return to == StatusQueued
	case StatusDone:
		return false
	}
	return false
}

// priorityRank maps P0..P3 to sort ranks; unknown priorities sort last.
func priorityRank(p string) int {
	switch strings.ToUpper(p) {
	case "P0":
		return 0
	case "P1":
		return 1
	case "P2":
		return 2
	case "P3":
		return 3
	}
	return 99
}

// OrderTasks sorts tasks by priority (P0 first), then explicit Order
// (nil last), then id. The ordering is total and deterministic, so every
// process observing the same snapshot picks the same next task.
func OrderTasks(tasks []Task) []Task {
	out := make([]Task, len(tasks))
	copy(out, tasks)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if pa, pb := priorityRank(a.Priority), priorityRank(b.Priority); pa != pb {
			return pa < pb
		}
		switch {
		case a.Order != nil && b.Order != nil && *a.Order != *b.Order:
			return *a.Order < *b.Order
		case a.Order != nil && b.Order == nil:
			return true
		case a.Order == nil && b.Order != nil:
			return false
		}
		return a.ID < b.ID
	})
	return out
}

// NextClaimable returns the next task eligible for a Developer claim: status
// queued, every dependency done, id not mentioned in any open PR title, and
// no existing feature/<id>- branch. Returns nil when no task qualifies.
func NextClaimable(tasks []Task, openPRTitles []string, branches []string) *Task {
	byID := make(map[string]Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	depsDone := func(t Task) bool {
		for _, dep := range t.DependsOn {
			dep = strings.TrimSpace(dep)
			if dep == "" {
				continue
			}
			d, ok := byID[dep]
			// Unknown dependencies block the task.
			if !ok || d.Status != StatusDone {
				return false
			}
		}
		return true
	}

	claimedByPR := func(id string) bool {
		for _, title := range openPRTitles {
			if strings.Contains(title, id) {
				return true
			}
		}
		return false
	}

	claimedByBranch := func(id string) bool {
		prefix := "feature/" + id + "-"
		for _, b := range branches {
			if b == "feature/"+id || strings.HasPrefix(b, prefix) {
				return true
			}
		}
		return false
	}

	for _, t := range OrderTasks(tasks) {
		if t.Status != StatusQueued || t.ID == "" {
			continue
		}
		if claimedByPR(t.ID) || claimedByBranch(t.ID) {
			continue
		}
		if !depsDone(t) {
			continue
		}
		out := t
		return &out
	}
	return nil
}

// BranchName returns the feature branch name for a task claim.
func (t Task) BranchName() string {
	return "feature/" + t.ID + "-" + Slugify(t.Title)
}

// Slugify lowercases text and collapses runs of non-alphanumerics into
// single hyphens, matching the branch naming convention.
func Slugify(text string) string {
	var b strings.Builder
	for _, c := range text {
		switch {
		case c >= 'a' && c <= 'z' || c >= '0' && c <= '9':
			b.WriteRune(c)
		case c >= 'A' && c <= 'Z':
			b.WriteRune(c + ('a' - 'A'))
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), "-")
}
