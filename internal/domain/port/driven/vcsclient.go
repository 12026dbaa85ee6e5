package driven

import (
	"context"
	"time"

	"github.com/crewbot-dev/crewbot/internal/domain/model"
)

// RemoteFile is a file fetched from the remote repository via the
// collaborator API.
type RemoteFile struct {
	Path    string
	SHA     string
	Content []byte
}

// PullRequestList is the result of a conditional PR listing. NotModified is
// true when the remote answered 304 for the presented ETag; in that case PRs
// is empty and ETag carries the presented value unchanged. RateRemaining and
// RateResetAt snapshot the external rate budget from the response metadata.
type PullRequestList struct {
	PRs           []model.PullRequest
	NotModified   bool
	ETag          string
	RateRemaining int
	RateResetAt   time.Time
}

// VCSClient is the driving boundary to the external version-control
// collaborator. Implementations must bound every call with the context
// deadline; the engine treats any error as a CollaboratorError, aborts the
// action, and releases the lease without mutating the task store.
type VCSClient interface {
	// ListOpenPullRequests and ListClosedPullRequests issue conditional
	// reads using the cursor-supplied etag ("" for unconditional).
	ListOpenPullRequests(ctx context.Context, repo model.RepoConfig, etag string) (PullRequestList, error)
	ListClosedPullRequests(ctx context.Context, repo model.RepoConfig, etag string) (PullRequestList, error)

	// ListTaskFiles returns the task documents under tasks/ at the default
	// branch head. A repository without a tasks/ directory yields an empty
	// slice, not an error.
	ListTaskFiles(ctx context.Context, repo model.RepoConfig) ([]RemoteFile, error)

	// ListDir returns the file paths directly under dir at the default
	// branch head, or an empty slice when dir does not exist.
	ListDir(ctx context.Context, repo model.RepoConfig, dir string) ([]string, error)

	ListBranches(ctx context.Context, repo model.RepoConfig) ([]string, error)

	// CreateBranch creates a branch from the default branch head.
	CreateBranch(ctx context.Context, repo model.RepoConfig, name string) error

	// PutFile creates or updates path on branch. sha is the blob SHA of the
	// existing file ("" to create).
	PutFile(ctx context.Context, repo model.RepoConfig, branch, path string, content []byte, message, sha string) error

	OpenPullRequest(ctx context.Context, repo model.RepoConfig, head, base, title, body string) (url string, err error)

	CreateComment(ctx context.Context, repo model.RepoConfig, prNumber int, body string) (url string, err error)
}
